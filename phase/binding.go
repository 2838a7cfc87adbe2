package phase

import (
	"context"
	"fmt"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/terminology"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// BindingPhase checks coded element values against the ValueSets their
// bindings name. A required binding failure is an error, an extensible
// one a warning. When membership cannot be decided the phase reports an
// information issue rather than guessing.
type BindingPhase struct{}

// NewBindingPhase creates the terminology binding phase.
func NewBindingPhase() *BindingPhase {
	return &BindingPhase{}
}

// Name returns the phase name.
func (p *BindingPhase) Name() string {
	return PhaseBinding
}

// Validate checks every binding rule in the ruleset.
func (p *BindingPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.Ruleset == nil || pctx.Terminology == nil {
		return nil
	}

	var issues []fv.Issue
	for _, rule := range pctx.Ruleset.Bindings {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		for _, hit := range walker.ElementsAt(pctx.Root, rule.Path) {
			issues = append(issues, p.checkElement(ctx, pctx, rule, hit)...)
		}
	}
	return issues
}

// checkElement decides membership for one bound element. An element
// with several codings passes when any one of them is a member.
func (p *BindingPhase) checkElement(ctx context.Context, pctx *pipeline.Context, rule compiler.BindingRule, hit walker.Hit) []fv.Issue {
	pairs := extractCodings(hit.Value)
	if len(pairs) == 0 {
		return nil
	}

	strict := pctx.Options != nil && pctx.Options.StrictMode
	unverifiable := false
	for _, pair := range pairs {
		m, err := pctx.Terminology.Check(ctx, rule.ValueSet, rule.Version, pair.System, pair.Code)
		if err != nil {
			return []fv.Issue{fv.NewIssue(processingSeverity(strict), fv.IssueTypeProcessing).
				Diagnostics(fmt.Sprintf("could not check code against %s: %v", rule.ValueSet, err)).
				At(hit.Path).
				Build()}
		}
		switch m {
		case terminology.Member:
			return nil
		case terminology.Unverifiable:
			unverifiable = true
		}
	}

	if unverifiable {
		return []fv.Issue{fv.NewIssue(fv.SeverityInformation, fv.IssueTypeInformational).
			Diagnostics(fmt.Sprintf("membership in %s could not be verified", rule.ValueSet)).
			At(hit.Path).
			Build()}
	}
	return []fv.Issue{bindingFailure(rule, hit, pairs)}
}

func bindingFailure(rule compiler.BindingRule, hit walker.Hit, pairs []codingPair) fv.Issue {
	severity := fv.SeverityWarning
	if rule.Strength == "required" {
		severity = fv.SeverityError
	}
	code := pairs[0].Code
	if pairs[0].System != "" {
		code = pairs[0].System + "|" + code
	}
	return fv.NewIssue(severity, fv.IssueTypeCodeInvalid).
		Diagnostics(fmt.Sprintf("code %s is not in ValueSet %s (%s binding)", code, rule.ValueSet, rule.Strength)).
		At(hit.Path).
		Build()
}
