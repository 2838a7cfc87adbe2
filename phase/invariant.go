package phase

import (
	"context"
	"errors"
	"fmt"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/fhirpath"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// InvariantPhase evaluates profile constraints against the resource.
// Each constraint runs once per instance of its owning element, with
// that instance as the focus. An empty evaluation result passes, a
// false singleton fails, and an expression the engine cannot evaluate
// produces a warning instead of a verdict.
type InvariantPhase struct{}

// NewInvariantPhase creates the invariant evaluation phase.
func NewInvariantPhase() *InvariantPhase {
	return &InvariantPhase{}
}

// Name returns the phase name.
func (p *InvariantPhase) Name() string {
	return PhaseInvariant
}

// Validate evaluates every invariant rule in the ruleset.
func (p *InvariantPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.Ruleset == nil {
		return nil
	}

	var issues []fv.Issue
	for _, rule := range pctx.Ruleset.Invariants {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		if rule.Unverifiable {
			issues = append(issues, fv.NewIssue(fv.SeverityWarning, fv.IssueTypeInvariant).
				Diagnostics(fmt.Sprintf("constraint %s could not be evaluated: %s", rule.Key, rule.Human)).
				At(rule.Path).
				Invariant(rule.Key).
				Build())
			continue
		}

		for _, hit := range walker.ElementsAt(pctx.Root, rule.Path) {
			if issue, failed := p.evaluate(rule, pctx, hit); failed {
				issues = append(issues, issue)
			}
		}
	}
	return issues
}

func (p *InvariantPhase) evaluate(rule compiler.InvariantRule, pctx *pipeline.Context, hit walker.Hit) (fv.Issue, bool) {
	out, err := fhirpath.Evaluate(rule.Expr, pctx.Root, hit.Value)
	if err != nil {
		var evalErr *fhirpath.EvaluationError
		diag := fmt.Sprintf("constraint %s could not be evaluated: %v", rule.Key, err)
		if !errors.As(err, &evalErr) {
			diag = fmt.Sprintf("constraint %s failed to run: %v", rule.Key, err)
		}
		strict := pctx.Options != nil && pctx.Options.StrictMode
		return fv.NewIssue(processingSeverity(strict), fv.IssueTypeProcessing).
			Diagnostics(diag).
			At(hit.Path).
			Invariant(rule.Key).
			Build(), true
	}

	// Empty means not applicable, which passes.
	if out.IsEmpty() {
		return fv.Issue{}, false
	}
	single, ok := out.Singleton()
	if !ok {
		return p.verdictIssue(rule, hit, "returned multiple values"), true
	}
	b, ok := single.AsBool()
	if !ok {
		return p.verdictIssue(rule, hit, "returned a non-boolean value"), true
	}
	if b {
		return fv.Issue{}, false
	}

	severity := fv.SeverityError
	if rule.Severity != "error" {
		severity = fv.SeverityWarning
	}
	return fv.NewIssue(severity, fv.IssueTypeInvariant).
		Diagnostics(fmt.Sprintf("%s: %s", rule.Key, rule.Human)).
		At(hit.Path).
		Invariant(rule.Key).
		Build(), true
}

func (p *InvariantPhase) verdictIssue(rule compiler.InvariantRule, hit walker.Hit, what string) fv.Issue {
	return fv.NewIssue(fv.SeverityWarning, fv.IssueTypeProcessing).
		Diagnostics(fmt.Sprintf("constraint %s %s instead of a boolean", rule.Key, what)).
		At(hit.Path).
		Invariant(rule.Key).
		Build()
}
