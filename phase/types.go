package phase

import (
	"context"
	"fmt"
	"strings"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// TypePhase checks that element values have the JSON shape their
// declared FHIR types demand, and that choice elements carry exactly
// one typed variant from the allowed set.
type TypePhase struct{}

// NewTypePhase creates the type validation phase.
func NewTypePhase() *TypePhase {
	return &TypePhase{}
}

// Name returns the phase name.
func (p *TypePhase) Name() string {
	return PhaseTypes
}

// Validate checks every type rule in the ruleset.
func (p *TypePhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.Ruleset == nil {
		return nil
	}

	var issues []fv.Issue
	for _, rule := range pctx.Ruleset.Types {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		if strings.HasSuffix(rule.Path, "[x]") {
			issues = append(issues, p.checkChoice(pctx, rule)...)
			continue
		}
		for _, hit := range walker.ElementsAt(pctx.Root, rule.Path) {
			if !matchesAny(hit, rule.Codes) {
				issues = append(issues, shapeIssue(hit, rule.Codes))
			}
		}
	}
	return issues
}

// checkChoice validates a choice element: at most one variant present,
// the variant's type in the allowed set, and its value the right shape.
func (p *TypePhase) checkChoice(pctx *pipeline.Context, rule compiler.TypeRule) []fv.Issue {
	base := strings.TrimSuffix(rule.Path, "[x]")
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return nil
	}
	parentPath, leaf := base[:idx], base[idx+1:]

	var issues []fv.Issue
	for _, parent := range walker.ElementsAt(pctx.Root, parentPath) {
		variants := walker.ChoiceVariants(parent.Value, leaf)
		if len(variants) > 1 {
			paths := make([]string, len(variants))
			for i, cv := range variants {
				paths[i] = parent.Path + "." + cv.Key
			}
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
				Diagnostics(fmt.Sprintf("choice element %s has %d typed values, only one is allowed", leaf, len(variants))).
				AtPaths(paths...).
				Build())
		}
		for _, cv := range variants {
			path := parent.Path + "." + cv.Key
			if !allowedVariant(cv.TypeName, rule.Codes) {
				issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
					Diagnostics(fmt.Sprintf("type %s is not allowed for %s[x], expected one of %s",
						cv.TypeName, leaf, strings.Join(rule.Codes, ", "))).
					At(path).
					Build())
				continue
			}
			if !walker.MatchesKind(cv.Value, cv.TypeName) {
				issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
					Diagnostics(fmt.Sprintf("value of %s is %s, expected %s", cv.Key, walker.KindName(cv.Value), cv.TypeName)).
					At(path).
					Build())
			}
		}
	}
	return issues
}

func matchesAny(hit walker.Hit, codes []string) bool {
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if walker.MatchesKind(hit.Value, code) {
			return true
		}
	}
	return false
}

func allowedVariant(typeName string, codes []string) bool {
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if code == typeName {
			return true
		}
	}
	return false
}

func shapeIssue(hit walker.Hit, codes []string) fv.Issue {
	return fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
		Diagnostics(fmt.Sprintf("value is %s, expected %s", walker.KindName(hit.Value), strings.Join(codes, " or "))).
		At(hit.Path).
		Build()
}
