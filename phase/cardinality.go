package phase

import (
	"context"
	"fmt"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// CardinalityPhase checks element occurrence counts against the min and
// max the profile declares. Rules on elements nested under arrays apply
// to every array item separately, and a required child is only demanded
// where its parent is actually present.
type CardinalityPhase struct{}

// NewCardinalityPhase creates the cardinality validation phase.
func NewCardinalityPhase() *CardinalityPhase {
	return &CardinalityPhase{}
}

// Name returns the phase name.
func (p *CardinalityPhase) Name() string {
	return PhaseCardinality
}

// Validate checks every cardinality rule in the ruleset.
func (p *CardinalityPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.Ruleset == nil {
		return nil
	}

	var issues []fv.Issue
	for _, rule := range pctx.Ruleset.Cardinality {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		parents, leaf := walker.ParentsOf(pctx.Root, rule.Path)
		if leaf == "" {
			continue
		}
		for _, parent := range parents {
			count := walker.CountIn(parent, leaf)
			issues = append(issues, checkCount(rule, parent.Path, leaf, count)...)
		}
	}
	return issues
}

func checkCount(rule compiler.CardinalityRule, parentPath, leaf string, count int) []fv.Issue {
	var issues []fv.Issue
	if count < rule.Min {
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
			Diagnostics(fmt.Sprintf("element %s requires at least %d occurrence(s), found %d", leaf, rule.Min, count)).
			At(parentPath+"."+leaf).
			Build())
	}
	if rule.Max != compiler.Unbounded && count > rule.Max {
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
			Diagnostics(fmt.Sprintf("element %s allows at most %d occurrence(s), found %d", leaf, rule.Max, count)).
			At(parentPath+"."+leaf).
			Build())
	}
	return issues
}
