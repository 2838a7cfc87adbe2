package phase

import (
	"context"
	"fmt"
	"strings"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/service"
	"github.com/reason-healthcare/rh-sub009/value"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// SlicingPhase partitions array items into the slices a profile defines
// and checks per-slice cardinality. Items are assigned to the first
// slice whose discriminators all match. Under closed slicing an
// unassigned item is an error; open slicing lets it pass.
type SlicingPhase struct{}

// NewSlicingPhase creates the slicing validation phase.
func NewSlicingPhase() *SlicingPhase {
	return &SlicingPhase{}
}

// Name returns the phase name.
func (p *SlicingPhase) Name() string {
	return PhaseSlicing
}

// Validate checks every slicing rule in the ruleset.
func (p *SlicingPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.Ruleset == nil {
		return nil
	}

	var issues []fv.Issue
	for _, rule := range pctx.Ruleset.Slicings {
		select {
		case <-ctx.Done():
			return issues
		default:
		}
		issues = append(issues, p.checkRule(pctx, rule)...)
	}
	return issues
}

func (p *SlicingPhase) checkRule(pctx *pipeline.Context, rule compiler.SlicingRule) []fv.Issue {
	items := walker.ElementsAt(pctx.Root, rule.Path)

	var issues []fv.Issue
	counts := make(map[string]int, len(rule.Slices))
	for _, item := range items {
		matched := false
		for i := range rule.Slices {
			if sliceMatches(item.Value, &rule.Slices[i], rule.Discriminators) {
				counts[rule.Slices[i].Name]++
				matched = true
				break
			}
		}
		if !matched && rule.Rules == "closed" {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
				Diagnostics(fmt.Sprintf("item does not match any slice of the closed slicing at %s", rule.Path)).
				At(item.Path).
				Build())
		}
	}

	for i := range rule.Slices {
		slice := &rule.Slices[i]
		count := counts[slice.Name]
		if count < slice.Min {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
				Diagnostics(fmt.Sprintf("slice %s requires at least %d item(s), found %d", slice.Name, slice.Min, count)).
				At(rule.Path).
				Build())
		}
		if slice.Max != compiler.Unbounded && count > slice.Max {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
				Diagnostics(fmt.Sprintf("slice %s allows at most %d item(s), found %d", slice.Name, slice.Max, count)).
				At(rule.Path).
				Build())
		}
	}
	return issues
}

// sliceMatches reports whether an item satisfies every discriminator of
// a slice. Discriminators the slice records nothing for are vacuously
// satisfied.
func sliceMatches(item *value.Value, slice *compiler.SliceDef, discriminators []service.Discriminator) bool {
	for _, d := range discriminators {
		switch d.Type {
		case "value", "pattern":
			expected, ok := slice.Values[d.Path]
			if !ok {
				continue
			}
			if !discriminatorValueMatches(item, d.Path, expected) {
				return false
			}
		case "exists":
			expected, ok := slice.Exists[d.Path]
			if !ok {
				continue
			}
			if present := len(relValues(item, d.Path)) > 0; present != expected {
				return false
			}
		case "type":
			if len(slice.Types) == 0 {
				continue
			}
			if !typeDiscriminatorMatches(item, slice.Types) {
				return false
			}
		}
	}
	return true
}

// discriminatorValueMatches compares the element at a relative path
// against the fixed or pattern value the slice declares. Codings match
// on system|code; a CodeableConcept matches when any coding does.
func discriminatorValueMatches(item *value.Value, rel, expected string) bool {
	for _, v := range relValues(item, rel) {
		switch v.Kind() {
		case value.KindString:
			if s, _ := v.AsString(); s == expected {
				return true
			}
		case value.KindObject:
			for _, pair := range extractCodings(v) {
				if pair.System+"|"+pair.Code == expected {
					return true
				}
			}
		}
	}
	return false
}

func typeDiscriminatorMatches(item *value.Value, types []string) bool {
	rt, ok := item.ResourceType()
	if !ok {
		return false
	}
	for _, t := range types {
		if t == rt {
			return true
		}
	}
	return false
}

// relValues resolves a dotted path relative to an item, fanning out
// over arrays. The paths $this and the empty string name the item
// itself.
func relValues(item *value.Value, rel string) []*value.Value {
	if rel == "" || rel == "$this" {
		return []*value.Value{item}
	}
	current := []*value.Value{item}
	for _, seg := range strings.Split(rel, ".") {
		var next []*value.Value
		for _, v := range current {
			child, ok := v.Get(seg)
			if !ok {
				continue
			}
			next = append(next, child.Items()...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}
