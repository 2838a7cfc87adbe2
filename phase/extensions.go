package phase

import (
	"context"
	"fmt"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/value"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// ExtensionPhase checks the ruleset's per-URL extension cardinality.
// Profile extension slices add min/max counts for specific URLs at
// specific elements.
type ExtensionPhase struct{}

// NewExtensionPhase creates the extension validation phase.
func NewExtensionPhase() *ExtensionPhase {
	return &ExtensionPhase{}
}

// Name returns the phase name.
func (p *ExtensionPhase) Name() string {
	return PhaseExtensions
}

// Validate checks the ruleset's per-URL extension cardinality.
func (p *ExtensionPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	var issues []fv.Issue
	if pctx.Ruleset == nil {
		return issues
	}
	for _, rule := range pctx.Ruleset.Extensions {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		for _, parent := range walker.ElementsAt(pctx.Root, rule.Path) {
			count := countExtensionURL(parent.Value, rule.URL)
			if count < rule.Min {
				issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
					Diagnostics(fmt.Sprintf("extension %s requires at least %d occurrence(s), found %d", rule.URL, rule.Min, count)).
					At(parent.Path+".extension").
					Build())
			}
			if rule.Max >= 0 && count > rule.Max {
				issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeExtension).
					Diagnostics(fmt.Sprintf("extension %s allows at most %d occurrence(s), found %d", rule.URL, rule.Max, count)).
					At(parent.Path+".extension").
					Build())
			}
		}
	}
	return issues
}

// ExtensionFormPhase checks extension structure across the whole tree.
// Every extension must carry a url and either one typed value or nested
// extensions, not both. The walk does not depend on any profile, so the
// engine runs it once per resource rather than once per profile.
type ExtensionFormPhase struct{}

// NewExtensionFormPhase creates the extension form phase.
func NewExtensionFormPhase() *ExtensionFormPhase {
	return &ExtensionFormPhase{}
}

// Name returns the phase name.
func (p *ExtensionFormPhase) Name() string {
	return PhaseExtensionForm
}

// Validate walks the tree checking the shape of every extension.
func (p *ExtensionFormPhase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	return p.checkShapes(pctx.Root, pctx.ResourceType)
}

// checkShapes walks the whole tree looking for extension arrays.
func (p *ExtensionFormPhase) checkShapes(v *value.Value, path string) []fv.Issue {
	if v == nil {
		return nil
	}
	var issues []fv.Issue
	switch v.Kind() {
	case value.KindObject:
		for _, field := range v.Fields() {
			child, _ := v.Get(field)
			childPath := path + "." + field
			if field == "extension" || field == "modifierExtension" {
				for i, item := range child.Items() {
					itemPath := fmt.Sprintf("%s[%d]", childPath, i)
					issues = append(issues, checkExtensionShape(item, itemPath)...)
					issues = append(issues, p.checkShapes(item, itemPath)...)
				}
				continue
			}
			issues = append(issues, p.checkShapes(child, childPath)...)
		}
	case value.KindSeq:
		for i, item := range v.Items() {
			issues = append(issues, p.checkShapes(item, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}
	return issues
}

func checkExtensionShape(ext *value.Value, path string) []fv.Issue {
	if ext.Kind() != value.KindObject {
		return []fv.Issue{fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics("extension must be an object").
			At(path).
			Build()}
	}

	var issues []fv.Issue
	url, hasURL := ext.Get("url")
	if !hasURL {
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
			Diagnostics("extension is missing its url").
			At(path).
			Build())
	} else if _, ok := url.AsString(); !ok {
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics("extension url must be a string").
			At(path+".url").
			Build())
	}

	values := len(walker.ChoiceVariants(ext, "value"))
	_, nested := ext.Get("extension")
	switch {
	case values > 1:
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics("extension has more than one typed value").
			At(path).
			Build())
	case values > 0 && nested:
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics("extension cannot have both a value and nested extensions").
			At(path).
			Build())
	case values == 0 && !nested:
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics("extension must have a value or nested extensions").
			At(path).
			Build())
	}
	return issues
}

func countExtensionURL(parent *value.Value, url string) int {
	exts, ok := parent.Get("extension")
	if !ok {
		return 0
	}
	n := 0
	for _, item := range exts.Items() {
		if got, ok := fieldString(item, "url"); ok && got == url {
			n++
		}
	}
	return n
}
