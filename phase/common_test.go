package phase

import (
	"testing"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/value"
)

func parseResource(t *testing.T, src string) *value.Value {
	t.Helper()
	v, err := value.FromJSON([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func testContext(t *testing.T, src string, rs *compiler.Ruleset) *pipeline.Context {
	t.Helper()
	root := parseResource(t, src)
	rt, _ := root.ResourceType()
	return &pipeline.Context{
		Root:         root,
		ResourceType: rt,
		Ruleset:      rs,
		Options:      fv.DefaultOptions(),
	}
}

func issuePaths(issues []fv.Issue) []string {
	var out []string
	for _, issue := range issues {
		out = append(out, issue.Expression...)
	}
	return out
}

func severities(issues []fv.Issue) []fv.IssueSeverity {
	var out []fv.IssueSeverity
	for _, issue := range issues {
		out = append(out, issue.Severity)
	}
	return out
}
