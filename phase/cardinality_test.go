package phase

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
)

func TestCardinalityPhase(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Cardinality: []compiler.CardinalityRule{
			{Path: "Patient.identifier", Min: 1, Max: compiler.Unbounded},
			{Path: "Patient.gender", Min: 0, Max: 1},
			{Path: "Patient.contact.name", Min: 1, Max: 1},
		},
	}

	tests := []struct {
		name      string
		resource  string
		wantPaths []string
	}{
		{
			name:     "all satisfied",
			resource: `{"resourceType": "Patient", "identifier": [{"value": "1"}], "gender": "male"}`,
		},
		{
			name:      "missing required",
			resource:  `{"resourceType": "Patient", "gender": "male"}`,
			wantPaths: []string{"Patient.identifier"},
		},
		{
			name:      "too many",
			resource:  `{"resourceType": "Patient", "identifier": [{"value": "1"}], "gender": ["male", "female"]}`,
			wantPaths: []string{"Patient.gender"},
		},
		{
			name: "per item under array",
			resource: `{"resourceType": "Patient", "identifier": [{"value": "1"}],
				"contact": [{"name": {"family": "A"}}, {"telecom": [{"system": "phone"}]}]}`,
			wantPaths: []string{"Patient.contact[1].name"},
		},
		{
			name:     "absent parent skips required child",
			resource: `{"resourceType": "Patient", "identifier": [{"value": "1"}]}`,
		},
	}

	phase := NewCardinalityPhase()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pctx := testContext(t, tt.resource, rs)
			issues := phase.Validate(context.Background(), pctx)
			if diff := cmp.Diff(tt.wantPaths, issuePaths(issues)); diff != "" {
				t.Errorf("issue paths mismatch (-want +got):\n%s", diff)
			}
			for _, issue := range issues {
				if issue.Severity != fv.SeverityError {
					t.Errorf("severity = %s, want error", issue.Severity)
				}
			}
		})
	}
}

func TestCardinalityPhase_ChoiceCountsAcrossVariants(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Cardinality: []compiler.CardinalityRule{
			{Path: "Patient.deceased[x]", Min: 1, Max: 1},
		},
	}

	pctx := testContext(t, `{"resourceType": "Patient", "deceasedBoolean": true}`, rs)
	if issues := NewCardinalityPhase().Validate(context.Background(), pctx); len(issues) != 0 {
		t.Errorf("variant present, got %d issues", len(issues))
	}

	pctx = testContext(t, `{"resourceType": "Patient"}`, rs)
	issues := NewCardinalityPhase().Validate(context.Background(), pctx)
	if len(issues) != 1 {
		t.Fatalf("variant absent, got %d issues, want 1", len(issues))
	}
	if issues[0].Code != fv.IssueTypeRequired {
		t.Errorf("code = %s, want required", issues[0].Code)
	}
}

func TestCardinalityPhase_NoRules(t *testing.T) {
	pctx := testContext(t, `{"resourceType": "Patient"}`, &compiler.Ruleset{Type: "Patient"})
	if issues := NewCardinalityPhase().Validate(context.Background(), pctx); len(issues) != 0 {
		t.Errorf("empty ruleset produced %d issues", len(issues))
	}
}
