package phase

import (
	"context"
	"testing"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/registry"
	"github.com/reason-healthcare/rh-sub009/service"
	"github.com/reason-healthcare/rh-sub009/terminology"
)

const genderValueSet = "http://hl7.org/fhir/ValueSet/administrative-gender"

func bindingEngine(t *testing.T) *terminology.Engine {
	t.Helper()
	r := registry.New()
	r.RegisterValueSet(&service.ValueSet{
		URL: genderValueSet,
		Compose: &service.Compose{
			Include: []service.ComposeEntry{{
				System: "http://hl7.org/fhir/administrative-gender",
				Concept: []service.ConceptRef{
					{Code: "male"}, {Code: "female"}, {Code: "other"}, {Code: "unknown"},
				},
			}},
		},
	})
	r.RegisterValueSet(&service.ValueSet{
		URL: "http://example.org/vs/filtered",
		Compose: &service.Compose{
			Include: []service.ComposeEntry{{
				System: "http://snomed.info/sct",
				Filter: []service.Filter{{Property: "concept", Op: "is-a", Value: "x"}},
			}},
		},
	})
	return terminology.NewEngine(r, r)
}

func TestBindingPhase(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Bindings: []compiler.BindingRule{
			{Path: "Patient.gender", ValueSet: genderValueSet, Strength: "required"},
			{Path: "Patient.maritalStatus", ValueSet: genderValueSet, Strength: "extensible"},
		},
	}
	engine := bindingEngine(t)
	phase := NewBindingPhase()

	tests := []struct {
		name         string
		resource     string
		wantCount    int
		wantSeverity fv.IssueSeverity
	}{
		{
			name:     "codeless primitive member",
			resource: `{"resourceType": "Patient", "gender": "female"}`,
		},
		{
			name:         "required failure is an error",
			resource:     `{"resourceType": "Patient", "gender": "nonsense"}`,
			wantCount:    1,
			wantSeverity: fv.SeverityError,
		},
		{
			name: "extensible failure is a warning",
			resource: `{"resourceType": "Patient", "maritalStatus": {
				"coding": [{"system": "http://example.org/cs", "code": "M"}]}}`,
			wantCount:    1,
			wantSeverity: fv.SeverityWarning,
		},
		{
			name: "any matching coding passes",
			resource: `{"resourceType": "Patient", "maritalStatus": {
				"coding": [
					{"system": "http://example.org/cs", "code": "M"},
					{"system": "http://hl7.org/fhir/administrative-gender", "code": "other"}
				]}}`,
		},
		{
			name:     "unbound element untouched",
			resource: `{"resourceType": "Patient", "active": true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pctx := testContext(t, tt.resource, rs)
			pctx.Terminology = engine
			issues := phase.Validate(context.Background(), pctx)
			if len(issues) != tt.wantCount {
				t.Fatalf("issues = %d, want %d: %v", len(issues), tt.wantCount, issues)
			}
			if tt.wantCount > 0 && issues[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", issues[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestBindingPhase_UnverifiableIsInformation(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Observation",
		Bindings: []compiler.BindingRule{
			{Path: "Observation.code", ValueSet: "http://example.org/vs/filtered", Strength: "required"},
		},
	}
	pctx := testContext(t, `{"resourceType": "Observation", "code": {
		"coding": [{"system": "http://snomed.info/sct", "code": "22298006"}]}}`, rs)
	pctx.Terminology = bindingEngine(t)

	issues := NewBindingPhase().Validate(context.Background(), pctx)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}
	if issues[0].Severity != fv.SeverityInformation {
		t.Errorf("severity = %s, want information", issues[0].Severity)
	}
}

func TestBindingPhase_UnresolvableValueSet(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Bindings: []compiler.BindingRule{
			{Path: "Patient.gender", ValueSet: "http://example.org/vs/missing", Strength: "required"},
		},
	}
	phase := NewBindingPhase()

	pctx := testContext(t, `{"resourceType": "Patient", "gender": "male"}`, rs)
	pctx.Terminology = bindingEngine(t)
	issues := phase.Validate(context.Background(), pctx)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}
	if issues[0].Severity != fv.SeverityWarning || issues[0].Code != fv.IssueTypeProcessing {
		t.Errorf("issue = %s/%s, want warning/processing", issues[0].Severity, issues[0].Code)
	}

	pctx = testContext(t, `{"resourceType": "Patient", "gender": "male"}`, rs)
	pctx.Terminology = bindingEngine(t)
	pctx.Options.StrictMode = true
	issues = phase.Validate(context.Background(), pctx)
	if len(issues) != 1 || issues[0].Severity != fv.SeverityError {
		t.Errorf("strict mode issue = %v, want one error", issues)
	}
}

func TestBindingPhase_NoEngine(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Bindings: []compiler.BindingRule{
			{Path: "Patient.gender", ValueSet: genderValueSet, Strength: "required"},
		},
	}
	pctx := testContext(t, `{"resourceType": "Patient", "gender": "nonsense"}`, rs)
	if issues := NewBindingPhase().Validate(context.Background(), pctx); issues != nil {
		t.Errorf("no engine, got %v", issues)
	}
}
