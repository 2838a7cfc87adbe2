package phase

import (
	"context"
	"strings"
	"testing"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/service"
)

func identifierSlicing(rules string, slices ...compiler.SliceDef) *compiler.Ruleset {
	return &compiler.Ruleset{
		Type: "Patient",
		Slicings: []compiler.SlicingRule{{
			Path:           "Patient.identifier",
			Discriminators: []service.Discriminator{{Type: "value", Path: "system"}},
			Rules:          rules,
			Slices:         slices,
		}},
	}
}

func TestSlicingPhase_ValueDiscriminator(t *testing.T) {
	mrn := compiler.SliceDef{
		Name: "mrn", Min: 1, Max: 1,
		Values: map[string]string{"system": "http://hospital.example.org/mrn"},
	}
	phase := NewSlicingPhase()

	t.Run("satisfied", func(t *testing.T) {
		pctx := testContext(t, `{"resourceType": "Patient", "identifier": [
			{"system": "http://hospital.example.org/mrn", "value": "123"},
			{"system": "http://other.example.org", "value": "x"}]}`, identifierSlicing("open", mrn))
		if issues := phase.Validate(context.Background(), pctx); len(issues) != 0 {
			t.Errorf("issues = %v, want none", issues)
		}
	})

	t.Run("missing required slice", func(t *testing.T) {
		pctx := testContext(t, `{"resourceType": "Patient", "identifier": [
			{"system": "http://other.example.org", "value": "x"}]}`, identifierSlicing("open", mrn))
		issues := phase.Validate(context.Background(), pctx)
		if len(issues) != 1 || issues[0].Code != fv.IssueTypeRequired {
			t.Fatalf("issues = %v, want one required error", issues)
		}
		if !strings.Contains(issues[0].Diagnostics, "mrn") {
			t.Errorf("diagnostics = %q, want slice named", issues[0].Diagnostics)
		}
	})

	t.Run("slice over max", func(t *testing.T) {
		pctx := testContext(t, `{"resourceType": "Patient", "identifier": [
			{"system": "http://hospital.example.org/mrn", "value": "1"},
			{"system": "http://hospital.example.org/mrn", "value": "2"}]}`, identifierSlicing("open", mrn))
		issues := phase.Validate(context.Background(), pctx)
		if len(issues) != 1 || issues[0].Code != fv.IssueTypeValue {
			t.Fatalf("issues = %v, want one value error", issues)
		}
	})

	t.Run("closed rejects unmatched items", func(t *testing.T) {
		pctx := testContext(t, `{"resourceType": "Patient", "identifier": [
			{"system": "http://hospital.example.org/mrn", "value": "1"},
			{"system": "http://other.example.org", "value": "x"}]}`, identifierSlicing("closed", mrn))
		issues := phase.Validate(context.Background(), pctx)
		if len(issues) != 1 {
			t.Fatalf("issues = %d, want 1: %v", len(issues), issues)
		}
		if issues[0].Expression[0] != "Patient.identifier[1]" {
			t.Errorf("path = %q", issues[0].Expression[0])
		}
	})

	t.Run("open allows unmatched items", func(t *testing.T) {
		pctx := testContext(t, `{"resourceType": "Patient", "identifier": [
			{"system": "http://hospital.example.org/mrn", "value": "1"},
			{"system": "http://other.example.org", "value": "x"}]}`, identifierSlicing("open", mrn))
		if issues := phase.Validate(context.Background(), pctx); len(issues) != 0 {
			t.Errorf("issues = %v, want none", issues)
		}
	})
}

func TestSlicingPhase_PatternCodingDiscriminator(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Observation",
		Slicings: []compiler.SlicingRule{{
			Path:           "Observation.category",
			Discriminators: []service.Discriminator{{Type: "pattern", Path: "coding"}},
			Rules:          "open",
			Slices: []compiler.SliceDef{{
				Name: "vital", Min: 1, Max: compiler.Unbounded,
				Values: map[string]string{"coding": "http://terminology.hl7.org/CodeSystem/observation-category|vital-signs"},
			}},
		}},
	}

	pctx := testContext(t, `{"resourceType": "Observation", "category": [
		{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/observation-category",
		             "code": "vital-signs"}]}]}`, rs)
	if issues := NewSlicingPhase().Validate(context.Background(), pctx); len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}

	pctx = testContext(t, `{"resourceType": "Observation", "category": [
		{"coding": [{"system": "http://example.org", "code": "other"}]}]}`, rs)
	issues := NewSlicingPhase().Validate(context.Background(), pctx)
	if len(issues) != 1 || issues[0].Code != fv.IssueTypeRequired {
		t.Errorf("issues = %v, want one required error", issues)
	}
}

func TestSlicingPhase_ExistsDiscriminator(t *testing.T) {
	rs := &compiler.Ruleset{
		Type: "Patient",
		Slicings: []compiler.SlicingRule{{
			Path:           "Patient.telecom",
			Discriminators: []service.Discriminator{{Type: "exists", Path: "period"}},
			Rules:          "open",
			Slices: []compiler.SliceDef{{
				Name: "historic", Min: 0, Max: 1,
				Exists: map[string]bool{"period": true},
			}},
		}},
	}

	pctx := testContext(t, `{"resourceType": "Patient", "telecom": [
		{"system": "phone", "period": {"end": "2020"}},
		{"system": "phone", "period": {"end": "2021"}}]}`, rs)
	issues := NewSlicingPhase().Validate(context.Background(), pctx)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1: %v", len(issues), issues)
	}
	if !strings.Contains(issues[0].Diagnostics, "historic") {
		t.Errorf("diagnostics = %q", issues[0].Diagnostics)
	}
}

func TestSlicingPhase_NoItems(t *testing.T) {
	mrn := compiler.SliceDef{
		Name: "mrn", Min: 1, Max: 1,
		Values: map[string]string{"system": "http://hospital.example.org/mrn"},
	}
	pctx := testContext(t, `{"resourceType": "Patient"}`, identifierSlicing("open", mrn))
	issues := NewSlicingPhase().Validate(context.Background(), pctx)
	if len(issues) != 1 || issues[0].Code != fv.IssueTypeRequired {
		t.Errorf("empty array with required slice: %v", issues)
	}
}
