package stream

import (
	"context"
	"strings"
	"testing"

	fv "github.com/reason-healthcare/rh-sub009"
)

// shallowValidate flags resources whose id is "bad" and accepts
// everything else.
func shallowValidate(ctx context.Context, resource []byte) (*fv.Result, error) {
	result := fv.AcquireResult()
	if strings.Contains(string(resource), `"bad"`) {
		result.AddIssue(fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
			Diagnostics("flagged resource").
			Build())
	}
	return result, nil
}

const testBundle = `{
	"resourceType": "Bundle",
	"type": "collection",
	"total": 3,
	"entry": [
		{
			"fullUrl": "urn:uuid:one",
			"resource": {"resourceType": "Patient", "id": "one"}
		},
		{
			"fullUrl": "urn:uuid:two",
			"resource": {"resourceType": "Observation", "id": "bad"}
		},
		{
			"fullUrl": "urn:uuid:three"
		}
	]
}`

func collect(ch <-chan *EntryResult) []*EntryResult {
	var out []*EntryResult
	for er := range ch {
		out = append(out, er)
	}
	return out
}

func TestValidateStream(t *testing.T) {
	bv := NewBundleValidator(shallowValidate)
	results := collect(bv.ValidateStream(context.Background(), strings.NewReader(testBundle)))

	if len(results) != 3 {
		t.Fatalf("got %d results; want 3", len(results))
	}

	first := results[0]
	if first.Index != 0 || first.FullURL != "urn:uuid:one" ||
		first.ResourceType != "Patient" || first.ResourceID != "one" {
		t.Errorf("entry metadata wrong: %+v", first)
	}
	if first.Err != nil || first.Result == nil || first.Result.HasErrors() {
		t.Errorf("entry 0 should validate cleanly: %+v", first)
	}

	if results[1].Result == nil || !results[1].Result.HasErrors() {
		t.Errorf("entry 1 should carry a validation error: %+v", results[1])
	}

	if results[2].Err == nil {
		t.Error("entry without resource should report an error")
	}
}

func TestValidateStream_MalformedBundle(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `nope`},
		{"array root", `[1,2]`},
		{"truncated entries", `{"entry": [{"resource": {"resourceType": "Patient"`},
	}
	bv := NewBundleValidator(shallowValidate)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := collect(bv.ValidateStream(context.Background(), strings.NewReader(tt.input)))
			if len(results) == 0 {
				t.Fatal("expected a terminal error result")
			}
			last := results[len(results)-1]
			if last.Index != -1 || last.Err == nil {
				t.Errorf("last result = %+v; want bundle error", last)
			}
		})
	}
}

func TestValidateStream_NoEntries(t *testing.T) {
	bv := NewBundleValidator(shallowValidate)
	results := collect(bv.ValidateStream(context.Background(),
		strings.NewReader(`{"resourceType": "Bundle", "type": "collection"}`)))
	if len(results) != 0 {
		t.Errorf("got %d results for entryless bundle; want 0", len(results))
	}
}

func TestValidateParallel(t *testing.T) {
	bv := NewBundleValidator(shallowValidate).WithWorkers(4)
	results, err := bv.ValidateParallel(context.Background(), strings.NewReader(testBundle))
	if err != nil {
		t.Fatalf("ValidateParallel: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results; want 3", len(results))
	}
	for i, er := range results {
		if er.Index != i {
			t.Errorf("results[%d].Index = %d", i, er.Index)
		}
	}
	if results[0].Result == nil || results[0].Result.HasErrors() {
		t.Errorf("entry 0 should validate cleanly: %+v", results[0])
	}
	if results[1].Result == nil || !results[1].Result.HasErrors() {
		t.Errorf("entry 1 should carry a validation error: %+v", results[1])
	}
	if results[2].Err == nil {
		t.Error("entry without resource should report an error")
	}
}

func TestValidateParallel_BadBundle(t *testing.T) {
	bv := NewBundleValidator(shallowValidate)
	if _, err := bv.ValidateParallel(context.Background(), strings.NewReader(`17`)); err == nil {
		t.Error("expected an error for a non-object bundle")
	}
}
