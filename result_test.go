package fhirvalidator

import (
	"sync"
	"testing"
)

func TestAcquireResult(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	if !r.Valid {
		t.Error("new result should be valid")
	}
	if len(r.Issues) != 0 {
		t.Errorf("new result should have no issues, got %d", len(r.Issues))
	}
	if r.Cancelled {
		t.Error("new result should not be cancelled")
	}
}

func TestResult_Reuse(t *testing.T) {
	r := AcquireResult()
	r.AddError(IssueTypeValue, "bad value", "Patient.gender")
	r.ResourceType = "Patient"
	r.Cancelled = true
	r.Release()

	r2 := AcquireResult()
	defer r2.Release()

	if !r2.Valid {
		t.Error("reused result should be valid")
	}
	if len(r2.Issues) != 0 {
		t.Errorf("reused result should have no issues, got %d", len(r2.Issues))
	}
	if r2.ResourceType != "" {
		t.Errorf("reused result ResourceType = %q; want empty", r2.ResourceType)
	}
	if r2.Cancelled {
		t.Error("reused result should not be cancelled")
	}
}

func TestResult_AddIssue(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddIssue(Warning(IssueTypeProcessing).Diagnostics("could not evaluate").Build())
	if !r.Valid {
		t.Error("warning should not invalidate result")
	}

	r.AddIssue(Error(IssueTypeRequired).Diagnostics("missing name").Build())
	if r.Valid {
		t.Error("error should invalidate result")
	}
	if len(r.Issues) != 2 {
		t.Errorf("len(Issues) = %d; want 2", len(r.Issues))
	}
}

func TestResult_AddIssues(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddIssues([]Issue{
		Info(IssueTypeInformational).Build(),
		Error(IssueTypeValue).Build(),
		Warning(IssueTypeCodeInvalid).Build(),
	})

	if r.Valid {
		t.Error("result with an error issue should be invalid")
	}
	if len(r.Issues) != 3 {
		t.Errorf("len(Issues) = %d; want 3", len(r.Issues))
	}
}

func TestResult_Counts(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddError(IssueTypeRequired, "missing", "Patient.name")
	r.AddError(IssueTypeValue, "too many", "Patient.gender")
	r.AddWarning(IssueTypeCodeInvalid, "unexpected code", "Patient.maritalStatus")
	r.AddInfo(IssueTypeInformational, "cannot verify", "Patient.language")

	if got := r.ErrorCount(); got != 2 {
		t.Errorf("ErrorCount() = %d; want 2", got)
	}
	if got := r.WarningCount(); got != 1 {
		t.Errorf("WarningCount() = %d; want 1", got)
	}
	if !r.HasErrors() {
		t.Error("HasErrors() = false; want true")
	}
	if got := len(r.Errors()); got != 2 {
		t.Errorf("len(Errors()) = %d; want 2", got)
	}
	if got := len(r.Warnings()); got != 1 {
		t.Errorf("len(Warnings()) = %d; want 1", got)
	}
}

func TestResult_Sort(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddWarning(IssueTypeCodeInvalid, "w1", "Patient.gender")
	r.AddError(IssueTypeValue, "e1", "Patient.gender")
	r.AddError(IssueTypeRequired, "e2", "Patient.birthDate")
	r.AddInfo(IssueTypeInformational, "i1", "Patient.birthDate")

	r.Sort()

	wantOrder := []string{"e2", "i1", "e1", "w1"}
	for i, want := range wantOrder {
		if r.Issues[i].Diagnostics != want {
			t.Errorf("Issues[%d].Diagnostics = %q; want %q", i, r.Issues[i].Diagnostics, want)
		}
	}
}

func TestResult_SortStable(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	// Same path, same severity: original order must be preserved
	r.AddError(IssueTypeRequired, "first", "Patient.name")
	r.AddError(IssueTypeValue, "second", "Patient.name")

	r.Sort()

	if r.Issues[0].Diagnostics != "first" || r.Issues[1].Diagnostics != "second" {
		t.Errorf("stable sort changed order of equal issues: %v", r.Issues)
	}
}

func TestResult_Merge(t *testing.T) {
	r := AcquireResult()
	defer r.Release()
	other := AcquireResult()
	defer other.Release()

	other.AddError(IssueTypeValue, "e1", "Patient.gender")
	other.Cancelled = true

	r.Merge(other)

	if r.Valid {
		t.Error("merged error should invalidate result")
	}
	if !r.Cancelled {
		t.Error("merge should propagate Cancelled")
	}
	if len(r.Issues) != 1 {
		t.Errorf("len(Issues) = %d; want 1", len(r.Issues))
	}
}

func TestResult_ConcurrentAddIssue(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.AddWarning(IssueTypeProcessing, "concurrent", "Patient")
			}
		}()
	}
	wg.Wait()

	if len(r.Issues) != 1000 {
		t.Errorf("len(Issues) = %d; want 1000", len(r.Issues))
	}
}

func BenchmarkResultPool(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			r := AcquireResult()
			r.AddError(IssueTypeValue, "bench", "Patient.gender")
			r.Release()
		}
	})
}
