package fhirvalidator

import (
	"testing"
)

func TestIssue_IsError(t *testing.T) {
	tests := []struct {
		severity IssueSeverity
		want     bool
	}{
		{SeverityFatal, true},
		{SeverityError, true},
		{SeverityWarning, false},
		{SeverityInformation, false},
	}

	for _, tt := range tests {
		issue := Issue{Severity: tt.severity}
		if got := issue.IsError(); got != tt.want {
			t.Errorf("Issue{Severity: %s}.IsError() = %v; want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIssue_IsWarning(t *testing.T) {
	tests := []struct {
		severity IssueSeverity
		want     bool
	}{
		{SeverityFatal, false},
		{SeverityError, false},
		{SeverityWarning, true},
		{SeverityInformation, false},
	}

	for _, tt := range tests {
		issue := Issue{Severity: tt.severity}
		if got := issue.IsWarning(); got != tt.want {
			t.Errorf("Issue{Severity: %s}.IsWarning() = %v; want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIssue_Path(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  string
	}{
		{"no expression", Issue{}, ""},
		{"single path", Issue{Expression: []string{"Patient.gender"}}, "Patient.gender"},
		{"multiple paths", Issue{Expression: []string{"Patient.name[0]", "Patient.name[1]"}}, "Patient.name[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.Path(); got != tt.want {
				t.Errorf("Path() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestIssue_String(t *testing.T) {
	tests := []struct {
		issue Issue
		want  string
	}{
		{
			issue: Issue{
				Severity:    SeverityError,
				Diagnostics: "Invalid value",
			},
			want: "error: Invalid value",
		},
		{
			issue: Issue{
				Severity:    SeverityWarning,
				Diagnostics: "Consider using code",
				Expression:  []string{"Patient.gender"},
			},
			want: "warning: Consider using code at Patient.gender",
		},
		{
			issue: Issue{
				Severity:    SeverityInformation,
				Diagnostics: "All good",
				Expression:  []string{"Patient", "Patient.name"},
			},
			want: "information: All good at Patient", // Only first expression
		},
	}

	for _, tt := range tests {
		if got := tt.issue.String(); got != tt.want {
			t.Errorf("Issue.String() = %q; want %q", got, tt.want)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	// Errors must sort before warnings, warnings before information
	if severityRank(SeverityFatal) >= severityRank(SeverityError) {
		t.Error("fatal must rank before error")
	}
	if severityRank(SeverityError) >= severityRank(SeverityWarning) {
		t.Error("error must rank before warning")
	}
	if severityRank(SeverityWarning) >= severityRank(SeverityInformation) {
		t.Error("warning must rank before information")
	}
}

func TestNewIssue(t *testing.T) {
	builder := NewIssue(SeverityError, IssueTypeValue)
	issue := builder.Build()

	if issue.Severity != SeverityError {
		t.Errorf("Severity = %s; want %s", issue.Severity, SeverityError)
	}
	if issue.Code != IssueTypeValue {
		t.Errorf("Code = %s; want %s", issue.Code, IssueTypeValue)
	}
}

func TestError(t *testing.T) {
	issue := Error(IssueTypeRequired).Build()

	if issue.Severity != SeverityError {
		t.Errorf("Severity = %s; want %s", issue.Severity, SeverityError)
	}
	if issue.Code != IssueTypeRequired {
		t.Errorf("Code = %s; want %s", issue.Code, IssueTypeRequired)
	}
}

func TestWarning(t *testing.T) {
	issue := Warning(IssueTypeProcessing).Build()

	if issue.Severity != SeverityWarning {
		t.Errorf("Severity = %s; want %s", issue.Severity, SeverityWarning)
	}
}

func TestInfo(t *testing.T) {
	issue := Info(IssueTypeInformational).Build()

	if issue.Severity != SeverityInformation {
		t.Errorf("Severity = %s; want %s", issue.Severity, SeverityInformation)
	}
}

func TestIssueBuilder_Diagnostics(t *testing.T) {
	issue := Error(IssueTypeValue).
		Diagnostics("Invalid date format").
		Build()

	if issue.Diagnostics != "Invalid date format" {
		t.Errorf("Diagnostics = %q; want %q", issue.Diagnostics, "Invalid date format")
	}
}

func TestIssueBuilder_At(t *testing.T) {
	issue := Error(IssueTypeValue).
		At("Patient.birthDate").
		Build()

	if len(issue.Expression) != 1 {
		t.Fatalf("len(Expression) = %d; want 1", len(issue.Expression))
	}
	if issue.Expression[0] != "Patient.birthDate" {
		t.Errorf("Expression[0] = %q; want %q", issue.Expression[0], "Patient.birthDate")
	}
}

func TestIssueBuilder_AtPaths(t *testing.T) {
	issue := Error(IssueTypeValue).
		AtPaths("Patient.name[0]", "Patient.name[1]").
		Build()

	if len(issue.Expression) != 2 {
		t.Fatalf("len(Expression) = %d; want 2", len(issue.Expression))
	}
	if issue.Expression[0] != "Patient.name[0]" {
		t.Errorf("Expression[0] = %q; want %q", issue.Expression[0], "Patient.name[0]")
	}
	if issue.Expression[1] != "Patient.name[1]" {
		t.Errorf("Expression[1] = %q; want %q", issue.Expression[1], "Patient.name[1]")
	}
}

func TestIssueBuilder_Fluent(t *testing.T) {
	issue := Error(IssueTypeInvariant).
		Diagnostics("All FHIR elements must have a @value or children").
		At("Patient.extension[0]").
		Phase("invariants").
		Invariant("ele-1").
		Build()

	if issue.Severity != SeverityError {
		t.Error("Severity mismatch")
	}
	if issue.Code != IssueTypeInvariant {
		t.Error("Code mismatch")
	}
	if issue.Diagnostics != "All FHIR elements must have a @value or children" {
		t.Error("Diagnostics mismatch")
	}
	if issue.Expression[0] != "Patient.extension[0]" {
		t.Error("Expression mismatch")
	}
	if issue.Phase != "invariants" {
		t.Error("Phase mismatch")
	}
	if issue.InvariantKey != "ele-1" {
		t.Error("InvariantKey mismatch")
	}
}

func TestIssueSeverity_Constants(t *testing.T) {
	// Ensure constants have expected string values for JSON serialization
	if string(SeverityFatal) != "fatal" {
		t.Errorf("SeverityFatal = %q; want %q", SeverityFatal, "fatal")
	}
	if string(SeverityError) != "error" {
		t.Errorf("SeverityError = %q; want %q", SeverityError, "error")
	}
	if string(SeverityWarning) != "warning" {
		t.Errorf("SeverityWarning = %q; want %q", SeverityWarning, "warning")
	}
	if string(SeverityInformation) != "information" {
		t.Errorf("SeverityInformation = %q; want %q", SeverityInformation, "information")
	}
}

func TestIssueType_Constants(t *testing.T) {
	// Ensure constants have expected string values for JSON serialization
	expectedTypes := map[IssueType]string{
		IssueTypeStructure:     "structure",
		IssueTypeRequired:      "required",
		IssueTypeValue:         "value",
		IssueTypeInvariant:     "invariant",
		IssueTypeCodeInvalid:   "code-invalid",
		IssueTypeNotFound:      "not-found",
		IssueTypeProcessing:    "processing",
		IssueTypeExtension:     "extension",
		IssueTypeInformational: "informational",
		IssueTypeTimeout:       "timeout",
	}

	for issueType, expected := range expectedTypes {
		if string(issueType) != expected {
			t.Errorf("%v = %q; want %q", issueType, string(issueType), expected)
		}
	}
}

func BenchmarkIssueBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Error(IssueTypeInvariant).
			Diagnostics("All FHIR elements must have a @value or children").
			At("Patient.extension[0]").
			Phase("invariants").
			Invariant("ele-1").
			Build()
	}
}

func BenchmarkIssue_String(b *testing.B) {
	issue := Issue{
		Severity:    SeverityError,
		Diagnostics: "Invalid value",
		Expression:  []string{"Patient.birthDate"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = issue.String()
	}
}
