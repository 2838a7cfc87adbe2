package fhirvalidator

// IssueSeverity represents the severity of a validation issue.
// Maps to OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityFatal indicates the issue is fatal and validation cannot continue.
	SeverityFatal IssueSeverity = "fatal"
	// SeverityError indicates a validation error that causes the resource to be invalid.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a potential problem that should be reviewed.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "information"
)

// severityRank orders severities for issue sorting (errors first).
func severityRank(s IssueSeverity) int {
	switch s {
	case SeverityFatal:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInformation:
		return 3
	default:
		return 4
	}
}

// IssueType represents the type of validation issue.
// Maps to OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeStructure indicates a structural issue (wrong JSON shape,
	// missing resourceType, non-object root).
	IssueTypeStructure IssueType = "structure"
	// IssueTypeRequired indicates a required element is missing or an array
	// is too small.
	IssueTypeRequired IssueType = "required"
	// IssueTypeValue indicates cardinality exceeded or a value whose kind
	// does not match any permitted type code.
	IssueTypeValue IssueType = "value"
	// IssueTypeInvariant indicates a boolean invariant evaluated to false.
	IssueTypeInvariant IssueType = "invariant"
	// IssueTypeCodeInvalid indicates a coded value outside its bound ValueSet.
	IssueTypeCodeInvalid IssueType = "code-invalid"
	// IssueTypeNotFound indicates a profile or referenced artifact could not
	// be resolved.
	IssueTypeNotFound IssueType = "not-found"
	// IssueTypeProcessing indicates a parser or evaluator failure. Always
	// emitted as warning or information, never error: a faulty rule must not
	// reject a valid instance.
	IssueTypeProcessing IssueType = "processing"
	// IssueTypeExtension indicates an extension-related issue.
	IssueTypeExtension IssueType = "extension"
	// IssueTypeInformational indicates informational content.
	IssueTypeInformational IssueType = "informational"
	// IssueTypeTimeout indicates validation was cancelled or timed out.
	IssueTypeTimeout IssueType = "timeout"
)

// Issue represents a single validation issue.
// It maps to OperationOutcome.issue in FHIR.
type Issue struct {
	// Severity of the issue (error, warning, information)
	Severity IssueSeverity `json:"severity"`

	// Code identifying the type of issue
	Code IssueType `json:"code"`

	// Diagnostics contains human-readable details about the issue
	Diagnostics string `json:"diagnostics,omitempty"`

	// Expression contains dotted path(s) to the element(s) in error,
	// rooted at the resource type. Paths always reference the instance,
	// never the profile.
	Expression []string `json:"expression,omitempty"`

	// Phase is the validation pass that generated this issue
	Phase string `json:"phase,omitempty"`

	// InvariantKey is the invariant key (e.g., "pat-1") if this issue was
	// produced by an invariant rule
	InvariantKey string `json:"invariantKey,omitempty"`
}

// IsError returns true if this is an error or fatal issue.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// IsWarning returns true if this is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// Path returns the first expression path, or "" if none.
func (i Issue) Path() string {
	if len(i.Expression) == 0 {
		return ""
	}
	return i.Expression[0]
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	path := ""
	if len(i.Expression) > 0 {
		path = " at " + i.Expression[0]
	}
	return string(i.Severity) + ": " + i.Diagnostics + path
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity IssueSeverity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Error creates an error issue.
func Error(code IssueType) *IssueBuilder {
	return NewIssue(SeverityError, code)
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(msg string) *IssueBuilder {
	b.issue.Diagnostics = msg
	return b
}

// At sets the expression path.
func (b *IssueBuilder) At(path string) *IssueBuilder {
	b.issue.Expression = []string{path}
	return b
}

// AtPaths sets multiple expression paths.
func (b *IssueBuilder) AtPaths(paths ...string) *IssueBuilder {
	b.issue.Expression = paths
	return b
}

// Phase sets the validation pass name.
func (b *IssueBuilder) Phase(phase string) *IssueBuilder {
	b.issue.Phase = phase
	return b
}

// Invariant sets the invariant key.
func (b *IssueBuilder) Invariant(key string) *IssueBuilder {
	b.issue.InvariantKey = key
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() Issue {
	return b.issue
}
