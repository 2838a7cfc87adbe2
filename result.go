package fhirvalidator

import (
	"sort"
	"sync"
)

// Result contains the outcome of validating a FHIR resource.
// Use Release() to return it to the pool when done for better performance.
type Result struct {
	// Valid is true if no errors were found (warnings are allowed)
	Valid bool `json:"valid"`

	// Issues contains all validation issues found
	Issues []Issue `json:"issues,omitempty"`

	// Cancelled is true if validation was aborted by context cancellation;
	// Issues then holds a partial outcome.
	Cancelled bool `json:"cancelled,omitempty"`

	// JobID is set when using batch validation to correlate results
	JobID string `json:"jobId,omitempty"`

	// ResourceType is the type of resource that was validated
	ResourceType string `json:"resourceType,omitempty"`

	// ProfileURLs are the profiles the resource was validated against
	ProfileURLs []string `json:"profileUrls,omitempty"`

	// mu protects concurrent access to Issues
	mu sync.Mutex
}

// resultPool holds reusable Result instances.
var resultPool = sync.Pool{
	New: func() any {
		return &Result{
			Issues: make([]Issue, 0, 32),
		}
	},
}

// AcquireResult gets a Result from the pool.
// The result starts as valid with no issues.
func AcquireResult() *Result {
	r := resultPool.Get().(*Result)
	r.Reset()
	return r
}

// Release returns the Result to the pool.
// After calling Release, the Result should not be used.
func (r *Result) Release() {
	if r == nil {
		return
	}
	// Don't return results with oversized issue slices
	if cap(r.Issues) <= 1024 {
		resultPool.Put(r)
	}
}

// Reset clears the result for reuse.
func (r *Result) Reset() {
	r.Valid = true
	r.Issues = r.Issues[:0]
	r.Cancelled = false
	r.JobID = ""
	r.ResourceType = ""
	r.ProfileURLs = r.ProfileURLs[:0]
}

// AddIssue adds a validation issue to the result.
// This method is thread-safe.
func (r *Result) AddIssue(issue Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issue)
	if issue.IsError() {
		r.Valid = false
	}
}

// AddIssues adds multiple issues at once.
// This method is thread-safe.
func (r *Result) AddIssues(issues []Issue) {
	if len(issues) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issues...)
	for _, issue := range issues {
		if issue.IsError() {
			r.Valid = false
			break
		}
	}
}

// AddError is a convenience method to add an error issue.
func (r *Result) AddError(code IssueType, diagnostics, path string) {
	issue := Issue{
		Severity:    SeverityError,
		Code:        code,
		Diagnostics: diagnostics,
	}
	if path != "" {
		issue.Expression = []string{path}
	}
	r.AddIssue(issue)
}

// AddWarning is a convenience method to add a warning issue.
func (r *Result) AddWarning(code IssueType, diagnostics, path string) {
	issue := Issue{
		Severity:    SeverityWarning,
		Code:        code,
		Diagnostics: diagnostics,
	}
	if path != "" {
		issue.Expression = []string{path}
	}
	r.AddIssue(issue)
}

// AddInfo is a convenience method to add an information issue.
func (r *Result) AddInfo(code IssueType, diagnostics, path string) {
	issue := Issue{
		Severity:    SeverityInformation,
		Code:        code,
		Diagnostics: diagnostics,
	}
	if path != "" {
		issue.Expression = []string{path}
	}
	r.AddIssue(issue)
}

// HasErrors returns true if any error or fatal issues were found.
func (r *Result) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, issue := range r.Issues {
		if issue.IsError() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error and fatal issues.
func (r *Result) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, issue := range r.Issues {
		if issue.IsError() {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning issues.
func (r *Result) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, issue := range r.Issues {
		if issue.IsWarning() {
			count++
		}
	}
	return count
}

// Errors returns only the error and fatal issues.
func (r *Result) Errors() []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errors []Issue
	for _, issue := range r.Issues {
		if issue.IsError() {
			errors = append(errors, issue)
		}
	}
	return errors
}

// Warnings returns only the warning issues.
func (r *Result) Warnings() []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	var warnings []Issue
	for _, issue := range r.Issues {
		if issue.IsWarning() {
			warnings = append(warnings, issue)
		}
	}
	return warnings
}

// Sort orders issues by path, then by severity (errors first), stably.
// The engine calls this before returning an outcome so results are
// byte-for-byte reproducible for the same inputs.
func (r *Result) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.SliceStable(r.Issues, func(i, j int) bool {
		pi, pj := r.Issues[i].Path(), r.Issues[j].Path()
		if pi != pj {
			return pi < pj
		}
		return severityRank(r.Issues[i].Severity) < severityRank(r.Issues[j].Severity)
	})
}

// Merge adds all issues from another result.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	other.mu.Lock()
	issues := make([]Issue, len(other.Issues))
	copy(issues, other.Issues)
	cancelled := other.Cancelled
	other.mu.Unlock()

	r.AddIssues(issues)
	if cancelled {
		r.mu.Lock()
		r.Cancelled = true
		r.mu.Unlock()
	}
}
