package pipeline

import (
	"context"

	fv "github.com/reason-healthcare/rh-sub009"
)

// Pipeline executes phases sequentially in registration order. The
// order is fixed so two runs over the same inputs produce the same
// issue list.
type Pipeline struct {
	phases []Phase
}

// New creates a pipeline running the given phases in order.
func New(phases ...Phase) *Pipeline {
	return &Pipeline{phases: phases}
}

// Append adds a phase at the end of the pipeline.
func (p *Pipeline) Append(phase Phase) {
	p.phases = append(p.phases, phase)
}

// Len returns the number of phases.
func (p *Pipeline) Len() int {
	return len(p.phases)
}

// Run executes every phase and merges their issues into the result,
// tagging each issue with the name of the phase that produced it.
// Cancellation is checked between phases; a cancelled run keeps the
// issues gathered so far, marks the result as partial, and records one
// warning so the caller can tell the outcome is incomplete.
func (p *Pipeline) Run(ctx context.Context, pctx *Context, result *fv.Result) {
	for _, phase := range p.phases {
		select {
		case <-ctx.Done():
			result.Cancelled = true
			result.AddIssue(fv.NewIssue(fv.SeverityWarning, fv.IssueTypeTimeout).
				Diagnostics("validation cancelled before all passes completed").
				Build())
			return
		default:
		}

		issues := phase.Validate(ctx, pctx)
		for i := range issues {
			if issues[i].Phase == "" {
				issues[i].Phase = phase.Name()
			}
		}
		result.AddIssues(issues)
	}
}
