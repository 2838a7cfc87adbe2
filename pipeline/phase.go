package pipeline

import (
	"context"

	fv "github.com/reason-healthcare/rh-sub009"
)

// Phase is one aspect of validation. Phases are stateless: everything a
// run needs lives in the Context, so one phase value may serve
// concurrent runs.
type Phase interface {
	// Name returns the identifier recorded on issues this phase emits.
	Name() string

	// Validate inspects the resource and returns the issues it found.
	Validate(ctx context.Context, pctx *Context) []fv.Issue
}

// PhaseFunc adapts a function to the Phase interface.
type PhaseFunc struct {
	name string
	fn   func(ctx context.Context, pctx *Context) []fv.Issue
}

// NewPhaseFunc creates a Phase from a function.
func NewPhaseFunc(name string, fn func(ctx context.Context, pctx *Context) []fv.Issue) Phase {
	return &PhaseFunc{name: name, fn: fn}
}

// Name returns the phase name.
func (p *PhaseFunc) Name() string {
	return p.name
}

// Validate calls the wrapped function.
func (p *PhaseFunc) Validate(ctx context.Context, pctx *Context) []fv.Issue {
	return p.fn(ctx, pctx)
}

// ConditionalPhase wraps a phase with a predicate deciding whether it
// runs for a given context.
type ConditionalPhase struct {
	phase     Phase
	condition func(*Context) bool
}

// NewConditionalPhase creates a phase that only runs when the condition
// holds.
func NewConditionalPhase(phase Phase, condition func(*Context) bool) Phase {
	return &ConditionalPhase{phase: phase, condition: condition}
}

// Name returns the wrapped phase name.
func (p *ConditionalPhase) Name() string {
	return p.phase.Name()
}

// Validate runs the phase if the condition is met.
func (p *ConditionalPhase) Validate(ctx context.Context, pctx *Context) []fv.Issue {
	if p.condition != nil && !p.condition(pctx) {
		return nil
	}
	return p.phase.Validate(ctx, pctx)
}
