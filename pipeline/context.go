// Package pipeline runs validation phases in a fixed order over a
// parsed resource and its compiled ruleset.
package pipeline

import (
	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/service"
	"github.com/reason-healthcare/rh-sub009/terminology"
	"github.com/reason-healthcare/rh-sub009/value"
)

// Context holds the state one validation run shares across phases. It
// is built once per resource-profile pair and read-only during the run.
type Context struct {
	// Root is the parsed resource.
	Root *value.Value

	// ResourceType is the declared resourceType of the instance.
	ResourceType string

	// ProfileURL is the canonical URL the resource is validated against.
	ProfileURL string

	// Ruleset is the compiled form of the profile.
	Ruleset *compiler.Ruleset

	// Terminology answers ValueSet membership questions. Nil when
	// binding validation is disabled.
	Terminology *terminology.Engine

	// Resolver fetches supporting artifacts for phases that need more
	// than the compiled ruleset, such as questionnaire validation.
	Resolver service.Resolver

	// Options holds the validation flags for this run.
	Options *fv.Options
}
