// Package engine wires the validator together: it parses resources,
// resolves and compiles profiles, and runs the validation pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/cache"
	"github.com/reason-healthcare/rh-sub009/compiler"
	"github.com/reason-healthcare/rh-sub009/phase"
	"github.com/reason-healthcare/rh-sub009/pipeline"
	"github.com/reason-healthcare/rh-sub009/questionnaire"
	"github.com/reason-healthcare/rh-sub009/service"
	"github.com/reason-healthcare/rh-sub009/terminology"
	"github.com/reason-healthcare/rh-sub009/value"
	"github.com/reason-healthcare/rh-sub009/worker"
)

// baseProfilePrefix is where the core resource definitions live.
const baseProfilePrefix = "http://hl7.org/fhir/StructureDefinition/"

// suggester is implemented by resolvers that can propose a close
// resource type name for a misspelled one.
type suggester interface {
	Suggest(name string) (string, bool)
}

// Validator validates FHIR resources against profiles.
type Validator struct {
	options      *fv.Options
	resolver     service.Resolver
	compiler     *compiler.Compiler
	terms        *terminology.Engine
	pipe         *pipeline.Pipeline
	instancePipe *pipeline.Pipeline
	metrics      *fv.Metrics
}

// New creates a Validator backed by the given artifact resolver.
func New(resolver service.Resolver, opts ...fv.Option) *Validator {
	options := fv.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	v := &Validator{
		options:  options,
		resolver: resolver,
		compiler: compiler.New(options.RulesetCacheSize),
		metrics:  fv.NewMetrics(),
	}
	if options.ValidateBindings {
		v.terms = terminology.NewEngine(resolver, resolver,
			terminology.WithExpansionCacheSize(options.ExpansionCacheSize))
	}
	v.pipe = v.buildPipeline()
	v.instancePipe = v.buildInstancePipeline()
	return v
}

// buildPipeline assembles the profile-driven phases the options call
// for. The order is fixed: structural phases first, then content
// phases. This pipeline runs once per profile.
func (v *Validator) buildPipeline() *pipeline.Pipeline {
	pipe := pipeline.New(
		phase.NewCardinalityPhase(),
		phase.NewTypePhase(),
	)
	if v.options.ValidateBindings {
		pipe.Append(phase.NewBindingPhase())
	}
	if v.options.ValidateInvariants {
		pipe.Append(phase.NewInvariantPhase())
	}
	if v.options.ValidateExtensions {
		pipe.Append(phase.NewExtensionPhase())
	}
	if v.options.ValidateSlicing {
		pipe.Append(phase.NewSlicingPhase())
	}
	return pipe
}

// buildInstancePipeline assembles the phases that only look at the
// resource itself. These run once per validation regardless of how many
// profiles apply, so their issues never repeat.
func (v *Validator) buildInstancePipeline() *pipeline.Pipeline {
	pipe := pipeline.New()
	if v.options.ValidateExtensions {
		pipe.Append(phase.NewExtensionFormPhase())
	}
	pipe.Append(questionnaire.NewPhase())
	return pipe
}

// Validate validates a resource against its base type definition plus
// any profiles the resource declares in meta.profile.
func (v *Validator) Validate(ctx context.Context, resource []byte) (*fv.Result, error) {
	start := time.Now()
	result := fv.AcquireResult()

	root, resourceType, ok := v.parse(resource, result)
	if !ok {
		v.metrics.RecordValidation(time.Since(start), false)
		return result, nil
	}
	result.ResourceType = resourceType

	profiles := []string{baseProfilePrefix + resourceType}
	if v.options.ValidateMetaProfiles {
		profiles = append(profiles, metaProfiles(root)...)
	}
	profiles = dedupe(profiles)

	v.validateProfiles(ctx, root, resourceType, profiles, result)
	v.validateInstance(ctx, root, resourceType, result)
	result.Sort()
	v.metrics.RecordValidation(time.Since(start), result.Valid)
	return result, nil
}

// ValidateWithProfile validates a resource against one explicit profile
// instead of the declared ones.
func (v *Validator) ValidateWithProfile(ctx context.Context, resource []byte, profileURL string) (*fv.Result, error) {
	start := time.Now()
	result := fv.AcquireResult()

	root, resourceType, ok := v.parse(resource, result)
	if !ok {
		v.metrics.RecordValidation(time.Since(start), false)
		return result, nil
	}
	result.ResourceType = resourceType

	v.validateProfiles(ctx, root, resourceType, []string{profileURL}, result)
	v.validateInstance(ctx, root, resourceType, result)
	result.Sort()
	v.metrics.RecordValidation(time.Since(start), result.Valid)
	return result, nil
}

// parse performs the structural gate: well-formed JSON, an object root,
// and a declared resourceType.
func (v *Validator) parse(resource []byte, result *fv.Result) (*value.Value, string, bool) {
	root, err := value.FromJSON(resource)
	if err != nil {
		result.AddError(fv.IssueTypeStructure, fmt.Sprintf("invalid JSON: %v", err), "")
		return nil, "", false
	}
	if root.Kind() != value.KindObject {
		result.AddError(fv.IssueTypeStructure, "resource must be a JSON object", "")
		return nil, "", false
	}
	resourceType, ok := root.ResourceType()
	if !ok || resourceType == "" {
		result.AddError(fv.IssueTypeRequired, "resource has no resourceType", "")
		return nil, "", false
	}
	return root, resourceType, true
}

// validateProfiles runs the pipeline once per profile, all into the
// same result.
func (v *Validator) validateProfiles(ctx context.Context, root *value.Value, resourceType string, profiles []string, result *fv.Result) {
	for i, url := range profiles {
		sd, err := v.resolver.FetchProfile(ctx, url, "")
		if err != nil {
			// The base definition must resolve; a declared profile
			// that does not is reported but not fatal.
			if i == 0 {
				result.AddIssue(v.unknownTypeIssue(resourceType, url, err))
			} else {
				result.AddIssue(fv.NewIssue(processingSeverity(v.options.StrictMode), fv.IssueTypeNotFound).
					Diagnostics(fmt.Sprintf("declared profile %s could not be resolved", url)).
					At(resourceType+".meta.profile").
					Build())
			}
			continue
		}
		result.ProfileURLs = append(result.ProfileURLs, url)

		rs, err := v.compiler.Compile(sd)
		if err != nil {
			result.AddIssue(fv.NewIssue(processingSeverity(v.options.StrictMode), fv.IssueTypeProcessing).
				Diagnostics(fmt.Sprintf("profile %s could not be compiled: %v", url, err)).
				Build())
			continue
		}

		pctx := &pipeline.Context{
			Root:         root,
			ResourceType: resourceType,
			ProfileURL:   url,
			Ruleset:      rs,
			Terminology:  v.terms,
			Resolver:     v.resolver,
			Options:      v.options,
		}
		v.pipe.Run(ctx, pctx, result)
		if result.Cancelled {
			return
		}
	}
}

// validateInstance runs the profile-independent phases once.
func (v *Validator) validateInstance(ctx context.Context, root *value.Value, resourceType string, result *fv.Result) {
	if result.Cancelled {
		return
	}
	pctx := &pipeline.Context{
		Root:         root,
		ResourceType: resourceType,
		Terminology:  v.terms,
		Resolver:     v.resolver,
		Options:      v.options,
	}
	v.instancePipe.Run(ctx, pctx, result)
}

// unknownTypeIssue reports an unresolvable base definition, with a
// spelling suggestion when the resolver can make one.
func (v *Validator) unknownTypeIssue(resourceType, url string, err error) fv.Issue {
	diag := fmt.Sprintf("unknown resource type %s", resourceType)
	if !errors.Is(err, service.ErrNotFound) {
		diag = fmt.Sprintf("definition of %s could not be loaded: %v", resourceType, err)
	} else if s, ok := v.resolver.(suggester); ok && v.options.SuggestUnknownTypes {
		if name, found := s.Suggest(resourceType); found {
			diag += fmt.Sprintf(", did you mean %s?", name)
		}
	}
	return fv.NewIssue(fv.SeverityError, fv.IssueTypeNotFound).
		Diagnostics(diag).
		At(resourceType).
		Build()
}

// ValidateBatch validates many resources concurrently using the
// configured worker count and returns results in input order.
func (v *Validator) ValidateBatch(ctx context.Context, resources [][]byte) *worker.BatchResult {
	bv := worker.NewBatchValidator(v.Validate, v.options.WorkerCount)
	return bv.ValidateBatch(ctx, resources)
}

// Metrics returns the validator's counters.
func (v *Validator) Metrics() *fv.Metrics {
	return v.metrics
}

// Options returns the validator's configuration.
func (v *Validator) Options() *fv.Options {
	return v.options
}

// CompilerStats reports the ruleset cache counters.
func (v *Validator) CompilerStats() cache.Stats {
	return v.compiler.CacheStats()
}

func processingSeverity(strict bool) fv.IssueSeverity {
	if strict {
		return fv.SeverityError
	}
	return fv.SeverityWarning
}

// dedupe drops repeated profile URLs, keeping first-seen order. A
// resource that declares its own base definition in meta.profile is
// validated against it once.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// metaProfiles reads the canonical URLs from meta.profile.
func metaProfiles(root *value.Value) []string {
	meta, ok := root.Get("meta")
	if !ok {
		return nil
	}
	list, ok := meta.Get("profile")
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list.Items() {
		if s, ok := item.AsString(); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
