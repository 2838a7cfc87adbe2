package fhirvalidator

import "runtime"

// Option configures the Validator.
type Option func(*Options)

// Options holds all configuration for the Validator.
type Options struct {
	// Validation flags
	ValidateBindings     bool
	ValidateInvariants   bool
	ValidateExtensions   bool
	ValidateSlicing      bool
	ValidateMetaProfiles bool
	StrictMode           bool

	// Performance
	WorkerCount int

	// Cache sizes
	RulesetCacheSize   int
	ExpansionCacheSize int

	// SuggestUnknownTypes enables "did you mean" hints on unknown resourceType.
	SuggestUnknownTypes bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		ValidateBindings:     true,
		ValidateInvariants:   true,
		ValidateExtensions:   true,
		ValidateSlicing:      true,
		ValidateMetaProfiles: true,

		WorkerCount: runtime.NumCPU(),

		RulesetCacheSize:   256,
		ExpansionCacheSize: 256,

		SuggestUnknownTypes: true,
	}
}

// WithBindings enables or disables ValueSet binding validation.
func WithBindings(enable bool) Option {
	return func(o *Options) {
		o.ValidateBindings = enable
	}
}

// WithInvariants enables or disables path-expression invariant validation.
func WithInvariants(enable bool) Option {
	return func(o *Options) {
		o.ValidateInvariants = enable
	}
}

// WithExtensions enables or disables extension slice validation.
func WithExtensions(enable bool) Option {
	return func(o *Options) {
		o.ValidateExtensions = enable
	}
}

// WithSlicing enables or disables slicing validation.
func WithSlicing(enable bool) Option {
	return func(o *Options) {
		o.ValidateSlicing = enable
	}
}

// WithMetaProfiles enables validation against profiles declared in meta.profile.
func WithMetaProfiles(enable bool) Option {
	return func(o *Options) {
		o.ValidateMetaProfiles = enable
	}
}

// WithStrictMode treats warnings as errors.
func WithStrictMode(enable bool) Option {
	return func(o *Options) {
		o.StrictMode = enable
	}
}

// WithWorkerCount sets the number of workers for batch validation.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithRulesetCache sets the compiled ruleset LRU cache size.
func WithRulesetCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.RulesetCacheSize = size
		}
	}
}

// WithExpansionCache sets the ValueSet expansion cache size.
func WithExpansionCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpansionCacheSize = size
		}
	}
}

// WithSuggestions enables or disables "did you mean" hints for unknown
// resource types.
func WithSuggestions(enable bool) Option {
	return func(o *Options) {
		o.SuggestUnknownTypes = enable
	}
}

// StrictOptions returns options for strict validation: everything enabled
// and warnings treated as errors.
func StrictOptions() []Option {
	return []Option{
		WithBindings(true),
		WithInvariants(true),
		WithExtensions(true),
		WithSlicing(true),
		WithStrictMode(true),
	}
}

// FastOptions returns options optimized for speed: only structural rule
// kinds, larger caches.
func FastOptions() []Option {
	return []Option{
		WithBindings(false),
		WithInvariants(false),
		WithExtensions(false),
		WithSlicing(false),
		WithRulesetCache(1024),
	}
}
