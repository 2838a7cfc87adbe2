// Package terminology answers ValueSet membership questions for the
// binding pass. Extensional ValueSets (finite enumerations) are expanded
// locally and memoized; intensional components (filters, subsumption)
// are delegated to an injected Provider or reported as unverifiable.
// The engine never guesses.
package terminology

import (
	"context"
	"fmt"
	"strings"

	"github.com/reason-healthcare/rh-sub009/cache"
	"github.com/reason-healthcare/rh-sub009/service"
)

// Membership is the engine's answer for one (system, code) pair.
type Membership int

const (
	// NotMember means the code is definitely not in the ValueSet.
	NotMember Membership = iota
	// Member means the code is definitely included and not excluded.
	Member
	// Unverifiable means the ValueSet cannot be decided locally:
	// intensional content without a provider, an unresolvable
	// reference, or a reference cycle.
	Unverifiable
)

func (m Membership) String() string {
	switch m {
	case NotMember:
		return "not-member"
	case Member:
		return "member"
	case Unverifiable:
		return "unverifiable"
	}
	return fmt.Sprintf("Membership(%d)", int(m))
}

// Provider decides intensional membership the core cannot enumerate,
// typically backed by a terminology server or a precomputed expansion.
type Provider interface {
	ValidateCode(ctx context.Context, valueSetURL, system, code string) (Membership, error)
}

// DefaultExpansionCacheSize bounds the expansion cache when no size is
// configured.
const DefaultExpansionCacheSize = 256

// Engine resolves ValueSets, expands their extensional content, and
// decides membership. Expansions are immutable after first computation
// and shared between concurrent validations.
type Engine struct {
	valueSets   service.ValueSetFetcher
	codeSystems service.CodeSystemFetcher
	provider    Provider
	expansions  *cache.Cache[string, *expansion]
}

// Option configures an Engine.
type Option func(*Engine)

// WithProvider installs a terminology provider for intensional content.
func WithProvider(p Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithExpansionCacheSize bounds the expansion cache.
func WithExpansionCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.expansions = cache.New[string, *expansion](n)
		}
	}
}

// NewEngine builds a membership engine over the given fetchers.
func NewEngine(valueSets service.ValueSetFetcher, codeSystems service.CodeSystemFetcher, opts ...Option) *Engine {
	e := &Engine{
		valueSets:   valueSets,
		codeSystems: codeSystems,
		expansions:  cache.New[string, *expansion](DefaultExpansionCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// expansion is the flattened extensional content of one ValueSet.
// Codes are keyed "system|code"; codeless include concepts match any
// system and are keyed by bare code.
type expansion struct {
	include       map[string]bool
	includeAnySys map[string]bool
	exclude       map[string]bool
	excludeAnySys map[string]bool

	// includeCodes and excludeCodes index the same content by bare
	// code, for queries from primitive elements that carry no system.
	includeCodes map[string]bool
	excludeCodes map[string]bool

	intensional     bool
	intensionalNote string
}

// indexCodes builds the bare-code indexes from the keyed sets.
func (exp *expansion) indexCodes() {
	exp.includeCodes = bareCodes(exp.include, exp.includeAnySys)
	exp.excludeCodes = bareCodes(exp.exclude, exp.excludeAnySys)
}

func bareCodes(keyed, anySys map[string]bool) map[string]bool {
	out := make(map[string]bool, len(keyed)+len(anySys))
	for k := range keyed {
		if i := strings.IndexByte(k, '|'); i >= 0 {
			out[k[i+1:]] = true
		}
	}
	for code := range anySys {
		out[code] = true
	}
	return out
}

// Check decides membership of (system, code) in the ValueSet at url.
// An unresolvable ValueSet yields Unverifiable with a wrapped
// ErrNotFound so callers can distinguish it from intensional content.
func (e *Engine) Check(ctx context.Context, url, version, system, code string) (Membership, error) {
	exp, err := e.expand(ctx, url, version)
	if err != nil {
		return Unverifiable, err
	}

	if exp.intensional {
		if e.provider != nil {
			m, perr := e.provider.ValidateCode(ctx, url, system, code)
			if perr != nil {
				return Unverifiable, nil
			}
			return m, nil
		}
		return Unverifiable, nil
	}

	// A query without a system, from a primitive code element, matches
	// on the code alone.
	if system == "" {
		if exp.excludeCodes[code] {
			return NotMember, nil
		}
		if exp.includeCodes[code] {
			return Member, nil
		}
		return NotMember, nil
	}

	key := system + "|" + code
	if exp.exclude[key] || exp.excludeAnySys[code] {
		return NotMember, nil
	}
	if exp.include[key] || exp.includeAnySys[code] {
		return Member, nil
	}
	return NotMember, nil
}

// CacheStats reports expansion cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.expansions.Stats()
}

// expand computes (or recalls) the flattened expansion of a ValueSet.
func (e *Engine) expand(ctx context.Context, url, version string) (*expansion, error) {
	key := url + "|" + version
	return e.expansions.GetOrSetErr(key, func() (*expansion, error) {
		exp := newExpansion()
		visited := map[string]bool{}
		if err := e.expandInto(ctx, exp, url, version, visited); err != nil {
			return nil, err
		}
		exp.indexCodes()
		return exp, nil
	})
}

func newExpansion() *expansion {
	return &expansion{
		include:       map[string]bool{},
		includeAnySys: map[string]bool{},
		exclude:       map[string]bool{},
		excludeAnySys: map[string]bool{},
	}
}

// expandInto flattens a ValueSet into exp. visited holds only the URLs
// on the current recursion stack, so a diamond of references expands
// normally and only a true cycle is flagged.
func (e *Engine) expandInto(ctx context.Context, exp *expansion, url, version string, visited map[string]bool) error {
	if visited[url] {
		exp.intensional = true
		exp.intensionalNote = "reference cycle at " + url
		return nil
	}
	visited[url] = true
	defer delete(visited, url)

	vs, err := e.valueSets.FetchValueSet(ctx, url, version)
	if err != nil {
		return fmt.Errorf("valueset %s: %w", url, err)
	}
	if vs.Compose == nil {
		return nil
	}

	for i := range vs.Compose.Include {
		if err := e.expandEntry(ctx, exp, &vs.Compose.Include[i], exp.include, exp.includeAnySys, visited); err != nil {
			return err
		}
	}
	for i := range vs.Compose.Exclude {
		if err := e.expandEntry(ctx, exp, &vs.Compose.Exclude[i], exp.exclude, exp.excludeAnySys, visited); err != nil {
			return err
		}
	}
	return nil
}

// expandEntry flattens one include or exclude component into the target
// code sets.
func (e *Engine) expandEntry(ctx context.Context, exp *expansion, entry *service.ComposeEntry, codes, anySys map[string]bool, visited map[string]bool) error {
	if entry.Intensional() {
		exp.intensional = true
		if exp.intensionalNote == "" {
			exp.intensionalNote = "filter on " + entry.System
		}
		return nil
	}

	// References to other ValueSets expand recursively; their include
	// content lands in the same target sets
	for _, ref := range entry.ValueSet {
		refURL, refVersion := splitCanonical(ref)
		sub := newExpansion()
		if err := e.expandInto(ctx, sub, refURL, refVersion, visited); err != nil {
			return err
		}
		if sub.intensional {
			exp.intensional = true
			exp.intensionalNote = sub.intensionalNote
			return nil
		}
		for k := range sub.include {
			codes[k] = true
		}
		for k := range sub.includeAnySys {
			anySys[k] = true
		}
	}

	if len(entry.Concept) > 0 {
		for _, c := range entry.Concept {
			if entry.System == "" {
				anySys[c.Code] = true
			} else {
				codes[entry.System+"|"+c.Code] = true
			}
		}
		return nil
	}

	// Whole-system component: enumerate the CodeSystem. A system whose
	// content is not enumerable locally makes the ValueSet
	// unverifiable.
	if entry.System != "" && len(entry.ValueSet) == 0 {
		cs, err := e.codeSystems.FetchCodeSystem(ctx, entry.System, entry.Version)
		if err != nil || cs.Content == "not-present" || len(cs.Concept) == 0 {
			exp.intensional = true
			exp.intensionalNote = "system " + entry.System + " not enumerable"
			return nil
		}
		addConcepts(codes, cs.URL, cs.Concept)
	}
	return nil
}

func addConcepts(codes map[string]bool, system string, concepts []service.Concept) {
	for i := range concepts {
		codes[system+"|"+concepts[i].Code] = true
		addConcepts(codes, system, concepts[i].Concept)
	}
}

func splitCanonical(canonical string) (string, string) {
	for i := len(canonical) - 1; i >= 0; i-- {
		if canonical[i] == '|' {
			return canonical[:i], canonical[i+1:]
		}
	}
	return canonical, ""
}
