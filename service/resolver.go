package service

import (
	"context"
	"errors"

	"github.com/reason-healthcare/rh-sub009/cache"
)

// ErrNotFound is returned when an artifact cannot be resolved.
var ErrNotFound = errors.New("artifact not found")

// ErrNotSupported is returned when a resolver does not handle a kind of
// artifact or question.
var ErrNotSupported = errors.New("operation not supported")

// ProfileFetcher resolves profile snapshots by canonical URL. An empty
// version means "any version".
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, url, version string) (*StructureDefinition, error)
}

// ValueSetFetcher resolves ValueSets by canonical URL.
type ValueSetFetcher interface {
	FetchValueSet(ctx context.Context, url, version string) (*ValueSet, error)
}

// CodeSystemFetcher resolves CodeSystems by canonical URL.
type CodeSystemFetcher interface {
	FetchCodeSystem(ctx context.Context, url, version string) (*CodeSystem, error)
}

// QuestionnaireFetcher resolves Questionnaires by canonical URL.
type QuestionnaireFetcher interface {
	FetchQuestionnaire(ctx context.Context, url, version string) (*Questionnaire, error)
}

// Resolver supplies every artifact kind the engine consumes. Fetches
// must be idempotent and safe for concurrent use; they may block on I/O.
type Resolver interface {
	ProfileFetcher
	ValueSetFetcher
	CodeSystemFetcher
	QuestionnaireFetcher
}

// TypeLister is an optional resolver capability: the set of resource
// type names it can resolve, used for "did you mean" suggestions.
type TypeLister interface {
	KnownTypes() []string
}

// Chain tries each resolver in order, skipping ErrNotFound and
// ErrNotSupported, and resolves to the first hit.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a resolver chain.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Add appends a resolver to the chain.
func (c *Chain) Add(r Resolver) {
	c.resolvers = append(c.resolvers, r)
}

func (c *Chain) FetchProfile(ctx context.Context, url, version string) (*StructureDefinition, error) {
	for _, r := range c.resolvers {
		sd, err := r.FetchProfile(ctx, url, version)
		if err == nil {
			return sd, nil
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (c *Chain) FetchValueSet(ctx context.Context, url, version string) (*ValueSet, error) {
	for _, r := range c.resolvers {
		vs, err := r.FetchValueSet(ctx, url, version)
		if err == nil {
			return vs, nil
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (c *Chain) FetchCodeSystem(ctx context.Context, url, version string) (*CodeSystem, error) {
	for _, r := range c.resolvers {
		cs, err := r.FetchCodeSystem(ctx, url, version)
		if err == nil {
			return cs, nil
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (c *Chain) FetchQuestionnaire(ctx context.Context, url, version string) (*Questionnaire, error) {
	for _, r := range c.resolvers {
		q, err := r.FetchQuestionnaire(ctx, url, version)
		if err == nil {
			return q, nil
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// KnownTypes unions the known types of every chained resolver that
// reports them.
func (c *Chain) KnownTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range c.resolvers {
		lister, ok := r.(TypeLister)
		if !ok {
			continue
		}
		for _, t := range lister.KnownTypes() {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

func skippable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotSupported)
}

// CachingResolver memoizes successful fetches from a wrapped resolver.
// Misses and errors are not cached, so a resolver that later learns an
// artifact gets asked again.
type CachingResolver struct {
	inner          Resolver
	profiles       *cache.Cache[string, *StructureDefinition]
	valueSets      *cache.Cache[string, *ValueSet]
	codeSystems    *cache.Cache[string, *CodeSystem]
	questionnaires *cache.Cache[string, *Questionnaire]
}

// NewCachingResolver wraps inner with per-kind LRU caches of the given
// capacity.
func NewCachingResolver(inner Resolver, capacity int) *CachingResolver {
	return &CachingResolver{
		inner:          inner,
		profiles:       cache.New[string, *StructureDefinition](capacity),
		valueSets:      cache.New[string, *ValueSet](capacity),
		codeSystems:    cache.New[string, *CodeSystem](capacity),
		questionnaires: cache.New[string, *Questionnaire](capacity),
	}
}

func cacheKey(url, version string) string {
	return url + "|" + version
}

func (c *CachingResolver) FetchProfile(ctx context.Context, url, version string) (*StructureDefinition, error) {
	return c.profiles.GetOrSetErr(cacheKey(url, version), func() (*StructureDefinition, error) {
		return c.inner.FetchProfile(ctx, url, version)
	})
}

func (c *CachingResolver) FetchValueSet(ctx context.Context, url, version string) (*ValueSet, error) {
	return c.valueSets.GetOrSetErr(cacheKey(url, version), func() (*ValueSet, error) {
		return c.inner.FetchValueSet(ctx, url, version)
	})
}

func (c *CachingResolver) FetchCodeSystem(ctx context.Context, url, version string) (*CodeSystem, error) {
	return c.codeSystems.GetOrSetErr(cacheKey(url, version), func() (*CodeSystem, error) {
		return c.inner.FetchCodeSystem(ctx, url, version)
	})
}

func (c *CachingResolver) FetchQuestionnaire(ctx context.Context, url, version string) (*Questionnaire, error) {
	return c.questionnaires.GetOrSetErr(cacheKey(url, version), func() (*Questionnaire, error) {
		return c.inner.FetchQuestionnaire(ctx, url, version)
	})
}

// KnownTypes passes through to the wrapped resolver.
func (c *CachingResolver) KnownTypes() []string {
	if lister, ok := c.inner.(TypeLister); ok {
		return lister.KnownTypes()
	}
	return nil
}

// NullResolver resolves nothing. Useful as a chain terminator and in
// tests.
type NullResolver struct{}

func (NullResolver) FetchProfile(context.Context, string, string) (*StructureDefinition, error) {
	return nil, ErrNotFound
}

func (NullResolver) FetchValueSet(context.Context, string, string) (*ValueSet, error) {
	return nil, ErrNotFound
}

func (NullResolver) FetchCodeSystem(context.Context, string, string) (*CodeSystem, error) {
	return nil, ErrNotFound
}

func (NullResolver) FetchQuestionnaire(context.Context, string, string) (*Questionnaire, error) {
	return nil, ErrNotFound
}
