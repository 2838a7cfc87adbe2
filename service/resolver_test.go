package service

import (
	"context"
	"errors"
	"testing"
)

// stubResolver resolves a fixed set of artifacts and counts fetches.
type stubResolver struct {
	profiles  map[string]*StructureDefinition
	valueSets map[string]*ValueSet
	calls     int
	failWith  error
}

func (s *stubResolver) FetchProfile(_ context.Context, url, _ string) (*StructureDefinition, error) {
	s.calls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	if sd, ok := s.profiles[url]; ok {
		return sd, nil
	}
	return nil, ErrNotFound
}

func (s *stubResolver) FetchValueSet(_ context.Context, url, _ string) (*ValueSet, error) {
	s.calls++
	if vs, ok := s.valueSets[url]; ok {
		return vs, nil
	}
	return nil, ErrNotFound
}

func (s *stubResolver) FetchCodeSystem(context.Context, string, string) (*CodeSystem, error) {
	return nil, ErrNotFound
}

func (s *stubResolver) FetchQuestionnaire(context.Context, string, string) (*Questionnaire, error) {
	return nil, ErrNotFound
}

func (s *stubResolver) KnownTypes() []string {
	out := make([]string, 0, len(s.profiles))
	for _, sd := range s.profiles {
		out = append(out, sd.Type)
	}
	return out
}

func patientProfile() *StructureDefinition {
	return &StructureDefinition{
		URL:  "http://hl7.org/fhir/StructureDefinition/Patient",
		Name: "Patient",
		Type: "Patient",
		Kind: "resource",
	}
}

func TestChain_FirstHitWins(t *testing.T) {
	ctx := context.Background()
	first := &stubResolver{}
	second := &stubResolver{profiles: map[string]*StructureDefinition{
		"http://hl7.org/fhir/StructureDefinition/Patient": patientProfile(),
	}}

	chain := NewChain(first, second)
	sd, err := chain.FetchProfile(ctx, "http://hl7.org/fhir/StructureDefinition/Patient", "")
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if sd.Type != "Patient" {
		t.Errorf("Type = %q, want Patient", sd.Type)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", first.calls, second.calls)
	}
}

func TestChain_NotFound(t *testing.T) {
	chain := NewChain(&stubResolver{}, NullResolver{})
	_, err := chain.FetchProfile(context.Background(), "http://example.org/nope", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChain_RealErrorStopsChain(t *testing.T) {
	boom := errors.New("disk on fire")
	first := &stubResolver{failWith: boom}
	second := &stubResolver{profiles: map[string]*StructureDefinition{
		"http://hl7.org/fhir/StructureDefinition/Patient": patientProfile(),
	}}

	chain := NewChain(first, second)
	_, err := chain.FetchProfile(context.Background(), "http://hl7.org/fhir/StructureDefinition/Patient", "")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped disk error", err)
	}
	if second.calls != 0 {
		t.Errorf("second resolver was consulted after a real error")
	}
}

func TestChain_KnownTypes(t *testing.T) {
	first := &stubResolver{profiles: map[string]*StructureDefinition{
		"p": {Type: "Patient"},
	}}
	second := &stubResolver{profiles: map[string]*StructureDefinition{
		"p2": {Type: "Patient"},
		"o":  {Type: "Observation"},
	}}

	chain := NewChain(first, second)
	types := chain.KnownTypes()
	if len(types) != 2 {
		t.Errorf("KnownTypes = %v, want 2 distinct entries", types)
	}
}

func TestCachingResolver(t *testing.T) {
	ctx := context.Background()
	inner := &stubResolver{profiles: map[string]*StructureDefinition{
		"http://hl7.org/fhir/StructureDefinition/Patient": patientProfile(),
	}}
	caching := NewCachingResolver(inner, 8)

	for i := 0; i < 3; i++ {
		if _, err := caching.FetchProfile(ctx, "http://hl7.org/fhir/StructureDefinition/Patient", ""); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}

	// Versions are distinct cache entries
	if _, err := caching.FetchProfile(ctx, "http://hl7.org/fhir/StructureDefinition/Patient", "4.0.1"); err != nil {
		t.Fatalf("versioned fetch: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCachingResolver_MissNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &stubResolver{}
	caching := NewCachingResolver(inner, 8)

	for i := 0; i < 2; i++ {
		if _, err := caching.FetchProfile(ctx, "http://example.org/late", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("fetch %d: err = %v, want ErrNotFound", i, err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2 (misses must not be cached)", inner.calls)
	}

	// Artifact appears later; the next fetch sees it
	inner.profiles = map[string]*StructureDefinition{"http://example.org/late": patientProfile()}
	if _, err := caching.FetchProfile(ctx, "http://example.org/late", ""); err != nil {
		t.Errorf("fetch after load: %v", err)
	}
}

func TestCodeSystem_Contains(t *testing.T) {
	cs := &CodeSystem{
		URL: "http://example.org/cs",
		Concept: []Concept{
			{Code: "a"},
			{Code: "b", Concept: []Concept{
				{Code: "b1"},
				{Code: "b2", Concept: []Concept{{Code: "b2x"}}},
			}},
		},
	}
	for _, code := range []string{"a", "b", "b1", "b2x"} {
		if !cs.Contains(code) {
			t.Errorf("Contains(%q) = false, want true", code)
		}
	}
	if cs.Contains("z") {
		t.Errorf("Contains(z) = true, want false")
	}
}

func TestComposeEntry_Intensional(t *testing.T) {
	plain := ComposeEntry{System: "http://example.org/cs", Concept: []ConceptRef{{Code: "a"}}}
	if plain.Intensional() {
		t.Errorf("enumerated entry reported intensional")
	}
	filtered := ComposeEntry{System: "http://example.org/cs", Filter: []Filter{{Property: "concept", Op: "is-a", Value: "x"}}}
	if !filtered.Intensional() {
		t.Errorf("filtered entry not reported intensional")
	}
}
