// Package registry provides an in-memory artifact store implementing
// the resolver interfaces. It is the usual backing for tests and for
// callers that load conformance packages from disk up front.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/buger/jsonparser"

	"github.com/reason-healthcare/rh-sub009/service"
)

// LoadStats counts what a bulk load ingested.
type LoadStats struct {
	Profiles       int
	ValueSets      int
	CodeSystems    int
	Questionnaires int
	Skipped        int
	Errors         int
}

// Registry is a thread-safe in-memory artifact store. Artifacts are
// indexed by canonical URL and by URL|version; profiles are additionally
// indexed by resource type.
type Registry struct {
	mu             sync.RWMutex
	profiles       map[string]*service.StructureDefinition
	profilesByType map[string]*service.StructureDefinition
	valueSets      map[string]*service.ValueSet
	codeSystems    map[string]*service.CodeSystem
	questionnaires map[string]*service.Questionnaire
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		profiles:       make(map[string]*service.StructureDefinition),
		profilesByType: make(map[string]*service.StructureDefinition),
		valueSets:      make(map[string]*service.ValueSet),
		codeSystems:    make(map[string]*service.CodeSystem),
		questionnaires: make(map[string]*service.Questionnaire),
	}
}

func versionedKey(url, version string) string {
	if version == "" {
		return url
	}
	return url + "|" + version
}

// RegisterProfile stores a profile under its URL and, when versioned,
// under URL|version as well. Base resource profiles (kind "resource",
// no derivation chain beyond the base) also register their type name.
func (r *Registry) RegisterProfile(sd *service.StructureDefinition) {
	if sd == nil || sd.URL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[sd.URL] = sd
	if sd.Version != "" {
		r.profiles[versionedKey(sd.URL, sd.Version)] = sd
	}
	if sd.Kind == "resource" && sd.Type != "" {
		if _, taken := r.profilesByType[sd.Type]; !taken || sd.URL == baseProfileURL(sd.Type) {
			r.profilesByType[sd.Type] = sd
		}
	}
}

// RegisterValueSet stores a ValueSet.
func (r *Registry) RegisterValueSet(vs *service.ValueSet) {
	if vs == nil || vs.URL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets[vs.URL] = vs
	if vs.Version != "" {
		r.valueSets[versionedKey(vs.URL, vs.Version)] = vs
	}
}

// RegisterCodeSystem stores a CodeSystem.
func (r *Registry) RegisterCodeSystem(cs *service.CodeSystem) {
	if cs == nil || cs.URL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codeSystems[cs.URL] = cs
	if cs.Version != "" {
		r.codeSystems[versionedKey(cs.URL, cs.Version)] = cs
	}
}

// RegisterQuestionnaire stores a Questionnaire.
func (r *Registry) RegisterQuestionnaire(q *service.Questionnaire) {
	if q == nil || q.URL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questionnaires[q.URL] = q
	if q.Version != "" {
		r.questionnaires[versionedKey(q.URL, q.Version)] = q
	}
}

func baseProfileURL(resourceType string) string {
	return "http://hl7.org/fhir/StructureDefinition/" + resourceType
}

func (r *Registry) FetchProfile(_ context.Context, url, version string) (*service.StructureDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version != "" {
		if sd, ok := r.profiles[versionedKey(url, version)]; ok {
			return sd, nil
		}
	}
	if sd, ok := r.profiles[url]; ok {
		return sd, nil
	}
	return nil, service.ErrNotFound
}

func (r *Registry) FetchValueSet(_ context.Context, url, version string) (*service.ValueSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version != "" {
		if vs, ok := r.valueSets[versionedKey(url, version)]; ok {
			return vs, nil
		}
	}
	if vs, ok := r.valueSets[url]; ok {
		return vs, nil
	}
	return nil, service.ErrNotFound
}

func (r *Registry) FetchCodeSystem(_ context.Context, url, version string) (*service.CodeSystem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version != "" {
		if cs, ok := r.codeSystems[versionedKey(url, version)]; ok {
			return cs, nil
		}
	}
	if cs, ok := r.codeSystems[url]; ok {
		return cs, nil
	}
	return nil, service.ErrNotFound
}

func (r *Registry) FetchQuestionnaire(_ context.Context, url, version string) (*service.Questionnaire, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version != "" {
		if q, ok := r.questionnaires[versionedKey(url, version)]; ok {
			return q, nil
		}
	}
	if q, ok := r.questionnaires[url]; ok {
		return q, nil
	}
	return nil, service.ErrNotFound
}

// KnownTypes returns the resource type names with a registered base
// profile, sorted.
func (r *Registry) KnownTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profilesByType))
	for t := range r.profilesByType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LoadBytes decodes one artifact from its FHIR JSON form and registers
// it. Returns the artifact's canonical URL. Unknown resource types are
// skipped with ErrNotSupported.
func (r *Registry) LoadBytes(data []byte) (string, error) {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decoding artifact: %w", err)
	}

	switch head.ResourceType {
	case "StructureDefinition":
		var sd service.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return "", fmt.Errorf("decoding StructureDefinition: %w", err)
		}
		r.RegisterProfile(&sd)
		return sd.URL, nil
	case "ValueSet":
		var vs service.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return "", fmt.Errorf("decoding ValueSet: %w", err)
		}
		r.RegisterValueSet(&vs)
		return vs.URL, nil
	case "CodeSystem":
		var cs service.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return "", fmt.Errorf("decoding CodeSystem: %w", err)
		}
		r.RegisterCodeSystem(&cs)
		return cs.URL, nil
	case "Questionnaire":
		var q service.Questionnaire
		if err := json.Unmarshal(data, &q); err != nil {
			return "", fmt.Errorf("decoding Questionnaire: %w", err)
		}
		r.RegisterQuestionnaire(&q)
		return q.URL, nil
	}
	return "", fmt.Errorf("resource type %q: %w", head.ResourceType, service.ErrNotSupported)
}

// LoadBundle ingests every supported artifact carried in a Bundle, the
// shape conformance packages ship their definitions in. Entries without
// a resource, and resource types the registry does not store, are
// skipped.
func (r *Registry) LoadBundle(data []byte) (*LoadStats, error) {
	stats := &LoadStats{}
	_, err := jsonparser.ArrayEach(data, func(entry []byte, _ jsonparser.ValueType, _ int, _ error) {
		resource, dt, _, err := jsonparser.Get(entry, "resource")
		if err != nil || dt != jsonparser.Object {
			stats.Skipped++
			return
		}
		if err := r.loadCounted(resource, stats); err != nil {
			stats.Errors++
		}
	}, "entry")
	if err != nil {
		return stats, fmt.Errorf("reading bundle entries: %w", err)
	}
	return stats, nil
}

// LoadDir ingests every .json artifact in a directory, non-recursively.
// CodeSystems load before ValueSets so enumeration-backed expansion
// finds its systems. Per-file failures are counted, not fatal.
func (r *Registry) LoadDir(dir string) (*LoadStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading artifact directory: %w", err)
	}

	var profiles, codeSystems, valueSets, others []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == "package.json" || name == ".index.json" {
			continue
		}
		path := filepath.Join(dir, name)
		switch {
		case strings.HasPrefix(name, "StructureDefinition-"):
			profiles = append(profiles, path)
		case strings.HasPrefix(name, "CodeSystem-"):
			codeSystems = append(codeSystems, path)
		case strings.HasPrefix(name, "ValueSet-"):
			valueSets = append(valueSets, path)
		default:
			others = append(others, path)
		}
	}

	stats := &LoadStats{}
	ordered := make([]string, 0, len(profiles)+len(codeSystems)+len(valueSets)+len(others))
	ordered = append(ordered, profiles...)
	ordered = append(ordered, codeSystems...)
	ordered = append(ordered, valueSets...)
	ordered = append(ordered, others...)

	for _, path := range ordered {
		data, err := os.ReadFile(path)
		if err != nil {
			stats.Errors++
			continue
		}
		if err := r.loadCounted(data, stats); err != nil {
			stats.Errors++
		}
	}
	return stats, nil
}

func (r *Registry) loadCounted(data []byte, stats *LoadStats) error {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.ResourceType {
	case "StructureDefinition", "ValueSet", "CodeSystem", "Questionnaire":
		if _, err := r.LoadBytes(data); err != nil {
			return err
		}
	case "Bundle":
		sub, err := r.LoadBundle(data)
		if err != nil {
			return err
		}
		stats.Profiles += sub.Profiles
		stats.ValueSets += sub.ValueSets
		stats.CodeSystems += sub.CodeSystems
		stats.Questionnaires += sub.Questionnaires
		stats.Skipped += sub.Skipped
		stats.Errors += sub.Errors
		return nil
	default:
		stats.Skipped++
		return nil
	}
	switch head.ResourceType {
	case "StructureDefinition":
		stats.Profiles++
	case "ValueSet":
		stats.ValueSets++
	case "CodeSystem":
		stats.CodeSystems++
	case "Questionnaire":
		stats.Questionnaires++
	}
	return nil
}
