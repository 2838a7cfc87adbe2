package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reason-healthcare/rh-sub009/cache"
	"github.com/reason-healthcare/rh-sub009/fhirpath"
	"github.com/reason-healthcare/rh-sub009/service"
)

// DefaultCacheSize bounds the compiled ruleset cache when no size is
// configured.
const DefaultCacheSize = 256

// Compiler turns snapshots into rulesets, memoizing by profile URL and
// version. Safe for concurrent use; cached rulesets are shared.
type Compiler struct {
	cache *cache.Cache[string, *Ruleset]
}

// New creates a compiler with a bounded ruleset cache.
func New(cacheSize int) *Compiler {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Compiler{cache: cache.New[string, *Ruleset](cacheSize)}
}

// Compile returns the ruleset for a profile, computing and caching it on
// first use. Failed compilations are not cached.
func (c *Compiler) Compile(sd *service.StructureDefinition) (*Ruleset, error) {
	if sd == nil {
		return nil, fmt.Errorf("nil profile")
	}
	key := sd.URL + "|" + sd.Version
	return c.cache.GetOrSetErr(key, func() (*Ruleset, error) {
		return compile(sd)
	})
}

// ClearCache drops every cached ruleset.
func (c *Compiler) ClearCache() {
	c.cache.Clear()
}

// CacheStats reports ruleset cache counters.
func (c *Compiler) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// compile is the single pass over the snapshot. Element order decides
// rule order, so rulesets compare equal across runs.
func compile(sd *service.StructureDefinition) (*Ruleset, error) {
	elements := sd.Elements()
	if len(elements) == 0 {
		return nil, fmt.Errorf("profile %s has no snapshot", sd.URL)
	}

	rs := &Ruleset{URL: sd.URL, Version: sd.Version, Type: sd.Type}
	seen := map[string]bool{}
	emit := func(key string) bool {
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	}

	var slicing *slicingState
	for i := range elements {
		ed := &elements[i]
		if ed.Path == "" {
			return nil, fmt.Errorf("profile %s: element %d has no path", sd.URL, i)
		}
		isRoot := !strings.Contains(ed.Path, ".")

		member := false
		if slicing != nil {
			closed := false
			closed, member = slicing.observe(ed)
			if closed {
				rs.Slicings = append(rs.Slicings, slicing.finish())
				slicing = nil
			}
		}

		if ed.Slicing != nil && !isRoot && slicing == nil {
			if isExtensionElement(ed.Path) {
				// Extension arrays slice by url; dedicated extension
				// rules cover them
			} else if emit("slicing|" + ed.Path) {
				slicing = newSlicingState(ed)
			}
		}

		if rule, ok := extensionRule(ed); ok {
			if emit("extension|" + rule.Path + "|" + rule.URL) {
				rs.Extensions = append(rs.Extensions, rule)
			}
			continue
		}

		// Slice member elements carry per-slice bounds, not element
		// cardinality

		if !isRoot && !member && ed.SliceName == "" {
			if card, ok := cardinalityRule(ed); ok {
				if emit(fmt.Sprintf("cardinality|%s|%d..%d", card.Path, card.Min, card.Max)) {
					rs.Cardinality = append(rs.Cardinality, card)
				}
			}
			if len(ed.Types) > 0 {
				codes := typeCodes(ed.Types)
				if emit("type|" + ed.Path + "|" + strings.Join(codes, ",")) {
					rs.Types = append(rs.Types, TypeRule{Path: ed.Path, Codes: codes})
				}
			}
			if b := bindingRule(ed); b != nil {
				if emit("binding|" + b.Path + "|" + b.ValueSet + "|" + b.Strength) {
					rs.Bindings = append(rs.Bindings, *b)
				}
			}
		}

		for _, con := range ed.Constraints {
			inv := invariantRule(ed.Path, con)
			if emit("invariant|" + inv.Path + "|" + inv.Key) {
				rs.Invariants = append(rs.Invariants, inv)
			}
		}
	}
	if slicing != nil {
		rs.Slicings = append(rs.Slicings, slicing.finish())
	}
	return rs, nil
}

// cardinalityRule emits a rule only for constraining bounds: min > 0 or
// a finite max.
func cardinalityRule(ed *service.ElementDefinition) (CardinalityRule, bool) {
	max, ok := parseMax(ed.Max)
	if !ok {
		return CardinalityRule{}, false
	}
	if ed.Min <= 0 && max == Unbounded {
		return CardinalityRule{}, false
	}
	return CardinalityRule{Path: ed.Path, Min: ed.Min, Max: max}, true
}

func parseMax(max string) (int, bool) {
	switch max {
	case "":
		return 0, false
	case "*":
		return Unbounded, true
	}
	n, err := strconv.Atoi(max)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func typeCodes(types []service.TypeRef) []string {
	codes := make([]string, 0, len(types))
	seen := map[string]bool{}
	for _, t := range types {
		if t.Code == "" || seen[t.Code] {
			continue
		}
		seen[t.Code] = true
		codes = append(codes, t.Code)
	}
	return codes
}

// bindingRule compiles required and extensible bindings. Preferred and
// example strengths never fail validation, so they are dropped here.
func bindingRule(ed *service.ElementDefinition) *BindingRule {
	b := ed.Binding
	if b == nil || b.ValueSet == "" {
		return nil
	}
	if b.Strength != "required" && b.Strength != "extensible" {
		return nil
	}
	url, version := splitCanonical(b.ValueSet)
	return &BindingRule{Path: ed.Path, ValueSet: url, Version: version, Strength: b.Strength}
}

// splitCanonical separates a versioned canonical "url|version".
func splitCanonical(canonical string) (string, string) {
	if i := strings.LastIndexByte(canonical, '|'); i >= 0 {
		return canonical[:i], canonical[i+1:]
	}
	return canonical, ""
}

// invariantRule parses the constraint expression eagerly. Expressions
// that fail to parse, or XPath-only constraints, compile to an
// unverifiable marker instead of breaking the profile.
func invariantRule(path string, con service.Constraint) InvariantRule {
	inv := InvariantRule{
		Path:     path,
		Key:      con.Key,
		Severity: normalizeSeverity(con.Severity),
		Source:   con.Expression,
		Human:    con.Human,
	}
	if con.Expression == "" {
		inv.Unverifiable = true
		inv.ParseErr = "no path expression"
		return inv
	}
	expr, err := fhirpath.Parse(con.Expression)
	if err != nil {
		inv.Unverifiable = true
		inv.ParseErr = err.Error()
		return inv
	}
	inv.Expr = expr
	return inv
}

func normalizeSeverity(s string) string {
	if s == "error" {
		return "error"
	}
	return "warning"
}

// extensionRule recognizes a named extension slice: an extension element
// whose type carries a profile URL.
func extensionRule(ed *service.ElementDefinition) (ExtensionRule, bool) {
	if ed.SliceName == "" || !isExtensionElement(ed.Path) {
		return ExtensionRule{}, false
	}
	var url string
	for _, t := range ed.Types {
		if t.Code == "Extension" && len(t.Profile) > 0 {
			url = t.Profile[0]
			break
		}
	}
	if url == "" {
		return ExtensionRule{}, false
	}
	max, ok := parseMax(ed.Max)
	if !ok {
		max = Unbounded
	}
	parent := strings.TrimSuffix(strings.TrimSuffix(ed.Path, ".extension"), ".modifierExtension")
	return ExtensionRule{
		Path:      parent,
		URL:       url,
		SliceName: ed.SliceName,
		Min:       ed.Min,
		Max:       max,
	}, true
}

func isExtensionElement(path string) bool {
	return strings.HasSuffix(path, ".extension") || strings.HasSuffix(path, ".modifierExtension")
}

// slicingState accumulates one slicing rule while the pass walks the
// slice member elements that follow the sliced element.
type slicingState struct {
	rule    SlicingRule
	current *SliceDef
}

func newSlicingState(ed *service.ElementDefinition) *slicingState {
	return &slicingState{
		rule: SlicingRule{
			Path:           ed.Path,
			Discriminators: ed.Slicing.Discriminator,
			Rules:          ed.Slicing.Rules,
			Ordered:        ed.Slicing.Ordered,
		},
	}
}

// observe feeds the next element to the slicing under construction.
// closed reports that the element falls outside the sliced subtree,
// which finalizes the rule; member reports that the element defines a
// slice or belongs to one (slice members are marked ":" in their ID, so
// ordinary children of the sliced element still compile normally).
func (s *slicingState) observe(ed *service.ElementDefinition) (closed, member bool) {
	if ed.Path != s.rule.Path && !strings.HasPrefix(ed.Path, s.rule.Path+".") {
		return true, false
	}

	if ed.Path == s.rule.Path && ed.SliceName != "" {
		max, ok := parseMax(ed.Max)
		if !ok {
			max = Unbounded
		}
		s.rule.Slices = append(s.rule.Slices, SliceDef{
			Name:   ed.SliceName,
			Min:    ed.Min,
			Max:    max,
			Values: map[string]string{},
			Exists: map[string]bool{},
		})
		s.current = &s.rule.Slices[len(s.rule.Slices)-1]
		for _, t := range ed.Types {
			if t.Code != "" {
				s.current.Types = append(s.current.Types, t.Code)
			}
		}
		return false, true
	}

	if s.current != nil && strings.Contains(ed.ID, ":") && ed.Path != s.rule.Path {
		rel := ed.Path[len(s.rule.Path)+1:]
		if v, ok := ed.FixedValue(); ok {
			s.current.Values[rel] = v
		} else if c := patternCoding(ed); c != nil {
			s.current.Values[rel] = c.System + "|" + c.Code
		}
		if ed.Min > 0 {
			s.current.Exists[rel] = true
		} else if ed.Max == "0" {
			s.current.Exists[rel] = false
		}
		return false, true
	}

	return false, false
}

func patternCoding(ed *service.ElementDefinition) *service.Coding {
	if ed.PatternCoding != nil {
		return ed.PatternCoding
	}
	if ed.PatternCodeableConcept != nil && len(ed.PatternCodeableConcept.Coding) > 0 {
		return &ed.PatternCodeableConcept.Coding[0]
	}
	return nil
}

func (s *slicingState) finish() SlicingRule {
	return s.rule
}
