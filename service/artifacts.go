// Package service defines the conformance artifact model and the small
// fetch interfaces the validation core consumes. Artifacts are decoded
// from their FHIR JSON representation and treated as immutable once
// loaded; resolvers lend shared views to the compiler and the
// terminology engine.
package service

// StructureDefinition is a profile: a named, versioned description of
// how a resource is structured and constrained. Validation runs against
// the snapshot element list.
type StructureDefinition struct {
	ResourceType   string       `json:"resourceType"`
	URL            string       `json:"url"`
	Version        string       `json:"version"`
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Kind           string       `json:"kind"`
	Abstract       bool         `json:"abstract"`
	BaseDefinition string       `json:"baseDefinition"`
	FHIRVersion    string       `json:"fhirVersion"`
	Snapshot       *ElementList `json:"snapshot"`
	Differential   *ElementList `json:"differential"`
}

// ElementList holds the element definitions of a snapshot or differential.
type ElementList struct {
	Element []ElementDefinition `json:"element"`
}

// Elements returns the snapshot element list, or nil when the profile
// carries no snapshot.
func (sd *StructureDefinition) Elements() []ElementDefinition {
	if sd == nil || sd.Snapshot == nil {
		return nil
	}
	return sd.Snapshot.Element
}

// ElementDefinition is one row of a snapshot, keyed by dotted path.
// Choice elements keep the [x] sentinel in their path.
type ElementDefinition struct {
	ID               string       `json:"id"`
	Path             string       `json:"path"`
	SliceName        string       `json:"sliceName"`
	Min              int          `json:"min"`
	Max              string       `json:"max"`
	Types            []TypeRef    `json:"type"`
	Binding          *Binding     `json:"binding"`
	Constraints      []Constraint `json:"constraint"`
	Slicing          *Slicing     `json:"slicing"`
	ContentReference string       `json:"contentReference"`

	// Fixed and pattern values, limited to the carriers slice
	// discriminators use in practice.
	FixedString            *string          `json:"fixedString"`
	FixedCode              *string          `json:"fixedCode"`
	FixedURI               *string          `json:"fixedUri"`
	PatternString          *string          `json:"patternString"`
	PatternCode            *string          `json:"patternCode"`
	PatternURI             *string          `json:"patternUri"`
	PatternCoding          *Coding          `json:"patternCoding"`
	PatternCodeableConcept *CodeableConcept `json:"patternCodeableConcept"`
}

// FixedValue returns the element's fixed or pattern primitive, if any.
func (ed *ElementDefinition) FixedValue() (string, bool) {
	for _, p := range []*string{
		ed.FixedString, ed.FixedCode, ed.FixedURI,
		ed.PatternString, ed.PatternCode, ed.PatternURI,
	} {
		if p != nil {
			return *p, true
		}
	}
	return "", false
}

// CodeableConcept is a set of codings with optional text.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text"`
}

// TypeRef is one permitted type of an element.
type TypeRef struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile"`
	TargetProfile []string `json:"targetProfile"`
}

// Binding associates a coded element with a ValueSet at a strength.
type Binding struct {
	Strength    string `json:"strength"`
	ValueSet    string `json:"valueSet"`
	Description string `json:"description"`
}

// Constraint is an invariant: a boolean path expression with a key,
// severity, and human-readable text.
type Constraint struct {
	Key        string `json:"key"`
	Severity   string `json:"severity"`
	Human      string `json:"human"`
	Expression string `json:"expression"`
	XPath      string `json:"xpath"`
}

// Slicing describes how an array element is partitioned into slices.
type Slicing struct {
	Discriminator []Discriminator `json:"discriminator"`
	Ordered       bool            `json:"ordered"`
	Rules         string          `json:"rules"`
}

// Discriminator tells slice matching which aspect of an item to inspect.
type Discriminator struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ValueSet defines a set of (system, code) pairs, either by enumeration
// (extensional) or by rule (intensional).
type ValueSet struct {
	ResourceType string   `json:"resourceType"`
	URL          string   `json:"url"`
	Version      string   `json:"version"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Compose      *Compose `json:"compose"`
}

// Compose holds the include and exclude entries of a ValueSet.
type Compose struct {
	Include []ComposeEntry `json:"include"`
	Exclude []ComposeEntry `json:"exclude"`
}

// ComposeEntry is one include or exclude component: an enumerated
// concept list, a whole-system wildcard, a reference to other ValueSets,
// or an intensional filter.
type ComposeEntry struct {
	System   string       `json:"system"`
	Version  string       `json:"version"`
	Concept  []ConceptRef `json:"concept"`
	ValueSet []string     `json:"valueSet"`
	Filter   []Filter     `json:"filter"`
}

// Intensional reports whether the entry requires terminology knowledge
// beyond enumeration.
func (e *ComposeEntry) Intensional() bool {
	return len(e.Filter) > 0
}

// ConceptRef is one enumerated code.
type ConceptRef struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Filter is an intensional selection rule over a CodeSystem.
type Filter struct {
	Property string `json:"property"`
	Op       string `json:"op"`
	Value    string `json:"value"`
}

// CodeSystem is an authoritative list of codes under a canonical URL.
// Concepts may nest.
type CodeSystem struct {
	ResourceType string    `json:"resourceType"`
	URL          string    `json:"url"`
	Version      string    `json:"version"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Content      string    `json:"content"`
	Concept      []Concept `json:"concept"`
}

// Concept is one code in a CodeSystem, with optional children.
type Concept struct {
	Code    string    `json:"code"`
	Display string    `json:"display"`
	Concept []Concept `json:"concept"`
}

// Contains reports whether code appears in the CodeSystem, searching
// nested concepts. A CodeSystem with content "not-present" enumerates
// nothing and answers false for every code.
func (cs *CodeSystem) Contains(code string) bool {
	return conceptContains(cs.Concept, code)
}

func conceptContains(concepts []Concept, code string) bool {
	for i := range concepts {
		if concepts[i].Code == code {
			return true
		}
		if conceptContains(concepts[i].Concept, code) {
			return true
		}
	}
	return false
}

// Questionnaire is a structured form definition used to validate
// QuestionnaireResponse instances.
type Questionnaire struct {
	ResourceType string              `json:"resourceType"`
	URL          string              `json:"url"`
	Version      string              `json:"version"`
	Name         string              `json:"name"`
	Status       string              `json:"status"`
	Item         []QuestionnaireItem `json:"item"`
}

// QuestionnaireItem is one question or group. Items nest.
type QuestionnaireItem struct {
	LinkID       string              `json:"linkId"`
	Text         string              `json:"text"`
	Type         string              `json:"type"`
	Required     bool                `json:"required"`
	Repeats      bool                `json:"repeats"`
	MaxLength    int                 `json:"maxLength"`
	AnswerOption []AnswerOption      `json:"answerOption"`
	Item         []QuestionnaireItem `json:"item"`
	Extension    []Extension         `json:"extension"`
}

// AnswerOption is one permitted answer for a choice item.
type AnswerOption struct {
	ValueCoding  *Coding `json:"valueCoding"`
	ValueString  *string `json:"valueString"`
	ValueInteger *int    `json:"valueInteger"`
	ValueDate    *string `json:"valueDate"`
}

// Coding is a (system, code) pair with an optional display.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Extension carries a small subset of extension values used by
// questionnaire bounds (minValue, maxValue, minLength).
type Extension struct {
	URL          string   `json:"url"`
	ValueInteger *int     `json:"valueInteger"`
	ValueDecimal *float64 `json:"valueDecimal"`
	ValueString  *string  `json:"valueString"`
}
