// Package compiler transforms profile snapshots into the compact rule
// tables the validation engine enforces. Compilation is a single ordered
// pass over the element list, deduplicated, deterministic, and cached
// per profile URL.
package compiler

import (
	"github.com/reason-healthcare/rh-sub009/fhirpath"
	"github.com/reason-healthcare/rh-sub009/service"
)

// Unbounded is the Max of a rule whose element allows any number of
// repetitions.
const Unbounded = -1

// CardinalityRule bounds how many values may appear at a path.
type CardinalityRule struct {
	Path string
	Min  int
	Max  int
}

// TypeRule lists the permitted type codes at a path. Choice paths keep
// the [x] sentinel; the engine expands it at enforcement time.
type TypeRule struct {
	Path  string
	Codes []string
}

// BindingRule ties the coded values at a path to a ValueSet. Only
// required and extensible strengths compile to rules.
type BindingRule struct {
	Path     string
	ValueSet string
	Version  string
	Strength string
}

// InvariantRule is a compiled boolean constraint. Expr is nil when the
// source expression did not parse; the engine then reports the rule as
// unverifiable once, as a warning.
type InvariantRule struct {
	Path         string
	Key          string
	Severity     string
	Source       string
	Human        string
	Expr         fhirpath.Expr
	Unverifiable bool
	ParseErr     string
}

// ExtensionRule bounds one extension URL at a path.
type ExtensionRule struct {
	Path      string
	URL       string
	SliceName string
	Min       int
	Max       int
}

// SlicingRule partitions the array at Path into named slices.
type SlicingRule struct {
	Path           string
	Discriminators []service.Discriminator
	Rules          string
	Ordered        bool
	Slices         []SliceDef
}

// SliceDef is one named slice with its matching criteria. Values maps a
// discriminator path (relative to the array item) to the fixed or
// pattern value that identifies the slice; codings are encoded as
// "system|code". Exists maps a path to required presence. Types lists
// type codes for type discriminators.
type SliceDef struct {
	Name   string
	Min    int
	Max    int
	Values map[string]string
	Exists map[string]bool
	Types  []string
}

// Ruleset is the compiled shape of one profile. Immutable after
// compilation; shared between concurrent validations.
type Ruleset struct {
	URL     string
	Version string
	Type    string

	Cardinality []CardinalityRule
	Types       []TypeRule
	Bindings    []BindingRule
	Invariants  []InvariantRule
	Extensions  []ExtensionRule
	Slicings    []SlicingRule
}

// Empty reports whether the ruleset constrains anything.
func (rs *Ruleset) Empty() bool {
	return len(rs.Cardinality) == 0 && len(rs.Types) == 0 && len(rs.Bindings) == 0 &&
		len(rs.Invariants) == 0 && len(rs.Extensions) == 0 && len(rs.Slicings) == 0
}

// Len returns the total rule count.
func (rs *Ruleset) Len() int {
	return len(rs.Cardinality) + len(rs.Types) + len(rs.Bindings) +
		len(rs.Invariants) + len(rs.Extensions) + len(rs.Slicings)
}
