// Package phase implements the validation phases: cardinality, type
// shape, terminology bindings, invariants, extensions, and slicing.
// Each phase reads rules from the compiled ruleset in the pipeline
// context and reports issues at bracket-indexed instance paths.
package phase

import (
	"strings"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/value"
)

// Phase names recorded on issues.
const (
	PhaseCardinality   = "cardinality"
	PhaseTypes         = "types"
	PhaseBinding       = "binding"
	PhaseInvariant     = "invariant"
	PhaseExtensions    = "extensions"
	PhaseExtensionForm = "extension-form"
	PhaseSlicing       = "slicing"
	PhaseStructure     = "structure"
	PhaseQuestionnaire = "questionnaire"
)

// processingSeverity is the severity for issues the validator could not
// fully decide, such as unresolvable artifacts or failed evaluations.
// Strict mode promotes them to errors.
func processingSeverity(strict bool) fv.IssueSeverity {
	if strict {
		return fv.SeverityError
	}
	return fv.SeverityWarning
}

// codingPair holds one system/code candidate extracted from a bound
// element.
type codingPair struct {
	System string
	Code   string
}

// extractCodings pulls the system/code pairs carried by a bound element.
// A primitive code contributes a codeless pair, a Coding contributes
// one pair, and a CodeableConcept contributes one pair per coding.
func extractCodings(v *value.Value) []codingPair {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return []codingPair{{Code: s}}
	case value.KindObject:
		if coding, ok := v.Get("coding"); ok {
			var out []codingPair
			for _, item := range coding.Items() {
				out = append(out, extractCodings(item)...)
			}
			return out
		}
		return codingFields(v)
	default:
		return nil
	}
}

func codingFields(v *value.Value) []codingPair {
	code, ok := v.Get("code")
	if !ok {
		return nil
	}
	c, _ := code.AsString()
	var sys string
	if system, ok := v.Get("system"); ok {
		sys, _ = system.AsString()
	}
	return []codingPair{{System: sys, Code: c}}
}

// fieldString reads a string field from an object, navigating a dotted
// relative path. The empty path reads the value itself.
func fieldString(v *value.Value, rel string) (string, bool) {
	cur := v
	if rel != "" && rel != "$this" {
		for _, seg := range strings.Split(rel, ".") {
			child, ok := cur.Get(seg)
			if !ok {
				return "", false
			}
			if item, ok := child.Singleton(); ok {
				cur = item
			} else {
				cur = child
			}
		}
	}
	return cur.AsString()
}
