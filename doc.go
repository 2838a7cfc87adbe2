// Package fhirvalidator provides rule-driven validation of FHIR R4 resources
// against profiles (StructureDefinition snapshots).
//
// The validator consumes a resource instance as JSON, a profile identified by
// canonical URL, and supporting artifacts (profiles, ValueSets, CodeSystems,
// Questionnaires) supplied through a pluggable resolver. It produces a
// structured outcome listing issues (severity, code, human message, path).
//
// # Quick Start
//
//	import (
//	    fv "github.com/reason-healthcare/rh-sub009"
//	    "github.com/reason-healthcare/rh-sub009/engine"
//	    "github.com/reason-healthcare/rh-sub009/registry"
//	)
//
//	reg := registry.New()
//	reg.LoadBytes(profileJSON) // StructureDefinitions, ValueSets, CodeSystems
//
//	validator := engine.New(reg)
//
//	result, err := validator.Validate(ctx, resourceJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if result.HasErrors() {
//	    for _, issue := range result.Errors() {
//	        fmt.Println(issue.Diagnostics)
//	    }
//	}
//	result.Release()
//
// # Architecture
//
// Validation runs as a fixed sequence of passes over a dynamic value tree:
//
//   - Cardinality: min/max occurrence checks, per array item where a rule path
//     crosses an array boundary
//   - Types: JSON shape against permitted type codes, choice ([x]) expansion
//     and mutual exclusion
//   - Binding: coded values against ValueSet bindings (required/extensible)
//   - Invariants: path-expression constraints evaluated by the built-in
//     FHIRPath-subset evaluator
//   - Extensions and Slicing: profile extension slices and discriminated
//     array slices
//
// Profiles are compiled once into a compact rule set and cached (LRU, keyed by
// canonical URL); ValueSet expansions are memoized. Both caches use interior
// synchronization, so a single Validator is safe for concurrent use and for
// parallel batch validation through the worker package.
//
// A malformed profile rule never rejects a valid instance: parser and
// evaluator failures downgrade to warnings or information.
package fhirvalidator
