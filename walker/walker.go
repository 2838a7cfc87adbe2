// Package walker navigates parsed resources along the dotted element
// paths that compiled rulesets use. Navigation fans out over arrays so
// that rules on nested elements apply to every array item independently,
// and expands choice elements declared with an [x] suffix to whichever
// typed variants the instance carries.
package walker

import (
	"strings"

	"github.com/reason-healthcare/rh-sub009/pool"
	"github.com/reason-healthcare/rh-sub009/value"
)

// Hit is one element instance reached by navigation. Path is the
// bracketed instance path used in issue expressions, such as
// Patient.name[0].given.
type Hit struct {
	Value *value.Value
	Path  string
}

// ChoiceVariant is one concrete typed field of a choice element, such
// as deceasedBoolean for the base deceased.
type ChoiceVariant struct {
	// Key is the concrete field name in the instance.
	Key string
	// Suffix is the PascalCase type suffix taken from the key.
	Suffix string
	// TypeName is the FHIR type code the suffix stands for, lowercased
	// for primitives.
	TypeName string
	Value    *value.Value
}

// ElementsAt returns every element instance at the dotted rule path,
// fanning out over arrays at each level. The first segment names the
// resource type and matches the root unconditionally. A segment ending
// in [x] expands to all choice variants present in the instance.
func ElementsAt(root *value.Value, rulePath string) []Hit {
	segs := strings.Split(rulePath, ".")
	if len(segs) == 0 || root == nil {
		return nil
	}
	hits := []Hit{{Value: root, Path: segs[0]}}
	for _, seg := range segs[1:] {
		hits = step(hits, seg)
		if len(hits) == 0 {
			return nil
		}
	}
	return hits
}

// ParentsOf returns the instances of the path minus its final segment,
// plus that final segment. For a two-segment path the sole parent is the
// root. This is the unit cardinality checks run over: each parent
// instance gets its own occurrence count.
func ParentsOf(root *value.Value, rulePath string) ([]Hit, string) {
	idx := strings.LastIndex(rulePath, ".")
	if idx < 0 {
		return nil, ""
	}
	return ElementsAt(root, rulePath[:idx]), rulePath[idx+1:]
}

// CountIn returns the number of occurrences of the named child within
// one parent instance. Arrays count per item, a scalar counts one, and
// a [x] segment counts across all variants present.
func CountIn(parent Hit, name string) int {
	if parent.Value.Kind() != value.KindObject {
		return 0
	}
	if base, ok := strings.CutSuffix(name, "[x]"); ok {
		n := 0
		for _, cv := range ChoiceVariants(parent.Value, base) {
			n += cv.Value.Len()
		}
		return n
	}
	child, ok := parent.Value.Get(name)
	if !ok {
		return 0
	}
	return child.Len()
}

// ChoiceVariants returns the typed fields of a choice element present on
// an object, in field-name order. A field qualifies when it starts with
// the base name and the remainder is a known type suffix.
func ChoiceVariants(obj *value.Value, base string) []ChoiceVariant {
	var out []ChoiceVariant
	for _, field := range obj.Fields() {
		if len(field) <= len(base) || !strings.HasPrefix(field, base) {
			continue
		}
		suffix := field[len(base):]
		if !choiceSuffixSet[suffix] {
			continue
		}
		child, _ := obj.Get(field)
		out = append(out, ChoiceVariant{
			Key:      field,
			Suffix:   suffix,
			TypeName: variantTypeName(suffix),
			Value:    child,
		})
	}
	return out
}

// variantTypeName maps a PascalCase choice suffix to the FHIR type code
// it declares.
func variantTypeName(suffix string) string {
	if IsPrimitiveType(lowerFirst(suffix)) {
		return lowerFirst(suffix)
	}
	return suffix
}

func step(hits []Hit, seg string) []Hit {
	var out []Hit
	for _, h := range hits {
		if h.Value.Kind() != value.KindObject {
			continue
		}
		if base, ok := strings.CutSuffix(seg, "[x]"); ok {
			for _, cv := range ChoiceVariants(h.Value, base) {
				out = appendChild(out, h, cv.Key, cv.Value)
			}
			continue
		}
		child, ok := h.Value.Get(seg)
		if !ok {
			continue
		}
		out = appendChild(out, h, seg, child)
	}
	return out
}

func appendChild(out []Hit, parent Hit, key string, child *value.Value) []Hit {
	if child.Kind() == value.KindSeq {
		for i, item := range child.Items() {
			out = append(out, Hit{
				Value: item,
				Path:  pool.IndexedChildPath(parent.Path, key, i),
			})
		}
		return out
	}
	return append(out, Hit{Value: child, Path: pool.ChildPath(parent.Path, key)})
}
