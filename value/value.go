// Package value implements the dynamic value tree the validator and the
// path evaluator operate on.
//
// A Value is a tagged union over null, boolean, integer, decimal, string,
// temporal, quantity, object, and sequence. Instances parsed from JSON and
// evaluator intermediates share this one representation. Decimals keep
// their significant digits, so 1.0 and 1.00 render differently even though
// they compare equal numerically. Sequences are always flat; constructors
// splice nested sequences in place.
package value

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDec
	KindString
	KindTemporal
	KindQuantity
	KindObject
	KindSeq
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindDec:
		return "decimal"
	case KindString:
		return "string"
	case KindTemporal:
		return "temporal"
	case KindQuantity:
		return "quantity"
	case KindObject:
		return "object"
	case KindSeq:
		return "sequence"
	default:
		return "unknown"
	}
}

// Quantity is a measured amount with an optional unit.
type Quantity struct {
	Value  decimal.Decimal
	Unit   string
	System string
	Code   string
}

// Value is an immutable node in the value tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    decimal.Decimal
	s    string
	t    Temporal
	q    Quantity
	obj  map[string]*Value
	seq  []*Value
}

var nullValue = &Value{kind: KindNull}

// Null returns the null value.
func Null() *Value { return nullValue }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) *Value { return &Value{kind: KindInt, i: i} }

// Dec returns a decimal value.
func Dec(d decimal.Decimal) *Value { return &Value{kind: KindDec, d: d} }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, s: s} }

// NewTemporal returns a temporal value.
func NewTemporal(t Temporal) *Value { return &Value{kind: KindTemporal, t: t} }

// NewQuantity returns a quantity value.
func NewQuantity(q Quantity) *Value { return &Value{kind: KindQuantity, q: q} }

// Object returns an object value. The map is owned by the Value after the
// call and must not be mutated.
func Object(fields map[string]*Value) *Value {
	return &Value{kind: KindObject, obj: fields}
}

// Seq returns a flat sequence. Nested sequences in items are spliced, and
// nulls from splicing are kept as elements.
func Seq(items ...*Value) *Value {
	flat := make([]*Value, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if it.kind == KindSeq {
			flat = append(flat, it.seq...)
			continue
		}
		flat = append(flat, it)
	}
	return &Value{kind: KindSeq, seq: flat}
}

// Empty returns the empty sequence.
func Empty() *Value { return &Value{kind: KindSeq} }

// Kind returns the variant tag.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is null.
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// IsEmpty reports whether the value is null or an empty sequence.
func (v *Value) IsEmpty() bool {
	if v.IsNull() {
		return true
	}
	return v.kind == KindSeq && len(v.seq) == 0
}

// AsBool returns the boolean payload.
func (v *Value) AsBool() (bool, bool) {
	if v == nil || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload.
func (v *Value) AsInt() (int64, bool) {
	if v == nil || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsDec returns the decimal payload. Integers convert.
func (v *Value) AsDec() (decimal.Decimal, bool) {
	if v == nil {
		return decimal.Decimal{}, false
	}
	switch v.kind {
	case KindDec:
		return v.d, true
	case KindInt:
		return decimal.NewFromInt(v.i), true
	}
	return decimal.Decimal{}, false
}

// AsString returns the string payload.
func (v *Value) AsString() (string, bool) {
	if v == nil || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsTemporal returns the temporal payload.
func (v *Value) AsTemporal() (Temporal, bool) {
	if v == nil || v.kind != KindTemporal {
		return Temporal{}, false
	}
	return v.t, true
}

// AsQuantity returns the quantity payload.
func (v *Value) AsQuantity() (Quantity, bool) {
	if v == nil || v.kind != KindQuantity {
		return Quantity{}, false
	}
	return v.q, true
}

// Get returns the named field of an object. Missing fields and non-object
// receivers report false; callers collapse that to the empty sequence.
func (v *Value) Get(name string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	child, ok := v.obj[name]
	return child, ok
}

// Fields returns the object's field names in sorted order.
func (v *Value) Fields() []string {
	if v == nil || v.kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(v.obj))
	for name := range v.obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Index returns the i-th element of a sequence.
func (v *Value) Index(i int) (*Value, bool) {
	if v == nil || v.kind != KindSeq || i < 0 || i >= len(v.seq) {
		return nil, false
	}
	return v.seq[i], true
}

// Len returns the sequence length, 0 for null, and 1 for anything else.
func (v *Value) Len() int {
	if v.IsNull() {
		return 0
	}
	if v.kind == KindSeq {
		return len(v.seq)
	}
	return 1
}

// Items returns the value as a flat slice. A non-sequence value is a
// singleton, null is empty. This is the singleton-flattening boundary:
// a single element and a one-element sequence are interchangeable.
func (v *Value) Items() []*Value {
	if v.IsNull() {
		return nil
	}
	if v.kind == KindSeq {
		return v.seq
	}
	return []*Value{v}
}

// Singleton returns the sole element of the value, collapsing one-element
// sequences. It reports false for empty or multi-element values.
func (v *Value) Singleton() (*Value, bool) {
	items := v.Items()
	if len(items) != 1 {
		return nil, false
	}
	return items[0], true
}

// ResourceType returns the resourceType field of an object, if present.
func (v *Value) ResourceType() (string, bool) {
	rt, ok := v.Get("resourceType")
	if !ok {
		return "", false
	}
	return rt.AsString()
}

// Equal reports structural, precision-aware equality. Integers and
// decimals compare numerically. Temporals with different precisions are
// never Equal; use Temporal.Compare for the three-valued form.
func (v *Value) Equal(o *Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}

	// Numeric cross-kind comparison
	if (v.kind == KindInt || v.kind == KindDec) && (o.kind == KindInt || o.kind == KindDec) {
		vd, _ := v.AsDec()
		od, _ := o.AsDec()
		return vd.Equal(od)
	}

	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindTemporal:
		eq, comparable := v.t.Compare(o.t)
		return comparable && eq == 0
	case KindQuantity:
		return v.q.Value.Equal(o.q.Value) && v.q.Unit == o.q.Unit &&
			v.q.System == o.q.System && v.q.Code == o.q.Code
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for name, child := range v.obj {
			other, ok := o.obj[name]
			if !ok || !child.Equal(other) {
				return false
			}
		}
		return true
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i, child := range v.seq {
			if !child.Equal(o.seq[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Cmp orders two values within a primitive kind. It reports false when the
// values are not comparable, including temporals whose precisions disagree
// without deciding the order.
func (v *Value) Cmp(o *Value) (int, bool) {
	if v.IsNull() || o.IsNull() {
		return 0, false
	}

	if (v.kind == KindInt || v.kind == KindDec) && (o.kind == KindInt || o.kind == KindDec) {
		vd, _ := v.AsDec()
		od, _ := o.AsDec()
		return vd.Cmp(od), true
	}

	if v.kind != o.kind {
		return 0, false
	}

	switch v.kind {
	case KindString:
		return strings.Compare(v.s, o.s), true
	case KindTemporal:
		return v.t.Compare(o.t)
	case KindQuantity:
		if v.q.Code != o.q.Code || v.q.System != o.q.System {
			return 0, false
		}
		return v.q.Value.Cmp(o.q.Value), true
	}
	return 0, false
}

// String renders the value for diagnostics. Decimals keep their original
// significant digits.
func (v *Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v *Value) render(sb *strings.Builder) {
	if v.IsNull() {
		sb.WriteString("null")
		return
	}
	switch v.kind {
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindDec:
		sb.WriteString(v.d.String())
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindTemporal:
		sb.WriteString("@" + v.t.String())
	case KindQuantity:
		sb.WriteString(v.q.Value.String())
		if v.q.Unit != "" {
			sb.WriteString(" '" + v.q.Unit + "'")
		} else if v.q.Code != "" {
			sb.WriteString(" '" + v.q.Code + "'")
		}
	case KindObject:
		sb.WriteByte('{')
		for i, name := range v.Fields() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(name))
			sb.WriteString(": ")
			v.obj[name].render(sb)
		}
		sb.WriteByte('}')
	case KindSeq:
		sb.WriteByte('[')
		for i, child := range v.seq {
			if i > 0 {
				sb.WriteString(", ")
			}
			child.render(sb)
		}
		sb.WriteByte(']')
	}
}
