package fhirpath

import (
	"fmt"
	"strings"

	"github.com/reason-healthcare/rh-sub009/value"
	"github.com/reason-healthcare/rh-sub009/walker"
)

// EvaluationError reports a failure inside the evaluator: unknown
// function, ambiguous singleton, type misuse. Validation downgrades it to
// a warning on the owning invariant rather than rejecting the instance.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return "evaluation error: " + e.Message
}

func evalErrf(format string, args ...any) *EvaluationError {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}

// Evaluate runs a parsed expression against an instance. root is the
// whole resource; focus is the current element the expression starts
// from. The result is always a flat sequence; it shares structure with
// the inputs and must be treated as read-only.
//
// Evaluation is pure: no state survives between calls, so a compiled
// expression is safe to evaluate concurrently against shared instances.
func Evaluate(expr Expr, root, focus *value.Value) (*value.Value, error) {
	ev := &evaluator{root: root}
	return ev.eval(expr, focus)
}

type evaluator struct {
	root *value.Value
}

func (ev *evaluator) eval(e Expr, focus *value.Value) (*value.Value, error) {
	switch n := e.(type) {
	case EmptyLit:
		return value.Empty(), nil
	case BoolLit:
		return value.Bool(n.Val), nil
	case IntLit:
		return value.Int(n.Val), nil
	case DecLit:
		return value.Dec(n.Val), nil
	case StrLit:
		return value.String(n.Val), nil
	case TemporalLit:
		return value.NewTemporal(n.Val), nil
	case QuantityLit:
		unit := n.Unit
		if n.Calendar {
			unit = strings.TrimSuffix(unit, "s")
		}
		return value.NewQuantity(value.Quantity{Value: n.Val, Unit: unit}), nil

	case Ident:
		return navigate(focus, n.Name), nil
	case This:
		return focus, nil
	case ExtConst:
		return ev.constant(n.Name, focus), nil
	case Paren:
		return ev.eval(n.Inner, focus)

	case Member:
		left, err := ev.eval(n.Left, focus)
		if err != nil {
			return nil, err
		}
		if n.Name == "$this" {
			return left, nil
		}
		return navigate(left, n.Name), nil

	case Index:
		left, err := ev.eval(n.Left, focus)
		if err != nil {
			return nil, err
		}
		idx, err := ev.eval(n.Index, focus)
		if err != nil {
			return nil, err
		}
		return indexInto(left, idx)

	case Unary:
		operand, err := ev.eval(n.Operand, focus)
		if err != nil {
			return nil, err
		}
		return negate(operand)

	case Binary:
		return ev.evalBinary(n, focus)

	case TypeOp:
		left, err := ev.eval(n.Left, focus)
		if err != nil {
			return nil, err
		}
		return typeOperation(left, n.Op, n.Type)

	case Call:
		return ev.evalCall(n, focus)
	}
	return nil, evalErrf("unhandled expression node %T", e)
}

// constant resolves an external constant reference.
func (ev *evaluator) constant(name string, focus *value.Value) *value.Value {
	switch name {
	case "resource", "rootResource":
		return ev.root
	case "context":
		return focus
	case "ucum":
		return value.String("http://unitsofmeasure.org")
	}
	return value.Empty()
}

// navigate resolves a member name against a focus, fanning out through
// sequences and flattening the results. An identifier naming the focus
// resource's own type returns the focus itself, so Patient.name works at
// the resource root. Choice fields resolve by prefix: "value" finds
// "valueString" when the suffixed field is present.
func navigate(v *value.Value, name string) *value.Value {
	var out []*value.Value
	for _, item := range v.Items() {
		if item.Kind() != value.KindObject {
			continue
		}
		if rt, ok := item.ResourceType(); ok && rt == name {
			out = append(out, item)
			continue
		}
		if child, ok := item.Get(name); ok {
			out = append(out, child.Items()...)
			continue
		}
		// Only a recognized type name may follow the stem, so "value"
		// resolves valueQuantity but never an unrelated field like
		// valueSet.
		for _, field := range item.Fields() {
			if len(field) > len(name) && strings.HasPrefix(field, name) &&
				walker.IsChoiceSuffix(field[len(name):]) {
				child, _ := item.Get(field)
				out = append(out, child.Items()...)
				break
			}
		}
	}
	return value.Seq(out...)
}

func indexInto(v, idx *value.Value) (*value.Value, error) {
	single, ok := idx.Singleton()
	if !ok {
		if idx.IsEmpty() {
			return value.Empty(), nil
		}
		return nil, evalErrf("index must be a single integer")
	}
	i, ok := single.AsInt()
	if !ok {
		return nil, evalErrf("index must be an integer, got %s", single.Kind())
	}
	items := v.Items()
	if i < 0 || int(i) >= len(items) {
		return value.Empty(), nil
	}
	return items[i], nil
}

func negate(v *value.Value) (*value.Value, error) {
	if v.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := v.Singleton()
	if !ok {
		return nil, evalErrf("unary minus requires a single value")
	}
	switch single.Kind() {
	case value.KindInt:
		i, _ := single.AsInt()
		return value.Int(-i), nil
	case value.KindDec:
		d, _ := single.AsDec()
		return value.Dec(d.Neg()), nil
	case value.KindQuantity:
		q, _ := single.AsQuantity()
		q.Value = q.Value.Neg()
		return value.NewQuantity(q), nil
	}
	return nil, evalErrf("cannot negate %s", single.Kind())
}

func (ev *evaluator) evalBinary(n Binary, focus *value.Value) (*value.Value, error) {
	left, err := ev.eval(n.Left, focus)
	if err != nil {
		return nil, err
	}
	right, err := ev.eval(n.Right, focus)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "and", "or", "xor", "implies":
		return logical(n.Op, left, right)
	case "=", "!=":
		eq, err := equalCollections(left, right)
		if err != nil {
			return nil, err
		}
		if n.Op == "!=" {
			return notBool(eq), nil
		}
		return eq, nil
	case "~", "!~":
		eqv := value.Bool(equivalent(left, right))
		if n.Op == "!~" {
			return notBool(eqv), nil
		}
		return eqv, nil
	case "in":
		return membership(left, right)
	case "contains":
		return membership(right, left)
	case "<", "<=", ">", ">=":
		return compare(n.Op, left, right)
	case "+", "-", "&":
		return additive(n.Op, left, right)
	case "*", "/", "div", "mod":
		return multiplicative(n.Op, left, right)
	case "|":
		return unionCollections(left, right), nil
	}
	return nil, evalErrf("unknown operator %q", n.Op)
}

// effectiveBool converts a collection to a boolean test value. A single
// boolean is itself; any other non-empty value counts as true; empty is
// unknown.
func effectiveBool(v *value.Value) (bool, bool) {
	if v.IsEmpty() {
		return false, false
	}
	if single, ok := v.Singleton(); ok {
		if b, isBool := single.AsBool(); isBool {
			return b, true
		}
	}
	return true, true
}

// logical implements the three-valued boolean operators. Empty operands
// stay undecided where the other side cannot force an answer.
func logical(op string, left, right *value.Value) (*value.Value, error) {
	a, aKnown := effectiveBool(left)
	b, bKnown := effectiveBool(right)

	switch op {
	case "and":
		if aKnown && !a || bKnown && !b {
			return value.Bool(false), nil
		}
		if aKnown && bKnown {
			return value.Bool(true), nil
		}
		return value.Empty(), nil
	case "or":
		if aKnown && a || bKnown && b {
			return value.Bool(true), nil
		}
		if aKnown && bKnown {
			return value.Bool(false), nil
		}
		return value.Empty(), nil
	case "xor":
		if aKnown && bKnown {
			return value.Bool(a != b), nil
		}
		return value.Empty(), nil
	case "implies":
		if aKnown && !a {
			return value.Bool(true), nil
		}
		if bKnown && b {
			return value.Bool(true), nil
		}
		if aKnown && a && bKnown {
			return value.Bool(b), nil
		}
		return value.Empty(), nil
	}
	return nil, evalErrf("unknown logical operator %q", op)
}

func notBool(v *value.Value) *value.Value {
	if b, ok := v.AsBool(); ok {
		return value.Bool(!b)
	}
	return value.Empty()
}

// equalCollections implements =. Empty on either side is empty. Two
// multi-element sequences compare elementwise in order; singletons
// compare directly, with temporal precision mismatches undecided.
func equalCollections(left, right *value.Value) (*value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	li, ri := left.Items(), right.Items()

	if len(li) > 1 || len(ri) > 1 {
		if len(li) != len(ri) {
			return value.Bool(false), nil
		}
		for i := range li {
			eq := singletonEqual(li[i], ri[i])
			if eq.IsEmpty() {
				return value.Empty(), nil
			}
			if b, _ := eq.AsBool(); !b {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	}
	return singletonEqual(li[0], ri[0]), nil
}

// singletonEqual compares two single values, returning a boolean or empty
// when the comparison is undecidable.
func singletonEqual(a, b *value.Value) *value.Value {
	at, aOK := coerceTemporal(a)
	bt, bOK := coerceTemporal(b)
	if aOK && bOK {
		cmp, comparable := at.Compare(bt)
		if !comparable {
			return value.Empty()
		}
		return value.Bool(cmp == 0)
	}
	return value.Bool(a.Equal(b))
}

// coerceTemporal widens strings that look like temporal literals; instance
// JSON carries dates as plain strings.
func coerceTemporal(v *value.Value) (value.Temporal, bool) {
	if t, ok := v.AsTemporal(); ok {
		return t, true
	}
	if s, ok := v.AsString(); ok && len(s) >= 4 && isDigit(s[0]) {
		if t, err := value.ParseTemporal(s); err == nil {
			return t, true
		}
	}
	return value.Temporal{}, false
}

// equivalent implements ~. Unlike =, it is total: empty ~ empty is true,
// strings compare case-insensitively, collections compare without order.
func equivalent(left, right *value.Value) bool {
	li, ri := left.Items(), right.Items()
	if len(li) != len(ri) {
		return false
	}
	used := make([]bool, len(ri))
outer:
	for _, a := range li {
		for j, b := range ri {
			if !used[j] && equivalentSingle(a, b) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func equivalentSingle(a, b *value.Value) bool {
	as, aOK := a.AsString()
	bs, bOK := b.AsString()
	if aOK && bOK {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}
	if at, ok := a.AsTemporal(); ok {
		if bt, ok := b.AsTemporal(); ok {
			cmp, comparable := at.Compare(bt)
			return comparable && cmp == 0
		}
		return false
	}
	return a.Equal(b)
}

// membership implements needle in haystack.
func membership(needle, haystack *value.Value) (*value.Value, error) {
	if needle.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := needle.Singleton()
	if !ok {
		return nil, evalErrf("left operand of membership must be a single value")
	}
	for _, item := range haystack.Items() {
		eq := singletonEqual(single, item)
		if b, ok := eq.AsBool(); ok && b {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

// compare implements the ordering operators on singletons. Empty operands
// propagate; incomparable values (mixed kinds, undecided temporal
// precision) yield empty rather than an error.
func compare(op string, left, right *value.Value) (*value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	a, aOK := left.Singleton()
	b, bOK := right.Singleton()
	if !aOK || !bOK {
		return nil, evalErrf("comparison requires a single value on each side")
	}

	var cmp int
	var comparable bool
	at, atOK := coerceTemporal(a)
	bt, btOK := coerceTemporal(b)
	if atOK && btOK && (a.Kind() == value.KindTemporal || b.Kind() == value.KindTemporal) {
		cmp, comparable = at.Compare(bt)
	} else {
		cmp, comparable = a.Cmp(b)
	}
	if !comparable {
		return value.Empty(), nil
	}

	switch op {
	case "<":
		return value.Bool(cmp < 0), nil
	case "<=":
		return value.Bool(cmp <= 0), nil
	case ">":
		return value.Bool(cmp > 0), nil
	case ">=":
		return value.Bool(cmp >= 0), nil
	}
	return nil, evalErrf("unknown comparison %q", op)
}

func additive(op string, left, right *value.Value) (*value.Value, error) {
	if op == "&" {
		return concat(left, right)
	}
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	a, aOK := left.Singleton()
	b, bOK := right.Singleton()
	if !aOK || !bOK {
		return nil, evalErrf("arithmetic requires a single value on each side")
	}

	// Temporal shift by a calendar quantity
	if t, ok := a.AsTemporal(); ok {
		q, isQ := b.AsQuantity()
		if !isQ {
			return nil, evalErrf("cannot apply %q to temporal and %s", op, b.Kind())
		}
		n := q.Value.IntPart()
		if op == "-" {
			n = -n
		}
		shifted, ok := t.Add(n, q.Unit)
		if !ok {
			return value.Empty(), nil
		}
		return value.NewTemporal(shifted), nil
	}

	// String concatenation via +
	if op == "+" {
		if as, ok := a.AsString(); ok {
			bs, ok := b.AsString()
			if !ok {
				return nil, evalErrf("cannot add string and %s", b.Kind())
			}
			return value.String(as + bs), nil
		}
	}

	// Quantity arithmetic requires agreeing units
	if aq, ok := a.AsQuantity(); ok {
		bq, isQ := b.AsQuantity()
		if !isQ {
			return nil, evalErrf("cannot apply %q to quantity and %s", op, b.Kind())
		}
		if aq.Unit != bq.Unit || aq.Code != bq.Code {
			return value.Empty(), nil
		}
		out := aq
		if op == "+" {
			out.Value = aq.Value.Add(bq.Value)
		} else {
			out.Value = aq.Value.Sub(bq.Value)
		}
		return value.NewQuantity(out), nil
	}

	// Plain numbers
	ai, aIsInt := a.AsInt()
	bi, bIsInt := b.AsInt()
	if aIsInt && bIsInt {
		if op == "+" {
			return value.Int(ai + bi), nil
		}
		return value.Int(ai - bi), nil
	}
	ad, aOK2 := a.AsDec()
	bd, bOK2 := b.AsDec()
	if !aOK2 || !bOK2 {
		return nil, evalErrf("cannot apply %q to %s and %s", op, a.Kind(), b.Kind())
	}
	if op == "+" {
		return value.Dec(ad.Add(bd)), nil
	}
	return value.Dec(ad.Sub(bd)), nil
}

// concat implements &, which treats empty as the empty string.
func concat(left, right *value.Value) (*value.Value, error) {
	as, err := stringForConcat(left)
	if err != nil {
		return nil, err
	}
	bs, err := stringForConcat(right)
	if err != nil {
		return nil, err
	}
	return value.String(as + bs), nil
}

func stringForConcat(v *value.Value) (string, error) {
	if v.IsEmpty() {
		return "", nil
	}
	single, ok := v.Singleton()
	if !ok {
		return "", evalErrf("string concatenation requires a single value")
	}
	s, err := stringify(single)
	if err != nil {
		return "", err
	}
	return s, nil
}

// stringify renders a primitive as its FHIRPath string form.
func stringify(v *value.Value) (string, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return s, nil
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			return "true", nil
		}
		return "false", nil
	case value.KindInt, value.KindDec:
		d, _ := v.AsDec()
		if i, ok := v.AsInt(); ok {
			return fmt.Sprintf("%d", i), nil
		}
		return d.String(), nil
	case value.KindTemporal:
		t, _ := v.AsTemporal()
		return t.String(), nil
	case value.KindQuantity:
		q, _ := v.AsQuantity()
		if q.Unit != "" {
			return q.Value.String() + " '" + q.Unit + "'", nil
		}
		return q.Value.String(), nil
	}
	return "", evalErrf("cannot convert %s to string", v.Kind())
}

func multiplicative(op string, left, right *value.Value) (*value.Value, error) {
	if left.IsEmpty() || right.IsEmpty() {
		return value.Empty(), nil
	}
	a, aOK := left.Singleton()
	b, bOK := right.Singleton()
	if !aOK || !bOK {
		return nil, evalErrf("arithmetic requires a single value on each side")
	}

	ad, aIsNum := a.AsDec()
	bd, bIsNum := b.AsDec()
	if !aIsNum || !bIsNum {
		return nil, evalErrf("cannot apply %q to %s and %s", op, a.Kind(), b.Kind())
	}

	switch op {
	case "*":
		ai, aIsInt := a.AsInt()
		bi, bIsInt := b.AsInt()
		if aIsInt && bIsInt {
			return value.Int(ai * bi), nil
		}
		return value.Dec(ad.Mul(bd)), nil
	case "/":
		if bd.IsZero() {
			return value.Empty(), nil
		}
		return value.Dec(ad.DivRound(bd, 16)), nil
	case "div":
		if bd.IsZero() {
			return value.Empty(), nil
		}
		return value.Int(ad.Div(bd).IntPart()), nil
	case "mod":
		if bd.IsZero() {
			return value.Empty(), nil
		}
		ai, aIsInt := a.AsInt()
		bi, bIsInt := b.AsInt()
		if aIsInt && bIsInt {
			return value.Int(ai % bi), nil
		}
		return value.Dec(ad.Mod(bd)), nil
	}
	return nil, evalErrf("unknown operator %q", op)
}

// unionCollections merges two collections removing duplicates, keeping
// first-seen order.
func unionCollections(left, right *value.Value) *value.Value {
	var out []*value.Value
	for _, item := range append(left.Items(), right.Items()...) {
		dup := false
		for _, seen := range out {
			if seen.Equal(item) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return value.Seq(out...)
}

// typeOperation implements is/as on a singleton.
func typeOperation(v *value.Value, op, typeName string) (*value.Value, error) {
	if v.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := v.Singleton()
	if !ok {
		return nil, evalErrf("%q requires a single value", op)
	}
	match := typeMatches(single, typeName)
	if op == "is" {
		return value.Bool(match), nil
	}
	if match {
		return single, nil
	}
	return value.Empty(), nil
}

// typeMatches tests a value against a type name. System and FHIR
// namespace prefixes are accepted and ignored.
func typeMatches(v *value.Value, typeName string) bool {
	name := typeName
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}

	switch strings.ToLower(name) {
	case "boolean":
		return v.Kind() == value.KindBool
	case "integer", "long", "positiveint", "unsignedint":
		return v.Kind() == value.KindInt
	case "decimal":
		return v.Kind() == value.KindDec
	case "string", "code", "uri", "url", "canonical", "id", "markdown",
		"oid", "uuid", "base64binary":
		return v.Kind() == value.KindString
	case "date":
		t, ok := v.AsTemporal()
		return ok && t.Kind == value.TemporalDate
	case "datetime", "instant":
		t, ok := v.AsTemporal()
		return ok && (t.Kind == value.TemporalDateTime || t.Kind == value.TemporalInstant)
	case "time":
		t, ok := v.AsTemporal()
		return ok && t.Kind == value.TemporalTime
	case "quantity":
		if v.Kind() == value.KindQuantity {
			return true
		}
		// Instance JSON represents Quantity as an object
		if v.Kind() == value.KindObject {
			_, hasValue := v.Get("value")
			_, hasUnit := v.Get("unit")
			_, hasCode := v.Get("code")
			return hasValue && (hasUnit || hasCode)
		}
		return false
	}

	// Complex and resource types match objects by resourceType when one
	// is declared
	if v.Kind() == value.KindObject {
		if rt, ok := v.ResourceType(); ok {
			return rt == name
		}
	}
	return false
}
