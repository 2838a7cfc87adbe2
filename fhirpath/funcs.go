package fhirpath

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/reason-healthcare/rh-sub009/value"
)

// evalCall dispatches a function invocation. Functions whose arguments
// are expressions evaluated per item (where, select, all, ...) are
// handled here; everything else evaluates its arguments eagerly and goes
// through the function table. Unknown names are an EvaluationError, the
// library is closed.
func (ev *evaluator) evalCall(n Call, focus *value.Value) (*value.Value, error) {
	target := focus
	if n.Left != nil {
		var err error
		target, err = ev.eval(n.Left, focus)
		if err != nil {
			return nil, err
		}
	}

	switch n.Name {
	case "where":
		if len(n.Args) != 1 {
			return nil, evalErrf("where() requires exactly one argument")
		}
		return ev.filter(target, n.Args[0])

	case "select":
		if len(n.Args) != 1 {
			return nil, evalErrf("select() requires exactly one argument")
		}
		return ev.project(target, n.Args[0])

	case "exists":
		if len(n.Args) == 0 {
			return value.Bool(!target.IsEmpty()), nil
		}
		if len(n.Args) != 1 {
			return nil, evalErrf("exists() takes at most one argument")
		}
		filtered, err := ev.filter(target, n.Args[0])
		if err != nil {
			return nil, err
		}
		return value.Bool(!filtered.IsEmpty()), nil

	case "all":
		if len(n.Args) != 1 {
			return nil, evalErrf("all() requires exactly one argument")
		}
		for _, item := range target.Items() {
			cond, err := ev.eval(n.Args[0], item)
			if err != nil {
				return nil, err
			}
			b, known := effectiveBool(cond)
			if !known || !b {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil

	case "any":
		if len(n.Args) != 1 {
			return nil, evalErrf("any() requires exactly one argument")
		}
		filtered, err := ev.filter(target, n.Args[0])
		if err != nil {
			return nil, err
		}
		return value.Bool(!filtered.IsEmpty()), nil

	case "repeat":
		if len(n.Args) != 1 {
			return nil, evalErrf("repeat() requires exactly one argument")
		}
		return ev.repeat(target, n.Args[0])

	case "iif":
		if len(n.Args) < 2 || len(n.Args) > 3 {
			return nil, evalErrf("iif() requires two or three arguments")
		}
		cond, err := ev.eval(n.Args[0], target)
		if err != nil {
			return nil, err
		}
		b, known := effectiveBool(cond)
		if known && b {
			return ev.eval(n.Args[1], target)
		}
		if len(n.Args) == 3 {
			return ev.eval(n.Args[2], target)
		}
		return value.Empty(), nil

	case "ofType":
		name, err := typeNameArg(n.Args, "ofType")
		if err != nil {
			return nil, err
		}
		var out []*value.Value
		for _, item := range target.Items() {
			if typeMatches(item, name) {
				out = append(out, item)
			}
		}
		return value.Seq(out...), nil

	case "is", "as":
		name, err := typeNameArg(n.Args, n.Name)
		if err != nil {
			return nil, err
		}
		return typeOperation(target, n.Name, name)

	case "trace":
		// Diagnostic passthrough; arguments are ignored
		return target, nil
	}

	args := make([]*value.Value, len(n.Args))
	for i, argExpr := range n.Args {
		arg, err := ev.eval(argExpr, focus)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	fn, ok := funcTable[n.Name]
	if !ok {
		return nil, evalErrf("unknown function %q", n.Name)
	}
	return fn(target, args)
}

// filter implements where: per-item evaluation with the item as focus,
// keeping items whose condition is a definite true.
func (ev *evaluator) filter(target *value.Value, cond Expr) (*value.Value, error) {
	var out []*value.Value
	for _, item := range target.Items() {
		res, err := ev.eval(cond, item)
		if err != nil {
			return nil, err
		}
		if b, known := effectiveBool(res); known && b {
			out = append(out, item)
		}
	}
	return value.Seq(out...), nil
}

// project implements select: per-item projection, flattened.
func (ev *evaluator) project(target *value.Value, proj Expr) (*value.Value, error) {
	var out []*value.Value
	for _, item := range target.Items() {
		res, err := ev.eval(proj, item)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items()...)
	}
	return value.Seq(out...), nil
}

// repeat applies a projection until no unseen items appear.
func (ev *evaluator) repeat(target *value.Value, proj Expr) (*value.Value, error) {
	seen := target.Items()
	frontier := seen
	for len(frontier) > 0 {
		var next []*value.Value
		for _, item := range frontier {
			res, err := ev.eval(proj, item)
			if err != nil {
				return nil, err
			}
			for _, candidate := range res.Items() {
				dup := false
				for _, existing := range seen {
					if existing.Equal(candidate) {
						dup = true
						break
					}
				}
				if !dup {
					seen = append(seen, candidate)
					next = append(next, candidate)
				}
			}
		}
		frontier = next
	}
	return value.Seq(seen...), nil
}

// typeNameArg extracts a type name from an argument written as a bare
// identifier or dotted path, e.g. ofType(Quantity) or is(System.String).
func typeNameArg(args []Expr, fn string) (string, error) {
	if len(args) != 1 {
		return "", evalErrf("%s() requires exactly one type argument", fn)
	}
	switch a := args[0].(type) {
	case Ident:
		return a.Name, nil
	case StrLit:
		return a.Val, nil
	case Member:
		if left, ok := a.Left.(Ident); ok {
			return left.Name + "." + a.Name, nil
		}
	}
	return "", evalErrf("%s() requires a type specifier argument", fn)
}

type evalFunc func(target *value.Value, args []*value.Value) (*value.Value, error)

var funcTable = map[string]evalFunc{
	"empty":       fnEmpty,
	"count":       fnCount,
	"first":       fnFirst,
	"last":        fnLast,
	"tail":        fnTail,
	"skip":        fnSkip,
	"take":        fnTake,
	"single":      fnSingle,
	"distinct":    fnDistinct,
	"isDistinct":  fnIsDistinct,
	"not":         fnNot,
	"hasValue":    fnHasValue,
	"children":    fnChildren,
	"descendants": fnDescendants,

	"combine":   fnCombine,
	"union":     fnUnion,
	"intersect": fnIntersect,
	"exclude":   fnExclude,

	"allTrue":  fnAllTrue,
	"anyTrue":  fnAnyTrue,
	"allFalse": fnAllFalse,
	"anyFalse": fnAnyFalse,

	"length":     fnLength,
	"startsWith": fnStartsWith,
	"endsWith":   fnEndsWith,
	"contains":   fnContainsStr,
	"matches":    fnMatches,
	"indexOf":    fnIndexOf,
	"substring":  fnSubstring,
	"upper":      fnUpper,
	"lower":      fnLower,
	"replace":    fnReplace,
	"trim":       fnTrim,

	"toString":  fnToString,
	"toInteger": fnToInteger,
	"toDecimal": fnToDecimal,
	"toBoolean": fnToBoolean,

	"convertsToString":  converts(fnToString),
	"convertsToInteger": converts(fnToInteger),
	"convertsToDecimal": converts(fnToDecimal),
	"convertsToBoolean": converts(fnToBoolean),

	"abs":      fnAbs,
	"ceiling":  fnCeiling,
	"floor":    fnFloor,
	"round":    fnRound,
	"truncate": fnTruncate,

	"extension": fnExtension,
}

func fnEmpty(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return value.Bool(target.IsEmpty()), nil
}

func fnCount(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return value.Int(int64(len(target.Items()))), nil
}

func fnFirst(target *value.Value, _ []*value.Value) (*value.Value, error) {
	items := target.Items()
	if len(items) == 0 {
		return value.Empty(), nil
	}
	return items[0], nil
}

func fnLast(target *value.Value, _ []*value.Value) (*value.Value, error) {
	items := target.Items()
	if len(items) == 0 {
		return value.Empty(), nil
	}
	return items[len(items)-1], nil
}

func fnTail(target *value.Value, _ []*value.Value) (*value.Value, error) {
	items := target.Items()
	if len(items) <= 1 {
		return value.Empty(), nil
	}
	return value.Seq(items[1:]...), nil
}

func fnSkip(target *value.Value, args []*value.Value) (*value.Value, error) {
	n, err := intArg(args, 0, "skip")
	if err != nil {
		return nil, err
	}
	items := target.Items()
	if n >= int64(len(items)) {
		return value.Empty(), nil
	}
	if n < 0 {
		n = 0
	}
	return value.Seq(items[n:]...), nil
}

func fnTake(target *value.Value, args []*value.Value) (*value.Value, error) {
	n, err := intArg(args, 0, "take")
	if err != nil {
		return nil, err
	}
	items := target.Items()
	if n <= 0 {
		return value.Empty(), nil
	}
	if n > int64(len(items)) {
		n = int64(len(items))
	}
	return value.Seq(items[:n]...), nil
}

func fnSingle(target *value.Value, _ []*value.Value) (*value.Value, error) {
	items := target.Items()
	switch len(items) {
	case 0:
		return value.Empty(), nil
	case 1:
		return items[0], nil
	}
	return nil, evalErrf("single() requires a collection with at most one item, got %d", len(items))
}

func fnDistinct(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return unionCollections(target, value.Empty()), nil
}

func fnIsDistinct(target *value.Value, _ []*value.Value) (*value.Value, error) {
	items := target.Items()
	distinct := unionCollections(target, value.Empty())
	return value.Bool(len(distinct.Items()) == len(items)), nil
}

func fnNot(target *value.Value, _ []*value.Value) (*value.Value, error) {
	if target.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := target.Singleton()
	if !ok {
		return nil, evalErrf("not() requires a single value")
	}
	if b, isBool := single.AsBool(); isBool {
		return value.Bool(!b), nil
	}
	return value.Bool(false), nil
}

func fnHasValue(target *value.Value, _ []*value.Value) (*value.Value, error) {
	single, ok := target.Singleton()
	if !ok {
		return value.Bool(false), nil
	}
	switch single.Kind() {
	case value.KindObject, value.KindSeq, value.KindNull:
		return value.Bool(false), nil
	}
	return value.Bool(true), nil
}

func fnChildren(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return childNodes(target), nil
}

func childNodes(target *value.Value) *value.Value {
	var out []*value.Value
	for _, item := range target.Items() {
		if item.Kind() != value.KindObject {
			continue
		}
		for _, name := range item.Fields() {
			child, _ := item.Get(name)
			out = append(out, child.Items()...)
		}
	}
	return value.Seq(out...)
}

func fnDescendants(target *value.Value, _ []*value.Value) (*value.Value, error) {
	var out []*value.Value
	frontier := childNodes(target).Items()
	for len(frontier) > 0 {
		out = append(out, frontier...)
		frontier = childNodes(value.Seq(frontier...)).Items()
	}
	return value.Seq(out...), nil
}

func fnCombine(target *value.Value, args []*value.Value) (*value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf("combine() requires exactly one argument")
	}
	return value.Seq(append(target.Items(), args[0].Items()...)...), nil
}

func fnUnion(target *value.Value, args []*value.Value) (*value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf("union() requires exactly one argument")
	}
	return unionCollections(target, args[0]), nil
}

func fnIntersect(target *value.Value, args []*value.Value) (*value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf("intersect() requires exactly one argument")
	}
	var out []*value.Value
	for _, item := range unionCollections(target, value.Empty()).Items() {
		for _, other := range args[0].Items() {
			if item.Equal(other) {
				out = append(out, item)
				break
			}
		}
	}
	return value.Seq(out...), nil
}

func fnExclude(target *value.Value, args []*value.Value) (*value.Value, error) {
	if len(args) != 1 {
		return nil, evalErrf("exclude() requires exactly one argument")
	}
	var out []*value.Value
	for _, item := range target.Items() {
		excluded := false
		for _, other := range args[0].Items() {
			if item.Equal(other) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, item)
		}
	}
	return value.Seq(out...), nil
}

func boolFold(target *value.Value, want, onAll bool) (*value.Value, error) {
	for _, item := range target.Items() {
		b, ok := item.AsBool()
		if !ok {
			return nil, evalErrf("boolean aggregate requires boolean values, got %s", item.Kind())
		}
		if b == want {
			return value.Bool(!onAll), nil
		}
	}
	return value.Bool(onAll), nil
}

func fnAllTrue(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return boolFold(target, false, true)
}

func fnAnyTrue(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return boolFold(target, true, false)
}

func fnAllFalse(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return boolFold(target, true, true)
}

func fnAnyFalse(target *value.Value, _ []*value.Value) (*value.Value, error) {
	return boolFold(target, false, false)
}

// stringTarget unwraps a singleton string focus, with empty propagation.
func stringTarget(target *value.Value, fn string) (string, bool, error) {
	if target.IsEmpty() {
		return "", false, nil
	}
	single, ok := target.Singleton()
	if !ok {
		return "", false, evalErrf("%s() requires a single value", fn)
	}
	s, ok := single.AsString()
	if !ok {
		return "", false, evalErrf("%s() requires a string, got %s", fn, single.Kind())
	}
	return s, true, nil
}

func stringArg(args []*value.Value, i int, fn string) (string, error) {
	if i >= len(args) {
		return "", evalErrf("%s() missing argument %d", fn, i+1)
	}
	single, ok := args[i].Singleton()
	if !ok {
		return "", evalErrf("%s() argument must be a single string", fn)
	}
	s, ok := single.AsString()
	if !ok {
		return "", evalErrf("%s() argument must be a string, got %s", fn, single.Kind())
	}
	return s, nil
}

func intArg(args []*value.Value, i int, fn string) (int64, error) {
	if i >= len(args) {
		return 0, evalErrf("%s() missing argument %d", fn, i+1)
	}
	single, ok := args[i].Singleton()
	if !ok {
		return 0, evalErrf("%s() argument must be a single integer", fn)
	}
	n, ok := single.AsInt()
	if !ok {
		return 0, evalErrf("%s() argument must be an integer, got %s", fn, single.Kind())
	}
	return n, nil
}

func fnLength(target *value.Value, _ []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "length")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.Int(int64(utf8.RuneCountInString(s))), nil
}

func fnStartsWith(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "startsWith")
	if err != nil || !ok {
		return value.Empty(), err
	}
	prefix, err := stringArg(args, 0, "startsWith")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasPrefix(s, prefix)), nil
}

func fnEndsWith(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "endsWith")
	if err != nil || !ok {
		return value.Empty(), err
	}
	suffix, err := stringArg(args, 0, "endsWith")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasSuffix(s, suffix)), nil
}

func fnContainsStr(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "contains")
	if err != nil || !ok {
		return value.Empty(), err
	}
	sub, err := stringArg(args, 0, "contains")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.Contains(s, sub)), nil
}

func fnMatches(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "matches")
	if err != nil || !ok {
		return value.Empty(), err
	}
	pattern, err := stringArg(args, 0, "matches")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, evalErrf("matches() invalid pattern: %v", err)
	}
	return value.Bool(re.MatchString(s)), nil
}

func fnIndexOf(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "indexOf")
	if err != nil || !ok {
		return value.Empty(), err
	}
	sub, err := stringArg(args, 0, "indexOf")
	if err != nil {
		return nil, err
	}
	return value.Int(int64(strings.Index(s, sub))), nil
}

func fnSubstring(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "substring")
	if err != nil || !ok {
		return value.Empty(), err
	}
	start, err := intArg(args, 0, "substring")
	if err != nil {
		return nil, err
	}
	if start < 0 || start >= int64(len(s)) {
		return value.Empty(), nil
	}
	out := s[start:]
	if len(args) > 1 {
		length, err := intArg(args, 1, "substring")
		if err != nil {
			return nil, err
		}
		if length < 0 {
			length = 0
		}
		if length < int64(len(out)) {
			out = out[:length]
		}
	}
	return value.String(out), nil
}

func fnUpper(target *value.Value, _ []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "upper")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.String(strings.ToUpper(s)), nil
}

func fnLower(target *value.Value, _ []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "lower")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.String(strings.ToLower(s)), nil
}

func fnReplace(target *value.Value, args []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "replace")
	if err != nil || !ok {
		return value.Empty(), err
	}
	pattern, err := stringArg(args, 0, "replace")
	if err != nil {
		return nil, err
	}
	sub, err := stringArg(args, 1, "replace")
	if err != nil {
		return nil, err
	}
	return value.String(strings.ReplaceAll(s, pattern, sub)), nil
}

func fnTrim(target *value.Value, _ []*value.Value) (*value.Value, error) {
	s, ok, err := stringTarget(target, "trim")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.String(strings.TrimSpace(s)), nil
}

func fnToString(target *value.Value, _ []*value.Value) (*value.Value, error) {
	if target.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := target.Singleton()
	if !ok {
		return nil, evalErrf("toString() requires a single value")
	}
	s, err := stringify(single)
	if err != nil {
		return value.Empty(), nil
	}
	return value.String(s), nil
}

func fnToInteger(target *value.Value, _ []*value.Value) (*value.Value, error) {
	if target.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := target.Singleton()
	if !ok {
		return nil, evalErrf("toInteger() requires a single value")
	}
	switch single.Kind() {
	case value.KindInt:
		return single, nil
	case value.KindBool:
		b, _ := single.AsBool()
		if b {
			return value.Int(1), nil
		}
		return value.Int(0), nil
	case value.KindString:
		s, _ := single.AsString()
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return value.Int(i), nil
		}
	}
	return value.Empty(), nil
}

func fnToDecimal(target *value.Value, _ []*value.Value) (*value.Value, error) {
	if target.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := target.Singleton()
	if !ok {
		return nil, evalErrf("toDecimal() requires a single value")
	}
	switch single.Kind() {
	case value.KindDec:
		return single, nil
	case value.KindInt:
		d, _ := single.AsDec()
		return value.Dec(d), nil
	case value.KindBool:
		b, _ := single.AsBool()
		if b {
			return value.Dec(decimal.NewFromInt(1)), nil
		}
		return value.Dec(decimal.NewFromInt(0)), nil
	case value.KindString:
		s, _ := single.AsString()
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return value.Dec(d), nil
		}
	}
	return value.Empty(), nil
}

func fnToBoolean(target *value.Value, _ []*value.Value) (*value.Value, error) {
	if target.IsEmpty() {
		return value.Empty(), nil
	}
	single, ok := target.Singleton()
	if !ok {
		return nil, evalErrf("toBoolean() requires a single value")
	}
	switch single.Kind() {
	case value.KindBool:
		return single, nil
	case value.KindInt:
		i, _ := single.AsInt()
		switch i {
		case 1:
			return value.Bool(true), nil
		case 0:
			return value.Bool(false), nil
		}
	case value.KindString:
		s, _ := single.AsString()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "t", "yes", "1":
			return value.Bool(true), nil
		case "false", "f", "no", "0":
			return value.Bool(false), nil
		}
	}
	return value.Empty(), nil
}

// converts wraps a cast as its convertsToX predicate.
func converts(cast evalFunc) evalFunc {
	return func(target *value.Value, args []*value.Value) (*value.Value, error) {
		if target.IsEmpty() {
			return value.Empty(), nil
		}
		out, err := cast(target, args)
		if err != nil {
			return nil, err
		}
		return value.Bool(!out.IsEmpty()), nil
	}
}

// numericTarget unwraps a singleton number with empty propagation.
func numericTarget(target *value.Value, fn string) (decimal.Decimal, bool, bool, error) {
	if target.IsEmpty() {
		return decimal.Decimal{}, false, false, nil
	}
	single, ok := target.Singleton()
	if !ok {
		return decimal.Decimal{}, false, false, evalErrf("%s() requires a single value", fn)
	}
	d, ok := single.AsDec()
	if !ok {
		return decimal.Decimal{}, false, false, evalErrf("%s() requires a number, got %s", fn, single.Kind())
	}
	_, isInt := single.AsInt()
	return d, isInt, true, nil
}

func fnAbs(target *value.Value, _ []*value.Value) (*value.Value, error) {
	d, isInt, ok, err := numericTarget(target, "abs")
	if err != nil || !ok {
		return value.Empty(), err
	}
	if isInt {
		return value.Int(d.Abs().IntPart()), nil
	}
	return value.Dec(d.Abs()), nil
}

func fnCeiling(target *value.Value, _ []*value.Value) (*value.Value, error) {
	d, _, ok, err := numericTarget(target, "ceiling")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.Int(d.Ceil().IntPart()), nil
}

func fnFloor(target *value.Value, _ []*value.Value) (*value.Value, error) {
	d, _, ok, err := numericTarget(target, "floor")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.Int(d.Floor().IntPart()), nil
}

func fnRound(target *value.Value, args []*value.Value) (*value.Value, error) {
	d, _, ok, err := numericTarget(target, "round")
	if err != nil || !ok {
		return value.Empty(), err
	}
	var places int64
	if len(args) > 0 {
		places, err = intArg(args, 0, "round")
		if err != nil {
			return nil, err
		}
	}
	return value.Dec(d.Round(int32(places))), nil
}

func fnTruncate(target *value.Value, _ []*value.Value) (*value.Value, error) {
	d, _, ok, err := numericTarget(target, "truncate")
	if err != nil || !ok {
		return value.Empty(), err
	}
	return value.Int(d.IntPart()), nil
}

// fnExtension filters the focus element's extensions by url. Widely used
// in the base resource invariants.
func fnExtension(target *value.Value, args []*value.Value) (*value.Value, error) {
	url, err := stringArg(args, 0, "extension")
	if err != nil {
		return nil, err
	}
	var out []*value.Value
	for _, ext := range navigate(target, "extension").Items() {
		u, ok := ext.Get("url")
		if !ok {
			continue
		}
		if s, _ := u.AsString(); s == url {
			out = append(out, ext)
		}
	}
	return value.Seq(out...), nil
}
