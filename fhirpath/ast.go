// Package fhirpath implements the path expression language used by
// profile invariants: parsing, a renderable AST, and a pure evaluator
// over the dynamic value model.
//
// The surface is the subset of FHIRPath that real R4 invariants use:
// member access, indexing, function calls, boolean and arithmetic
// operators, type tests, unions, and literals including dates, times,
// and quantities. Parsing and evaluation are separate so invariants can
// be compiled once per profile and evaluated many times.
package fhirpath

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/reason-healthcare/rh-sub009/value"
)

// Expr is a parsed expression node. Render reproduces a source form that
// parses back to the same tree.
type Expr interface {
	render(sb *strings.Builder)
}

// Render returns the source form of an expression.
func Render(e Expr) string {
	var sb strings.Builder
	e.render(&sb)
	return sb.String()
}

// EmptyLit is the {} literal.
type EmptyLit struct{}

// BoolLit is true or false.
type BoolLit struct {
	Val bool
}

// IntLit is an integer literal.
type IntLit struct {
	Val int64
}

// DecLit is a decimal literal. Significant digits are preserved.
type DecLit struct {
	Val decimal.Decimal
}

// StrLit is a single-quoted string literal.
type StrLit struct {
	Val string
}

// TemporalLit is a date, dateTime, or time literal prefixed by @.
type TemporalLit struct {
	Val value.Temporal
}

// QuantityLit is a number with a unit: either a quoted UCUM unit
// (5 'mg') or a bare calendar-duration keyword (6 months).
type QuantityLit struct {
	Val      decimal.Decimal
	Unit     string
	Calendar bool
}

// Ident is a bare identifier resolved against the current focus.
type Ident struct {
	Name string
}

// This is the $this reference.
type This struct{}

// ExtConst is an external constant reference such as %resource.
type ExtConst struct {
	Name string
}

// Member is member access: left.name.
type Member struct {
	Left Expr
	Name string
}

// Index is subscripting: left[index].
type Index struct {
	Left  Expr
	Index Expr
}

// Call is a function invocation. Left is nil for a bare call at term
// position, which applies to the current focus.
type Call struct {
	Left Expr
	Name string
	Args []Expr
}

// Unary is prefix negation.
type Unary struct {
	Op      string
	Operand Expr
}

// Binary is an infix operator application. Op is the source token:
// or, xor, implies, and, =, !=, ~, !~, in, contains, <, <=, >, >=,
// +, -, &, *, /, div, mod, |.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// TypeOp is a type test or cast: left is Type, left as Type.
type TypeOp struct {
	Left Expr
	Op   string
	Type string
}

// Paren preserves explicit grouping from the source.
type Paren struct {
	Inner Expr
}

func (e EmptyLit) render(sb *strings.Builder) { sb.WriteString("{}") }

func (e BoolLit) render(sb *strings.Builder) { sb.WriteString(strconv.FormatBool(e.Val)) }

func (e IntLit) render(sb *strings.Builder) { sb.WriteString(strconv.FormatInt(e.Val, 10)) }

func (e DecLit) render(sb *strings.Builder) { sb.WriteString(e.Val.String()) }

func (e StrLit) render(sb *strings.Builder) {
	sb.WriteByte('\'')
	sb.WriteString(strings.ReplaceAll(e.Val, "'", `\'`))
	sb.WriteByte('\'')
}

func (e TemporalLit) render(sb *strings.Builder) {
	sb.WriteByte('@')
	sb.WriteString(e.Val.String())
}

func (e QuantityLit) render(sb *strings.Builder) {
	sb.WriteString(e.Val.String())
	if e.Calendar {
		sb.WriteByte(' ')
		sb.WriteString(e.Unit)
		return
	}
	sb.WriteString(" '")
	sb.WriteString(e.Unit)
	sb.WriteByte('\'')
}

func (e Ident) render(sb *strings.Builder) { sb.WriteString(e.Name) }

func (e This) render(sb *strings.Builder) { sb.WriteString("$this") }

func (e ExtConst) render(sb *strings.Builder) {
	sb.WriteByte('%')
	sb.WriteString(e.Name)
}

func (e Member) render(sb *strings.Builder) {
	e.Left.render(sb)
	sb.WriteByte('.')
	sb.WriteString(e.Name)
}

func (e Index) render(sb *strings.Builder) {
	e.Left.render(sb)
	sb.WriteByte('[')
	e.Index.render(sb)
	sb.WriteByte(']')
}

func (e Call) render(sb *strings.Builder) {
	if e.Left != nil {
		e.Left.render(sb)
		sb.WriteByte('.')
	}
	sb.WriteString(e.Name)
	sb.WriteByte('(')
	for i, arg := range e.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		arg.render(sb)
	}
	sb.WriteByte(')')
}

func (e Unary) render(sb *strings.Builder) {
	sb.WriteString(e.Op)
	e.Operand.render(sb)
}

func (e Binary) render(sb *strings.Builder) {
	e.Left.render(sb)
	sb.WriteByte(' ')
	sb.WriteString(e.Op)
	sb.WriteByte(' ')
	e.Right.render(sb)
}

func (e TypeOp) render(sb *strings.Builder) {
	e.Left.render(sb)
	sb.WriteByte(' ')
	sb.WriteString(e.Op)
	sb.WriteByte(' ')
	sb.WriteString(e.Type)
}

func (e Paren) render(sb *strings.Builder) {
	sb.WriteByte('(')
	e.Inner.render(sb)
	sb.WriteByte(')')
}
