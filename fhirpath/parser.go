package fhirpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/reason-healthcare/rh-sub009/value"
)

// ParseError describes a syntax error with its byte offset and the tokens
// that would have been accepted there.
type ParseError struct {
	Offset   int
	Message  string
	Expected []string
}

func (e *ParseError) Error() string {
	if len(e.Expected) > 0 {
		return fmt.Sprintf("parse error at offset %d: %s (expected %s)",
			e.Offset, e.Message, strings.Join(e.Expected, ", "))
	}
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}

// calendarUnits are the bare duration keywords accepted after a number.
var calendarUnits = map[string]bool{
	"year": true, "years": true,
	"month": true, "months": true,
	"week": true, "weeks": true,
	"day": true, "days": true,
	"hour": true, "hours": true,
	"minute": true, "minutes": true,
	"second": true, "seconds": true,
	"millisecond": true, "milliseconds": true,
}

// Parse parses a path expression into an AST.
func Parse(input string) (Expr, error) {
	p := &parser{src: input}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected trailing input", "end of expression")
	}
	return expr, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(msg string, expected ...string) *ParseError {
	return &ParseError{Offset: p.pos, Message: msg, Expected: expected}
}

func (p *parser) skipWS() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// matchSym consumes a symbolic token.
func (p *parser) matchSym(sym string) bool {
	p.skipWS()
	if strings.HasPrefix(p.src[p.pos:], sym) {
		p.pos += len(sym)
		return true
	}
	return false
}

// matchWord consumes a keyword token, requiring a word boundary after it
// so that "oration" does not match "or".
func (p *parser) matchWord(word string) bool {
	p.skipWS()
	if !strings.HasPrefix(p.src[p.pos:], word) {
		return false
	}
	end := p.pos + len(word)
	if end < len(p.src) && isIdentChar(p.src[end]) {
		return false
	}
	p.pos = end
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// parseExpr is the entry point of the precedence chain.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.matchWord("or"):
			right, err := p.parseImplies()
			if err != nil {
				return nil, err
			}
			left = Binary{Op: "or", Left: left, Right: right}
		case p.matchWord("xor"):
			right, err := p.parseImplies()
			if err != nil {
				return nil, err
			}
			left = Binary{Op: "xor", Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseImplies() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchWord("implies") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "implies", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseType()
	if err != nil {
		return nil, err
	}
	for p.matchWord("and") {
		right, err := p.parseType()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseType() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchWord("is"):
			op = "is"
		case p.matchWord("as"):
			op = "as"
		default:
			return left, nil
		}
		name, err := p.parseQualifiedName()
		if err != nil {
			return nil, err
		}
		left = TypeOp{Left: left, Op: op, Type: name}
	}
}

func (p *parser) parseQualifiedName() (string, error) {
	p.skipWS()
	name, err := p.parseIdentifier()
	if err != nil {
		return "", err
	}
	for {
		save := p.pos
		if !p.matchSym(".") {
			return name, nil
		}
		p.skipWS()
		part, err := p.parseIdentifier()
		if err != nil {
			p.pos = save
			return name, nil
		}
		name += "." + part
	}
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseInequality()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSym("!="):
			op = "!="
		case p.matchSym("!~"):
			op = "!~"
		case p.matchSym("="):
			op = "="
		case p.matchSym("~"):
			op = "~"
		case p.matchWord("in"):
			op = "in"
		case p.matchWord("contains"):
			op = "contains"
		default:
			return left, nil
		}
		right, err := p.parseInequality()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseInequality() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSym("<="):
			op = "<="
		case p.matchSym(">="):
			op = ">="
		case p.matchSym("<"):
			op = "<"
		case p.matchSym(">"):
			op = ">"
		default:
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSym("+"):
			op = "+"
		case p.matchSym("-"):
			op = "-"
		case p.matchSym("&"):
			op = "&"
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchWord("div"):
			op = "div"
		case p.matchWord("mod"):
			op = "mod"
		case p.matchSym("*"):
			op = "*"
		case p.matchSym("/"):
			op = "/"
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.matchSym("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: "-", Operand: operand}, nil
	}
	return p.parseUnion()
}

func (p *parser) parseUnion() (Expr, error) {
	left, err := p.parseInvocation()
	if err != nil {
		return nil, err
	}
	for p.matchSym("|") {
		right, err := p.parseInvocation()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "|", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseInvocation() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.matchSym("."):
			p.skipWS()
			if p.matchWord("$this") {
				// $this after a dot is a no-op projection; keep the tree
				// faithful by recording it as a member
				left = Member{Left: left, Name: "$this"}
				continue
			}
			name, err := p.parseIdentifier()
			if err != nil {
				return nil, p.fail("expected member or function name after '.'", "identifier")
			}
			if p.matchSym("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				left = Call{Left: left, Name: name, Args: args}
				continue
			}
			left = Member{Left: left, Name: name}
		case p.matchSym("["):
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.matchSym("]") {
				return nil, p.fail("unterminated index", "]")
			}
			left = Index{Left: left, Index: idx}
		default:
			return left, nil
		}
	}
}

// parseArgs parses a comma-separated argument list after the opening
// parenthesis has been consumed.
func (p *parser) parseArgs() ([]Expr, error) {
	if p.matchSym(")") {
		return nil, nil
	}
	var args []Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.matchSym(",") {
			continue
		}
		if p.matchSym(")") {
			return args, nil
		}
		return nil, p.fail("unterminated argument list", ",", ")")
	}
}

func (p *parser) parseTerm() (Expr, error) {
	p.skipWS()

	switch {
	case p.peek() == '{':
		save := p.pos
		p.pos++
		p.skipWS()
		if p.peek() == '}' {
			p.pos++
			return EmptyLit{}, nil
		}
		p.pos = save
		return nil, p.fail("expected empty collection literal", "{}")

	case p.matchWord("true"):
		return BoolLit{Val: true}, nil

	case p.matchWord("false"):
		return BoolLit{Val: false}, nil

	case p.peek() == '@':
		return p.parseTemporalLit()

	case isDigit(p.peek()):
		return p.parseNumberOrQuantity()

	case p.peek() == '\'':
		s, err := p.parseStringLit()
		if err != nil {
			return nil, err
		}
		return StrLit{Val: s}, nil

	case p.peek() == '$':
		if p.matchWord("$this") {
			return This{}, nil
		}
		return nil, p.fail("unsupported context variable", "$this")

	case p.peek() == '%':
		p.pos++
		name, err := p.parseIdentifier()
		if err != nil {
			return nil, p.fail("expected constant name after '%'", "identifier")
		}
		return ExtConst{Name: name}, nil

	case p.peek() == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.matchSym(")") {
			return nil, p.fail("unterminated parenthesized expression", ")")
		}
		return Paren{Inner: inner}, nil

	case isIdentStart(p.peek()):
		name, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		if p.matchSym("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return Call{Name: name, Args: args}, nil
		}
		return Ident{Name: name}, nil
	}

	return nil, p.fail("expected expression", "literal", "identifier", "(")
}

func (p *parser) parseIdentifier() (string, error) {
	if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
		return "", p.fail("expected identifier", "identifier")
	}
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseStringLit() (string, error) {
	if p.peek() != '\'' {
		return "", p.fail("expected string literal", "'")
	}
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\'':
			p.pos++
			return sb.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.fail("unterminated escape", "escape sequence")
			}
			p.pos++
			switch p.src[p.pos] {
			case '\'':
				sb.WriteByte('\'')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(p.src[p.pos])
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("unterminated string literal", "'")
}

// parseTemporalLit parses @2019-03-15, @2019-03-15T10:30:45Z, @T10:30:45.
func (p *parser) parseTemporalLit() (Expr, error) {
	start := p.pos
	p.pos++ // consume '@'
	begin := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if isDigit(c) || c == '-' || c == ':' || c == 'T' || c == 'Z' || c == '+' || c == '.' {
			p.pos++
			continue
		}
		break
	}
	lit := p.src[begin:p.pos]
	t, err := value.ParseTemporal(lit)
	if err != nil {
		p.pos = start
		return nil, p.fail(fmt.Sprintf("invalid temporal literal %q", lit), "date", "dateTime", "time")
	}
	return TemporalLit{Val: t}, nil
}

// parseNumberOrQuantity parses a number, optionally followed by a quoted
// unit (5 'mg') or a calendar duration keyword (6 months).
func (p *parser) parseNumberOrQuantity() (Expr, error) {
	start := p.pos
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
	}
	isDec := false
	if p.peek() == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1]) {
		isDec = true
		p.pos++
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
	}
	lit := p.src[start:p.pos]

	// Long suffix is accepted and treated as integer
	if p.peek() == 'L' && !isDec {
		p.pos++
	}

	// Unit lookahead
	save := p.pos
	p.skipWS()
	if p.peek() == '\'' {
		unit, err := p.parseStringLit()
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(lit)
		if err != nil {
			return nil, p.fail(fmt.Sprintf("invalid number %q", lit), "number")
		}
		return QuantityLit{Val: d, Unit: unit}, nil
	}
	if isIdentStart(p.peek()) {
		wordStart := p.pos
		for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
			p.pos++
		}
		word := p.src[wordStart:p.pos]
		if calendarUnits[word] {
			d, err := decimal.NewFromString(lit)
			if err != nil {
				return nil, p.fail(fmt.Sprintf("invalid number %q", lit), "number")
			}
			return QuantityLit{Val: d, Unit: word, Calendar: true}, nil
		}
		p.pos = save
	} else {
		p.pos = save
	}

	if isDec {
		d, err := decimal.NewFromString(lit)
		if err != nil {
			return nil, p.fail(fmt.Sprintf("invalid number %q", lit), "number")
		}
		return DecLit{Val: d}, nil
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, p.fail(fmt.Sprintf("invalid number %q", lit), "number")
	}
	return IntLit{Val: i}, nil
}
