package fhirpath

import (
	"reflect"
	"strings"
	"testing"
)

func TestParse_RenderCanonical(t *testing.T) {
	// Inputs already in canonical spacing must render back verbatim.
	exprs := []string{
		"name",
		"name.given",
		"name.given.first()",
		"Patient.name.where(use = 'official')",
		"contact.all(name.exists() or telecom.exists())",
		"name[0].given[1]",
		"value is Quantity",
		"value as Quantity",
		"ofType(Quantity)",
		"$this",
		"%resource.id",
		"{}",
		"true",
		"false",
		"'hello'",
		"42",
		"3.14",
		"1.50",
		"-5",
		"5 'mg'",
		"6 months",
		"@2019-03-15",
		"@2019-03-15T10:30:45Z",
		"@T10:30",
		"(a or b) and c",
		"a or b and c",
		"a implies b",
		"a xor b",
		"low <= high",
		"1 + 2 * 3",
		"10 div 3",
		"10 mod 3",
		"'a' & 'b'",
		"code in ('a' | 'b')",
		"list contains item",
		"a != b",
		"a ~ b",
		"a !~ b",
		"iif(active, 'yes', 'no')",
		"extension('http://example.org/x').value",
		"identifier | contained.identifier",
	}
	for _, src := range exprs {
		t.Run(src, func(t *testing.T) {
			expr, err := Parse(src)
			if err != nil {
				t.Fatalf("Parse(%q): %v", src, err)
			}
			if got := Render(expr); got != src {
				t.Errorf("Render = %q, want %q", got, src)
			}
		})
	}
}

func TestParse_RoundTripStable(t *testing.T) {
	// Parsing the rendered form must give back the identical tree, even
	// when the original spelling was not canonical.
	exprs := []string{
		"name . given",
		"{ }",
		"where( use='official' )",
		"a  or  b and c",
		"1+2 * 3",
		"value.ofType( Quantity ).unit",
		"telecom.where(system='phone').value.matches('^[0-9 ]+$')",
	}
	for _, src := range exprs {
		t.Run(src, func(t *testing.T) {
			first, err := Parse(src)
			if err != nil {
				t.Fatalf("Parse(%q): %v", src, err)
			}
			second, err := Parse(Render(first))
			if err != nil {
				t.Fatalf("Parse(Render): %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Errorf("round trip changed tree:\n first: %#v\nsecond: %#v", first, second)
			}
		})
	}
}

func TestParse_Precedence(t *testing.T) {
	t.Run("and binds tighter than or", func(t *testing.T) {
		expr := mustParse(t, "a or b and c")
		top, ok := expr.(Binary)
		if !ok || top.Op != "or" {
			t.Fatalf("top = %#v, want or", expr)
		}
		right, ok := top.Right.(Binary)
		if !ok || right.Op != "and" {
			t.Errorf("right = %#v, want and", top.Right)
		}
	})

	t.Run("equality binds tighter than and", func(t *testing.T) {
		expr := mustParse(t, "a = b and c = d")
		top, ok := expr.(Binary)
		if !ok || top.Op != "and" {
			t.Fatalf("top = %#v, want and", expr)
		}
	})

	t.Run("type test binds tighter than and", func(t *testing.T) {
		expr := mustParse(t, "value is Quantity and active")
		top, ok := expr.(Binary)
		if !ok || top.Op != "and" {
			t.Fatalf("top = %#v, want and", expr)
		}
		if _, ok := top.Left.(TypeOp); !ok {
			t.Errorf("left = %#v, want TypeOp", top.Left)
		}
	})

	t.Run("equality binds tighter than type test", func(t *testing.T) {
		expr := mustParse(t, "a = b is Boolean")
		top, ok := expr.(TypeOp)
		if !ok || top.Op != "is" {
			t.Fatalf("top = %#v, want is", expr)
		}
		if inner, ok := top.Left.(Binary); !ok || inner.Op != "=" {
			t.Errorf("left = %#v, want =", top.Left)
		}
	})

	t.Run("multiplicative binds tighter than additive", func(t *testing.T) {
		expr := mustParse(t, "1 + 2 * 3")
		top, ok := expr.(Binary)
		if !ok || top.Op != "+" {
			t.Fatalf("top = %#v, want +", expr)
		}
		if right, ok := top.Right.(Binary); !ok || right.Op != "*" {
			t.Errorf("right = %#v, want *", top.Right)
		}
	})

	t.Run("implies binds looser than and", func(t *testing.T) {
		expr := mustParse(t, "a and b implies c")
		top, ok := expr.(Binary)
		if !ok || top.Op != "implies" {
			t.Fatalf("top = %#v, want implies", expr)
		}
	})

	t.Run("left associativity", func(t *testing.T) {
		expr := mustParse(t, "1 - 2 - 3")
		top := expr.(Binary)
		inner, ok := top.Left.(Binary)
		if !ok || inner.Op != "-" {
			t.Fatalf("left = %#v, want nested -", top.Left)
		}
	})
}

func TestParse_Literals(t *testing.T) {
	t.Run("integer", func(t *testing.T) {
		if got := mustParse(t, "42"); got != (IntLit{Val: 42}) {
			t.Errorf("got %#v", got)
		}
	})
	t.Run("decimal keeps digits", func(t *testing.T) {
		lit, ok := mustParse(t, "1.50").(DecLit)
		if !ok {
			t.Fatalf("not a DecLit")
		}
		if lit.Val.String() != "1.50" {
			t.Errorf("decimal = %s, want 1.50", lit.Val.String())
		}
	})
	t.Run("string escapes", func(t *testing.T) {
		lit, ok := mustParse(t, `'it\'s \\ ok'`).(StrLit)
		if !ok {
			t.Fatalf("not a StrLit")
		}
		if lit.Val != `it's \ ok` {
			t.Errorf("string = %q", lit.Val)
		}
	})
	t.Run("ucum quantity", func(t *testing.T) {
		q, ok := mustParse(t, "5 'mg'").(QuantityLit)
		if !ok {
			t.Fatalf("not a QuantityLit")
		}
		if q.Unit != "mg" || q.Calendar {
			t.Errorf("got %#v", q)
		}
	})
	t.Run("calendar quantity", func(t *testing.T) {
		q, ok := mustParse(t, "6 months").(QuantityLit)
		if !ok {
			t.Fatalf("not a QuantityLit")
		}
		if q.Unit != "months" || !q.Calendar {
			t.Errorf("got %#v", q)
		}
	})
	t.Run("identifier after number is not a unit", func(t *testing.T) {
		expr := mustParse(t, "5 div total")
		top, ok := expr.(Binary)
		if !ok || top.Op != "div" {
			t.Fatalf("got %#v, want div", expr)
		}
	})
	t.Run("temporal date", func(t *testing.T) {
		lit, ok := mustParse(t, "@2019-03-15").(TemporalLit)
		if !ok {
			t.Fatalf("not a TemporalLit")
		}
		if lit.Val.Year != 2019 || lit.Val.Month != 3 || lit.Val.Day != 15 {
			t.Errorf("got %#v", lit.Val)
		}
	})
	t.Run("time only", func(t *testing.T) {
		lit, ok := mustParse(t, "@T10:30").(TemporalLit)
		if !ok {
			t.Fatalf("not a TemporalLit")
		}
		if lit.Val.Hour != 10 || lit.Val.Minute != 30 {
			t.Errorf("got %#v", lit.Val)
		}
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"dangling dot", "name."},
		{"unterminated paren", "(a or b"},
		{"unterminated index", "name[0"},
		{"unterminated string", "'abc"},
		{"missing operand", "1 +"},
		{"trailing garbage", "a b"},
		{"bad temporal", "@99"},
		{"lone dollar", "$foo"},
		{"unterminated args", "where(a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.input)
			}
			var perr *ParseError
			if !errorsAs(err, &perr) {
				t.Fatalf("error type %T, want *ParseError", err)
			}
			if perr.Offset < 0 || perr.Offset > len(tt.input) {
				t.Errorf("offset %d out of range for %q", perr.Offset, tt.input)
			}
			if !strings.Contains(err.Error(), "parse error at offset") {
				t.Errorf("message %q missing offset", err.Error())
			}
		})
	}
}

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	expr, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return expr
}

func errorsAs(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func BenchmarkParse(b *testing.B) {
	src := "contact.all(name.exists() or telecom.exists() or address.exists() or organization.exists())"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(src); err != nil {
			b.Fatal(err)
		}
	}
}
