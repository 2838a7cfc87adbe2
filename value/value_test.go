package value

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
		want Kind
	}{
		{"null", Null(), KindNull},
		{"nil pointer", nil, KindNull},
		{"bool", Bool(true), KindBool},
		{"int", Int(42), KindInt},
		{"dec", Dec(dec("1.50")), KindDec},
		{"string", String("hello"), KindString},
		{"object", Object(map[string]*Value{"a": Int(1)}), KindObject},
		{"seq", Seq(Int(1), Int(2)), KindSeq},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Kind(); got != tt.want {
				t.Errorf("Kind() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestSeq_Flattens(t *testing.T) {
	inner := Seq(Int(2), Int(3))
	s := Seq(Int(1), inner, Int(4))

	if s.Len() != 4 {
		t.Fatalf("Len() = %d; want 4", s.Len())
	}
	for i, want := range []int64{1, 2, 3, 4} {
		el, _ := s.Index(i)
		got, _ := el.AsInt()
		if got != want {
			t.Errorf("Index(%d) = %d; want %d", i, got, want)
		}
	}
}

func TestValue_Items(t *testing.T) {
	if got := len(Null().Items()); got != 0 {
		t.Errorf("null Items len = %d; want 0", got)
	}
	if got := len(Int(1).Items()); got != 1 {
		t.Errorf("singleton Items len = %d; want 1", got)
	}
	if got := len(Seq(Int(1), Int(2)).Items()); got != 2 {
		t.Errorf("seq Items len = %d; want 2", got)
	}
}

func TestValue_Singleton(t *testing.T) {
	// A single element and a one-element sequence are interchangeable
	v1, ok1 := Int(7).Singleton()
	v2, ok2 := Seq(Int(7)).Singleton()
	if !ok1 || !ok2 {
		t.Fatal("Singleton should succeed for element and one-element sequence")
	}
	if !v1.Equal(v2) {
		t.Error("singleton values should be equal")
	}

	if _, ok := Empty().Singleton(); ok {
		t.Error("Singleton on empty should fail")
	}
	if _, ok := Seq(Int(1), Int(2)).Singleton(); ok {
		t.Error("Singleton on two-element sequence should fail")
	}
}

func TestValue_Get(t *testing.T) {
	obj := Object(map[string]*Value{
		"resourceType": String("Patient"),
		"active":       Bool(true),
	})

	rt, ok := obj.ResourceType()
	if !ok || rt != "Patient" {
		t.Errorf("ResourceType() = %q, %v; want Patient, true", rt, ok)
	}

	if _, ok := obj.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
	if _, ok := Int(1).Get("a"); ok {
		t.Error("Get on non-object should report false")
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b *Value
		want bool
	}{
		{"int int", Int(1), Int(1), true},
		{"int dec numeric", Int(1), Dec(dec("1.0")), true},
		{"dec digits preserved but equal", Dec(dec("1.50")), Dec(dec("1.5")), true},
		{"int string", Int(1), String("1"), false},
		{"bool", Bool(true), Bool(true), true},
		{"string", String("a"), String("b"), false},
		{"null null", Null(), Null(), true},
		{"null int", Null(), Int(0), false},
		{
			"objects",
			Object(map[string]*Value{"a": Int(1)}),
			Object(map[string]*Value{"a": Int(1)}),
			true,
		},
		{
			"objects differ",
			Object(map[string]*Value{"a": Int(1)}),
			Object(map[string]*Value{"a": Int(2)}),
			false,
		},
		{"sequences ordered", Seq(Int(1), Int(2)), Seq(Int(2), Int(1)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestValue_Cmp(t *testing.T) {
	if c, ok := Int(1).Cmp(Dec(dec("1.5"))); !ok || c != -1 {
		t.Errorf("Cmp(1, 1.5) = %d, %v; want -1, true", c, ok)
	}
	if c, ok := String("b").Cmp(String("a")); !ok || c != 1 {
		t.Errorf("Cmp(b, a) = %d, %v; want 1, true", c, ok)
	}
	if _, ok := Int(1).Cmp(String("a")); ok {
		t.Error("ordering across kinds should not be defined")
	}
	if _, ok := Bool(true).Cmp(Bool(false)); ok {
		t.Error("ordering of booleans should not be defined")
	}
}

func TestValue_CmpQuantity(t *testing.T) {
	a := NewQuantity(Quantity{Value: dec("5"), Code: "mg"})
	b := NewQuantity(Quantity{Value: dec("10"), Code: "mg"})
	c := NewQuantity(Quantity{Value: dec("10"), Code: "kg"})

	if cmp, ok := a.Cmp(b); !ok || cmp != -1 {
		t.Errorf("Cmp(5mg, 10mg) = %d, %v; want -1, true", cmp, ok)
	}
	if _, ok := b.Cmp(c); ok {
		t.Error("quantities with different codes should be incomparable")
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    *Value
		want string
	}{
		{Int(42), "42"},
		{Dec(dec("1.50")), "1.50"},
		{String("hi"), `"hi"`},
		{Bool(false), "false"},
		{Seq(Int(1), Int(2)), "[1, 2]"},
		{Object(map[string]*Value{"b": Int(2), "a": Int(1)}), `{"a": 1, "b": 2}`},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q; want %q", got, tt.want)
		}
	}
}

func TestFromJSON_NumberLiterals(t *testing.T) {
	v, err := FromJSON([]byte(`{"i": 1, "d": 1.0, "digits": 2.50, "exp": 1e2}`))
	if err != nil {
		t.Fatal(err)
	}

	i, _ := v.Get("i")
	if i.Kind() != KindInt {
		t.Errorf("1 parsed as %v; want integer", i.Kind())
	}

	d, _ := v.Get("d")
	if d.Kind() != KindDec {
		t.Errorf("1.0 parsed as %v; want decimal", d.Kind())
	}

	digits, _ := v.Get("digits")
	if got := digits.String(); got != "2.50" {
		t.Errorf("2.50 renders as %q; significant digits must be preserved", got)
	}

	exp, _ := v.Get("exp")
	if exp.Kind() != KindDec {
		t.Errorf("1e2 parsed as %v; want decimal", exp.Kind())
	}
}

func TestFromJSON_NullHandling(t *testing.T) {
	v, err := FromJSON([]byte(`{"a": null, "arr": [null, "x"]}`))
	if err != nil {
		t.Fatal(err)
	}

	// Null object fields are dropped
	if _, ok := v.Get("a"); ok {
		t.Error("null object field should be absent")
	}

	// Nulls in arrays keep their position
	arr, _ := v.Get("arr")
	if arr.Len() != 2 {
		t.Fatalf("array Len = %d; want 2", arr.Len())
	}
	first, _ := arr.Index(0)
	if !first.IsNull() {
		t.Error("array null should be preserved")
	}
}

func TestFromJSON_Malformed(t *testing.T) {
	for _, input := range []string{"", "{", `{"a":}`, "[1,"} {
		if _, err := FromJSON([]byte(input)); err == nil {
			t.Errorf("FromJSON(%q) should fail", input)
		}
	}
}

func TestFromJSON_Nested(t *testing.T) {
	v, err := FromJSON([]byte(`{
		"resourceType": "Patient",
		"name": [{"family": "Chalmers", "given": ["Peter", "James"]}],
		"active": true
	}`))
	if err != nil {
		t.Fatal(err)
	}

	name, _ := v.Get("name")
	first, _ := name.Index(0)
	family, _ := first.Get("family")
	if s, _ := family.AsString(); s != "Chalmers" {
		t.Errorf("family = %q; want Chalmers", s)
	}

	given, _ := first.Get("given")
	if given.Len() != 2 {
		t.Errorf("given Len = %d; want 2", given.Len())
	}
}
