package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
)

// ErrMalformedInput is returned when the input is not valid JSON.
var ErrMalformedInput = errors.New("malformed input")

// FromJSON parses JSON into a value tree.
//
// Numbers without a fractional part or exponent become integers; all other
// numbers become decimals with their significant digits preserved, so a
// field written as 1.0 does not collapse to 1. Null object fields are
// dropped (an absent field and a null field are the same thing), while
// nulls inside arrays are kept to preserve positions for the primitive
// extension convention.
func FromJSON(data []byte) (*Value, error) {
	raw, dt, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	v, err := fromRaw(raw, dt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return v, nil
}

func fromRaw(raw []byte, dt jsonparser.ValueType) (*Value, error) {
	switch dt {
	case jsonparser.Null:
		return Null(), nil

	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil

	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, err
		}
		return String(s), nil

	case jsonparser.Number:
		return fromNumber(string(raw))

	case jsonparser.Array:
		var items []*Value
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(val []byte, vt jsonparser.ValueType, _ int, _ error) {
			if itemErr != nil {
				return
			}
			item, err := fromRaw(val, vt)
			if err != nil {
				itemErr = err
				return
			}
			items = append(items, item)
		})
		if err != nil {
			return nil, err
		}
		if itemErr != nil {
			return nil, itemErr
		}
		return &Value{kind: KindSeq, seq: items}, nil

	case jsonparser.Object:
		fields := make(map[string]*Value)
		err := jsonparser.ObjectEach(raw, func(key, val []byte, vt jsonparser.ValueType, _ int) error {
			if vt == jsonparser.Null {
				return nil
			}
			name, err := jsonparser.ParseString(key)
			if err != nil {
				return err
			}
			child, err := fromRaw(val, vt)
			if err != nil {
				return err
			}
			fields[name] = child
			return nil
		})
		if err != nil {
			return nil, err
		}
		return Object(fields), nil
	}
	return nil, fmt.Errorf("unsupported JSON value type %v", dt)
}

// fromNumber keeps the distinction between integers and decimals. The raw
// literal text decides: a dot or exponent makes it a decimal.
func fromNumber(lit string) (*Value, error) {
	if !strings.ContainsAny(lit, ".eE") {
		i, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			return Int(i), nil
		}
		// Out of int64 range; fall through to decimal
	}
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", lit)
	}
	return Dec(d), nil
}
