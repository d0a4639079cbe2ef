package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Type names the declared type of a record attribute.
type Type string

const (
	TypeString Type = "string"
	TypeSymbol Type = "symbol"
	TypeBool   Type = "bool"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeTime   Type = "time"
	TypeList   Type = "list"
)

// ValidTypes lists every declarable attribute type.
var ValidTypes = []Type{TypeString, TypeSymbol, TypeBool, TypeInt, TypeFloat, TypeTime, TypeList}

// ErrTypeMismatch is returned when a value cannot be coerced to a declared type.
var ErrTypeMismatch = errors.New("type mismatch")

// Value is a sealed interface over the attribute value kinds.
type Value interface {
	value() // Sealed - only types in this package implement it
	Type() Type
}

// Null is the absent value.
type Null struct{}

func (Null) value()     {}
func (Null) Type() Type { return "" }

// String is a text value. Construct with NewString to get NFC normalization.
type String string

func (String) value()     {}
func (String) Type() Type { return TypeString }

// Symbol is an interned-name value. It indexes exactly like a String with the
// same text.
type Symbol string

func (Symbol) value()     {}
func (Symbol) Type() Type { return TypeSymbol }

// Bool is a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Type() Type { return TypeBool }

// Int is a 64-bit integer value.
type Int int64

func (Int) value()     {}
func (Int) Type() Type { return TypeInt }

// Float is a 64-bit floating point value.
type Float float64

func (Float) value()     {}
func (Float) Type() Type { return TypeFloat }

// Time is a timestamp value, always held in UTC.
type Time time.Time

func (Time) value()     {}
func (Time) Type() Type { return TypeTime }

// List is an ordered list of strings. Association id lists use it.
type List []string

func (List) value()     {}
func (List) Type() Type { return TypeList }

// NewString creates an NFC-normalized String.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewSymbol creates an NFC-normalized Symbol.
func NewSymbol(s string) Symbol {
	return Symbol(norm.NFC.String(s))
}

// NewTime creates a Time in UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC())
}

// IsValidType reports whether t is a declarable attribute type.
func IsValidType(t Type) bool {
	for _, vt := range ValidTypes {
		if vt == t {
			return true
		}
	}
	return false
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Indexable reports whether v can contribute a secondary index entry.
// Only strings, symbols and booleans are indexable.
func Indexable(v Value) bool {
	switch v.(type) {
	case String, Symbol, Bool:
		return true
	default:
		return false
	}
}

// IndexableType reports whether attributes declared with t are indexable.
func IndexableType(t Type) bool {
	return t == TypeString || t == TypeSymbol || t == TypeBool
}

// Numeric reports whether attributes declared with t order numerically.
func Numeric(t Type) bool {
	return t == TypeInt || t == TypeFloat
}

// Encode returns the string form of v. Null encodes as "".
func Encode(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Symbol:
		return string(val)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Time:
		return time.Time(val).UTC().Format(time.RFC3339Nano)
	case List:
		b, err := json.Marshal([]string(val))
		if err != nil {
			// []string always marshals
			return "[]"
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// Parse decodes the string form of a value of type t.
// An empty string decodes to Null for every type except string and symbol.
func Parse(t Type, s string) (Value, error) {
	switch t {
	case TypeString:
		return NewString(s), nil
	case TypeSymbol:
		return NewSymbol(s), nil
	}

	if s == "" {
		return Null{}, nil
	}

	switch t {
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrTypeMismatch, s)
		}
		return Bool(b), nil
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrTypeMismatch, s)
		}
		return Int(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrTypeMismatch, s)
		}
		return Float(f), nil
	case TypeTime:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an RFC 3339 time", ErrTypeMismatch, s)
		}
		return NewTime(ts), nil
	case TypeList:
		var ids []string
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return nil, fmt.Errorf("%w: %q is not a list", ErrTypeMismatch, s)
		}
		return List(ids), nil
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}

// FromAny converts a Go native (as produced by YAML/JSON decoding or written
// by callers) into a Value. Values are passed through unchanged.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return NewString(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, val)
		}
		return Float(f), nil
	case time.Time:
		return NewTime(val), nil
	case []string:
		return List(append([]string(nil), val...)), nil
	case []any:
		ids := make([]string, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list[%d] is %T, want string", ErrTypeMismatch, i, elem)
			}
			ids[i] = s
		}
		return List(ids), nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrTypeMismatch, v)
	}
}

// Coerce converts v to the declared type t. Null passes through; strings are
// parsed; ints widen to floats. Anything else that does not already have
// type t is a mismatch.
func Coerce(t Type, v Value) (Value, error) {
	if IsNull(v) {
		return Null{}, nil
	}
	if v.Type() == t {
		return v, nil
	}

	switch val := v.(type) {
	case String:
		return Parse(t, string(val))
	case Symbol:
		if t == TypeString {
			return NewString(string(val)), nil
		}
		return Parse(t, string(val))
	case Int:
		switch t {
		case TypeFloat:
			return Float(val), nil
		case TypeString:
			return NewString(Encode(val)), nil
		}
	case Float:
		if t == TypeInt && float64(val) == math.Trunc(float64(val)) {
			return Int(int64(val)), nil
		}
	case Bool:
		if t == TypeString {
			return NewString(Encode(val)), nil
		}
	}

	return nil, fmt.Errorf("%w: cannot use %s value as %s", ErrTypeMismatch, v.Type(), t)
}

// Score returns the numeric score of v for sorted structures.
// Only Int and Float values have a score.
func Score(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// Compare orders two values for sorting. Null sorts before everything;
// numbers compare numerically, times chronologically, and everything else by
// its string form.
func Compare(a, b Value) int {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}

	if as, ok := Score(a); ok {
		if bs, ok := Score(b); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}

	if at, ok := a.(Time); ok {
		if bt, ok := b.(Time); ok {
			return time.Time(at).Compare(time.Time(bt))
		}
	}

	return strings.Compare(Encode(a), Encode(b))
}
