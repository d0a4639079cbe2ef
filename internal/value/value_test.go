package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Symbol("sym")
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Time{}
	var _ Value = List{"a", "b"}
}

func TestIndexable(t *testing.T) {
	testCases := []struct {
		name  string
		value Value
		want  bool
	}{
		{"string", String("Jane"), true},
		{"symbol", Symbol("admin"), true},
		{"bool true", Bool(true), true},
		{"bool false", Bool(false), true},
		{"int", Int(7), false},
		{"float", Float(7.5), false},
		{"time", NewTime(time.Unix(0, 0)), false},
		{"list", List{"1"}, false},
		{"null", Null{}, false},
		{"nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Indexable(tc.value))
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	testCases := []struct {
		name  string
		typ   Type
		value Value
		enc   string
	}{
		{"string", TypeString, String("John Smith"), "John Smith"},
		{"symbol", TypeSymbol, Symbol("admin"), "admin"},
		{"bool", TypeBool, Bool(false), "false"},
		{"int", TypeInt, Int(-12), "-12"},
		{"float", TypeFloat, Float(2.25), "2.25"},
		{"time", TypeTime, NewTime(ts), "2024-03-01T12:30:00.0000005Z"},
		{"list", TypeList, List{"3", "4"}, `["3","4"]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			enc := Encode(tc.value)
			assert.Equal(t, tc.enc, enc)

			parsed, err := Parse(tc.typ, enc)
			require.NoError(t, err)
			assert.Equal(t, tc.value, parsed)
		})
	}
}

func TestParse_EmptyIsNullForNonText(t *testing.T) {
	for _, typ := range []Type{TypeBool, TypeInt, TypeFloat, TypeTime, TypeList} {
		v, err := Parse(typ, "")
		require.NoError(t, err)
		assert.True(t, IsNull(v), "type %s", typ)
	}

	v, err := Parse(TypeString, "")
	require.NoError(t, err)
	assert.Equal(t, String(""), v)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(TypeBool, "yes please")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Parse(TypeInt, "1.5")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Parse(Type("blob"), "x")
	assert.Error(t, err)
}

func TestNewString_NFC(t *testing.T) {
	// "e" followed by U+0301 COMBINING ACUTE ACCENT normalizes to U+00E9
	decomposed := "Rene\u0301e"
	composed := "Ren\u00e9e"

	assert.Equal(t, String(composed), NewString(decomposed))
	assert.Equal(t, Symbol(composed), NewSymbol(decomposed))
}

func TestFromAny(t *testing.T) {
	testCases := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"string", "Jane", String("Jane")},
		{"bool", true, Bool(true)},
		{"int", 5, Int(5)},
		{"int64", int64(9), Int(9)},
		{"uint8", uint8(3), Int(3)},
		{"float", 1.5, Float(1.5)},
		{"string slice", []string{"a"}, List{"a"}},
		{"any slice", []any{"a", "b"}, List{"a", "b"}},
		{"value passthrough", Symbol("x"), Symbol("x")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromAny(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = FromAny([]any{"a", 1})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCoerce(t *testing.T) {
	testCases := []struct {
		name  string
		typ   Type
		input Value
		want  Value
	}{
		{"same type", TypeBool, Bool(true), Bool(true)},
		{"string to bool", TypeBool, String("true"), Bool(true)},
		{"string to int", TypeInt, String("42"), Int(42)},
		{"int to float", TypeFloat, Int(2), Float(2)},
		{"integral float to int", TypeInt, Float(3), Int(3)},
		{"symbol to string", TypeString, Symbol("s"), String("s")},
		{"bool to string", TypeString, Bool(false), String("false")},
		{"null passes", TypeInt, Null{}, Null{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Coerce(tc.typ, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerce_Mismatch(t *testing.T) {
	_, err := Coerce(TypeInt, Bool(true))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Coerce(TypeInt, Float(1.5))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Null{}, String("a")))
	assert.Equal(t, 1, Compare(Int(1), nil))
	assert.Equal(t, 0, Compare(nil, Null{}))

	// numeric, not lexicographic
	assert.Equal(t, -1, Compare(Int(9), Int(10)))
	assert.Equal(t, 1, Compare(Float(2.5), Int(2)))

	early := NewTime(time.Unix(10, 0))
	late := NewTime(time.Unix(20, 0))
	assert.Equal(t, -1, Compare(early, late))

	assert.Equal(t, -1, Compare(String("Fred"), String("Jane")))
	assert.Equal(t, 0, Compare(String("x"), Symbol("x")))
}

func TestScore(t *testing.T) {
	s, ok := Score(Int(4))
	assert.True(t, ok)
	assert.Equal(t, 4.0, s)

	_, ok = Score(String("4"))
	assert.False(t, ok)
}
