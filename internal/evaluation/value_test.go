package evaluation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "Should keep integer literals", raw: `5`, want: "5"},
		{name: "Should keep decimal literals", raw: `1.50`, want: "1.50"},
		{name: "Should print booleans", raw: `true`, want: "true"},
		{name: "Should print strings without quotes", raw: `"hi"`, want: "hi"},
		{name: "Should encode lists as compact JSON", raw: `[1, "a", null, false]`, want: `[1,"a",null,false]`},
		{name: "Should encode maps with sorted keys", raw: `{"b": 1, "a": {"d": [], "c": "x"}}`, want: `{"a":{"c":"x","d":[]},"b":1}`},
		{name: "Should not escape HTML characters", raw: `{"k": "<a&b>"}`, want: `{"k":"<a&b>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := ParseJSON([]byte(tt.raw))

			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestValueOf(t *testing.T) {
	t.Parallel()

	v := ValueOf(map[string]any{
		"int":    7,
		"float":  2.5,
		"bool":   false,
		"nil":    nil,
		"list":   []any{"x", 1},
		"labels": []string{"a"},
	})

	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, "7", m["int"].String())
	assert.Equal(t, "2.5", m["float"].String())
	assert.Equal(t, KindBool, m["bool"].Kind())
	assert.True(t, m["nil"].IsNull())
	assert.Equal(t, `["x",1]`, m["list"].String())
	assert.Equal(t, `["a"]`, m["labels"].String())

	f, ok := m["float"].AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 2.5, f, 0)
}

func TestValue_JSONRoundTripKeepsLiterals(t *testing.T) {
	t.Parallel()

	in := `{"big":12345678901234567890,"nested":{"a":[1.0,"s",true,null]}}`

	v, err := ParseJSON([]byte(in))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Contains(t, string(out), "12345678901234567890")
	assert.Contains(t, string(out), "1.0")
}

func TestValue_Interface(t *testing.T) {
	t.Parallel()

	v, err := ParseJSON([]byte(`{"n": 3, "s": "x", "l": [true]}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"n": 3.0, "s": "x", "l": []any{true}}, v.Interface())
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	a := Map(map[string]Value{"x": List(Int(1), String("a"))})
	b := Map(map[string]Value{"x": List(Int(1), String("a"))})
	c := Map(map[string]Value{"x": List(Int(1), String("b"))})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Int(1).Equal(String("1")))
	assert.True(t, Null().Equal(Value{}))
}
