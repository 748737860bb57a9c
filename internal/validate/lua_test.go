package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLua_ReturnsTransformedValue(t *testing.T) {
	v, err := Lua("double", `
function validate(value)
  return value * 2
end`)
	require.NoError(t, err)

	got, err := Run(21, v)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestLua_ErrorRejects(t *testing.T) {
	v, err := Lua("even", `
function validate(value)
  if value % 2 ~= 0 then
    error("value must be even")
  end
  return value
end`)
	require.NoError(t, err)

	_, err = Run(3, v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value must be even")

	got, err := Run(4, v)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestLua_FalseWithMessageRejects(t *testing.T) {
	v, err := Lua("short", `
function validate(value)
  if string.len(value) > 5 then
    return false, "too long"
  end
end`)
	require.NoError(t, err)

	_, err = Run("abcdefgh", v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")

	got, err := Run("abc", v)
	require.NoError(t, err)
	assert.Equal(t, "abc", got, "no return keeps the value")
}

func TestLua_TablesRoundTrip(t *testing.T) {
	v, err := Lua("tag", `
function validate(value)
  value.tags[#value.tags + 1] = "checked"
  return value
end`)
	require.NoError(t, err)

	got, err := Run(map[string]any{"name": "x", "tags": []any{"a"}}, v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "x", "tags": []any{"a", "checked"}}, got)
}

func TestLua_KeepsInputNumberType(t *testing.T) {
	identity, err := Lua("id", `function validate(v) return v end`)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "integral float", in: 4.0, want: 4.0},
		{name: "fractional float", in: 2.5, want: 2.5},
		{name: "int", in: 4, want: 4},
		{name: "nested record", in: map[string]any{"score": 3.0, "votes": 2}, want: map[string]any{"score": 3.0, "votes": 2}},
		{name: "float list", in: []any{1.0, 2.0}, want: []any{1.0, 2.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Run(tt.in, identity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLua_Sandbox(t *testing.T) {
	v, err := Lua("escape", `
function validate(value)
  return os.getenv("HOME")
end`)
	require.NoError(t, err)
	_, err = Run("x", v)
	assert.Error(t, err)

	v, err = Lua("missing", `x = 1`)
	require.NoError(t, err)
	_, err = Run("x", v)
	assert.Error(t, err)
}
