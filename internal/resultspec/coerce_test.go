package resultspec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce_None(t *testing.T) {
	for _, raw := range []any{"anything at all", nil, 42, []any{1}} {
		v, err := Coerce(raw, None{})
		require.NoError(t, err)
		assert.Equal(t, NoResult{}, v)
	}
}

func TestCoerce_Scalar(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		kind    Kind
		want    any
		wantErr bool
	}{
		{name: "string trims", raw: "  hello \n", kind: String, want: "hello"},
		{name: "string from number", raw: 12, kind: String, want: "12"},
		{name: "string from null", raw: nil, kind: String, wantErr: true},
		{name: "int", raw: "4", kind: Integer, want: 4},
		{name: "negative int", raw: "-17", kind: Integer, want: -17},
		{name: "int word", raw: "four", kind: Integer, wantErr: true},
		{name: "int with decimal point", raw: "4.0", kind: Integer, wantErr: true},
		{name: "int from decoded float", raw: 4.0, kind: Integer, wantErr: true},
		{name: "int from decoded int", raw: 9, kind: Integer, want: 9},
		{name: "float", raw: "3.25", kind: Float, want: 3.25},
		{name: "float from int", raw: "3", kind: Float, want: 3.0},
		{name: "float NaN", raw: "NaN", kind: Float, wantErr: true},
		{name: "float garbage", raw: "three", kind: Float, wantErr: true},
		{name: "bool true", raw: "True", kind: Boolean, want: true},
		{name: "bool yes", raw: "yes", kind: Boolean, want: true},
		{name: "bool no", raw: " NO ", kind: Boolean, want: false},
		{name: "bool zero", raw: "0", kind: Boolean, want: false},
		{name: "bool decoded", raw: false, kind: Boolean, want: false},
		{name: "bool maybe", raw: "maybe", kind: Boolean, wantErr: true},
		{name: "bool two", raw: 2, kind: Boolean, wantErr: true},
		{name: "list for scalar", raw: []any{"a"}, kind: String, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, Scalar{Kind: tt.kind})
			if tt.wantErr {
				var ce *CoercionError
				require.Error(t, err)
				assert.True(t, errors.As(err, &ce), "expected *CoercionError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_ChoiceOnlyAcceptsIndicesInRange(t *testing.T) {
	options := []any{"red", 42, map[string]any{"k": "v"}, "blue"}
	spec := Choice{Options: options}

	for i := range options {
		got, err := Coerce(fmt.Sprint(i), spec)
		require.NoError(t, err, "index %d", i)
		assert.Equal(t, options[i], got)
	}

	for _, raw := range []any{"4", "-1", "red", "1.0", "", "one", "0 1", 17} {
		_, err := Coerce(raw, spec)
		assert.Error(t, err, "raw %v should fail", raw)
	}
}

func TestCoerce_ChoiceTolerance(t *testing.T) {
	spec := Choice{Options: []any{"a", "b", "c"}}
	for _, raw := range []any{" 2\n", `"2"`, "`2`", "[2]", 2} {
		got, err := Coerce(raw, spec)
		require.NoError(t, err, "raw %q", raw)
		assert.Equal(t, "c", got)
	}
}

func TestCoerce_ChoiceList(t *testing.T) {
	spec := ChoiceList{Options: []any{"go", "rust", "zig", "c"}}

	tests := []struct {
		name    string
		raw     any
		want    []any
		wantErr bool
	}{
		{name: "json list keeps agent order", raw: "[3, 0, 2]", want: []any{"c", "go", "zig"}},
		{name: "yaml list", raw: "- 1\n- 2", want: []any{"rust", "zig"}},
		{name: "comma separated", raw: "2, 1", want: []any{"zig", "rust"}},
		{name: "single index", raw: "1", want: []any{"rust"}},
		{name: "fenced", raw: "```json\n[0]\n```", want: []any{"go"}},
		{name: "one-line fence with tag", raw: "```json [1, 2]```", want: []any{"rust", "zig"}},
		{name: "empty list", raw: "[]", wantErr: true},
		{name: "empty text", raw: "", wantErr: true},
		{name: "duplicate", raw: "[1, 1]", wantErr: true},
		{name: "out of range", raw: "[0, 4]", wantErr: true},
		{name: "names instead of indices", raw: `["go"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_SequenceRoundTrip(t *testing.T) {
	spec := Sequence{Elem: Scalar{Kind: String}}

	got, err := Coerce(`["Hello","Hola","Bonjour"]`, spec)
	require.NoError(t, err)
	assert.Equal(t, []any{"Hello", "Hola", "Bonjour"}, got)

	dup, err := Coerce([]any{"b", "a", "b"}, spec)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "a", "b"}, dup, "no reordering or deduplication")
}

func TestCoerce_SequenceReportsFirstFailingPosition(t *testing.T) {
	spec := Sequence{Elem: Scalar{Kind: Integer}}

	_, err := Coerce("[1, 2, x, y]", spec)
	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Issues, 1)
	assert.Equal(t, "$[2]", ce.Issues[0].Path)

	_, err = Coerce("not a list", spec)
	require.Error(t, err)
}

func TestCoerce_StructuredNamesEveryOffendingField(t *testing.T) {
	spec := Structured{Fields: []Field{
		{Name: "title", Type: Scalar{Kind: String}, Required: true, MinLen: 3},
		{Name: "year", Type: Scalar{Kind: Integer}, Required: true},
		{Name: "tags", Type: Sequence{Elem: Scalar{Kind: String}}, MaxLen: 2},
		{Name: "rating", Type: Scalar{Kind: Float}},
	}}

	_, err := Coerce(`{"title": "Go", "tags": ["a", "b", "c"], "rating": "high"}`, spec)
	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.ElementsMatch(t, []string{"$.title", "$.year", "$.tags", "$.rating"}, ce.Paths())
	assert.Contains(t, err.Error(), "4 issues")
}

func TestCoerce_StructuredSuccess(t *testing.T) {
	spec := Structured{Fields: []Field{
		{Name: "name", Type: Scalar{Kind: String}, Required: true},
		{Name: "age", Type: Annotated{Base: Scalar{Kind: Integer}, Hint: "in years"}},
		{Name: "address", Type: Structured{Fields: []Field{
			{Name: "city", Type: Scalar{Kind: String}, Required: true},
		}}},
		{Name: "nickname", Type: Scalar{Kind: String}},
	}}

	raw := "name: Ada\nage: 36\naddress:\n  city: London\nextra: ignored\n"
	got, err := Coerce(raw, spec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":    "Ada",
		"age":     36,
		"address": map[string]any{"city": "London"},
	}, got)
}

func TestCoerce_NestedPaths(t *testing.T) {
	spec := Sequence{Elem: Structured{Fields: []Field{
		{Name: "id", Type: Scalar{Kind: Integer}, Required: true},
	}}}

	_, err := Coerce(`[{"id": 1}, {"id": "x"}]`, spec)
	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"$[1].id"}, ce.Paths())
}

func TestCoerce_AnnotatedDelegates(t *testing.T) {
	spec := Annotated{Base: Choice{Options: []any{"yes", "no"}}, Hint: "pick no"}
	got, err := Coerce("0", spec)
	require.NoError(t, err)
	assert.Equal(t, "yes", got, "hint is advisory only")
}

func TestCoerce_UnknownVariantPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = Coerce("x", &Scalar{Kind: String})
	})
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence", in: `{"a":1}`, want: `{"a":1}`},
		{name: "multi-line with tag", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "one line without tag", in: "```{\"a\":1}```", want: `{"a":1}`},
		{name: "one line with tag", in: "```json {\"a\":1}```", want: `{"a":1}`},
		{name: "one line with tag and list", in: "```yaml [1, 2]```", want: "[1, 2]"},
		{name: "one line plain words kept", in: "```four legs```", want: "four legs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestCoerce_OneLineFencedObject(t *testing.T) {
	spec := Structured{Fields: []Field{{Name: "a", Type: Scalar{Kind: Integer}, Required: true}}}
	got, err := Coerce("```json {\"a\":1}```", spec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, got)
}
