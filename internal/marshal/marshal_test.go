package marshal

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judge-engine/internal/judgeerr"
	"judge-engine/internal/testcase"
)

func TestToSourceLiteral(t *testing.T) {
	tests := []struct {
		name  string
		value testcase.Value
		tag   testcase.TypeTag
		want  string
	}{
		{name: "int", value: float64(5), tag: testcase.Int, want: "5"},
		{name: "negative int", value: float64(-42), tag: testcase.Int, want: "-42"},
		{name: "long", value: float64(10000000000), tag: testcase.Long, want: "10000000000LL"},
		{name: "whole double", value: float64(2), tag: testcase.Double, want: "2.0"},
		{name: "fractional double", value: 0.25, tag: testcase.Double, want: "0.25"},
		{name: "bool", value: true, tag: testcase.Bool, want: "true"},
		{name: "string", value: "a\"b\\c\n", tag: testcase.String, want: `"a\"b\\c\n"`},
		{name: "string with trigraph", value: "??=", tag: testcase.String, want: `"\?\?="`},
		{name: "char", value: "'", tag: testcase.Char, want: `'\''`},
		{name: "vector", value: []any{1.0, 2.0, 3.0}, tag: testcase.Vector(testcase.Int), want: "{1, 2, 3}"},
		{name: "empty vector", value: []any{}, tag: testcase.Vector(testcase.Int), want: "{}"},
		{
			name:  "matrix",
			value: []any{[]any{1.0, 2.0}, []any{3.0}},
			tag:   testcase.Vector(testcase.Vector(testcase.Int)),
			want:  "{{1, 2}, {3}}",
		},
		{
			name:  "vector of strings",
			value: []any{"a", "b"},
			tag:   testcase.Vector(testcase.String),
			want:  `{"a", "b"}`,
		},
		{
			name:  "tree with null sentinels",
			value: []any{1.0, nil, 2.0, 3.0},
			tag:   testcase.TreeNode,
			want:  "judge_build_tree({1, -1, 2, 3})",
		},
		{
			name:  "tree with string null",
			value: []any{1.0, "null", 2.0},
			tag:   testcase.TreeNode,
			want:  "judge_build_tree({1, -1, 2})",
		},
		{
			name:  "list",
			value: []any{1.0, 2.0, nil},
			tag:   testcase.ListNode,
			want:  "judge_build_list({1, 2, -1})",
		},
		{name: "empty list", value: nil, tag: testcase.ListNode, want: "judge_build_list({})"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSourceLiteral(tt.value, tt.tag)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToSourceLiteralRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		value testcase.Value
		tag   testcase.TypeTag
	}{
		{name: "fractional int", value: 1.5, tag: testcase.Int},
		{name: "int overflow", value: float64(1 << 40), tag: testcase.Int},
		{name: "string as int", value: "5", tag: testcase.Int},
		{name: "number as string", value: 5.0, tag: testcase.String},
		{name: "long char", value: "ab", tag: testcase.Char},
		{name: "scalar as vector", value: 1.0, tag: testcase.Vector(testcase.Int)},
		{name: "bad vector element", value: []any{"x"}, tag: testcase.Vector(testcase.Int)},
		{name: "bad tree node", value: []any{"x"}, tag: testcase.TreeNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToSourceLiteral(tt.value, tt.tag)
			assert.Error(t, err)
		})
	}
}

func TestUnsupportedType(t *testing.T) {
	_, err := ToSourceLiteral(1.0, "map<int,int>")

	var typeErr *judgeerr.UnsupportedTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "map<int,int>", typeErr.Type)

	_, err = FromOutputToken("1", "Graph*")
	assert.ErrorAs(t, err, &typeErr)
}

func TestFromOutputToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		tag   testcase.TypeTag
		want  testcase.Value
	}{
		{name: "int", token: "8", tag: testcase.Int, want: 8.0},
		{name: "double", token: "0.10000000000000001", tag: testcase.Double, want: 0.1},
		{name: "bool digit", token: "1", tag: testcase.Bool, want: true},
		{name: "bool word", token: "false", tag: testcase.Bool, want: false},
		{name: "escaped string", token: `a\,b\nc`, tag: testcase.String, want: "a,b\nc"},
		{name: "vector", token: "1,2,3", tag: testcase.Vector(testcase.Int), want: []any{1.0, 2.0, 3.0}},
		{name: "empty vector", token: "", tag: testcase.Vector(testcase.Int), want: []any{}},
		{
			name:  "matrix",
			token: "[1,2],[],[3]",
			tag:   testcase.Vector(testcase.Vector(testcase.Int)),
			want:  []any{[]any{1.0, 2.0}, []any{}, []any{3.0}},
		},
		{
			name:  "vector of strings with commas",
			token: `a\,b,c`,
			tag:   testcase.Vector(testcase.String),
			want:  []any{"a,b", "c"},
		},
		{name: "tree", token: "1,null,2,3", tag: testcase.TreeNode, want: []any{1.0, nil, 2.0, 3.0}},
		{name: "list", token: "3,2,1", tag: testcase.ListNode, want: []any{3.0, 2.0, 1.0}},
		{name: "empty list", token: "", tag: testcase.ListNode, want: []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromOutputToken(tt.token, tt.tag)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromOutputShape(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected testcase.Value
		want     testcase.Value
	}{
		{name: "number", token: "8", expected: 8.0, want: 8.0},
		{name: "bool", token: "true", expected: false, want: true},
		{name: "string keeps digits", token: "007", expected: "x", want: "007"},
		{name: "array", token: "1,2", expected: []any{5.0}, want: []any{1.0, 2.0}},
		{name: "array with nulls", token: "1,null,2", expected: []any{nil, 1.0}, want: []any{1.0, nil, 2.0}},
		{name: "string array keeps null text", token: "null,a", expected: []any{"b"}, want: []any{"null", "a"}},
		{name: "nested", token: "[1],[2,3]", expected: []any{[]any{0.0}}, want: []any{[]any{1.0}, []any{2.0, 3.0}}},
		{name: "empty expected array infers", token: "1,x", expected: []any{}, want: []any{1.0, "x"}},
		{name: "null expected and empty token", token: "", expected: nil, want: nil},
		{name: "null expected and value", token: "4", expected: nil, want: 4.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromOutputShape(tt.token, tt.expected)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("should fail for non numeric token against number", func(t *testing.T) {
		_, err := FromOutputShape("abc", 1.0)
		assert.Error(t, err)
	})

	t.Run("should fail for unbalanced nested arrays", func(t *testing.T) {
		_, err := FromOutputShape("[1,2", []any{[]any{1.0}})
		assert.Error(t, err)
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(8, 8.0))
	assert.True(t, Equal([]any{1, 2}, []any{1.0, 2.0}))
	assert.True(t, Equal(0.1+0.2, 0.3))
	assert.True(t, Equal([]any{}, []any(nil)))
	assert.False(t, Equal(9, 8.0))
	assert.False(t, Equal("8", 8.0))
	assert.False(t, Equal([]any{1.0, nil}, []any{1.0}))
}

// formatOutputToken mirrors what the generated driver prints for a value of
// the given type. It exists so the marshal/unmarshal pair can be checked on
// the JSON shape without a compiler.
func formatOutputToken(t *testing.T, value testcase.Value, tag testcase.TypeTag) string {
	t.Helper()

	switch {
	case tag == testcase.Int || tag == testcase.Long:
		number, err := toInteger(value, tag)
		require.NoError(t, err)
		return strconv.FormatInt(number, 10)
	case tag == testcase.Double:
		number, _ := toFloat(value)
		return strconv.FormatFloat(number, 'g', 17, 64)
	case tag == testcase.Bool:
		return strconv.FormatBool(value.(bool))
	case tag == testcase.String || tag == testcase.Char:
		replacer := strings.NewReplacer(`\`, `\\`, ",", `\,`, "[", `\[`, "]", `\]`, "\n", `\n`, "\r", `\r`)
		return replacer.Replace(value.(string))
	case tag.IsVector():
		var parts []string

		for _, element := range value.([]any) {
			part := formatOutputToken(t, element, tag.Element())

			if tag.Element().IsVector() {
				part = "[" + part + "]"
			}

			parts = append(parts, part)
		}

		return strings.Join(parts, ",")
	}

	t.Fatalf("no printer for %s", tag)
	return ""
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		value testcase.Value
		tag   testcase.TypeTag
	}{
		{value: 8.0, tag: testcase.Int},
		{value: -2147483648.0, tag: testcase.Int},
		{value: 9007199254740991.0, tag: testcase.Long},
		{value: 0.1, tag: testcase.Double},
		{value: -1e-300, tag: testcase.Double},
		{value: true, tag: testcase.Bool},
		{value: false, tag: testcase.Bool},
		{value: "hello, world: [x]\\n", tag: testcase.String},
		{value: "", tag: testcase.String},
		{value: ",", tag: testcase.Char},
		{value: []any{}, tag: testcase.Vector(testcase.Int)},
		{value: []any{1.0, -2.0, 3.0}, tag: testcase.Vector(testcase.Int)},
		{value: []any{"a,b", "", "c]"}, tag: testcase.Vector(testcase.String)},
		{value: []any{true, false}, tag: testcase.Vector(testcase.Bool)},
		{value: []any{[]any{1.5}, []any{}, []any{2.0, 3.0}}, tag: testcase.Vector(testcase.Vector(testcase.Double))},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			_, err := ToSourceLiteral(tt.value, tt.tag)
			require.NoError(t, err)

			token := formatOutputToken(t, tt.value, tt.tag)

			byTag, err := FromOutputToken(token, tt.tag)
			require.NoError(t, err)
			assert.True(t, Equal(tt.value, byTag), "by tag: %v != %v", tt.value, byTag)

			byShape, err := FromOutputShape(token, tt.value)
			require.NoError(t, err)
			assert.True(t, Equal(tt.value, byShape), "by shape: %v != %v", tt.value, byShape)
		})
	}
}

func TestParseTreeOrder(t *testing.T) {
	order, err := ParseTreeOrder("")
	require.NoError(t, err)
	assert.Equal(t, LevelOrder, order)

	order, err = ParseTreeOrder("PreOrder")
	require.NoError(t, err)
	assert.Equal(t, PreOrder, order)

	_, err = ParseTreeOrder("inorder")
	assert.Error(t, err)
}
