// Package marshal converts typed JSON values into C++ initialisation code and
// converts the driver's printed tokens back into comparable JSON values.
//
// Every supported TypeTag has exactly one branch in each direction. There is
// no reflection on the execution side, so an unknown tag fails fast with an
// UnsupportedTypeError instead of producing code that would not compile.
package marshal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"judge-engine/internal/judgeerr"
	"judge-engine/internal/testcase"
)

// TreeSentinel marks an absent node in the flat pointer-structure encodings
// handed to the generated helpers.
const TreeSentinel = -1

// TreeOrder selects how the driver prints a returned tree.
type TreeOrder string

const (
	// LevelOrder prints the same encoding the inputs use: breadth first, absent
	// children as null, trailing nulls trimmed.
	LevelOrder TreeOrder = "level"
	// PreOrder prints only the node values in pre-order.
	PreOrder TreeOrder = "preorder"
)

func ParseTreeOrder(raw string) (TreeOrder, error) {
	switch TreeOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelOrder, "":
		return LevelOrder, nil
	case PreOrder:
		return PreOrder, nil
	}

	return "", errors.Errorf("unknown tree order %q", raw)
}

// ToSourceLiteral renders value as a C++ expression of the given type.
// Pointer structures become calls into the generated builder helpers.
func ToSourceLiteral(value testcase.Value, tag testcase.TypeTag) (string, error) {
	switch {
	case tag == testcase.Int || tag == testcase.Long:
		number, err := toInteger(value, tag)

		if err != nil {
			return "", err
		}

		literal := strconv.FormatInt(number, 10)

		if tag == testcase.Long {
			literal += "LL"
		}

		return literal, nil
	case tag == testcase.Double:
		number, ok := toFloat(value)

		if !ok || math.IsNaN(number) || math.IsInf(number, 0) {
			return "", errors.Errorf("value %v is not a finite double", value)
		}

		literal := strconv.FormatFloat(number, 'g', -1, 64)

		if !strings.ContainsAny(literal, ".e") {
			literal += ".0"
		}

		return literal, nil
	case tag == testcase.Bool:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			if v == "true" || v == "false" {
				return v, nil
			}
		}

		return "", errors.Errorf("value %v is not a bool", value)
	case tag == testcase.String:
		text, ok := value.(string)

		if !ok {
			return "", errors.Errorf("value %v is not a string", value)
		}

		return quoteString(text), nil
	case tag == testcase.Char:
		text, ok := value.(string)

		if !ok || len(text) != 1 {
			return "", errors.Errorf("value %v is not a single character", value)
		}

		return quoteChar(text[0]), nil
	case tag.IsVector():
		elements, err := toSlice(value)

		if err != nil {
			return "", err
		}

		literals := make([]string, 0, len(elements))

		for i, element := range elements {
			literal, err := ToSourceLiteral(element, tag.Element())

			if err != nil {
				return "", errors.Wrapf(err, "element %d", i)
			}

			literals = append(literals, literal)
		}

		return "{" + strings.Join(literals, ", ") + "}", nil
	case tag == testcase.TreeNode:
		values, err := sentinelValues(value)

		if err != nil {
			return "", err
		}

		return "judge_build_tree({" + strings.Join(values, ", ") + "})", nil
	case tag == testcase.ListNode:
		values, err := sentinelValues(value)

		if err != nil {
			return "", err
		}

		return "judge_build_list({" + strings.Join(values, ", ") + "})", nil
	}

	return "", &judgeerr.UnsupportedTypeError{Type: string(tag)}
}

// sentinelValues flattens a pointer-structure array, mapping null and "null"
// to TreeSentinel.
func sentinelValues(value testcase.Value) ([]string, error) {
	elements, err := toSlice(value)

	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(elements))

	for i, element := range elements {
		if isNull(element) {
			values = append(values, strconv.Itoa(TreeSentinel))
			continue
		}

		number, err := toInteger(element, testcase.Int)

		if err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}

		values = append(values, strconv.FormatInt(number, 10))
	}

	return values, nil
}

func isNull(value testcase.Value) bool {
	if value == nil {
		return true
	}

	text, ok := value.(string)
	return ok && text == "null"
}

func toSlice(value testcase.Value) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	}

	return nil, errors.Errorf("value %v is not an array", value)
}

func toFloat(value testcase.Value) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}

	return 0, false
}

func toInteger(value testcase.Value, tag testcase.TypeTag) (int64, error) {
	number, ok := toFloat(value)

	if !ok || number != math.Trunc(number) || math.IsInf(number, 0) {
		return 0, errors.Errorf("value %v is not an integer", value)
	}

	if tag == testcase.Int && (number < math.MinInt32 || number > math.MaxInt32) {
		return 0, errors.Errorf("value %v overflows int", value)
	}

	if number < math.MinInt64 || number >= math.MaxInt64 {
		return 0, errors.Errorf("value %v overflows long", value)
	}

	return int64(number), nil
}

func quoteString(text string) string {
	var builder strings.Builder

	builder.WriteByte('"')

	for i := 0; i < len(text); i++ {
		builder.WriteString(escapeByte(text[i], '"'))
	}

	builder.WriteByte('"')
	return builder.String()
}

func quoteChar(c byte) string {
	return "'" + escapeByte(c, '\'') + "'"
}

// escapeByte escapes one byte of a C++ literal. Control bytes use three digit
// octal escapes since hex escapes would swallow following hex digits.
func escapeByte(c byte, quote byte) string {
	switch c {
	case '\\':
		return `\\`
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '?':
		return `\?`
	case quote:
		return `\` + string([]byte{quote})
	}

	if c < 0x20 || c == 0x7f {
		return fmt.Sprintf(`\%03o`, c)
	}

	return string([]byte{c})
}
