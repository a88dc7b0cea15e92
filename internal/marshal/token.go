package marshal

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"judge-engine/internal/judgeerr"
	"judge-engine/internal/testcase"
)

const nullToken = "null"

// FromOutputToken decodes a printed token using the declared type.
func FromOutputToken(token string, tag testcase.TypeTag) (testcase.Value, error) {
	switch {
	case tag == testcase.Int || tag == testcase.Long || tag == testcase.Double:
		return parseNumber(token)
	case tag == testcase.Bool:
		return parseBool(token)
	case tag == testcase.String || tag == testcase.Char:
		return unescapeToken(token), nil
	case tag.IsVector():
		parts, err := splitElements(token)

		if err != nil {
			return nil, err
		}

		values := make([]any, 0, len(parts))

		for _, part := range parts {
			if tag.Element().IsVector() {
				inner, err := unbracket(part)

				if err != nil {
					return nil, err
				}

				part = inner
			}

			value, err := FromOutputToken(part, tag.Element())

			if err != nil {
				return nil, err
			}

			values = append(values, value)
		}

		return values, nil
	case tag.IsPointer():
		parts, err := splitElements(token)

		if err != nil {
			return nil, err
		}

		values := make([]any, 0, len(parts))

		for _, part := range parts {
			if strings.TrimSpace(part) == nullToken {
				values = append(values, nil)
				continue
			}

			value, err := parseNumber(part)

			if err != nil {
				return nil, err
			}

			values = append(values, value)
		}

		return values, nil
	}

	return nil, &judgeerr.UnsupportedTypeError{Type: string(tag)}
}

// FromOutputShape decodes a printed token using the runtime shape of the
// expected value instead of a declared type. The driver can only emit text,
// so the expected value is the only reliable description of what was meant.
func FromOutputShape(token string, expected testcase.Value) (testcase.Value, error) {
	switch v := expected.(type) {
	case nil:
		trimmed := strings.TrimSpace(token)

		if trimmed == "" || trimmed == nullToken {
			return nil, nil
		}

		return inferScalar(token), nil
	case bool:
		return parseBool(token)
	case string:
		return unescapeToken(token), nil
	case []any:
		parts, err := splitElements(token)

		if err != nil {
			return nil, err
		}

		var shape testcase.Value
		hasShape := false

		for _, element := range v {
			if element != nil {
				shape, hasShape = element, true
				break
			}
		}

		values := make([]any, 0, len(parts))

		for _, part := range parts {
			if strings.TrimSpace(part) == nullToken {
				if _, isString := shape.(string); !isString {
					values = append(values, nil)
					continue
				}
			}

			if !hasShape {
				value, err := inferElement(part)

				if err != nil {
					return nil, err
				}

				values = append(values, value)
				continue
			}

			if _, nested := shape.([]any); nested {
				inner, err := unbracket(part)

				if err != nil {
					return nil, err
				}

				part = inner
			}

			value, err := FromOutputShape(part, shape)

			if err != nil {
				return nil, err
			}

			values = append(values, value)
		}

		return values, nil
	}

	if _, ok := toFloat(expected); ok {
		return parseNumber(token)
	}

	return nil, errors.Errorf("unsupported expected value %T", expected)
}

func parseNumber(token string) (float64, error) {
	number, err := strconv.ParseFloat(strings.TrimSpace(token), 64)

	if err != nil {
		return 0, errors.Wrapf(err, "token %q is not a number", token)
	}

	return number, nil
}

func parseBool(token string) (bool, error) {
	switch strings.TrimSpace(token) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}

	return false, errors.Errorf("token %q is not a bool", token)
}

// inferScalar is used only when there is no expected shape to go by.
func inferScalar(token string) testcase.Value {
	trimmed := strings.TrimSpace(token)

	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return number
	}

	if trimmed == "true" || trimmed == "false" {
		return trimmed == "true"
	}

	return unescapeToken(token)
}

func inferElement(token string) (testcase.Value, error) {
	if strings.HasPrefix(token, "[") {
		inner, err := unbracket(token)

		if err != nil {
			return nil, err
		}

		return FromOutputShape(inner, []any{})
	}

	return inferScalar(token), nil
}

// splitElements splits a comma joined token at top-level unescaped commas.
// The empty token is the empty array.
func splitElements(token string) ([]string, error) {
	if token == "" {
		return []string{}, nil
	}

	var (
		parts   []string
		current strings.Builder
		depth   int
		escaped bool
	)

	for i := 0; i < len(token); i++ {
		c := token[i]

		if escaped {
			current.WriteByte(c)
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
			current.WriteByte(c)
			continue
		case '[':
			depth++
		case ']':
			depth--

			if depth < 0 {
				return nil, errors.Errorf("token %q has unbalanced brackets", token)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
				continue
			}
		}

		current.WriteByte(c)
	}

	if depth != 0 {
		return nil, errors.Errorf("token %q has unbalanced brackets", token)
	}

	return append(parts, current.String()), nil
}

func unbracket(token string) (string, error) {
	trimmed := strings.TrimSpace(token)

	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return "", errors.Errorf("token %q is not a bracketed array", token)
	}

	return trimmed[1 : len(trimmed)-1], nil
}

// unescapeToken reverses the driver's output escaping of backslash, comma,
// brackets, newline and carriage return.
func unescapeToken(token string) string {
	if !strings.Contains(token, `\`) {
		return token
	}

	var builder strings.Builder

	for i := 0; i < len(token); i++ {
		c := token[i]

		if c != '\\' || i == len(token)-1 {
			builder.WriteByte(c)
			continue
		}

		i++

		switch token[i] {
		case 'n':
			builder.WriteByte('\n')
		case 'r':
			builder.WriteByte('\r')
		default:
			builder.WriteByte(token[i])
		}
	}

	return builder.String()
}
