package marshal

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"judge-engine/internal/testcase"
)

const floatMargin = 1e-9

var equalOptions = []cmp.Option{
	cmpopts.EquateApprox(0, floatMargin),
	cmpopts.EquateNaNs(),
	cmpopts.EquateEmpty(),
}

// Equal is the structural comparison used by both judging paths. Numbers are
// normalised to float64 first so that an expected 8 equals a decoded 8.0.
func Equal(expected, actual testcase.Value) bool {
	return cmp.Equal(Normalize(expected), Normalize(actual), equalOptions...)
}

// Normalize converts every numeric representation to float64 and recurses
// into arrays and objects.
func Normalize(value testcase.Value) testcase.Value {
	switch v := value.(type) {
	case []any:
		normalized := make([]any, len(v))

		for i, element := range v {
			normalized[i] = Normalize(element)
		}

		return normalized
	case map[string]any:
		normalized := make(map[string]any, len(v))

		for key, element := range v {
			normalized[key] = Normalize(element)
		}

		return normalized
	}

	if number, ok := toFloat(value); ok {
		return number
	}

	return value
}
