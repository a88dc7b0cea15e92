// Package grader turns raw program output into verdicts. It is shared by the
// synchronous harness path and the asynchronous remote path, and it never
// fails because of what a user program printed.
package grader

import (
	"strconv"
	"strings"

	"judge-engine/internal/marshal"
	"judge-engine/internal/testcase"
)

const protocolFields = 4

type line struct {
	elapsedMicros int64
	result        string
}

// Parse matches protocol lines starting with prefix, the run's line prefix,
// to test cases. Lines with any other prefix are ignored. expected is parallel to
// testCases; when it is shorter the test case's own Expected value is used.
// A test case with no line, or whose token cannot be decoded against the
// expected shape, is FAILED with a nil actual value.
func Parse(rawOutput, prefix string, testCases []testcase.TestCase, expected []testcase.Value) []testcase.TestVerdict {
	lines := collectLines(rawOutput, prefix)
	verdicts := make([]testcase.TestVerdict, 0, len(testCases))

	for i, tc := range testCases {
		want := tc.Expected

		if i < len(expected) {
			want = expected[i]
		}

		verdict := testcase.TestVerdict{
			ID:       tc.ID,
			Status:   testcase.Failed,
			Expected: want,
		}

		if found, ok := lines[tc.ID]; ok {
			verdict.ExecutionTimeMicros = found.elapsedMicros

			if actual, err := marshal.FromOutputShape(found.result, want); err == nil {
				verdict.Actual = actual

				if marshal.Equal(want, actual) {
					verdict.Status = testcase.Passed
				}
			}
		}

		verdicts = append(verdicts, verdict)
	}

	return verdicts
}

// collectLines keeps the first protocol line per test id. The result field is
// everything after the third colon, so results containing ':' survive.
func collectLines(rawOutput, prefix string) map[int]line {
	lines := map[int]line{}

	for _, raw := range strings.Split(rawOutput, "\n") {
		raw = strings.TrimRight(raw, "\r")

		if prefix == "" || !strings.HasPrefix(raw, prefix) {
			continue
		}

		fields := strings.SplitN(strings.TrimPrefix(raw, prefix), ":", protocolFields)

		if len(fields) < protocolFields {
			continue
		}

		id, err := strconv.Atoi(fields[1])

		if err != nil || fields[0] != fields[1] {
			continue
		}

		if _, seen := lines[id]; seen {
			continue
		}

		elapsed, _ := strconv.ParseInt(fields[2], 10, 64)
		lines[id] = line{elapsedMicros: elapsed, result: fields[3]}
	}

	return lines
}
