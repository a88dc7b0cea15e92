package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judge-engine/internal/testcase"
)

const prefix = "TEST_CASE_0f3a_"

func addCases(expected ...testcase.Value) []testcase.TestCase {
	cases := make([]testcase.TestCase, len(expected))

	for i, want := range expected {
		cases[i] = testcase.TestCase{
			ID:         i + 1,
			Inputs:     []testcase.Value{5.0, 3.0},
			InputTypes: []testcase.TypeTag{testcase.Int, testcase.Int},
			Expected:   want,
		}
	}

	return cases
}

func TestParse(t *testing.T) {
	t.Run("should pass a matching result", func(t *testing.T) {
		verdicts := Parse(prefix+"1:1:42:8\n", prefix, addCases(8.0), nil)

		require.Len(t, verdicts, 1)
		assert.Equal(t, testcase.Passed, verdicts[0].Status)
		assert.Equal(t, 8.0, verdicts[0].Actual)
		assert.Equal(t, int64(42), verdicts[0].ExecutionTimeMicros)
	})

	t.Run("should fail a different result and report it", func(t *testing.T) {
		verdicts := Parse(prefix+"1:1:42:8\n", prefix, addCases(9.0), nil)

		require.Len(t, verdicts, 1)
		assert.Equal(t, testcase.Failed, verdicts[0].Status)
		assert.Equal(t, 9.0, verdicts[0].Expected)
		assert.Equal(t, 8.0, verdicts[0].Actual)
	})

	t.Run("should fail test cases without a line", func(t *testing.T) {
		verdicts := Parse(prefix+"1:1:10:8\n", prefix, addCases(8.0, 8.0), nil)

		require.Len(t, verdicts, 2)
		assert.Equal(t, testcase.Passed, verdicts[0].Status)
		assert.Equal(t, testcase.Failed, verdicts[1].Status)
		assert.Nil(t, verdicts[1].Actual)
	})

	t.Run("should prefer the explicit expected slice", func(t *testing.T) {
		verdicts := Parse(prefix+"1:1:10:8\n", prefix, addCases(1.0), []testcase.Value{8.0})
		assert.Equal(t, testcase.Passed, verdicts[0].Status)
	})

	t.Run("should ignore noise and keep the first line per id", func(t *testing.T) {
		output := "debug output\r\n" + prefix + "1:1:10:8\r\n" + prefix + "1:1:11:9\n" + prefix + ":x\n" +
			prefix + "2:2\n" + prefix + "2:3:5:8\n"
		verdicts := Parse(output, prefix, addCases(8.0, 8.0), nil)

		assert.Equal(t, testcase.Passed, verdicts[0].Status)
		assert.Equal(t, int64(10), verdicts[0].ExecutionTimeMicros)
		assert.Equal(t, testcase.Failed, verdicts[1].Status)
	})

	t.Run("should ignore lines without the run prefix", func(t *testing.T) {
		output := "TEST_CASE_1:1:0:9\nTEST_CASE_beef_1:1:0:9\n" + prefix + "1:1:43:8\n"
		verdicts := Parse(output, prefix, addCases(9.0), nil)

		require.Len(t, verdicts, 1)
		assert.Equal(t, testcase.Failed, verdicts[0].Status)
		assert.Equal(t, 8.0, verdicts[0].Actual)
		assert.Equal(t, int64(43), verdicts[0].ExecutionTimeMicros)
	})

	t.Run("should keep colons inside the result", func(t *testing.T) {
		cases := addCases("a:b:c")
		verdicts := Parse(prefix+"1:1:3:a:b:c\n", prefix, cases, nil)

		assert.Equal(t, testcase.Passed, verdicts[0].Status)
		assert.Equal(t, "a:b:c", verdicts[0].Actual)
	})

	t.Run("should decode arrays against the expected shape", func(t *testing.T) {
		cases := addCases([]any{[]any{1.0, 2.0}, []any{3.0}})
		verdicts := Parse(prefix+"1:1:3:[1,2],[3]\n", prefix, cases, nil)

		assert.Equal(t, testcase.Passed, verdicts[0].Status)
	})

	t.Run("should compare trees in level order with nulls", func(t *testing.T) {
		cases := addCases([]any{1.0, nil, 2.0})
		verdicts := Parse(prefix+"1:1:3:1,null,2\n", prefix, cases, nil)

		assert.Equal(t, testcase.Passed, verdicts[0].Status)
	})

	t.Run("should fail undecodable output without an error", func(t *testing.T) {
		verdicts := Parse(prefix+"1:1:3:banana\n", prefix, addCases(8.0), nil)

		assert.Equal(t, testcase.Failed, verdicts[0].Status)
		assert.Nil(t, verdicts[0].Actual)
	})

	t.Run("should return one verdict per test case for empty output", func(t *testing.T) {
		verdicts := Parse("", prefix, addCases(1.0, 2.0, 3.0), nil)

		require.Len(t, verdicts, 3)

		for _, verdict := range verdicts {
			assert.Equal(t, testcase.Failed, verdict.Status)
		}
	})
}

func TestGradeRemote(t *testing.T) {
	assert.Equal(t, testcase.Accepted, GradeRemote(RemoteFinished, "8\n", 8.0))
	assert.Equal(t, testcase.Accepted, GradeRemote(RemoteFinished, "[1, 2]", []any{1.0, 2.0}))
	assert.Equal(t, testcase.WrongAnswer, GradeRemote(RemoteFinished, "9", 8.0))
	assert.Equal(t, testcase.WrongAnswer, GradeRemote(RemoteFinished, "not json", 8.0))
	assert.Equal(t, testcase.CompileError, GradeRemote(RemoteCompileError, "", 8.0))
	assert.Equal(t, testcase.RuntimeError, GradeRemote(RemoteRuntimeError, "8", 8.0))
	assert.Equal(t, testcase.TimeLimitExceeded, GradeRemote(RemoteTimeLimitExceeded, "8", 8.0))
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []testcase.Verdict
		want     testcase.Verdict
	}{
		{"wrong answer beats accepted", []testcase.Verdict{testcase.WrongAnswer, testcase.Accepted}, testcase.WrongAnswer},
		{"all accepted", []testcase.Verdict{testcase.Accepted, testcase.Accepted}, testcase.Accepted},
		{"compile error beats everything", []testcase.Verdict{testcase.CompileError, testcase.WrongAnswer}, testcase.CompileError},
		{"runtime error beats time limit", []testcase.Verdict{testcase.TimeLimitExceeded, testcase.RuntimeError}, testcase.RuntimeError},
		{"time limit beats wrong answer", []testcase.Verdict{testcase.WrongAnswer, testcase.TimeLimitExceeded}, testcase.TimeLimitExceeded},
		{"nothing judged", nil, testcase.RuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.verdicts))
		})
	}
}
