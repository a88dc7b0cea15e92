package grader

import (
	"encoding/json"
	"strings"

	"judge-engine/internal/marshal"
	"judge-engine/internal/testcase"
)

// RemoteStatus is the coarse outcome reported by a remote execution service
// for one test run, before the output is compared.
type RemoteStatus int

const (
	RemoteFinished RemoteStatus = iota
	RemoteCompileError
	RemoteRuntimeError
	RemoteTimeLimitExceeded
)

// GradeRemote grades one remote result. A finished run is accepted when its
// stdout, parsed as JSON, equals the expected value.
func GradeRemote(status RemoteStatus, stdout string, expected testcase.Value) testcase.Verdict {
	switch status {
	case RemoteCompileError:
		return testcase.CompileError
	case RemoteRuntimeError:
		return testcase.RuntimeError
	case RemoteTimeLimitExceeded:
		return testcase.TimeLimitExceeded
	}

	var actual any

	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &actual); err != nil {
		return testcase.WrongAnswer
	}

	if marshal.Equal(expected, actual) {
		return testcase.Accepted
	}

	return testcase.WrongAnswer
}

// Aggregate picks the submission verdict: the highest priority verdict among
// the results wins, so a single compile error outranks any number of
// accepted results. No results is a runtime error since nothing was judged.
func Aggregate(verdicts []testcase.Verdict) testcase.Verdict {
	if len(verdicts) == 0 {
		return testcase.RuntimeError
	}

	final := testcase.Accepted

	for _, verdict := range verdicts {
		if verdict.Priority() > final.Priority() {
			final = verdict
		}
	}

	return final
}
