package testcase

// Value is a JSON value as decoded by encoding/json: float64, bool, string,
// nil or []any. The engine only ever reads values, it never mutates them.
type Value = any

// TestCase is one invocation of the user's function.
type TestCase struct {
	ID         int       `json:"id"`
	Inputs     []Value   `json:"inputs"`
	InputTypes []TypeTag `json:"inputTypes"`
	Expected   Value     `json:"expected,omitempty"`
}

type Status string

const (
	Passed Status = "PASSED"
	Failed Status = "FAILED"
)

// TestVerdict is the outcome of one test case on the synchronous path.
type TestVerdict struct {
	ID                  int    `json:"id"`
	Status              Status `json:"status"`
	Expected            Value  `json:"expected"`
	Actual              Value  `json:"actual"`
	ExecutionTimeMicros int64  `json:"executionTimeMicros"`
}

// RunResult is the aggregate answer of a synchronous judging run. A non nil
// CompileError always comes with an empty Results slice.
type RunResult struct {
	CompileError      *string       `json:"compileError"`
	Results           []TestVerdict `json:"results"`
	TimeLimitExceeded bool          `json:"timeLimitExceeded,omitempty"`
	RuntimeError      string        `json:"runtimeError,omitempty"`
}

// Verdict is the terminal classification of a submission or of a single
// remote test result.
type Verdict string

const (
	Pending           Verdict = "pending"
	Accepted          Verdict = "accepted"
	WrongAnswer       Verdict = "wrong_answer"
	TimeLimitExceeded Verdict = "time_limit_exceeded"
	CompileError      Verdict = "compile_error"
	RuntimeError      Verdict = "runtime_error"
)

// Priority orders terminal verdicts for aggregation, higher wins:
// compile_error > runtime_error > time_limit_exceeded > wrong_answer > accepted.
func (v Verdict) Priority() int {
	switch v {
	case CompileError:
		return 5
	case RuntimeError:
		return 4
	case TimeLimitExceeded:
		return 3
	case WrongAnswer:
		return 2
	case Accepted:
		return 1
	default:
		return 0
	}
}

// Terminal reports whether the verdict may no longer change.
func (v Verdict) Terminal() bool {
	return v.Priority() > 0
}
