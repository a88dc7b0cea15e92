// Package judge is the synchronous judging path: validate, generate the
// harness, run it in the sandbox through the bounded task queue and grade
// the printed results.
package judge

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/grader"
	"judge-engine/internal/harness"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/security"
	"judge-engine/internal/taskqueue"
	"judge-engine/internal/testcase"
)

// Language is the only language the harness path generates code for.
const Language = "cpp"

// Request is a synchronous judging request. Expected is parallel to
// TestCases, when it is empty each test case's own expected value is used.
type Request struct {
	Language           string              `json:"language" validate:"required,oneof=cpp c++ C++"`
	Code               string              `json:"code" validate:"required"`
	FunctionName       string              `json:"functionName" validate:"required"`
	FunctionReturnType testcase.TypeTag    `json:"functionReturnType" validate:"required"`
	TestCases          []testcase.TestCase `json:"testCases" validate:"required,min=1"`
	Expected           []testcase.Value    `json:"expected"`
}

// Executor runs generated source in isolation.
type Executor interface {
	Execute(ctx context.Context, request sandbox.Request) (*sandbox.ExecutionResult, error)
}

type Service struct {
	validator *security.Validator
	generator *harness.Generator
	executor  Executor
	queue     *taskqueue.Queue[*testcase.RunResult]
	limits    config.Limits
}

func NewService(validator *security.Validator, generator *harness.Generator, executor Executor,
	queue *taskqueue.Queue[*testcase.RunResult], limits config.Limits) *Service {
	return &Service{
		validator: validator,
		generator: generator,
		executor:  executor,
		queue:     queue,
		limits:    limits,
	}
}

// Execute judges the request. Validation and generation failures return
// before anything is queued; a full queue returns taskqueue.ErrQueueFull and
// an environment failure returns a *judgeerr.InfrastructureError. Compile
// errors, crashes and timeouts are part of the returned result. When ctx ends
// before the task started, the task is cancelled and never runs.
func (s *Service) Execute(ctx context.Context, request Request, priority int) (*testcase.RunResult, error) {
	if len(request.Expected) > 0 && len(request.Expected) != len(request.TestCases) {
		return nil, judgeerr.NewValidationError(judgeerr.CategoryMalformedTestCase,
			"expected has %d values for %d test cases", len(request.Expected), len(request.TestCases))
	}

	if err := s.validator.Validate(request.Code, request.TestCases); err != nil {
		return nil, err
	}

	source, err := s.generator.Generate(request.Code, request.FunctionName, request.FunctionReturnType, request.TestCases)

	if err != nil {
		return nil, err
	}

	handle, err := s.queue.Add(func(ctx context.Context) (*testcase.RunResult, error) {
		return s.run(ctx, source, request)
	}, priority)

	if err != nil {
		return nil, err
	}

	log.Debug().Str("task", handle.ID).Int("testCases", source.TestCases).Msg("queued judging task")

	result, err := handle.Wait(ctx)

	if err != nil && ctx.Err() != nil {
		if s.queue.Cancel(handle.ID) {
			log.Debug().Str("task", handle.ID).Msg("cancelled abandoned judging task")
		}
	}

	return result, err
}

func (s *Service) run(ctx context.Context, source *harness.Source, request Request) (*testcase.RunResult, error) {
	result, err := s.executor.Execute(ctx, sandbox.Request{Language: Language, SourceCode: source.Text})

	if err != nil {
		log.Error().Err(err).Bool("infrastructure", judgeerr.IsInfrastructure(err)).Msg("sandbox execution failed")
		return nil, err
	}

	if result.CompileFailed() {
		message := truncate(firstNonEmpty(result.CompilerOutput, result.Stdout), s.limits.MaxOutputSize)

		return &testcase.RunResult{
			CompileError: &message,
			Results:      []testcase.TestVerdict{},
		}, nil
	}

	run := &testcase.RunResult{
		Results: grader.Parse(result.Stdout, source.LinePrefix, request.TestCases, request.Expected),
	}

	switch result.Status {
	case sandbox.TimeLimitExceeded:
		run.TimeLimitExceeded = true
	case sandbox.RunTimeError, sandbox.MemoryConstraintExceeded:
		run.RuntimeError = truncate(firstNonEmpty(result.Stderr, result.Status.String()), s.limits.MaxOutputSize)
	}

	if result.TimedOut {
		run.TimeLimitExceeded = true
	}

	return run, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}

	return ""
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	return text[:limit]
}
