package judge

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"judge-engine/internal/config"
	"judge-engine/internal/harness"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/marshal"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/security"
	"judge-engine/internal/taskqueue"
	"judge-engine/internal/testcase"
)

const addSolution = `int add(int a, int b) {
    return a + b;
}`

// runPrefix in a fake's stdout is replaced by the line prefix of the
// generated source, the way the real driver prints it.
const runPrefix = "<run>"

var linePrefixPattern = regexp.MustCompile(`TEST_CASE_[0-9a-f]{32}_`)

type fakeExecutor struct {
	mu      sync.Mutex
	sources []string
	result  *sandbox.ExecutionResult
	err     error
	block   chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, request sandbox.Request) (*sandbox.ExecutionResult, error) {
	f.mu.Lock()
	f.sources = append(f.sources, request.SourceCode)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	if f.result == nil {
		return nil, f.err
	}

	result := *f.result
	result.Stdout = strings.ReplaceAll(result.Stdout, runPrefix, linePrefixPattern.FindString(request.SourceCode))

	return &result, f.err
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sources)
}

type JudgeSuite struct {
	suite.Suite

	ctx      context.Context
	executor *fakeExecutor
	queue    *taskqueue.Queue[*testcase.RunResult]
	service  *Service
}

func (s *JudgeSuite) SetupTest() {
	s.ctx = context.Background()
	s.executor = &fakeExecutor{}
	s.queue = taskqueue.New[*testcase.RunResult](taskqueue.Config{MaxConcurrent: 1, MaxQueueSize: 1})

	limits := config.DefaultLimits()
	policy := config.DefaultSecurityPolicy()

	validator, err := security.NewValidator(limits, policy)
	s.Require().NoError(err)

	generator, err := harness.NewGenerator(policy, marshal.LevelOrder)
	s.Require().NoError(err)

	s.service = NewService(validator, generator, s.executor, s.queue, limits)
}

func (s *JudgeSuite) TearDownTest() {
	_ = s.queue.Shutdown(time.Second)
}

func (s *JudgeSuite) addRequest(expected float64) Request {
	return Request{
		Language:           "cpp",
		Code:               addSolution,
		FunctionName:       "add",
		FunctionReturnType: testcase.Int,
		TestCases: []testcase.TestCase{{
			ID:         1,
			Inputs:     []testcase.Value{5.0, 3.0},
			InputTypes: []testcase.TypeTag{testcase.Int, testcase.Int},
		}},
		Expected: []testcase.Value{expected},
	}
}

func (s *JudgeSuite) finished(stdout string) *sandbox.ExecutionResult {
	return &sandbox.ExecutionResult{Status: sandbox.Finished, Stdout: stdout}
}

func (s *JudgeSuite) TestAddPasses() {
	s.executor.result = s.finished(runPrefix + "1:1:12:8\n")

	result, err := s.service.Execute(s.ctx, s.addRequest(8), 0)

	s.Require().NoError(err)
	s.Nil(result.CompileError)
	s.Require().Len(result.Results, 1)
	s.Equal(testcase.TestVerdict{ID: 1, Status: testcase.Passed, Expected: 8.0, Actual: 8.0, ExecutionTimeMicros: 12}, result.Results[0])
	s.Contains(s.executor.sources[0], "judge_solution.add(arg0, arg1)")
}

func (s *JudgeSuite) TestAddMismatchFails() {
	s.executor.result = s.finished(runPrefix + "1:1:12:8\n")

	result, err := s.service.Execute(s.ctx, s.addRequest(9), 0)

	s.Require().NoError(err)
	s.Require().Len(result.Results, 1)
	s.Equal(testcase.Failed, result.Results[0].Status)
	s.Equal(8.0, result.Results[0].Actual)
}

func (s *JudgeSuite) TestTreeInput() {
	s.executor.result = s.finished(runPrefix + "1:1:3:1,3,2\n")

	result, err := s.service.Execute(s.ctx, Request{
		Language:           "cpp",
		Code:               "vector<int> inorderTraversal(TreeNode* root) { return {}; }",
		FunctionName:       "inorderTraversal",
		FunctionReturnType: "vector<int>",
		TestCases: []testcase.TestCase{{
			ID:         1,
			Inputs:     []testcase.Value{[]any{1.0, nil, 2.0, 3.0}},
			InputTypes: []testcase.TypeTag{testcase.TreeNode},
			Expected:   []any{1.0, 3.0, 2.0},
		}},
	}, 0)

	s.Require().NoError(err)
	s.Equal(testcase.Passed, result.Results[0].Status)
	s.Contains(s.executor.sources[0], "TreeNode* arg0 = judge_build_tree({1, -1, 2, 3});")
}

func (s *JudgeSuite) TestCompileError() {
	s.executor.result = &sandbox.ExecutionResult{
		Status:         sandbox.CompilationFailed,
		CompilerOutput: "error: expected ';' before '}' token",
	}

	result, err := s.service.Execute(s.ctx, s.addRequest(8), 0)

	s.Require().NoError(err)
	s.Require().NotNil(result.CompileError)
	s.Contains(*result.CompileError, "expected ';'")
	s.Empty(result.Results)
}

func (s *JudgeSuite) TestTimeLimit() {
	s.executor.result = &sandbox.ExecutionResult{Status: sandbox.TimeLimitExceeded, TimedOut: true}

	result, err := s.service.Execute(s.ctx, s.addRequest(8), 0)

	s.Require().NoError(err)
	s.True(result.TimeLimitExceeded)
	s.Require().Len(result.Results, 1)
	s.Equal(testcase.Failed, result.Results[0].Status)
}

func (s *JudgeSuite) TestRuntimeError() {
	s.executor.result = &sandbox.ExecutionResult{Status: sandbox.RunTimeError, ExitCode: 139, Stderr: "segmentation fault"}

	result, err := s.service.Execute(s.ctx, s.addRequest(8), 0)

	s.Require().NoError(err)
	s.Equal("segmentation fault", result.RuntimeError)
	s.Nil(result.Results[0].Actual)
}

func (s *JudgeSuite) TestValidationStopsBeforeExecution() {
	request := s.addRequest(8)
	request.Code = `int add(int a, int b) { system("rm -rf /"); return a + b; }`

	_, err := s.service.Execute(s.ctx, request, 0)

	s.True(judgeerr.IsValidation(err))
	s.Zero(s.executor.calls())
}

func (s *JudgeSuite) TestExpectedLengthMismatch() {
	request := s.addRequest(8)
	request.Expected = []testcase.Value{8.0, 9.0}

	_, err := s.service.Execute(s.ctx, request, 0)

	s.True(judgeerr.IsValidation(err))
}

func (s *JudgeSuite) TestInfrastructureFailurePropagates() {
	s.executor.err = judgeerr.NewInfrastructureError("start container", context.DeadlineExceeded)

	_, err := s.service.Execute(s.ctx, s.addRequest(8), 0)

	s.True(judgeerr.IsInfrastructure(err))
}

func (s *JudgeSuite) TestQueueFull() {
	s.executor.block = make(chan struct{})
	s.executor.result = s.finished(runPrefix + "1:1:12:8\n")

	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = s.service.Execute(s.ctx, s.addRequest(8), 0)
		}()
	}

	s.Require().Eventually(func() bool {
		stats := s.queue.Stats()
		return stats.Running == 1 && stats.Queued == 1
	}, time.Second, 5*time.Millisecond)

	_, err := s.service.Execute(s.ctx, s.addRequest(8), 0)
	s.ErrorIs(err, taskqueue.ErrQueueFull)

	close(s.executor.block)
	wg.Wait()
}

func (s *JudgeSuite) TestPrintedResultLinesCannotBeForged() {
	s.executor.result = s.finished("TEST_CASE_1:1:0:9\n" + runPrefix + "1:1:43:8\n")

	result, err := s.service.Execute(s.ctx, s.addRequest(9), 0)

	s.Require().NoError(err)
	s.Require().Len(result.Results, 1)
	s.Equal(testcase.Failed, result.Results[0].Status)
	s.Equal(8.0, result.Results[0].Actual)
}

func (s *JudgeSuite) TestAbandonedWaitCancelsQueuedTask() {
	s.executor.block = make(chan struct{})
	s.executor.result = s.finished(runPrefix + "1:1:12:8\n")

	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = s.service.Execute(s.ctx, s.addRequest(8), 0)
	}()

	s.Require().Eventually(func() bool {
		return s.queue.Stats().Running == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()

	_, err := s.service.Execute(ctx, s.addRequest(8), 0)
	s.ErrorIs(err, context.DeadlineExceeded)

	stats := s.queue.Stats()
	s.Equal(0, stats.Queued)
	s.Equal(1, stats.Cancelled)

	close(s.executor.block)
	<-done

	s.Equal(1, s.executor.calls())
}

func TestJudgeSuite(t *testing.T) {
	suite.Run(t, new(JudgeSuite))
}
