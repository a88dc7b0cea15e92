// Package submission is the asynchronous judging pipeline. Submissions are
// persisted as pending, queued, and judged one at a time against a remote
// execution service using the problem's stored template.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/files"
	"judge-engine/internal/grader"
	"judge-engine/internal/notify"
	"judge-engine/internal/remote"
	"judge-engine/internal/repository"
	"judge-engine/internal/security"
	"judge-engine/internal/testcase"
)

const (
	DefaultPlaceholder = "{{USER_CODE}}"

	processingMessage = "processing"

	codeArtifact    = "code.txt"
	programArtifact = "program.txt"
	resultsArtifact = "results.json"
)

// Message is the queue payload, only the id travels.
type Message struct {
	ID string `json:"id"`
}

// Publisher hands a message to the sequential pipeline queue.
type Publisher interface {
	SubmitMessageToQueue(body []byte) error
}

type Config struct {
	// Placeholder is the token in a template's wrapper code replaced by
	// the user's code.
	Placeholder   string
	MaxOutputSize int
}

type Dependencies struct {
	Repository repository.Repository
	Validator  *security.Validator
	Publisher  Publisher
	Executor   remote.BatchExecutor
	// Files is optional, artifacts are skipped without it.
	Files    files.Files
	Notifier notify.Notifier
}

type Service struct {
	repository repository.Repository
	validator  *security.Validator
	publisher  Publisher
	executor   remote.BatchExecutor
	files      files.Files
	notifier   notify.Notifier
	config     Config
}

// CreateResponse is returned as soon as the submission is queued.
type CreateResponse struct {
	Submission *repository.Submission `json:"submission"`
	Message    string                 `json:"message"`
}

// outcome is what judging a submission produced.
type outcome struct {
	verdict testcase.Verdict
	message string
	results []repository.TestResult
	program string

	passed        int
	executionTime float64
	memoryUsed    int
}

func NewService(dependencies Dependencies, config Config) *Service {
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}

	return &Service{
		repository: dependencies.Repository,
		validator:  dependencies.Validator,
		publisher:  dependencies.Publisher,
		executor:   dependencies.Executor,
		files:      dependencies.Files,
		notifier:   dependencies.Notifier,
		config:     config,
	}
}

// UsePublisher sets the queue submissions are published on. The queue's
// consumer is usually the service itself, so it is attached after both
// exist.
func (s *Service) UsePublisher(publisher Publisher) {
	s.publisher = publisher
}

// Create validates and persists the submission as pending and queues it.
// A problem that does not exist returns repository.ErrNotFound.
func (s *Service) Create(ctx context.Context, problemID, code, language string) (*CreateResponse, error) {
	if s.publisher == nil {
		return nil, errors.New("submission service has no queue to publish on")
	}

	if err := s.validator.ValidateCode(code); err != nil {
		return nil, err
	}

	if _, err := s.repository.GetProblem(ctx, problemID); err != nil {
		return nil, errors.Wrapf(err, "failed to load problem %s", problemID)
	}

	submission := &repository.Submission{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		Language:  language,
		Code:      code,
		Status:    testcase.Pending,
	}

	if err := s.repository.InsertSubmission(ctx, submission); err != nil {
		return nil, errors.Wrap(err, "failed to insert submission")
	}

	body, _ := json.Marshal(Message{ID: submission.ID})

	if err := s.publisher.SubmitMessageToQueue(body); err != nil {
		// nothing will ever pick it up, close it out instead of leaving it pending
		s.complete(ctx, submission, &outcome{
			verdict: testcase.RuntimeError,
			message: fmt.Sprintf("failed to queue submission: %v", err),
		})

		return nil, errors.Wrap(err, "failed to queue submission")
	}

	log.Info().Str("id", submission.ID).Str("problem", problemID).Msg("submission queued")

	return &CreateResponse{Submission: submission, Message: processingMessage}, nil
}

// HandleMessage is the queue handler. Malformed messages are dropped, an
// error is only returned when the verdict could not be stored.
func (s *Service) HandleMessage(ctx context.Context, body []byte) error {
	var message Message

	if err := json.Unmarshal(body, &message); err != nil || message.ID == "" {
		log.Warn().Err(err).Msg("dropping malformed submission message")
		return nil
	}

	_, err := s.Process(ctx, message.ID)
	return err
}

// Process judges a pending submission and stores its terminal verdict.
// Every judging failure becomes a runtime_error verdict, unless ctx ended
// first: the submission then stays pending for the queue to redeliver. A
// submission that is already terminal is returned untouched.
func (s *Service) Process(ctx context.Context, id string) (*repository.Submission, error) {
	submission, err := s.repository.GetSubmission(ctx, id)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to load submission %s", id)
	}

	if submission.Status.Terminal() {
		return submission, nil
	}

	result, err := s.judge(ctx, submission)

	if err != nil && ctx.Err() != nil {
		return nil, errors.Wrapf(err, "judging of submission %s interrupted", id)
	}

	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("submission failed")

		result = &outcome{verdict: testcase.RuntimeError, message: err.Error()}
	}

	return s.complete(ctx, submission, result)
}

func (s *Service) judge(ctx context.Context, submission *repository.Submission) (*outcome, error) {
	problem, err := s.repository.GetProblem(ctx, submission.ProblemID)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to load problem %s", submission.ProblemID)
	}

	language, err := remote.CanonicalLanguage(submission.Language)

	if err != nil {
		return nil, err
	}

	languageID, _ := remote.LanguageID(language)

	template, ok := problem.Template(language)

	if !ok {
		return nil, errors.Errorf("problem %s has no template for %s", problem.ID, language)
	}

	program, err := s.substitute(template.WrapperCode, submission.Code)

	if err != nil {
		return nil, err
	}

	if len(problem.TestCases) == 0 {
		return nil, errors.Errorf("problem %s has no test cases", problem.ID)
	}

	requests := make([]remote.Request, len(problem.TestCases))

	for i, tc := range problem.TestCases {
		stdin, err := buildStdin(problem.FunctionParams, tc)

		if err != nil {
			return nil, err
		}

		requests[i] = remote.Request{LanguageID: languageID, SourceCode: program, Stdin: stdin}
	}

	results, err := s.executor.ExecuteBatch(ctx, requests)

	if err != nil {
		return nil, errors.Wrap(err, "remote execution failed")
	}

	if len(results) != len(requests) {
		return nil, errors.Errorf("remote execution returned %d results for %d test cases", len(results), len(requests))
	}

	return s.grade(problem.TestCases, results, program), nil
}

func (s *Service) grade(testCases []repository.ProblemTestCase, results []remote.Result, program string) *outcome {
	verdicts := make([]testcase.Verdict, len(results))
	graded := make([]repository.TestResult, len(results))
	judged := &outcome{program: program}

	for i, result := range results {
		verdicts[i] = grader.GradeRemote(result.Outcome(), result.Stdout, testCases[i].Expected)

		if verdicts[i] == testcase.Accepted {
			judged.passed++
		}

		if seconds, err := strconv.ParseFloat(result.Time, 64); err == nil && seconds > judged.executionTime {
			judged.executionTime = seconds
		}

		if result.Memory > judged.memoryUsed {
			judged.memoryUsed = result.Memory
		}

		stderr := result.Stderr

		if verdicts[i] == testcase.CompileError {
			stderr = result.CompileOutput
		}

		graded[i] = repository.TestResult{
			TestCaseID: testCases[i].ID,
			Verdict:    verdicts[i],
			Stdout:     s.truncate(result.Stdout),
			Stderr:     s.truncate(stderr),
			Time:       result.Time,
			Memory:     result.Memory,
		}
	}

	judged.verdict = grader.Aggregate(verdicts)
	judged.results = graded

	switch judged.verdict {
	case testcase.Accepted:
		judged.message = fmt.Sprintf("all %d test cases passed", len(results))
	case testcase.CompileError:
		for i := range graded {
			if graded[i].Verdict == testcase.CompileError {
				judged.message = graded[i].Stderr
				break
			}
		}
	default:
		judged.message = fmt.Sprintf("%d of %d test cases failed", len(results)-judged.passed, len(results))
	}

	return judged
}

// complete stores the terminal verdict exactly once, then writes the
// artifacts and notifies. When another worker already completed the
// submission the stored record is returned and nobody is notified again.
func (s *Service) complete(ctx context.Context, submission *repository.Submission,
	result *outcome) (*repository.Submission, error) {
	completedAt := time.Now().UTC()

	columns := repository.Submission{
		Status:          result.verdict,
		Message:         result.message,
		Results:         result.results,
		TestCasesPassed: result.passed,
		TotalTestCases:  len(result.results),
		ExecutionTime:   result.executionTime,
		MemoryUsed:      result.memoryUsed,
		CompletedAt:     &completedAt,
	}

	updated, err := s.repository.CompleteSubmission(ctx, submission.ID, columns)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to complete submission %s", submission.ID)
	}

	if !updated {
		return s.repository.GetSubmission(ctx, submission.ID)
	}

	submission.Status = columns.Status
	submission.Message = columns.Message
	submission.Results = columns.Results
	submission.TestCasesPassed = columns.TestCasesPassed
	submission.TotalTestCases = columns.TotalTestCases
	submission.ExecutionTime = columns.ExecutionTime
	submission.MemoryUsed = columns.MemoryUsed
	submission.CompletedAt = columns.CompletedAt

	s.writeArtifacts(submission, result)

	log.Info().
		Str("id", submission.ID).
		Str("status", string(submission.Status)).
		Int("passed", submission.TestCasesPassed).
		Int("tests", submission.TotalTestCases).
		Msg("submission completed")

	if err := s.notifier.Notify(ctx, submission); err != nil {
		log.Error().Err(err).Str("id", submission.ID).Msg("failed to notify submission completion")
	}

	return submission, nil
}

func (s *Service) writeArtifacts(submission *repository.Submission, result *outcome) {
	if s.files == nil {
		return
	}

	results, _ := json.Marshal(submission.Results)

	artifacts := []*files.File{
		{ID: submission.ID, Name: codeArtifact, Data: []byte(submission.Code)},
		{ID: submission.ID, Name: resultsArtifact, Data: results},
	}

	if result.program != "" {
		artifacts = append(artifacts, &files.File{ID: submission.ID, Name: programArtifact, Data: []byte(result.program)})
	}

	for _, err := range s.files.WriteFiles(artifacts...) {
		log.Warn().Err(err).Str("id", submission.ID).Msg("failed to write submission artifact")
	}
}

// substitute replaces the template's single placeholder with the code.
func (s *Service) substitute(wrapper, code string) (string, error) {
	if count := strings.Count(wrapper, s.config.Placeholder); count != 1 {
		return "", errors.Errorf("template must contain exactly one %s placeholder, found %d",
			s.config.Placeholder, count)
	}

	return strings.Replace(wrapper, s.config.Placeholder, code, 1), nil
}

func (s *Service) truncate(text string) string {
	if s.config.MaxOutputSize <= 0 || len(text) <= s.config.MaxOutputSize {
		return text
	}

	return text[:s.config.MaxOutputSize]
}

// buildStdin writes one JSON encoded line per function parameter, in the
// order the parameters are declared.
func buildStdin(params []repository.FunctionParam, tc repository.ProblemTestCase) (string, error) {
	var builder strings.Builder

	for _, param := range params {
		value, ok := tc.Input[param.Name]

		if !ok {
			return "", errors.Errorf("test case %d is missing input %q", tc.ID, param.Name)
		}

		line, err := json.Marshal(value)

		if err != nil {
			return "", errors.Wrapf(err, "failed to encode input %q of test case %d", param.Name, tc.ID)
		}

		builder.Write(line)
		builder.WriteByte('\n')
	}

	return builder.String(), nil
}
