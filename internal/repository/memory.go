package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"judge-engine/internal/testcase"
)

// Memory is an in process Repository for local mode, where no database is
// configured. Records are copied on the way in and out.
type Memory struct {
	mu          sync.RWMutex
	submissions map[string]Submission
	problems    map[string]Problem
	sequence    uint
}

func NewMemoryRepository() *Memory {
	return &Memory{
		submissions: map[string]Submission{},
		problems:    map[string]Problem{},
	}
}

func (m *Memory) InsertSubmission(_ context.Context, submission *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.submissions[submission.ID]; ok {
		return errors.Errorf("submission %s already exists", submission.ID)
	}

	now := time.Now()
	submission.CreatedAt, submission.UpdatedAt = now, now

	m.submissions[submission.ID] = copySubmission(*submission)
	return nil
}

func (m *Memory) GetSubmission(_ context.Context, id string) (*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	submission, ok := m.submissions[id]

	if !ok {
		return nil, ErrNotFound
	}

	result := copySubmission(submission)
	return &result, nil
}

func (m *Memory) CompleteSubmission(_ context.Context, id string, columns Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	submission, ok := m.submissions[id]

	if !ok || submission.Status != testcase.Pending {
		return false, nil
	}

	if columns.Status != "" {
		submission.Status = columns.Status
	}

	if columns.Message != "" {
		submission.Message = columns.Message
	}

	if columns.Results != nil {
		submission.Results = append([]TestResult(nil), columns.Results...)
	}

	if columns.TestCasesPassed != 0 {
		submission.TestCasesPassed = columns.TestCasesPassed
	}

	if columns.TotalTestCases != 0 {
		submission.TotalTestCases = columns.TotalTestCases
	}

	if columns.ExecutionTime != 0 {
		submission.ExecutionTime = columns.ExecutionTime
	}

	if columns.MemoryUsed != 0 {
		submission.MemoryUsed = columns.MemoryUsed
	}

	if columns.CompletedAt != nil {
		completedAt := *columns.CompletedAt
		submission.CompletedAt = &completedAt
	}

	submission.UpdatedAt = time.Now()
	m.submissions[id] = submission

	return true, nil
}

func (m *Memory) InsertProblem(_ context.Context, problem *Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range problem.Templates {
		m.sequence++
		problem.Templates[i].ID = m.sequence
		problem.Templates[i].ProblemID = problem.ID
	}

	for i := range problem.TestCases {
		m.sequence++
		problem.TestCases[i].ID = m.sequence
		problem.TestCases[i].ProblemID = problem.ID
	}

	m.problems[problem.ID] = copyProblem(*problem)
	return nil
}

func (m *Memory) GetProblem(_ context.Context, id string) (*Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	problem, ok := m.problems[id]

	if !ok {
		return nil, ErrNotFound
	}

	result := copyProblem(problem)

	sort.SliceStable(result.TestCases, func(i, j int) bool {
		return result.TestCases[i].Position < result.TestCases[j].Position
	})

	return &result, nil
}

func copySubmission(submission Submission) Submission {
	submission.Results = append([]TestResult(nil), submission.Results...)

	if submission.CompletedAt != nil {
		completedAt := *submission.CompletedAt
		submission.CompletedAt = &completedAt
	}

	return submission
}

func copyProblem(problem Problem) Problem {
	problem.FunctionParams = append([]FunctionParam(nil), problem.FunctionParams...)
	problem.Templates = append([]ProblemTemplate(nil), problem.Templates...)
	problem.TestCases = append([]ProblemTestCase(nil), problem.TestCases...)

	return problem
}
