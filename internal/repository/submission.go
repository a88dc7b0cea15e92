package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"judge-engine/internal/testcase"
)

// Submission is one asynchronous judging request and its outcome. Status
// starts pending and becomes terminal exactly once.
type Submission struct {
	ID        string           `gorm:"primarykey" json:"id"`
	ProblemID string           `gorm:"index" json:"problemId"`
	Language  string           `json:"language"`
	Code      string           `json:"code"`
	Status    testcase.Verdict `gorm:"index" json:"status"`
	Message   string           `json:"message,omitempty"`
	Results   []TestResult     `gorm:"serializer:json" json:"results,omitempty"`

	TestCasesPassed int `json:"testCasesPassed"`
	TotalTestCases  int `json:"totalTestCases"`
	// ExecutionTime is the slowest test's run time in seconds and MemoryUsed
	// the largest test's memory in kilobytes.
	ExecutionTime float64 `json:"executionTime"`
	MemoryUsed    int     `json:"memoryUsed"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TestResult is the graded outcome of one remote test run.
type TestResult struct {
	TestCaseID uint             `json:"testCaseId"`
	Verdict    testcase.Verdict `json:"verdict"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	Time       string           `json:"time,omitempty"`
	Memory     int              `json:"memory,omitempty"`
}

func (c Client) InsertSubmission(ctx context.Context, submission *Submission) error {
	result := c.DB.WithContext(ctx).Create(submission)
	return result.Error
}

func (c Client) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	var submission Submission

	if err := c.DB.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}

	return &submission, nil
}

func (c Client) CompleteSubmission(ctx context.Context, id string, columns Submission) (bool, error) {
	result := c.completeQuery(c.DB.WithContext(ctx), id, columns)
	return result.RowsAffected > 0, result.Error
}

func (c Client) completeQuery(db *gorm.DB, id string, columns Submission) *gorm.DB {
	return db.Model(&Submission{ID: id}).
		Where("status = ?", testcase.Pending).
		Updates(columns)
}
