package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	DB *gorm.DB
}

func NewRepository(connectionUrl string) (Repository, error) {
	db, err := gorm.Open(postgres.Open(connectionUrl), &gorm.Config{})

	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.AutoMigrate(&Submission{}, &Problem{}, &ProblemTemplate{}, &ProblemTestCase{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return Client{DB: db}, nil
}

type Repository interface {
	InsertSubmission(ctx context.Context, submission *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	// CompleteSubmission applies the terminal columns only while the
	// submission is still pending and reports whether it did.
	CompleteSubmission(ctx context.Context, id string, columns Submission) (bool, error)

	InsertProblem(ctx context.Context, problem *Problem) error
	// GetProblem returns the problem with its templates and ordered test
	// cases.
	GetProblem(ctx context.Context, id string) (*Problem, error)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	return err
}
