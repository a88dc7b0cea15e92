// Package notify announces that a submission reached its terminal verdict.
package notify

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/repository"
)

//go:generate mockgen -destination=mock_notify/notifier.go judge-engine/internal/notify Notifier

type Notifier interface {
	Notify(ctx context.Context, submission *repository.Submission) error
}

// Multi fans a notification out to every notifier, continuing past
// failures and returning the first one.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, submission *repository.Submission) error {
	var first error

	for _, notifier := range m {
		if err := notifier.Notify(ctx, submission); err != nil && first == nil {
			first = errors.Wrap(err, "failed to notify")
		}
	}

	return first
}

// LogNotifier records completions in the service log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, submission *repository.Submission) error {
	log.Info().
		Str("id", submission.ID).
		Str("status", string(submission.Status)).
		Msg("submission completion")

	return nil
}
