// Package queue moves submission messages from the API to the pipeline
// worker. Every mode hands messages to the handler one at a time, in the
// order they were received.
package queue

import (
	"context"

	"github.com/pkg/errors"
)

// Handler processes one message. Returning an error leaves the message for
// redelivery where the broker supports it.
type Handler func(ctx context.Context, body []byte) error

type Queue interface {
	SubmitMessageToQueue(body []byte) error
	Stop()
}

var ErrQueueStopped = errors.New("queue is stopped")

type Config struct {
	// ForceLocalMode runs the queue in-process.
	ForceLocalMode bool
	// Consumer starts the handler loop when true. A producer only service
	// such as the API in nsq or sqs mode leaves it false.
	Consumer bool

	LocalBufferSize int

	Nsq *NsqConfig
	Sqs *SqsConfig
}

func NewQueue(config *Config, handler Handler) (Queue, error) {
	if config.Consumer && handler == nil {
		return nil, errors.New("a consumer queue requires a handler")
	}

	if config.ForceLocalMode {
		return newLocalQueue(config, handler), nil
	}

	if config.Nsq != nil && config.Nsq.Address != "" {
		return newNsqQueue(config, handler)
	}

	if config.Sqs != nil && config.Sqs.QueueURL != "" {
		return newSqsQueue(config, handler)
	}

	return nil, errors.New("no queue configuration was provided")
}
