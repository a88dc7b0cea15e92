package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultLocalBufferSize = 1024

type LocalQueue struct {
	messages chan []byte
	handler  Handler

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newLocalQueue(config *Config, handler Handler) *LocalQueue {
	size := config.LocalBufferSize

	if size <= 0 {
		size = defaultLocalBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	queue := &LocalQueue{
		messages: make(chan []byte, size),
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go queue.consume()
	return queue
}

func (l *LocalQueue) consume() {
	defer close(l.done)

	for body := range l.messages {
		if l.handler == nil {
			continue
		}

		if err := l.handler(l.ctx, body); err != nil {
			log.Error().Err(err).Msg("failed to handle local queue message")
		}
	}
}

func (l *LocalQueue) SubmitMessageToQueue(body []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.stopped {
		return ErrQueueStopped
	}

	l.messages <- body
	return nil
}

// Stop rejects new messages and waits for the buffered ones to be handled.
func (l *LocalQueue) Stop() {
	l.mu.Lock()

	if l.stopped {
		l.mu.Unlock()
		return
	}

	l.stopped = true
	close(l.messages)
	l.mu.Unlock()

	log.Info().Msg("stopping local queue")

	<-l.done
	l.cancel()
}
