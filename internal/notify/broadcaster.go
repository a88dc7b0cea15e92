package notify

import (
	"context"
	"sync"

	"judge-engine/internal/repository"
)

// Broadcaster wakes in-process waiters of a submission. It backs the long
// poll endpoint.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[int]chan *repository.Submission
	next        int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: map[string]map[int]chan *repository.Submission{}}
}

// Subscribe registers interest in the submission. The channel receives at
// most one value; the returned function must be called once the caller
// stops waiting.
func (b *Broadcaster) Subscribe(id string) (<-chan *repository.Submission, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := b.next
	b.next++

	channel := make(chan *repository.Submission, 1)

	if b.subscribers[id] == nil {
		b.subscribers[id] = map[int]chan *repository.Submission{}
	}

	b.subscribers[id][key] = channel

	return channel, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subscribers[id], key)

		if len(b.subscribers[id]) == 0 {
			delete(b.subscribers, id)
		}
	}
}

func (b *Broadcaster) Notify(_ context.Context, submission *repository.Submission) error {
	b.mu.Lock()
	subscribers := b.subscribers[submission.ID]
	delete(b.subscribers, submission.ID)
	b.mu.Unlock()

	for _, channel := range subscribers {
		channel <- submission
	}

	return nil
}

// Waiting returns the number of submissions with at least one waiter.
func (b *Broadcaster) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}
