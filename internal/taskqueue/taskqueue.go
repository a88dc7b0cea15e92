// Package taskqueue is the concurrency control for synchronous judging: a
// priority ordered backlog with a fixed capacity, at most MaxConcurrent
// running tasks and a periodic sweep of tasks that waited too long.
package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrShuttingDown = errors.New("task queue is shutting down")
	ErrTaskExpired  = errors.New("task expired before it could run")
	ErrCancelled    = errors.New("task cancelled before it could run")
	ErrShutdown     = errors.New("task queue shut down before the task could run")
)

// Task is the unit of work. The context is never cancelled by the queue
// while the task runs, running work is bounded by its own time limits.
type Task[T any] func(ctx context.Context) (T, error)

type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventRunning   EventKind = "running"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventTimedOut  EventKind = "timed-out"
)

// Event describes one lifecycle transition of a task.
type Event struct {
	Kind     EventKind
	TaskID   string
	Priority int
	// Waited is the time spent queued, set from the running transition on.
	Waited time.Duration
	Err    error
}

type Config struct {
	MaxConcurrent int
	MaxQueueSize  int
	// MaxAge is how long a task may stay queued before the sweep rejects it
	// with ErrTaskExpired. Zero disables the sweep.
	MaxAge        time.Duration
	SweepInterval time.Duration
	// Listener receives every lifecycle event. It is called without the queue
	// lock held and must not block for long.
	Listener func(Event)
}

type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	TimedOut  int `json:"timedOut"`
}

// Handle is the caller's side of an added task.
type Handle[T any] struct {
	ID string

	done   chan struct{}
	result T
	err    error
}

// Wait blocks until the task settles or ctx is done. Giving up on the wait
// does not cancel the task, use Queue.Cancel for that.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the task has settled.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

func (h *Handle[T]) settle(result T, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

type entry[T any] struct {
	task       Task[T]
	priority   int
	enqueuedAt time.Time
	handle     *Handle[T]
}

type Queue[T any] struct {
	config Config

	mu           sync.Mutex
	pending      []*entry[T]
	running      int
	stats        Stats
	shuttingDown bool
	drained      chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func New[T any](config Config) *Queue[T] {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	if config.SweepInterval <= 0 && config.MaxAge > 0 {
		config.SweepInterval = config.MaxAge / 2
	}

	q := &Queue[T]{
		config: config,
		stop:   make(chan struct{}),
		now:    time.Now,
	}

	if config.MaxAge > 0 {
		go q.sweepLoop()
	}

	return q
}

// Add places the task in the backlog behind every task of equal or higher
// priority. It fails fast with ErrQueueFull instead of growing the backlog.
func (q *Queue[T]) Add(task Task[T], priority int) (*Handle[T], error) {
	q.mu.Lock()

	if q.shuttingDown {
		q.mu.Unlock()
		return nil, ErrShuttingDown
	}

	if q.config.MaxQueueSize > 0 && len(q.pending) >= q.config.MaxQueueSize {
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	item := &entry[T]{
		task:       task,
		priority:   priority,
		enqueuedAt: q.now(),
		handle:     &Handle[T]{ID: uuid.NewString(), done: make(chan struct{})},
	}

	index := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].priority < priority
	})

	q.pending = append(q.pending, nil)
	copy(q.pending[index+1:], q.pending[index:])
	q.pending[index] = item

	events := []Event{{Kind: EventQueued, TaskID: item.handle.ID, Priority: priority}}
	admitted, running := q.admitLocked()
	q.mu.Unlock()

	q.emit(append(events, running...))
	q.start(admitted)

	return item.handle, nil
}

// Cancel rejects a task that has not started yet. Running tasks cannot be
// cancelled and Cancel reports false for them.
func (q *Queue[T]) Cancel(id string) bool {
	q.mu.Lock()

	for i, item := range q.pending {
		if item.handle.ID != id {
			continue
		}

		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.stats.Cancelled++
		q.markDrainedLocked()
		q.mu.Unlock()

		var zero T
		item.handle.settle(zero, ErrCancelled)
		q.emit([]Event{{Kind: EventCancelled, TaskID: id, Priority: item.priority, Err: ErrCancelled}})
		return true
	}

	q.mu.Unlock()
	return false
}

func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.Queued = len(q.pending)
	stats.Running = q.running

	return stats
}

// Shutdown stops accepting work and waits up to timeout for queued and
// running tasks to finish. Tasks still queued afterwards are rejected with
// ErrShutdown; tasks still running are left to finish on their own.
func (q *Queue[T]) Shutdown(timeout time.Duration) error {
	q.stopOnce.Do(func() { close(q.stop) })

	q.mu.Lock()

	if !q.shuttingDown {
		q.shuttingDown = true
		q.drained = make(chan struct{})
		q.markDrainedLocked()
	}

	drained := q.drained
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-drained:
		return nil
	case <-timer.C:
	}

	q.mu.Lock()
	leftovers := q.pending
	q.pending = nil
	q.stats.Cancelled += len(leftovers)
	running := q.running
	q.mu.Unlock()

	events := make([]Event, 0, len(leftovers))

	for _, item := range leftovers {
		var zero T
		item.handle.settle(zero, ErrShutdown)
		events = append(events, Event{Kind: EventCancelled, TaskID: item.handle.ID, Priority: item.priority, Err: ErrShutdown})
	}

	q.emit(events)

	log.Warn().
		Int("rejected", len(leftovers)).
		Int("running", running).
		Dur("timeout", timeout).
		Msg("task queue shutdown timed out")

	return errors.Errorf("shutdown timed out with %d running and %d rejected tasks", running, len(leftovers))
}

// admitLocked takes queued tasks off the backlog while there is spare
// concurrency. The caller starts them with start once the lock is released
// and their running events are emitted.
func (q *Queue[T]) admitLocked() ([]*entry[T], []Event) {
	var admitted []*entry[T]
	var events []Event

	for q.running < q.config.MaxConcurrent && len(q.pending) > 0 {
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.running++

		admitted = append(admitted, item)
		events = append(events, Event{
			Kind:     EventRunning,
			TaskID:   item.handle.ID,
			Priority: item.priority,
			Waited:   q.now().Sub(item.enqueuedAt),
		})
	}

	return admitted, events
}

func (q *Queue[T]) start(admitted []*entry[T]) {
	for _, item := range admitted {
		go q.run(item)
	}
}

func (q *Queue[T]) run(item *entry[T]) {
	result, err := q.execute(item)

	event := Event{Kind: EventCompleted, TaskID: item.handle.ID, Priority: item.priority, Err: err}

	q.mu.Lock()
	q.running--

	if err != nil {
		event.Kind = EventFailed
		q.stats.Failed++
	} else {
		q.stats.Completed++
	}

	admitted, running := q.admitLocked()
	q.markDrainedLocked()
	q.mu.Unlock()

	q.emit(append([]Event{event}, running...))
	item.handle.settle(result, err)
	q.start(admitted)
}

func (q *Queue[T]) execute(item *entry[T]) (result T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error().
				Str("task", item.handle.ID).
				Interface("panic", recovered).
				Msg("task panicked")

			err = errors.Errorf("task panicked: %v", recovered)
		}
	}()

	return item.task(context.Background())
}

// markDrainedLocked releases Shutdown once nothing is queued or running.
func (q *Queue[T]) markDrainedLocked() {
	if q.drained == nil || q.running > 0 || len(q.pending) > 0 {
		return
	}

	select {
	case <-q.drained:
	default:
		close(q.drained)
	}
}

func (q *Queue[T]) sweepLoop() {
	ticker := time.NewTicker(q.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep rejects queued tasks older than MaxAge.
func (q *Queue[T]) sweep() {
	now := q.now()

	q.mu.Lock()

	var expired []*entry[T]
	kept := q.pending[:0]

	for _, item := range q.pending {
		if now.Sub(item.enqueuedAt) > q.config.MaxAge {
			expired = append(expired, item)
			continue
		}

		kept = append(kept, item)
	}

	q.pending = kept
	q.stats.TimedOut += len(expired)
	q.markDrainedLocked()
	q.mu.Unlock()

	events := make([]Event, 0, len(expired))

	for _, item := range expired {
		var zero T
		item.handle.settle(zero, ErrTaskExpired)

		events = append(events, Event{
			Kind:     EventTimedOut,
			TaskID:   item.handle.ID,
			Priority: item.priority,
			Waited:   now.Sub(item.enqueuedAt),
			Err:      ErrTaskExpired,
		})
	}

	if len(expired) > 0 {
		log.Warn().Int("expired", len(expired)).Msg("swept stale queued tasks")
	}

	q.emit(events)
}

func (q *Queue[T]) emit(events []Event) {
	if q.config.Listener == nil {
		return
	}

	for _, event := range events {
		q.config.Listener(event)
	}
}
