// Package syncqueue serializes outbound calendar-provider calls per
// account. Tasks for the same account key run strictly in enqueue order,
// one at a time; tasks for different keys run concurrently.
package syncqueue

import (
	"context"
	"log/slog"
	"sync"
)

// Task is one outbound sync operation. A task's failure is logged and
// swallowed so it never blocks the rest of its account's queue.
type Task func(context.Context) error

// Queue owns the per-account pending lists. An entry appears on the first
// enqueue for a key and is removed once its drain loop runs dry, so the
// map never grows beyond the set of accounts with in-flight work.
type Queue struct {
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]Task
	wg      sync.WaitGroup
}

func New(ctx context.Context, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ctx:     ctx,
		logger:  logger,
		pending: make(map[string][]Task),
	}
}

// Enqueue appends the task to the account's queue and starts a drain for
// that key if none is running.
func (q *Queue) Enqueue(accountKey string, task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, running := q.pending[accountKey]
	q.pending[accountKey] = append(queued, task)
	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(accountKey)
}

func (q *Queue) drain(accountKey string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.pending[accountKey]
		if len(queued) == 0 {
			delete(q.pending, accountKey)
			q.mu.Unlock()
			return
		}
		task := queued[0]
		q.pending[accountKey] = queued[1:]
		q.mu.Unlock()

		if err := task(q.ctx); err != nil {
			q.logger.Error("calendar sync task failed",
				"account", accountKey,
				"error", err,
			)
		}
	}
}

// Len reports how many tasks are queued (running task excluded) for a key.
func (q *Queue) Len(accountKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[accountKey])
}

// Wait blocks until every queue has drained. Enqueues racing with Wait are
// the caller's problem; it is meant for shutdown and tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}
