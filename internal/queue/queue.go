package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/linkbrief/linkbrief/internal/models"
)

// Handler processes a single task. The context carries the per-task
// deadline.
type Handler func(ctx context.Context, task *models.Task)

// Queue is an unbounded FIFO processed by a single worker goroutine, so
// tasks never interleave. Submit never blocks regardless of depth.
type Queue struct {
	handler     Handler
	taskTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	pending []*models.Task
	wake    chan struct{}

	done chan struct{}
}

func New(handler Handler, taskTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		handler:     handler,
		taskTimeout: taskTimeout,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled. Tasks already dequeued run
// to completion; the rest stay pending.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Submit appends a task and wakes the worker.
func (q *Queue) Submit(task *models.Task) {
	q.mu.Lock()
	q.pending = append(q.pending, task)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Info("task queued", "task_id", task.ID, "chat_id", task.ChatID, "depth", depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of tasks waiting, not counting one in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Done closes after the worker has exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		// Running the backlog under a cancelled context would just hand every
		// queued chat a spurious timeout failure.
		if ctx.Err() != nil {
			return
		}
		task := q.next()
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.process(ctx, task)
	}
}

func (q *Queue) next() *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	return task
}

// process runs one task under its timeout. A panicking handler must not
// take the worker down with it.
func (q *Queue) process(ctx context.Context, task *models.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, q.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task handler panicked",
				"task_id", task.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	q.handler(taskCtx, task)
	q.logger.Info("task finished", "task_id", task.ID, "elapsed", time.Since(start))
}
