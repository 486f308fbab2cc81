package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	bhotel "github.com/buildhive/buildhive/internal/adapter/otel"
	"github.com/buildhive/buildhive/internal/config"
	"github.com/buildhive/buildhive/internal/domain"
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

// Scheduler holds the priority-ordered queue of pending tasks and dispatches
// them under the configured concurrency cap. The dispatch loop is the only
// writer of the queue ordering; task execution runs concurrently per task.
type Scheduler struct {
	cfg       config.Scheduler
	lifecycle *Lifecycle
	metrics   *bhotel.Metrics

	mu        sync.Mutex
	queue     []*task.Task         // priority order, stable FIFO within a band
	index     map[string]task.Task // latest snapshot of every task seen
	holdUntil time.Time            // set after agent starvation to avoid spinning

	sem  *semaphore.Weighted
	wake chan struct{}

	runningMu sync.Mutex
	running   int
}

// NewScheduler creates a Scheduler. metrics may be nil.
func NewScheduler(cfg config.Scheduler, lifecycle *Lifecycle, metrics *bhotel.Metrics) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		lifecycle: lifecycle,
		metrics:   metrics,
		index:     make(map[string]task.Task),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		wake:      make(chan struct{}, 1),
	}
	lifecycle.SetRecorder(s.recordSnapshot)
	return s
}

// Enqueue adds a queued task at the tail of its priority band and wakes the
// dispatch loop.
func (s *Scheduler) Enqueue(t *task.Task) {
	s.mu.Lock()
	s.insertTail(t)
	s.index[t.ID] = *t
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.TaskQueued(context.Background(), depth)
	s.signal()
}

// Run runs the dispatch loop until ctx is cancelled. Errors in an iteration
// are recovered and logged, and the loop continues after a backoff; the loop
// itself never terminates on error.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started",
		"max_concurrency", s.cfg.MaxConcurrency,
		"poll_interval", s.cfg.PollInterval)

	for {
		dispatched, err := s.dispatchReady(ctx)

		switch {
		case ctx.Err() != nil:
			slog.Info("scheduler stopped")
			return
		case err != nil:
			slog.Error("dispatch iteration failed", "error", err)
			s.sleep(ctx, s.cfg.ErrorBackoff)
		case !dispatched:
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopped")
				return
			case <-s.wake:
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}
}

// dispatchReady pops queue heads while capacity allows, starting each task's
// lifecycle asynchronously. A panic anywhere in the iteration is converted to
// an error so the loop can back off and continue.
func (s *Scheduler) dispatchReady(ctx context.Context) (dispatched bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dispatch panic: %v", p)
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 || time.Now().Before(s.holdUntil) {
			s.mu.Unlock()
			return dispatched, nil
		}
		s.mu.Unlock()

		if !s.sem.TryAcquire(1) {
			return dispatched, nil
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.sem.Release(1)
			return dispatched, nil
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		dispatched = true
		s.setRunning(+1)
		go s.runTask(ctx, t)
	}
}

// runTask drives one task to a terminal state and releases the admission slot.
func (s *Scheduler) runTask(ctx context.Context, t *task.Task) {
	start := time.Now()
	defer func() {
		s.sem.Release(1)
		s.setRunning(-1)
		s.signal() // capacity freed, re-check the queue
	}()

	s.metrics.TaskDispatched(ctx)

	err := s.lifecycle.Run(ctx, t)
	if err != nil {
		if errors.Is(err, agent.ErrNoAgentAvailable) {
			// Not a task failure: park it at the head of its band and let
			// the poll interval pace the next attempt.
			slog.Warn("no agent available, requeueing at band head", "task_id", t.ID)
			s.requeueHead(t)
			return
		}
		slog.Error("task dispatch failed", "task_id", t.ID, "error", err)
		return
	}

	s.metrics.TaskFinished(ctx, string(t.Status), time.Since(start))
}

// Cancel removes a still-queued task and marks it cancelled. Tasks that have
// left the queue reject cancellation.
func (s *Scheduler) Cancel(ctx context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	var target *task.Task
	for i, qt := range s.queue {
		if qt.ID == id {
			target = qt
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	_, known := s.index[id]
	s.mu.Unlock()

	if target == nil {
		if known {
			return task.Task{}, fmt.Errorf("cancel task %s: %w", id, task.ErrCancellationRejected)
		}
		return task.Task{}, fmt.Errorf("cancel task %s: %w", id, domain.ErrNotFound)
	}

	if err := s.lifecycle.FinalizeCancelled(ctx, target); err != nil {
		return task.Task{}, err
	}
	return *target, nil
}

// Retry re-enqueues a failed task at the tail of its priority band with the
// error cleared and the retry count incremented.
func (s *Scheduler) Retry(ctx context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	snap, ok := s.index[id]
	s.mu.Unlock()

	if !ok {
		return task.Task{}, fmt.Errorf("retry task %s: %w", id, domain.ErrNotFound)
	}

	retried := snap
	if err := retried.Transition(task.StatusQueued); err != nil {
		return task.Task{}, err
	}
	retried.Error = ""
	retried.RetryCount++
	retried.Progress = 0
	retried.Result = nil
	retried.AgentID = ""
	retried.AgentName = ""
	retried.StartedAt = nil
	retried.CompletedAt = nil

	s.lifecycle.RecordRequeued(ctx, &retried)

	s.mu.Lock()
	s.insertTail(&retried)
	s.index[retried.ID] = retried
	s.mu.Unlock()
	s.signal()

	return retried, nil
}

// Snapshot returns the latest recorded state of a task.
func (s *Scheduler) Snapshot(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	return t, ok
}

// QueueDepth returns the number of tasks waiting for dispatch.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunningCount returns the number of in-flight tasks.
func (s *Scheduler) RunningCount() int {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return s.running
}

// insertTail inserts after the last task of equal or higher rank, keeping the
// queue stable FIFO within each priority band. Caller holds s.mu.
func (s *Scheduler) insertTail(t *task.Task) {
	rank := t.Priority.Rank()
	pos := len(s.queue)
	for i, qt := range s.queue {
		if qt.Priority.Rank() < rank {
			pos = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[pos+1:], s.queue[pos:])
	s.queue[pos] = t
}

// requeueHead puts a task back at the head of its priority band after a lost
// reservation, and holds dispatch briefly so an empty agent pool does not
// turn the loop into a busy spin.
func (s *Scheduler) requeueHead(t *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rank := t.Priority.Rank()
	pos := len(s.queue)
	for i, qt := range s.queue {
		if qt.Priority.Rank() <= rank {
			pos = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[pos+1:], s.queue[pos:])
	s.queue[pos] = t
	s.index[t.ID] = *t
	s.holdUntil = time.Now().Add(s.cfg.PollInterval)
}

// recordSnapshot is the lifecycle's recorder hook.
func (s *Scheduler) recordSnapshot(t task.Task) {
	s.mu.Lock()
	s.index[t.ID] = t
	s.mu.Unlock()
}

func (s *Scheduler) setRunning(delta int) {
	s.runningMu.Lock()
	s.running += delta
	s.runningMu.Unlock()
}

// signal wakes the dispatch loop without blocking.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d or until ctx is cancelled.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
