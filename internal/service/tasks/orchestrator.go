// Package tasks implements the asynchronous recomputation orchestrator.
// It owns the task state machine, enforces at most one in-flight
// computation per keyword, and retries transient failures with
// exponential backoff.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"trendpulse/internal/domain/task"
	"trendpulse/internal/domain/trend"
	"trendpulse/internal/metrics"
)

// ComputeFunc runs the full recomputation pipeline for one keyword:
// read the corpus, calculate metrics, write through the cache and the
// metrics store. Returning a trend.TransientError makes the attempt
// retryable; any other error is terminal.
type ComputeFunc func(ctx context.Context, keywordID string) error

// Config contains orchestrator tuning.
type Config struct {
	Workers        int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ComputeTimeout time.Duration
	QueueSize      int
	EventsTopic    string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		MaxRetries:     3,
		BackoffBase:    60 * time.Second,
		BackoffCap:     700 * time.Second,
		ComputeTimeout: 5 * time.Minute,
		QueueSize:      256,
		EventsTopic:    "trend",
	}
}

// handle pairs a task with its completion signal. Task fields are
// guarded by the orchestrator mutex; done is closed exactly once when
// the task reaches a terminal state.
type handle struct {
	task task.Task
	done chan struct{}
}

// Orchestrator schedules trend recomputations on a fixed worker pool.
// State transitions are serialized by a single mutex, so two workers
// can never both believe they own a keyword's task.
type Orchestrator struct {
	cfg      Config
	compute  ComputeFunc
	eventBus *nats.Conn
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*handle // keywordID -> non-terminal task
	tasks    map[string]*handle // taskID -> task, including terminal

	queue     chan *handle
	callbacks []func(task.Task)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. eventBus may be nil, in
// which case lifecycle events are not published.
func NewOrchestrator(compute ComputeFunc, eventBus *nats.Conn, logger *slog.Logger, cfg Config) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		compute:  compute,
		eventBus: eventBus,
		logger:   logger,
		inflight: make(map[string]*handle),
		tasks:    make(map[string]*handle),
		queue:    make(chan *handle, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnTransition registers a callback invoked synchronously after every
// state transition with a snapshot of the task. Register before Start.
func (o *Orchestrator) OnTransition(fn func(task.Task)) {
	o.callbacks = append(o.callbacks, fn)
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

// Stop drains the pool, waiting up to the context deadline for
// running computations to finish. Cancellation is cooperative: a
// RUNNING task is never killed mid-computation.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.cancel()

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a recomputation for a keyword. Idempotent with
// respect to in-flight work: while a non-terminal task exists for the
// keyword, its id is returned instead of spawning a duplicate.
func (o *Orchestrator) Submit(keywordID string) (string, error) {
	o.mu.Lock()
	if h, ok := o.inflight[keywordID]; ok {
		id := h.task.ID
		o.mu.Unlock()
		return id, nil
	}

	h := &handle{
		task: task.Task{
			ID:        uuid.New().String(),
			KeywordID: keywordID,
			State:     task.StatePending,
			CreatedAt: time.Now(),
		},
		done: make(chan struct{}),
	}
	o.inflight[keywordID] = h
	o.tasks[h.task.ID] = h
	o.pruneLocked()
	snapshot := h.task
	o.mu.Unlock()

	metrics.TasksInFlight.Inc()
	o.notify(snapshot)

	select {
	case o.queue <- h:
		return h.task.ID, nil
	case <-o.ctx.Done():
		o.finalize(h, task.StateFailed, errors.New("orchestrator stopped before execution"))
		return h.task.ID, fmt.Errorf("orchestrator stopped")
	}
}

// Status returns a snapshot of a task.
func (o *Orchestrator) Status(taskID string) (task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.tasks[taskID]
	if !ok {
		return task.Task{}, false
	}
	return h.task, true
}

// Await blocks until the task reaches a terminal state or the timeout
// elapses. Late joiners of an in-flight computation use this instead
// of spawning their own.
func (o *Orchestrator) Await(taskID string, timeout time.Duration) (task.Task, bool) {
	o.mu.Lock()
	h, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return task.Task{}, false
	}

	select {
	case <-h.done:
		t, _ := o.Status(taskID)
		return t, true
	case <-time.After(timeout):
		t, _ := o.Status(taskID)
		return t, t.State.IsTerminal()
	}
}

// Cancel terminates a task best-effort. Only guaranteed before RUNNING
// begins; a running computation finishes on its own. The eligibility
// check and the terminal transition happen under one lock hold, so a
// worker that commits RUNNING concurrently wins and the cancel is
// refused.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	h, ok := o.tasks[taskID]
	if !ok || h.task.State.IsTerminal() || h.task.State == task.StateRunning {
		o.mu.Unlock()
		return false
	}
	snapshot := o.finalizeLocked(h, task.StateFailed, errors.New("canceled before execution"))
	o.mu.Unlock()

	o.notify(snapshot)
	return true
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case h := <-o.queue:
			o.run(h)
		}
	}
}

// run drives one execution attempt through the state machine.
func (o *Orchestrator) run(h *handle) {
	o.mu.Lock()
	if h.task.State.IsTerminal() {
		// Canceled while queued.
		o.mu.Unlock()
		return
	}
	h.task.State = task.StateRunning
	if h.task.StartedAt == nil {
		now := time.Now()
		h.task.StartedAt = &now
	}
	snapshot := h.task
	o.mu.Unlock()

	o.logger.Info("task started",
		"task_id", snapshot.ID,
		"keyword_id", snapshot.KeywordID,
		"attempt", snapshot.Attempt,
	)
	o.notify(snapshot)

	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.ComputeTimeout)
	start := time.Now()
	err := o.compute(ctx, h.task.KeywordID)
	cancel()
	duration := time.Since(start)

	if err == nil {
		metrics.ComputeDurationSeconds.Observe(duration.Seconds())
		o.finalize(h, task.StateSuccess, nil)
		o.logger.Info("task succeeded",
			"task_id", snapshot.ID,
			"keyword_id", snapshot.KeywordID,
			"duration", duration,
		)
		o.publish("computed", map[string]interface{}{
			"task_id":     snapshot.ID,
			"keyword_id":  snapshot.KeywordID,
			"duration_ms": duration.Milliseconds(),
		})
		return
	}

	// Timeouts are terminal: a systematically oversized corpus would
	// only time out again, and retry storms help nobody.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", trend.ErrComputeTimeout, o.cfg.ComputeTimeout)
		o.fail(h, err)
		return
	}

	if !trend.IsTransient(err) {
		o.fail(h, err)
		return
	}

	o.retry(h, err)
}

// retry moves a task to RETRYING and schedules re-execution, or to
// FAILED once the attempt counter reaches the retry budget.
func (o *Orchestrator) retry(h *handle, cause error) {
	o.mu.Lock()
	h.task.Attempt++
	h.task.LastError = cause.Error()
	if h.task.Attempt >= o.cfg.MaxRetries {
		o.mu.Unlock()
		o.fail(h, fmt.Errorf("retries exhausted: %w", cause))
		return
	}
	h.task.State = task.StateRetrying
	snapshot := h.task
	o.mu.Unlock()

	delay := o.backoff(snapshot.Attempt)
	o.logger.Warn("task retrying",
		"task_id", snapshot.ID,
		"keyword_id", snapshot.KeywordID,
		"attempt", snapshot.Attempt,
		"backoff", delay,
		"error", cause,
	)
	metrics.TaskRetriesTotal.Inc()
	o.notify(snapshot)

	time.AfterFunc(delay, func() {
		select {
		case o.queue <- h:
		case <-o.ctx.Done():
			o.finalize(h, task.StateFailed, errors.New("orchestrator stopped during backoff"))
		}
	})
}

// fail finalizes a task as FAILED and makes the failure observable:
// logged with full context and published on the event bus.
func (o *Orchestrator) fail(h *handle, cause error) {
	o.finalize(h, task.StateFailed, cause)

	o.mu.Lock()
	snapshot := h.task
	o.mu.Unlock()

	o.logger.Error("task failed",
		"task_id", snapshot.ID,
		"keyword_id", snapshot.KeywordID,
		"attempts", snapshot.Attempt,
		"last_error", snapshot.LastError,
	)
	o.publish("task.failed", map[string]interface{}{
		"task_id":    snapshot.ID,
		"keyword_id": snapshot.KeywordID,
		"attempts":   snapshot.Attempt,
		"last_error": snapshot.LastError,
	})
}

// finalize commits a terminal state, releases the keyword's
// single-flight slot, and wakes every waiter.
func (o *Orchestrator) finalize(h *handle, state task.State, cause error) {
	o.mu.Lock()
	if h.task.State.IsTerminal() {
		o.mu.Unlock()
		return
	}
	snapshot := o.finalizeLocked(h, state, cause)
	o.mu.Unlock()

	o.notify(snapshot)
}

// finalizeLocked is the commit itself; the caller holds o.mu and has
// already verified the task is not terminal. Transition callbacks run
// outside the lock, so the caller emits them from the returned
// snapshot.
func (o *Orchestrator) finalizeLocked(h *handle, state task.State, cause error) task.Task {
	h.task.State = state
	if cause != nil {
		h.task.LastError = cause.Error()
		h.task.Cause = cause
	}
	now := time.Now()
	h.task.FinishedAt = &now
	delete(o.inflight, h.task.KeywordID)
	close(h.done)
	metrics.TasksInFlight.Dec()
	metrics.TasksTotal.WithLabelValues(string(state)).Inc()
	return h.task
}

// backoff is exponential from the base delay, capped, with up to 25%
// jitter to spread synchronized retries.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.cfg.BackoffBase << (attempt - 1)
	if delay > o.cfg.BackoffCap || delay <= 0 {
		delay = o.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func (o *Orchestrator) notify(snapshot task.Task) {
	for _, fn := range o.callbacks {
		fn(snapshot)
	}
}

// publish emits a lifecycle event on the event bus. Publishing is
// best-effort; a broken bus never blocks task processing.
func (o *Orchestrator) publish(suffix string, payload map[string]interface{}) {
	if o.eventBus == nil {
		return
	}
	subject := fmt.Sprintf("%s.%s", o.cfg.EventsTopic, suffix)
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Error("error marshaling event", "subject", subject, "error", err)
		return
	}
	if err := o.eventBus.Publish(subject, data); err != nil {
		o.logger.Error("error publishing event", "subject", subject, "error", err)
	}
}

// pruneLocked bounds the terminal-task map. Recently finished tasks
// stay visible for status polling; older ones are dropped once the map
// grows past its soft cap. Caller holds o.mu.
func (o *Orchestrator) pruneLocked() {
	const softCap = 1024
	if len(o.tasks) <= softCap {
		return
	}
	cutoff := time.Now().Add(-10 * time.Minute)
	for id, h := range o.tasks {
		if h.task.State.IsTerminal() && h.task.FinishedAt != nil && h.task.FinishedAt.Before(cutoff) {
			delete(o.tasks, id)
		}
	}
}
