// ABOUTME: Task scheduler executing workflow runs sync, async, and batch
// ABOUTME: Persists run status transitions through the record gateway

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/beacon/internal/pipeline"
	"github.com/2389/beacon/internal/records"
	"github.com/2389/beacon/internal/store"
)

const (
	// DefaultRunTimeout bounds a synchronous run so webhook callers get an
	// answer before their own timeout fires.
	DefaultRunTimeout = 20 * time.Second

	defaultWorkers   = 4
	defaultQueueSize = 64
	// defaultBatchConcurrency caps simultaneous clients in a batch run.
	defaultBatchConcurrency = 4
)

// ErrQueueFull is returned by Enqueue when the async queue has no room.
var ErrQueueFull = errors.New("scheduler queue is full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("scheduler is closed")

// Opts tunes a run's stage parameters.
type Opts struct {
	NumIdeas int
	NumPosts int
}

type task struct {
	runID    string
	clientID string
	stages   []string
	notify   func(run *store.Run)
}

// Scheduler executes workflow runs. Synchronous runs block the caller under
// a timeout; async runs go through a bounded worker pool; batch runs fan out
// over active clients with capped concurrency.
type Scheduler struct {
	engine  *pipeline.Engine
	records *records.Gateway
	logger  *slog.Logger

	runTimeout  time.Duration
	batchLimit  int
	queue       chan task
	notify      func(run *store.Run)
	optsByRun   sync.Map // runID -> Opts
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
	workerCount int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunTimeout overrides the synchronous run timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.runTimeout = d }
}

// WithWorkers sets the async worker pool size.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithBatchConcurrency caps how many clients a batch run works at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// WithNotify registers a hook called with the finished run record after
// every async run reaches a terminal status.
func WithNotify(fn func(run *store.Run)) Option {
	return func(s *Scheduler) { s.notify = fn }
}

// New creates a Scheduler and starts its worker pool.
func New(engine *pipeline.Engine, rec *records.Gateway, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:      engine,
		records:     rec,
		logger:      slog.Default().With("component", "scheduler"),
		runTimeout:  DefaultRunTimeout,
		batchLimit:  defaultBatchConcurrency,
		queue:       make(chan task, defaultQueueSize),
		workerCount: defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// RunNow executes the stages for one client synchronously, bounded by the
// run timeout. The returned run record is terminal.
func (s *Scheduler) RunNow(ctx context.Context, clientID string, stages []string, opts Opts) (*store.Run, error) {
	run := &store.Run{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Stages:    stages,
		Mode:      store.ModeSync,
		Status:    store.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	s.execute(runCtx, run, opts)
	return s.records.GetRun(ctx, run.ID)
}

// Enqueue submits an async run for one client and returns its id
// immediately. Status is tracked on the run record.
func (s *Scheduler) Enqueue(ctx context.Context, clientID string, stages []string, opts Opts) (string, error) {
	return s.EnqueueWithNotify(ctx, clientID, stages, opts, nil)
}

// EnqueueWithNotify is Enqueue with a per-run completion callback, invoked
// with the terminal run record. It runs on a worker goroutine.
func (s *Scheduler) EnqueueWithNotify(ctx context.Context, clientID string, stages []string, opts Opts, notify func(run *store.Run)) (string, error) {
	run := &store.Run{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Stages:    stages,
		Mode:      store.ModeAsync,
		Status:    store.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}

	s.optsByRun.Store(run.ID, opts)

	// The closed check and the send stay under one lock acquisition; Close
	// closes the queue under the same lock, so a send can never hit a
	// closed channel. The send is non-blocking, so holding mu is cheap.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.optsByRun.Delete(run.ID)
		_ = s.records.UpdateRunStatus(ctx, run.ID, store.RunFailed, "", ErrClosed.Error())
		return "", ErrClosed
	}
	select {
	case s.queue <- task{runID: run.ID, clientID: clientID, stages: stages, notify: notify}:
		s.mu.Unlock()
		return run.ID, nil
	default:
		s.mu.Unlock()
		s.optsByRun.Delete(run.ID)
		_ = s.records.UpdateRunStatus(ctx, run.ID, store.RunFailed, "", ErrQueueFull.Error())
		return "", ErrQueueFull
	}
}

// EnqueueAll runs the stages for every active client, at most maxClients
// (<= 0 means all), with bounded concurrency. A per-client failure or panic
// is recorded on that client's child run and never stops the batch. The
// returned parent run aggregates the outcome counts.
func (s *Scheduler) EnqueueAll(ctx context.Context, stages []string, opts Opts, maxClients int) (*store.Run, error) {
	clients, err := s.records.ListActiveClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	if maxClients > 0 && len(clients) > maxClients {
		clients = clients[:maxClients]
	}

	parent := &store.Run{
		ID:        uuid.NewString(),
		Stages:    stages,
		Mode:      store.ModeAsync,
		Status:    store.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.CreateRun(ctx, parent); err != nil {
		return nil, fmt.Errorf("creating batch run: %w", err)
	}
	if err := s.records.UpdateRunStatus(ctx, parent.ID, store.RunRunning, "", ""); err != nil {
		return nil, fmt.Errorf("starting batch run: %w", err)
	}

	var mu sync.Mutex
	var succeeded, failed int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for _, client := range clients {
		client := client
		g.Go(func() error {
			ok := s.runChild(gctx, parent.ID, client.ID, stages, opts)
			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			mu.Unlock()
			return nil // failures are isolated, never group-fatal
		})
	}
	_ = g.Wait()

	outcome := fmt.Sprintf(`{"clients":%d,"succeeded":%d,"failed":%d}`, len(clients), succeeded, failed)
	status := store.RunCompleted
	var errText string
	if failed > 0 && succeeded == 0 && len(clients) > 0 {
		status = store.RunFailed
		errText = "all clients failed"
	}
	if err := s.records.UpdateRunStatus(ctx, parent.ID, status, outcome, errText); err != nil {
		return nil, fmt.Errorf("finalizing batch run: %w", err)
	}
	return s.records.GetRun(ctx, parent.ID)
}

// runChild executes one client's share of a batch under its own run record.
func (s *Scheduler) runChild(ctx context.Context, parentID, clientID string, stages []string, opts Opts) (ok bool) {
	run := &store.Run{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		ParentID:  parentID,
		Stages:    stages,
		Mode:      store.ModeAsync,
		Status:    store.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.CreateRun(ctx, run); err != nil {
		s.logger.Error("creating child run", "client_id", clientID, "error", err)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("child run panicked", "run_id", run.ID, "client_id", clientID, "panic", r)
			_ = s.records.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, store.RunFailed, "", fmt.Sprintf("panic: %v", r))
			ok = false
		}
	}()

	s.execute(ctx, run, opts)
	final, err := s.records.GetRun(ctx, run.ID)
	if err != nil {
		return false
	}
	return final.Status == store.RunCompleted
}

// Status returns the run record.
func (s *Scheduler) Status(ctx context.Context, runID string) (*store.Run, error) {
	return s.records.GetRun(ctx, runID)
}

// worker drains the async queue until Close.
func (s *Scheduler) worker() {
	defer s.wg.Done()
	for t := range s.queue {
		opts := Opts{}
		if v, loaded := s.optsByRun.LoadAndDelete(t.runID); loaded {
			opts = v.(Opts)
		}

		run := &store.Run{ID: t.runID, ClientID: t.clientID, Stages: t.stages}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("async run panicked", "run_id", t.runID, "panic", r)
					_ = s.records.UpdateRunStatus(context.Background(), t.runID, store.RunFailed, "", fmt.Sprintf("panic: %v", r))
				}
			}()
			s.execute(context.Background(), run, opts)
		}()

		callbacks := []func(*store.Run){}
		if s.notify != nil {
			callbacks = append(callbacks, s.notify)
		}
		if t.notify != nil {
			callbacks = append(callbacks, t.notify)
		}
		if len(callbacks) > 0 {
			if final, err := s.records.GetRun(context.Background(), t.runID); err == nil {
				for _, fn := range callbacks {
					fn(final)
				}
			}
		}
	}
}

// execute runs the stages and persists the terminal status. A started stage
// always finishes; cancellation is only observed between stages.
func (s *Scheduler) execute(ctx context.Context, run *store.Run, opts Opts) {
	if err := s.records.UpdateRunStatus(ctx, run.ID, store.RunRunning, "", ""); err != nil {
		s.logger.Error("starting run", "run_id", run.ID, "error", err)
		return
	}

	results := s.runStages(ctx, run.ClientID, run.Stages, opts)
	outcomes := pipeline.Outcomes(results)

	status := store.RunCompleted
	var errText string
	for _, r := range results {
		if r.Err != nil {
			status = store.RunFailed
			errText = fmt.Sprintf("%s: %s", r.Stage, r.Err.Error())
			break
		}
	}

	// Persist the terminal status even when the run context expired.
	if err := s.records.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, status, outcomes, errText); err != nil {
		s.logger.Error("finalizing run", "run_id", run.ID, "error", err)
	}
	s.logger.Info("run finished", "run_id", run.ID, "client_id", run.ClientID, "status", status)
}

// runStages dispatches stage names to the engine, short-circuiting on the
// first failed stage.
func (s *Scheduler) runStages(ctx context.Context, clientID string, stages []string, opts Opts) []pipeline.StageResult {
	numIdeas := opts.NumIdeas
	if numIdeas <= 0 {
		numIdeas = 3
	}
	numPosts := opts.NumPosts
	if numPosts <= 0 {
		numPosts = 3
	}

	var results []pipeline.StageResult
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			results = append(results, pipeline.StageResult{Stage: stage, Err: err})
			return results
		}

		var res pipeline.StageResult
		switch stage {
		case pipeline.StageCurate:
			res = s.engine.Curate(ctx, clientID, numIdeas)
		case pipeline.StageDraft:
			res = s.engine.Draft(ctx, clientID, numPosts)
		case pipeline.StagePublish:
			res = s.engine.Publish(ctx, clientID)
		default:
			res = pipeline.StageResult{Stage: stage, Err: fmt.Errorf("unknown stage %q", stage)}
		}
		results = append(results, res)
		if res.Err != nil {
			return results
		}
	}
	return results
}

// Close stops accepting async work and waits for in-flight runs to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}
