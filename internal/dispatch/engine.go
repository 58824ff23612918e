package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/providers"
)

// ErrStopped is returned by Enqueue once the engine has stopped.
var ErrStopped = errors.New("dispatch engine stopped")

// Defaults for Config.
const (
	DefaultBatchSize   = 8
	DefaultIdleTimeout = time.Second
)

// Config configures an Engine.
type Config struct {
	BatchSize   int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Engine is the single dispatch worker.
type Engine struct {
	backend     providers.LLMClient
	queue       *Queue
	batchSize   int
	idleTimeout time.Duration
	logger      *slog.Logger

	stopped    atomic.Bool
	inFlight   atomic.Int32
	batches    atomic.Int64
	dispatched atomic.Int64
}

// Status reports engine counters.
type Status struct {
	QueueDepth int   `json:"queue_depth"`
	InFlight   int   `json:"in_flight"`
	Batches    int64 `json:"batches"`
	Dispatched int64 `json:"dispatched"`
}

// New creates an engine that sends requests to backend.
func New(backend providers.LLMClient, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend:     backend,
		queue:       NewQueue(),
		batchSize:   cfg.BatchSize,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger.With("component", "dispatch", "batch_size", cfg.BatchSize),
	}
}

// Enqueue appends a ticket to the shared queue.
func (e *Engine) Enqueue(t Ticket) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	return e.queue.Push(t)
}

// Status returns current counters.
func (e *Engine) Status() Status {
	return Status{
		QueueDepth: e.queue.Len(),
		InFlight:   int(e.inFlight.Load()),
		Batches:    e.batches.Load(),
		Dispatched: e.dispatched.Load(),
	}
}

// Run processes batches until ctx is cancelled. Cancellation is observed
// between idle waits; a batch that has started always runs to completion.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Debug("dispatch engine started", "idle_timeout", e.idleTimeout)
	batchCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			e.stopped.Store(true)
			dropped := e.queue.Drain()
			e.logger.Info("dispatch engine stopped",
				"batches", e.batches.Load(),
				"dispatched", e.dispatched.Load(),
				"dropped", len(dropped))
			return nil
		}

		first := e.queue.PopTimeout(e.idleTimeout)
		if first == nil {
			continue
		}
		batch := []Ticket{first}
		for len(batch) < e.batchSize {
			t := e.queue.TryPop()
			if t == nil {
				break
			}
			batch = append(batch, t)
		}
		e.runBatch(batchCtx, batch)
	}
}

// runBatch dispatches every ticket concurrently and waits for all
// continuations to return.
func (e *Engine) runBatch(ctx context.Context, batch []Ticket) {
	n := e.batches.Add(1)
	start := time.Now()
	e.logger.Debug("dispatching batch", "batch", n, "size", len(batch), "queued", e.queue.Len())

	var g errgroup.Group
	for _, t := range batch {
		g.Go(func() error {
			return e.dispatch(ctx, t)
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("batch finished with errors", "batch", n, "error", err)
	}
	e.logger.Debug("batch complete", "batch", n, "duration", time.Since(start))
}

// dispatch calls the backend and hands the response to the ticket. A panic
// in the continuation is reported as an error so one bad document cannot
// take down the worker.
func (e *Engine) dispatch(ctx context.Context, t Ticket) (err error) {
	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ticket continuation panicked: %v", r)
		}
	}()

	req := t.Request()
	resp := Response{Started: time.Now()}
	resp.Result, resp.Err = e.backend.Chat(ctx, req)
	resp.Finished = time.Now()
	e.dispatched.Add(1)

	if resp.Err != nil {
		e.logger.Warn("backend call failed",
			"model", req.Model,
			"duration", resp.Duration(),
			"error", resp.Err)
	}

	t.Handle(ctx, resp, e)
	return nil
}
