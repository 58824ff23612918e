// Package pipeline owns the set of active documents and wires extraction,
// correction, summarization and the result logs together on top of a single
// dispatch engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/prompts"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/resultlog"
	"github.com/jackzampolin/folio/internal/summarize"
)

// Sentinel errors for Submit.
var (
	ErrUnusable      = errors.New("document has unrecoverable errors")
	ErrAlreadyActive = errors.New("document already active")
)

// Splitter turns a source path into a document.
type Splitter interface {
	Split(ctx context.Context, path string) (*document.Document, error)
}

// Sink receives result records. *resultlog.Log implements it.
type Sink interface {
	Append(rec any) error
	Flush(ctx context.Context) error
}

// ReportFunc rebuilds reports from the result logs.
type ReportFunc func(ctx context.Context) error

// Config configures a Coordinator.
type Config struct {
	Engine     dispatch.Config
	Extraction extract.Config
	Summary    summarize.Config
	Step1      Sink
	Step2      Sink
	// Report, when set, runs after each completed document. Runs are
	// coalesced so a burst of completions triggers at most one rebuild
	// behind the one in progress.
	Report ReportFunc
	Logger *slog.Logger
}

// Status is a snapshot of pipeline progress.
type Status struct {
	Active    int             `json:"active"`
	Completed int64           `json:"completed"`
	Failed    int64           `json:"failed"`
	Engine    dispatch.Status `json:"engine"`
}

// Coordinator drives documents through both phases.
type Coordinator struct {
	engine   *dispatch.Engine
	resolver *prompts.Resolver
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*document.Document
	paths  map[string]string // path -> doc ID

	completed atomic.Int64
	failed    atomic.Int64

	reportCh chan struct{}
	idle     chan struct{}
}

// New creates a coordinator dispatching to backend.
func New(backend providers.LLMClient, resolver *prompts.Resolver, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = cfg.Logger
	}
	return &Coordinator{
		engine:   dispatch.New(backend, cfg.Engine),
		resolver: resolver,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "pipeline"),
		active:   make(map[string]*document.Document),
		paths:    make(map[string]string),
		reportCh: make(chan struct{}, 1),
		idle:     make(chan struct{}, 1),
	}
}

// Run drives the dispatch engine until ctx is cancelled. In-flight batches
// finish, the sinks are flushed and any pending report rebuild completes
// before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	stopReports := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		c.reportLoop(context.WithoutCancel(ctx), stopReports)
		return nil
	})

	err := c.engine.Run(ctx)

	flushCtx := context.WithoutCancel(ctx)
	for _, s := range []Sink{c.cfg.Step1, c.cfg.Step2} {
		if s == nil {
			continue
		}
		if ferr := s.Flush(flushCtx); ferr != nil && !errors.Is(ferr, resultlog.ErrClosed) {
			c.logger.Warn("failed to flush result log", "error", ferr)
		}
	}

	close(stopReports)
	_ = g.Wait()

	c.mu.Lock()
	left := len(c.active)
	c.mu.Unlock()
	c.logger.Info("pipeline stopped",
		"completed", c.completed.Load(),
		"failed", c.failed.Load(),
		"abandoned", left)
	return err
}

// Ingest splits every path received on paths and submits the result. It
// returns when paths closes or ctx is cancelled. A document that cannot be
// used is logged and skipped.
func (c *Coordinator) Ingest(ctx context.Context, paths <-chan string, splitter Splitter) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			doc, err := splitter.Split(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("skipping document", "path", path, "error", err)
				continue
			}
			if err := c.Submit(doc); err != nil {
				c.logger.Error("skipping document", "path", path, "error", err)
			}
		}
	}
}

// Submit adds a split document to the active set and enqueues one
// extraction ticket per page.
func (c *Coordinator) Submit(doc *document.Document) error {
	logger := c.logger.With("file_name", doc.Name(), "doc_id", doc.ID)
	switch {
	case doc.HasUnrecoverable():
		return fmt.Errorf("%s: %w", doc.Name(), ErrUnusable)
	case doc.AnyPageUnrecoverable():
		return fmt.Errorf("%s: page split failed: %w", doc.Name(), ErrUnusable)
	case doc.Len() == 0:
		return fmt.Errorf("%s: %w", doc.Name(), document.ErrNoPages)
	}

	tickets := make([]dispatch.Ticket, 0, doc.Len())
	hooks := extract.Hooks{PageDone: c.pageDone, Exhausted: c.pageExhausted}
	for i := range doc.Len() {
		t, err := extract.NewTicket(doc, i, c.resolver, c.cfg.Extraction, hooks, c.logger)
		if err != nil {
			return fmt.Errorf("%s: failed to build extraction ticket: %w", doc.Name(), err)
		}
		tickets = append(tickets, t)
	}

	c.mu.Lock()
	if _, ok := c.paths[doc.Path]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", doc.Path, ErrAlreadyActive)
	}
	c.active[doc.ID] = doc
	c.paths[doc.Path] = doc.ID
	c.mu.Unlock()

	for _, t := range tickets {
		if err := c.engine.Enqueue(t); err != nil {
			c.remove(doc)
			return fmt.Errorf("%s: %w", doc.Name(), err)
		}
	}
	logger.Info("document submitted", "pages", doc.Len())
	return nil
}

// Status returns a progress snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	active := len(c.active)
	c.mu.Unlock()
	return Status{
		Active:    active,
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Engine:    c.engine.Status(),
	}
}

// Active returns the documents currently in flight.
func (c *Coordinator) Active() []*document.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*document.Document, 0, len(c.active))
	for _, d := range c.active {
		out = append(out, d)
	}
	return out
}

// Idle is signalled each time the active set becomes empty.
func (c *Coordinator) Idle() <-chan struct{} {
	return c.idle
}

// pageDone runs after a page extraction succeeds. The last page to finish
// wins the correction and enqueues phase 2.
func (c *Coordinator) pageDone(ctx context.Context, doc *document.Document, q dispatch.Enqueuer) {
	if !doc.Correct(extract.Correct) {
		return
	}
	logger := c.logger.With("file_name", doc.Name(), "doc_id", doc.ID)

	if c.cfg.Step1 != nil {
		if err := c.cfg.Step1.Append(resultlog.NewStep1(doc)); err != nil {
			logger.Error("failed to write step1 record", "error", err)
		}
	}

	runs, err := doc.SectionRuns()
	if err != nil {
		c.fail(doc, err)
		return
	}
	logger.Info("extraction complete", "pages", doc.Len(), "sections", len(runs))

	hooks := summarize.Hooks{SectionDone: c.sectionDone, Exhausted: c.sectionExhausted}
	for _, run := range runs {
		t, err := summarize.NewTicket(doc, run, c.resolver, c.cfg.Summary, hooks, c.logger)
		if err != nil {
			c.fail(doc, fmt.Errorf("failed to build summary ticket: %w", err))
			return
		}
		if err := q.Enqueue(t); err != nil {
			logger.Warn("failed to enqueue summary ticket", "section_n", run.SectionN, "error", err)
			return
		}
	}
}

func (c *Coordinator) pageExhausted(doc *document.Document, pageIndex int, err error) {
	c.fail(doc, fmt.Errorf("page %d: %w", pageIndex+1, err))
}

func (c *Coordinator) sectionDone(ctx context.Context, doc *document.Document) {
	if !doc.MarkComplete() {
		return
	}
	logger := c.logger.With("file_name", doc.Name(), "doc_id", doc.ID)

	if c.cfg.Step2 != nil {
		if err := c.cfg.Step2.Append(resultlog.NewStep2(doc)); err != nil {
			logger.Error("failed to write step2 record", "error", err)
		}
	}
	in, out := doc.Usage().Totals()
	logger.Info("document complete",
		"sections", len(doc.Summaries()),
		"calls", len(doc.Usage().Calls()),
		"tokens_in", in,
		"tokens_out", out,
		"elapsed", doc.Usage().FinishedIn().Round(time.Millisecond))

	c.completed.Add(1)
	c.requestReport()
	c.remove(doc)
}

func (c *Coordinator) sectionExhausted(doc *document.Document, sectionN int, err error) {
	c.fail(doc, fmt.Errorf("section %d: %w", sectionN, err))
}

// fail moves doc into the failed state and drops it from the active set.
func (c *Coordinator) fail(doc *document.Document, err error) {
	if !doc.Fail(document.Error{Text: err.Error()}) {
		return
	}
	c.logger.Error("document failed", "file_name", doc.Name(), "doc_id", doc.ID, "error", err)
	c.failed.Add(1)
	c.remove(doc)
}

func (c *Coordinator) remove(doc *document.Document) {
	c.mu.Lock()
	delete(c.active, doc.ID)
	if c.paths[doc.Path] == doc.ID {
		delete(c.paths, doc.Path)
	}
	empty := len(c.active) == 0
	c.mu.Unlock()

	if empty {
		select {
		case c.idle <- struct{}{}:
		default:
		}
	}
}

func (c *Coordinator) requestReport() {
	if c.cfg.Report == nil {
		return
	}
	select {
	case c.reportCh <- struct{}{}:
	default:
	}
}

// reportLoop rebuilds reports on request. A request pending when stop closes
// is still served.
func (c *Coordinator) reportLoop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-c.reportCh:
			c.rebuild(ctx)
		case <-stop:
			select {
			case <-c.reportCh:
				c.rebuild(ctx)
			default:
			}
			return
		}
	}
}

func (c *Coordinator) rebuild(ctx context.Context) {
	for _, s := range []Sink{c.cfg.Step1, c.cfg.Step2} {
		if s == nil {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			c.logger.Warn("failed to flush result log before report", "error", err)
		}
	}
	if err := c.cfg.Report(ctx); err != nil {
		c.logger.Error("failed to rebuild reports", "error", err)
		return
	}
	c.logger.Debug("reports rebuilt")
}
