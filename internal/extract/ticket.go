// Package extract implements phase 1: per-page section and part extraction
// by consensus over sampled completions, followed by the correction pass
// that assigns section_n.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/prompts"
	"github.com/jackzampolin/folio/internal/prompts/extraction"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/usage"
)

// Defaults for Config.
const (
	DefaultSamples     = 8
	DefaultTemperature = 0.6
	DefaultMaxTokens   = 8192
	DefaultMaxAttempts = 10
)

// Config holds the sampling and retry settings for extraction tickets.
type Config struct {
	Model       string
	Samples     int
	Temperature float64
	TopP        float64
	MaxTokens   int
	PagesBefore int
	PagesAfter  int
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Samples <= 0 {
		c.Samples = DefaultSamples
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PagesBefore < 0 {
		c.PagesBefore = 0
	}
	if c.PagesAfter < 0 {
		c.PagesAfter = 0
	}
	return c
}

// Hooks connect extraction tickets to the pipeline.
type Hooks struct {
	// PageDone runs after a page stores a validated result.
	PageDone func(ctx context.Context, doc *document.Document, q dispatch.Enqueuer)
	// Exhausted runs when a page has used all its attempts.
	Exhausted func(doc *document.Document, pageIndex int, err error)
}

// errNoParsableChoice marks a response in which no choice could be parsed.
var errNoParsableChoice = errors.New("no parsable choice")

// Ticket extracts sections and parts for one page.
type Ticket struct {
	doc    *document.Document
	index  int
	number int
	req    *providers.ChatRequest
	cfg    Config
	hooks  Hooks
	logger *slog.Logger
}

// NewTicket builds the extraction request for the page at index: the system
// prompt, the page window and the user instruction for that page.
func NewTicket(doc *document.Document, index int, resolver *prompts.Resolver, cfg Config, hooks Hooks, logger *slog.Logger) (*Ticket, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	page := doc.Page(index)
	data := extraction.UserData{PageNumber: page.Number}
	system, err := resolver.Render(extraction.SystemPromptKey, data)
	if err != nil {
		return nil, err
	}
	user, err := resolver.Render(extraction.UserPromptKey, data)
	if err != nil {
		return nil, err
	}

	msgs := []providers.Message{providers.TextMessage(providers.RoleSystem, system)}
	for _, p := range doc.Window(index, cfg.PagesBefore, cfg.PagesAfter) {
		msgs = append(msgs, providers.PageMessage(p.Number, p.Payload))
	}
	msgs = append(msgs, providers.TextMessage(providers.RoleUser, user))

	return &Ticket{
		doc:    doc,
		index:  index,
		number: page.Number,
		req: &providers.ChatRequest{
			Messages:    msgs,
			Model:       cfg.Model,
			N:           cfg.Samples,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		},
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.With("component", "extract", "file_name", doc.Name(), "page", page.Number),
	}, nil
}

// Request returns the outbound request.
func (t *Ticket) Request() *providers.ChatRequest {
	return t.req
}

// Document returns the ticket's document.
func (t *Ticket) Document() *document.Document {
	return t.doc
}

// PageIndex returns the arena index of the ticket's page.
func (t *Ticket) PageIndex() int {
	return t.index
}

// Handle votes over the choices, validates the winner and either stores it
// or requeues with a corrective message.
func (t *Ticket) Handle(ctx context.Context, resp dispatch.Response, q dispatch.Enqueuer) {
	t.doc.Usage().Record(usage.FromResult(t.req.Model, resp.Result, resp.Started, resp.Finished, t.logger))
	if t.doc.Failed() {
		t.logger.Debug("document failed, dropping ticket")
		return
	}

	choices := resp.Choices()
	contents := make([]string, 0, len(choices))
	for _, ch := range choices {
		contents = append(contents, ch.Content)
	}

	tally := Vote(contents)
	if tally.Valid == 0 {
		t.logger.Warn("no parsable choice in response",
			"choices", len(choices),
			"transport_error", resp.Err)
		t.retry(q, errNoParsableChoice, fmt.Sprintf(
			"None of your answers could be read. Reply with a single JSON object "+
				"{\"page_number\": %d, \"sections\": [...], \"parts\": [...]} and nothing else.", t.number))
		return
	}
	if tally.Invalid > 0 {
		t.logger.Debug("discarded unparsable choices", "valid", tally.Valid, "invalid", tally.Invalid)
	}
	if n, ok := tally.PageNumber.(float64); !ok || int(n) != t.number {
		t.logger.Debug("voted page number does not match", "voted", tally.PageNumber)
	}

	sections, parts, err := Validate(tally, t.number)
	if err != nil {
		var vErr *ValidationError
		msg := err.Error()
		if errors.As(err, &vErr) {
			msg = vErr.Message
		}
		t.logger.Warn("extraction rejected", "reason", err)
		t.retry(q, err, msg)
		return
	}

	t.doc.SetExtraction(t.index, sections, parts)
	t.logger.Debug("page extracted", "sections", sections, "parts", parts, "valid_choices", tally.Valid)
	if t.hooks.PageDone != nil {
		t.hooks.PageDone(ctx, t.doc, q)
	}
}

// retry appends a corrective user turn and requeues, unless the page has run
// out of attempts.
func (t *Ticket) retry(q dispatch.Enqueuer, cause error, message string) {
	attempts := t.doc.IncAttempts(t.index)
	if attempts >= t.cfg.MaxAttempts {
		err := fmt.Errorf("extraction failed after %d attempts: %w", attempts, cause)
		t.doc.AddPageError(t.index, document.Error{Text: err.Error(), Recoverable: false})
		t.logger.Error("page extraction exhausted", "attempts", attempts, "error", cause)
		if t.hooks.Exhausted != nil {
			t.hooks.Exhausted(t.doc, t.index, err)
		}
		return
	}

	t.req.Append(providers.TextMessage(providers.RoleUser, message))
	if err := q.Enqueue(t); err != nil {
		t.logger.Warn("failed to requeue ticket", "attempt", attempts, "error", err)
		return
	}
	t.logger.Debug("ticket requeued", "attempt", attempts)
}

// Verify interface
var _ dispatch.Ticket = (*Ticket)(nil)
