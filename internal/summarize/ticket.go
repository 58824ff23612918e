// Package summarize implements phase 2: one summary request per corrected
// section, escalating to a fallback model when the output is malformed.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/prompts"
	"github.com/jackzampolin/folio/internal/prompts/summary"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/usage"
)

// Defaults for Config.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 8192
	DefaultMaxAttempts = 6
)

// Config holds the model and retry settings for summary tickets.
type Config struct {
	Model         string
	FallbackModel string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	MaxAttempts   int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.FallbackModel == "" {
		c.FallbackModel = c.Model
	}
	return c
}

// Hooks connect summary tickets to the pipeline.
type Hooks struct {
	// SectionDone runs after a section summary is stored.
	SectionDone func(ctx context.Context, doc *document.Document)
	// Exhausted runs when a section has used all its attempts.
	Exhausted func(doc *document.Document, sectionN int, err error)
}

var errEmptyResponse = errors.New("empty response")

// Ticket summarises one section run.
type Ticket struct {
	doc      *document.Document
	sectionN int
	section  string
	req      *providers.ChatRequest
	cfg      Config
	hooks    Hooks
	attempts int
	logger   *slog.Logger
}

// NewTicket builds the summary request for a section run: the system prompt,
// every page of the section in order and the user instruction.
func NewTicket(doc *document.Document, run document.SectionRun, resolver *prompts.Resolver, cfg Config, hooks Hooks, logger *slog.Logger) (*Ticket, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if len(run.Pages) == 0 {
		return nil, fmt.Errorf("section %d of %s: %w", run.SectionN, doc.Name(), document.ErrNoPages)
	}

	system, err := resolver.Render(summary.SystemPromptKey, run)
	if err != nil {
		return nil, err
	}
	user, err := resolver.Render(summary.UserPromptKey, run)
	if err != nil {
		return nil, err
	}

	msgs := []providers.Message{providers.TextMessage(providers.RoleSystem, system)}
	for _, p := range run.Pages {
		msgs = append(msgs, providers.PageMessage(p.Number, p.Payload))
	}
	msgs = append(msgs, providers.TextMessage(providers.RoleUser, user))

	return &Ticket{
		doc:      doc,
		sectionN: run.SectionN,
		section:  run.Section,
		req: &providers.ChatRequest{
			Messages:    msgs,
			Model:       cfg.Model,
			N:           1,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		},
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.With("component", "summarize", "file_name", doc.Name(), "section_n", run.SectionN, "section", run.Section),
	}, nil
}

// Request returns the outbound request.
func (t *Ticket) Request() *providers.ChatRequest {
	return t.req
}

// SectionN returns the section index the ticket summarises.
func (t *Ticket) SectionN() int {
	return t.sectionN
}

// Handle parses the summary. On failure it appends the raw answer and a
// corrective turn, switches to the fallback model and requeues.
func (t *Ticket) Handle(ctx context.Context, resp dispatch.Response, q dispatch.Enqueuer) {
	t.doc.Usage().Record(usage.FromResult(t.req.Model, resp.Result, resp.Started, resp.Finished, t.logger))
	if t.doc.Failed() {
		t.logger.Debug("document failed, dropping ticket")
		return
	}

	if resp.Err != nil {
		t.retry(q, resp.Err, "", "")
		return
	}
	choices := resp.Choices()
	if len(choices) == 0 || choices[0].Content == "" {
		t.retry(q, errEmptyResponse, "", "")
		return
	}

	raw := choices[0].Content
	text, parts, err := Parse(raw)
	if err != nil {
		t.logger.Warn("failed to parse summary", "model", t.req.Model, "error", err)
		t.retry(q, err, raw, fmt.Sprintf(
			"Failed to parse answer. Error: %v\nReply with a single JSON object "+
				"{\"section_summary\": \"...\", \"parts\": [{\"part_name\": \"...\", \"part_summary\": \"...\"}]} and nothing else.", err))
		return
	}

	added := t.doc.AddSummary(document.SectionSummary{
		Section:  t.section,
		SectionN: t.sectionN,
		Summary:  text,
		Parts:    parts,
	})
	if !added {
		t.logger.Warn("section already summarised, ignoring duplicate")
		return
	}
	t.logger.Debug("section summarised", "parts", len(parts), "model", t.req.Model)
	if t.hooks.SectionDone != nil {
		t.hooks.SectionDone(ctx, t.doc)
	}
}

// retry escalates to the fallback model and requeues. A transport failure
// leaves the transcript unchanged; a bad answer is appended together with
// the corrective message.
func (t *Ticket) retry(q dispatch.Enqueuer, cause error, raw, corrective string) {
	t.attempts++
	if t.attempts >= t.cfg.MaxAttempts {
		err := fmt.Errorf("summary failed after %d attempts: %w", t.attempts, cause)
		t.logger.Error("section summary exhausted", "attempts", t.attempts, "error", cause)
		if t.hooks.Exhausted != nil {
			t.hooks.Exhausted(t.doc, t.sectionN, err)
		}
		return
	}

	if corrective != "" {
		t.req.Append(
			providers.TextMessage(providers.RoleAssistant, raw),
			providers.TextMessage(providers.RoleUser, corrective),
		)
	}
	if t.req.Model != t.cfg.FallbackModel {
		t.logger.Info("escalating to fallback model", "from", t.req.Model, "to", t.cfg.FallbackModel)
		t.req.Model = t.cfg.FallbackModel
	}

	if err := q.Enqueue(t); err != nil {
		t.logger.Warn("failed to requeue ticket", "attempt", t.attempts, "error", err)
		return
	}
	t.logger.Debug("ticket requeued", "attempt", t.attempts, "model", t.req.Model)
}

// Verify interface
var _ dispatch.Ticket = (*Ticket)(nil)
