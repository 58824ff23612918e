// Package usage records per-call token and timing accounting for a document.
// Dollar cost is never stored; it is derived from catalog prices at report
// time.
package usage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/providers"
)

// Call is one backend dispatch.
type Call struct {
	RequestID  string    `json:"request_id,omitempty"`
	Model      string    `json:"model_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
}

// Duration is the wall time of the call.
func (c Call) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

// Cost prices the call with per-million-token rates.
func (c Call) Cost(inputPerMillion, outputPerMillion float64) float64 {
	return float64(c.TokensIn)/1_000_000*inputPerMillion +
		float64(c.TokensOut)/1_000_000*outputPerMillion
}

// FromResult builds a Call from a backend result. Missing usage is logged and
// counted as zero; a nil result still produces a record for the model that was
// asked.
func FromResult(model string, result *providers.ChatResult, started, finished time.Time, logger *slog.Logger) Call {
	if logger == nil {
		logger = slog.Default()
	}
	call := Call{
		Model:      model,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if result == nil {
		return call
	}
	call.RequestID = result.RequestID
	if result.Usage == nil {
		logger.Warn("backend response has no usage, counting zero tokens",
			"model", model,
			"request_id", result.RequestID)
		return call
	}
	if result.Usage.PromptTokens < 0 || result.Usage.CompletionTokens < 0 {
		logger.Warn("backend response has malformed usage, counting zero tokens",
			"model", model,
			"prompt_tokens", result.Usage.PromptTokens,
			"completion_tokens", result.Usage.CompletionTokens)
		return call
	}
	call.TokensIn = result.Usage.PromptTokens
	call.TokensOut = result.Usage.CompletionTokens
	return call
}

// Ledger aggregates the calls made on behalf of one document.
type Ledger struct {
	mu       sync.Mutex
	started  time.Time
	finished time.Time
	calls    []Call
}

// NewLedger creates an empty ledger. Its clock starts with the first call.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a call.
func (l *Ledger) Record(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started.IsZero() || c.StartedAt.Before(l.started) {
		l.started = c.StartedAt
	}
	l.calls = append(l.calls, c)
}

// Finish stamps the ledger's end time.
func (l *Ledger) Finish(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = t
}

// Calls returns the recorded calls in order.
func (l *Ledger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// StartedAt returns the start of the earliest call, or the zero time when
// nothing was recorded.
func (l *Ledger) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// FinishedIn is the elapsed time from the first call to finish, or to now
// when the ledger is still open.
func (l *Ledger) FinishedIn() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started.IsZero() {
		return 0
	}
	end := l.finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(l.started)
}

// Totals sums tokens across all calls.
func (l *Ledger) Totals() (in, out int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		in += c.TokensIn
		out += c.TokensOut
	}
	return in, out
}
