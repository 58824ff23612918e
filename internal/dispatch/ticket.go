// Package dispatch runs tickets against a completion backend in bounded
// concurrent batches.
//
// A single worker drains a shared FIFO queue: it blocks up to IdleTimeout for
// one ticket, takes up to BatchSize-1 more without blocking, dispatches the
// whole batch concurrently and waits for every continuation to return before
// draining again. Continuations requeue their own ticket to retry.
package dispatch

import (
	"context"
	"time"

	"github.com/jackzampolin/folio/internal/providers"
)

// Ticket is a retryable unit of work: an outbound chat request plus the
// continuation that consumes its response.
type Ticket interface {
	// Request returns the request to send. The engine does not modify it.
	Request() *providers.ChatRequest

	// Handle consumes the response. To retry, it amends its request and
	// passes itself to q.Enqueue.
	Handle(ctx context.Context, resp Response, q Enqueuer)
}

// Enqueuer accepts tickets for dispatch.
type Enqueuer interface {
	Enqueue(t Ticket) error
}

// Response is the outcome of one backend call.
type Response struct {
	// Result is nil when the call failed before reaching a provider.
	Result   *providers.ChatResult
	Err      error
	Started  time.Time
	Finished time.Time
}

// Choices returns the sampled completions, or nil on a transport failure.
func (r Response) Choices() []providers.Choice {
	if r.Err != nil || r.Result == nil {
		return nil
	}
	return r.Result.Choices
}

// Duration returns the wall time of the call.
func (r Response) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
