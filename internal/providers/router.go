package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackzampolin/folio/internal/catalog"
)

// Router is an LLMClient that resolves catalog model names to a provider
// client. It clamps max_tokens to the model ceiling, paces calls with a
// per-model limiter built from the model's rpm, and forwards the request
// under the model's upstream id.
type Router struct {
	catalog  *catalog.Catalog
	registry *Registry
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewRouter creates a router over the given catalog and registry.
func NewRouter(cat *catalog.Catalog, registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		catalog:  cat,
		registry: registry,
		logger:   logger,
		limiters: make(map[string]*RateLimiter),
	}
}

// Name returns the client identifier.
func (r *Router) Name() string {
	return "router"
}

// Catalog returns the catalog the router resolves against.
func (r *Router) Catalog() *catalog.Catalog {
	return r.catalog
}

// Chat resolves req.Model and forwards the call. The result reports the
// catalog name in ModelUsed so usage can be priced later.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := r.catalog.Lookup(req.Model)
	if err != nil {
		return nil, err
	}
	client, err := r.registry.Get(model.Provider)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model.Name, err)
	}

	if limiter := r.limiter(model); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	upstream := req.Clone()
	upstream.Model = model.ResolveAs
	upstream.MaxTokens = model.ClampMaxTokens(req.MaxTokens)

	result, err := client.Chat(ctx, upstream)
	if err != nil {
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			if limiter := r.limiter(model); limiter != nil {
				limiter.Record429(rateErr.RetryAfter)
			}
		}
		r.logger.Debug("chat call failed", "model", model.Name, "provider", model.Provider, "error", err)
	}
	if result != nil {
		result.ModelUsed = model.Name
	}
	return result, err
}

// LimiterStatus returns the limiter state for a model, if it has one.
func (r *Router) LimiterStatus(name string) (RateLimiterStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[name]
	if !ok {
		return RateLimiterStatus{}, false
	}
	return l.Status(), true
}

func (r *Router) limiter(model catalog.Model) *RateLimiter {
	if model.RPM <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[model.Name]
	if !ok {
		l = NewRateLimiter(model.RPM)
		r.limiters[model.Name] = l
	}
	return l
}

// Verify interface
var _ LLMClient = (*Router)(nil)
