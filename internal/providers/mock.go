package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
//
// Responses are served in order from Script; once the script is exhausted the
// client repeats Choices. Handler, when set, overrides both.
type MockClient struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)
	Choices    []string
	Script     [][]string
	NoUsage    bool
	Handler    func(req *ChatRequest) (*ChatResult, error)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []*ChatRequest
	scriptPos    int
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency: time.Millisecond,
		Choices: []string{"mock response"},
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req.Clone())
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	// Check if we should fail
	if c.ShouldFail {
		err := fmt.Errorf("mock client configured to fail")
		return failedResult(result, "mock_failure", err, start), err
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		err := fmt.Errorf("mock client failed after %d requests", c.FailAfter)
		return failedResult(result, "mock_failure", err, start), err
	}

	// Simulate latency
	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return failedResult(result, "context_cancelled", ctx.Err(), start), ctx.Err()
	}

	if c.Handler != nil {
		return c.Handler(req)
	}

	for _, content := range c.nextChoices() {
		result.Choices = append(result.Choices, Choice{Content: content, FinishReason: "stop"})
	}

	if !c.NoUsage {
		// Rough token estimate
		promptTokens := 0
		for _, m := range req.Messages {
			promptTokens += len(m.Content)/4 + len(m.Parts)*258
		}
		completionTokens := 0
		for _, ch := range result.Choices {
			completionTokens += len(ch.Content) / 4
		}
		result.Usage = &Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	result.Success = true
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (c *MockClient) nextChoices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scriptPos < len(c.Script) {
		out := c.Script[c.scriptPos]
		c.scriptPos++
		return out
	}
	return c.Choices
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns copies of every request received, in arrival order.
func (c *MockClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ChatRequest(nil), c.requests...)
}

// Reset resets the request counter, the recorded requests and the script.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.scriptPos = 0
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
