package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/folio/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(map[string]catalog.Model{
		"fast": {Provider: "mock", ResolveAs: "vendor/fast-001", MaxOutputTokens: 1000, RPM: 600},
		"slow": {Provider: "missing", ResolveAs: "vendor/slow"},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func TestRouter_Chat(t *testing.T) {
	mock := NewMockClient()
	registry := NewRegistry()
	registry.Register("mock", mock)
	router := NewRouter(testCatalog(t), registry, nil)

	t.Run("resolves model and clamps max tokens", func(t *testing.T) {
		mock.Reset()
		result, err := router.Chat(context.Background(), &ChatRequest{
			Model:     "fast",
			Messages:  []Message{TextMessage(RoleUser, "hi")},
			MaxTokens: 5000,
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.ModelUsed != "fast" {
			t.Errorf("ModelUsed = %s, want fast", result.ModelUsed)
		}
		sent := mock.Requests()[0]
		if sent.Model != "vendor/fast-001" {
			t.Errorf("sent model = %s, want vendor/fast-001", sent.Model)
		}
		if sent.MaxTokens != 1000 {
			t.Errorf("sent max tokens = %d, want 1000", sent.MaxTokens)
		}
		if status, ok := router.LimiterStatus("fast"); !ok || status.TotalConsumed != 1 {
			t.Errorf("LimiterStatus = %+v, %v", status, ok)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := router.Chat(context.Background(), &ChatRequest{Model: "nope"})
		if !errors.Is(err, catalog.ErrModelNotFound) {
			t.Errorf("err = %v, want ErrModelNotFound", err)
		}
	})

	t.Run("unregistered provider", func(t *testing.T) {
		if _, err := router.Chat(context.Background(), &ChatRequest{Model: "slow"}); err == nil {
			t.Error("expected error for model whose provider is not registered")
		}
	})
}
