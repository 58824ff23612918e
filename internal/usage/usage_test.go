package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/folio/internal/providers"
)

func TestFromResult(t *testing.T) {
	start := time.Now()
	end := start.Add(2 * time.Second)

	call := FromResult("m", &providers.ChatResult{
		RequestID: "req-1",
		Usage:     &providers.Usage{PromptTokens: 1200, CompletionTokens: 300},
	}, start, end, nil)
	assert.Equal(t, "m", call.Model)
	assert.Equal(t, "req-1", call.RequestID)
	assert.Equal(t, 1200, call.TokensIn)
	assert.Equal(t, 300, call.TokensOut)
	assert.Equal(t, 2*time.Second, call.Duration())
}

func TestFromResult_MissingUsage(t *testing.T) {
	now := time.Now()

	call := FromResult("m", &providers.ChatResult{RequestID: "r"}, now, now, nil)
	assert.Zero(t, call.TokensIn)
	assert.Zero(t, call.TokensOut)

	call = FromResult("m", nil, now, now, nil)
	assert.Equal(t, "m", call.Model)
	assert.Zero(t, call.TokensIn)

	call = FromResult("m", &providers.ChatResult{Usage: &providers.Usage{PromptTokens: -1, CompletionTokens: 5}}, now, now, nil)
	assert.Zero(t, call.TokensOut)
}

func TestCallCost(t *testing.T) {
	c := Call{TokensIn: 2_000_000, TokensOut: 500_000}
	assert.InDelta(t, 2*0.10+0.5*0.40, c.Cost(0.10, 0.40), 1e-9)
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.StartedAt().IsZero())
	assert.Zero(t, l.FinishedIn())

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.Record(Call{Model: "a", StartedAt: base.Add(time.Second), FinishedAt: base.Add(3 * time.Second), TokensIn: 10, TokensOut: 1})
	l.Record(Call{Model: "b", StartedAt: base, FinishedAt: base.Add(2 * time.Second), TokensIn: 5, TokensOut: 2})

	assert.Equal(t, base, l.StartedAt())
	in, out := l.Totals()
	assert.Equal(t, 15, in)
	assert.Equal(t, 3, out)

	calls := l.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Model)

	l.Finish(base.Add(10 * time.Second))
	assert.Equal(t, 10*time.Second, l.FinishedIn())
}
