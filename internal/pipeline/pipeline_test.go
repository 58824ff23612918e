package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/prompts"
	"github.com/jackzampolin/folio/internal/prompts/extraction"
	"github.com/jackzampolin/folio/internal/prompts/summary"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/resultlog"
	"github.com/jackzampolin/folio/internal/summarize"
)

var pageRef = regexp.MustCompile(`page #(\d+)`)

type memorySink struct {
	mu      sync.Mutex
	records []any
	flushes atomic.Int32
}

func (s *memorySink) Append(rec any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Flush(context.Context) error {
	s.flushes.Add(1)
	return nil
}

func (s *memorySink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.records...)
}

type pageAnswer struct {
	sections string
	parts    string
}

// fakeBackend answers extraction requests from a per-page table and summary
// requests with a fixed summary.
func fakeBackend(answers map[int]pageAnswer, summaryContent string) *providers.MockClient {
	mock := providers.NewMockClient()
	mock.Latency = 0
	mock.Handler = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		result := &providers.ChatResult{
			Provider:  providers.MockClientName,
			ModelUsed: req.Model,
			Success:   true,
			Usage:     &providers.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
		}
		if req.N <= 1 {
			result.Choices = []providers.Choice{{Content: summaryContent}}
			return result, nil
		}
		last := req.Messages[len(req.Messages)-1].Content
		m := pageRef.FindStringSubmatch(last)
		if m == nil {
			return nil, fmt.Errorf("no page reference in %q", last)
		}
		n, _ := strconv.Atoi(m[1])
		a := answers[n]
		content := fmt.Sprintf(`{"page_number": %d, "sections": [%s], "parts": [%s]}`, n, a.sections, a.parts)
		for range req.N {
			result.Choices = append(result.Choices, providers.Choice{Content: content})
		}
		return result, nil
	}
	return mock
}

func newResolver() *prompts.Resolver {
	r := prompts.NewResolver(nil)
	extraction.RegisterPrompts(r)
	summary.RegisterPrompts(r)
	return r
}

func newDoc(path string, pages int) *document.Document {
	doc := document.New(path)
	for i := 1; i <= pages; i++ {
		doc.AppendPage(document.Page{Number: i, Payload: fmt.Sprintf("cGFnZS0%d", i)})
	}
	return doc
}

func testConfig(step1, step2 Sink) Config {
	return Config{
		Engine:     dispatch.Config{BatchSize: 8, IdleTimeout: 10 * time.Millisecond},
		Extraction: extract.Config{Model: "primary", Samples: 3, MaxAttempts: 2},
		Summary:    summarize.Config{Model: "primary", FallbackModel: "fallback", MaxAttempts: 2},
		Step1:      step1,
		Step2:      step2,
	}
}

func runUntilIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-c.Idle():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not go idle")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestCoordinatorCompletesDocument(t *testing.T) {
	answers := map[int]pageAnswer{
		1: {`"033000"`, `"PART 1 - GENERAL"`},
		2: {``, `"PART 2 - PRODUCTS"`},
		3: {`"044000"`, `"PART 1 - GENERAL"`},
	}
	summaryContent := `{"section_summary":"Work.","parts":[{"part_name":"PART 1 - GENERAL","part_summary":"Scope."}]}`

	step1, step2 := &memorySink{}, &memorySink{}
	var reports atomic.Int32
	cfg := testConfig(step1, step2)
	cfg.Report = func(context.Context) error {
		reports.Add(1)
		return nil
	}
	c := New(fakeBackend(answers, summaryContent), newResolver(), cfg)

	doc := newDoc("/data/spec.pdf", 3)
	require.NoError(t, c.Submit(doc))
	assert.Equal(t, 1, c.Status().Active)

	runUntilIdle(t, c)

	status := c.Status()
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, int64(1), status.Completed)
	assert.Equal(t, int64(0), status.Failed)

	recs1 := step1.all()
	require.Len(t, recs1, 1)
	r1 := recs1[0].(resultlog.Step1Record)
	assert.Equal(t, "spec.pdf", r1.FileName)
	assert.Equal(t, []string{"033000", "044000"}, r1.Sections)
	require.Len(t, r1.Pages, 3)
	assert.Equal(t, 0, r1.Pages[1].SectionN)
	assert.Equal(t, []string{"033000"}, r1.Pages[1].Sections)
	assert.Equal(t, 1, r1.Pages[2].SectionN)

	recs2 := step2.all()
	require.Len(t, recs2, 1)
	r2 := recs2[0].(resultlog.Step2Record)
	require.Len(t, r2.Summaries, 2)
	// 3 extraction calls + 2 summary calls
	assert.Len(t, r2.Usage.Calls, 5)

	assert.Equal(t, int32(1), reports.Load())
	assert.Positive(t, step1.flushes.Load())
}

func TestCoordinatorFailsExhaustedPage(t *testing.T) {
	answers := map[int]pageAnswer{
		1: {`"033000"`, ``},
		2: {`"1"`, ``}, // never valid
	}
	step1, step2 := &memorySink{}, &memorySink{}
	c := New(fakeBackend(answers, ""), newResolver(), testConfig(step1, step2))

	doc := newDoc("/data/bad.pdf", 2)
	require.NoError(t, c.Submit(doc))
	runUntilIdle(t, c)

	assert.True(t, doc.Failed())
	assert.Equal(t, int64(1), c.Status().Failed)
	assert.Empty(t, step1.all())
	assert.Empty(t, step2.all())
}

func TestCoordinatorFailsExhaustedSection(t *testing.T) {
	answers := map[int]pageAnswer{1: {`"033000"`, ``}}
	step1, step2 := &memorySink{}, &memorySink{}
	c := New(fakeBackend(answers, "not json"), newResolver(), testConfig(step1, step2))

	doc := newDoc("/data/nosummary.pdf", 1)
	require.NoError(t, c.Submit(doc))
	runUntilIdle(t, c)

	assert.True(t, doc.Failed())
	assert.Len(t, step1.all(), 1)
	assert.Empty(t, step2.all())
}

func TestSubmitRejects(t *testing.T) {
	c := New(providers.NewMockClient(), newResolver(), testConfig(nil, nil))

	t.Run("no pages", func(t *testing.T) {
		err := c.Submit(document.New("/data/empty.pdf"))
		assert.ErrorIs(t, err, document.ErrNoPages)
	})

	t.Run("unrecoverable document", func(t *testing.T) {
		doc := newDoc("/data/broken.pdf", 1)
		doc.AddError(document.Error{Text: "cannot open"})
		assert.ErrorIs(t, c.Submit(doc), ErrUnusable)
	})

	t.Run("unrecoverable page", func(t *testing.T) {
		doc := newDoc("/data/page.pdf", 2)
		doc.AddPageError(1, document.Error{Text: "split failed"})
		assert.ErrorIs(t, c.Submit(doc), ErrUnusable)
	})

	t.Run("already active", func(t *testing.T) {
		require.NoError(t, c.Submit(newDoc("/data/twice.pdf", 1)))
		assert.ErrorIs(t, c.Submit(newDoc("/data/twice.pdf", 1)), ErrAlreadyActive)
	})

	assert.Len(t, c.Active(), 1)
}

type fakeSplitter struct {
	docs map[string]*document.Document
}

func (s fakeSplitter) Split(_ context.Context, path string) (*document.Document, error) {
	doc, ok := s.docs[path]
	if !ok {
		return nil, errors.New("unreadable")
	}
	return doc, nil
}

func TestIngest(t *testing.T) {
	c := New(providers.NewMockClient(), newResolver(), testConfig(nil, nil))
	splitter := fakeSplitter{docs: map[string]*document.Document{
		"/data/a.pdf": newDoc("/data/a.pdf", 2),
		"/data/b.pdf": newDoc("/data/b.pdf", 1),
	}}

	paths := make(chan string, 3)
	paths <- "/data/a.pdf"
	paths <- "/data/missing.pdf"
	paths <- "/data/b.pdf"
	close(paths)

	require.NoError(t, c.Ingest(context.Background(), paths, splitter))
	status := c.Status()
	assert.Equal(t, 2, status.Active)
	assert.Equal(t, 3, status.Engine.QueueDepth)
}
