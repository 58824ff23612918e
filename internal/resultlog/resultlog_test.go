package resultlog

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/usage"
)

type rec struct {
	N int `json:"n"`
}

func TestLog_AppendSyncAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "step1.jsonl")
	l, err := Open(Config{Path: path, FlushInterval: time.Hour})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.AppendSync(ctx, rec{N: 1}))

	got, err := Read[rec](path)
	require.NoError(t, err)
	assert.Equal(t, []rec{{N: 1}}, got)

	require.NoError(t, l.Close())
}

func TestLog_FlushCoversPriorAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	l, err := Open(Config{Path: path, FlushInterval: time.Hour, BatchSize: 1000})
	require.NoError(t, err)
	defer l.Close()

	for i := range 10 {
		require.NoError(t, l.Append(rec{N: i}))
	}
	require.NoError(t, l.Flush(context.Background()))

	got, err := Read[rec](path)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, 9, got[9].N)
}

func TestLog_CloseFlushesAndRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	l, err := Open(Config{Path: path, FlushInterval: time.Hour, BatchSize: 1000})
	require.NoError(t, err)

	require.NoError(t, l.Append(rec{N: 7}))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Append(rec{N: 8}), ErrClosed)
	assert.ErrorIs(t, l.AppendSync(context.Background(), rec{N: 8}), ErrClosed)
	assert.ErrorIs(t, l.Flush(context.Background()), ErrClosed)

	got, err := Read[rec](path)
	require.NoError(t, err)
	assert.Equal(t, []rec{{N: 7}}, got)
}

func TestLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := range 2 {
		l, err := Open(Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, l.Append(rec{N: i}))
		require.NoError(t, l.Close())
	}
	got, err := Read[rec](path)
	require.NoError(t, err)
	assert.Equal(t, []rec{{N: 0}, {N: 1}}, got)
}

func TestLog_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	l, err := Open(Config{Path: path, BatchSize: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(rec{N: i}))
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())

	got, err := Read[rec](path)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestRead_Missing(t *testing.T) {
	got, err := Read[rec](filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode(t *testing.T) {
	got, err := Decode[rec](strings.NewReader("{\"n\":1}\n\n{\"n\":2}\n"))
	require.NoError(t, err)
	assert.Equal(t, []rec{{N: 1}, {N: 2}}, got)

	_, err = Decode[rec](strings.NewReader("{\"n\":1}\nnot json\n"))
	assert.ErrorContains(t, err, "line 2")
}

func completedDoc(t *testing.T) *document.Document {
	t.Helper()
	doc := document.New("/in/spec.pdf")
	labels := []string{"", "011000", "011000", "012000"}
	for i, l := range labels {
		doc.AppendPage(document.Page{Number: i + 1})
		var secs []string
		if l != "" {
			secs = []string{l}
		}
		doc.SetExtraction(i, secs, []string{"PART 1"})
	}
	require.True(t, doc.Correct(func(p []document.Page) {
		for i, n := range []int{0, 1, 1, 2} {
			p[i].Extraction.SectionN = n
		}
	}))
	for n, label := range []string{"", "011000", "012000"} {
		doc.AddSummary(document.SectionSummary{Section: label, SectionN: n, Summary: "s"})
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc.Usage().Record(usage.Call{Model: "m", StartedAt: base, FinishedAt: base.Add(time.Second), TokensIn: 10, TokensOut: 2})
	require.True(t, doc.MarkComplete())
	return doc
}

func TestNewStep1(t *testing.T) {
	r := NewStep1(completedDoc(t))
	assert.Equal(t, "spec.pdf", r.FileName)
	assert.Equal(t, "/in/spec.pdf", r.FilePath)
	assert.Equal(t, 4, r.PagesCnt)
	assert.Equal(t, []string{"011000", "012000"}, r.Sections)
	require.Len(t, r.Pages, 4)
	assert.Equal(t, []string{}, r.Pages[0].Sections)
	assert.Equal(t, 2, r.Pages[3].SectionN)
}

func TestNewStep2(t *testing.T) {
	r := NewStep2(completedDoc(t))
	assert.Equal(t, 4, r.PagesCnt)
	require.Len(t, r.Summaries, 3)
	assert.Equal(t, []document.Part{}, r.Summaries[0].Parts)
	require.Len(t, r.Usage.Calls, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.Usage.StartedAt)
	assert.Greater(t, r.Usage.FinishedInS, 0.0)
}

func TestStep2RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step2.jsonl")
	l, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, l.AppendSync(context.Background(), NewStep2(completedDoc(t))))
	require.NoError(t, l.Close())

	got, err := Read[Step2Record](path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "011000", got[0].Summaries[1].Section)
	assert.Equal(t, 10, got[0].Usage.Calls[0].TokensIn)
}
