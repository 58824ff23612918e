// Package ingest splits source PDFs into single-page PDF payloads.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/document"
)

// ErrUnreadable marks a source document that could not be opened or counted.
var ErrUnreadable = errors.New("unreadable document")

// Splitter turns a PDF file into a document whose pages carry base64
// single-page PDFs.
type Splitter struct {
	workers int
	logger  *slog.Logger
}

// NewSplitter creates a splitter. workers bounds concurrent page extraction
// and defaults to the CPU count.
func NewSplitter(workers int, logger *slog.Logger) *Splitter {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
	return &Splitter{
		workers: workers,
		logger:  logger.With("component", "ingest"),
	}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Split reads path and extracts every page. An unreadable file yields a
// document carrying a non-recoverable error and an error wrapping
// ErrUnreadable. A page that fails to extract gets its own non-recoverable
// error while its siblings are still extracted.
func (s *Splitter) Split(ctx context.Context, path string) (*document.Document, error) {
	start := time.Now()
	doc := document.New(path)
	logger := s.logger.With("file_name", doc.Name(), "doc_id", doc.ID)

	data, err := os.ReadFile(path)
	if err != nil {
		return s.unreadable(doc, logger, fmt.Errorf("failed to read file: %w", err))
	}
	count, err := api.PageCount(bytes.NewReader(data), newConfig())
	if err != nil {
		return s.unreadable(doc, logger, fmt.Errorf("failed to get page count: %w", err))
	}
	if count == 0 {
		return s.unreadable(doc, logger, document.ErrNoPages)
	}

	payloads := make([]string, count)
	failures := make([]error, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range count {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b64, err := extractPage(data, i+1)
			if err != nil {
				failures[i] = err
				return nil
			}
			payloads[i] = b64
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for i := range count {
		doc.AppendPage(document.Page{Number: i + 1, Payload: payloads[i]})
		if failures[i] != nil {
			failed++
			doc.AddPageError(i, document.Error{
				Text:        fmt.Sprintf("failed to extract page %d: %v", i+1, failures[i]),
				Recoverable: false,
			})
			logger.Warn("page extraction failed", "page", i+1, "error", failures[i])
		}
	}

	logger.Info("document split",
		"pages", count,
		"failed_pages", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"has_unrecoverable", failed > 0)
	return doc, nil
}

func (s *Splitter) unreadable(doc *document.Document, logger *slog.Logger, cause error) (*document.Document, error) {
	doc.AddError(document.Error{Text: cause.Error(), Recoverable: false})
	logger.Error("document unreadable", "error", cause)
	return doc, fmt.Errorf("%s: %w: %w", doc.Name(), ErrUnreadable, cause)
}

// extractPage writes page n of data as a standalone PDF and returns it
// base64-encoded.
func extractPage(data []byte, n int) (string, error) {
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &buf, []string{strconv.Itoa(n)}, newConfig()); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
