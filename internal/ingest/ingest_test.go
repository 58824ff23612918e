package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// minimalPDF builds a valid PDF with n blank pages.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, n+2)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := range n {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for range n {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplit(t *testing.T) {
	path := writeFile(t, "spec.pdf", minimalPDF(3))

	doc, err := NewSplitter(2, nil).Split(context.Background(), path)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if doc.Len() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.Len())
	}
	if doc.HasUnrecoverable() || doc.AnyPageUnrecoverable() {
		t.Fatalf("unexpected errors: %v", doc.Errors())
	}

	for i, p := range doc.Pages() {
		if p.Number != i+1 {
			t.Errorf("page %d: number = %d", i, p.Number)
		}
		raw, err := base64.StdEncoding.DecodeString(p.Payload)
		if err != nil {
			t.Fatalf("page %d: payload is not base64: %v", p.Number, err)
		}
		n, err := api.PageCount(bytes.NewReader(raw), nil)
		if err != nil {
			t.Fatalf("page %d: payload is not a PDF: %v", p.Number, err)
		}
		if n != 1 {
			t.Errorf("page %d: payload has %d pages, want 1", p.Number, n)
		}
	}
}

func TestSplit_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.pdf") }},
		{"garbage", func(t *testing.T) string { return writeFile(t, "bad.pdf", []byte("not a pdf")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewSplitter(1, nil).Split(context.Background(), tt.path(t))
			if !errors.Is(err, ErrUnreadable) {
				t.Fatalf("expected ErrUnreadable, got %v", err)
			}
			if doc == nil || !doc.HasUnrecoverable() {
				t.Fatal("expected document with a non-recoverable error")
			}
			if doc.Len() != 0 {
				t.Errorf("expected no pages, got %d", doc.Len())
			}
		})
	}
}

func TestSplit_Cancelled(t *testing.T) {
	path := writeFile(t, "spec.pdf", minimalPDF(4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSplitter(1, nil).Split(ctx, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
