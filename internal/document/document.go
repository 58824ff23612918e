// Package document holds the in-memory model of a document moving through the
// pipeline: an arena of pages, per-page extraction state, section summaries and
// the usage ledger.
//
// All mutable state is guarded by the document's mutex. Callers never touch
// Page fields directly once the document is shared with the dispatch engine;
// they go through the methods below.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/usage"
)

// ErrNoPages is returned when a document operation needs at least one page.
var ErrNoPages = errors.New("document has no pages")

// Error is a document- or page-scoped failure.
type Error struct {
	Text        string `json:"text"`
	Recoverable bool   `json:"recoverable"`
}

func (e Error) Error() string { return e.Text }

// Extraction is the per-page result of phase 1.
type Extraction struct {
	Sections []string `json:"sections"`
	Parts    []string `json:"parts"`
	// SectionN is -1 until the correction pass runs.
	SectionN int  `json:"section_n"`
	Success  bool `json:"success"`
}

// Page is one page of a document. Pages live in the document arena and find
// their neighbours by index.
type Page struct {
	Number     int    // 1-based
	Payload    string // base64 single-page PDF
	Extraction Extraction
	Attempts   int
	Errors     []Error
}

// HasUnrecoverable reports whether the page carries a non-recoverable error.
func (p *Page) HasUnrecoverable() bool {
	for _, e := range p.Errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// Part is a named sub-unit of a section summary.
type Part struct {
	Name    string `json:"part_name"`
	Summary string `json:"part_summary"`
}

// SectionSummary is the phase 2 result for one section_n.
type SectionSummary struct {
	Section  string `json:"section"`
	SectionN int    `json:"section_n"`
	Summary  string `json:"section_summary"`
	Parts    []Part `json:"parts"`
}

// Document owns its pages and every piece of pipeline state attached to them.
type Document struct {
	ID   string
	Path string

	mu        sync.Mutex
	pages     []Page
	errors    []Error
	corrected bool
	complete  bool
	failed    bool
	summaries []SectionSummary
	ledger    *usage.Ledger
}

// New creates an empty document for the file at path.
func New(path string) *Document {
	return &Document{
		ID:     uuid.New().String(),
		Path:   path,
		ledger: usage.NewLedger(),
	}
}

// Name returns the base file name.
func (d *Document) Name() string {
	return filepath.Base(d.Path)
}

// AppendPage adds a page at the end of the arena. Only used during ingestion.
func (d *Document) AppendPage(p Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Extraction.SectionN = -1
	d.pages = append(d.pages, p)
}

// AddError records a document-level error.
func (d *Document) AddError(e Error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, e)
}

// AddPageError records an error on the page at index i.
func (d *Document) AddPageError(i int, e Error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[i].Errors = append(d.pages[i].Errors, e)
}

// Errors returns a copy of the document-level errors.
func (d *Document) Errors() []Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Error(nil), d.errors...)
}

// HasUnrecoverable reports whether the document itself is unusable.
func (d *Document) HasUnrecoverable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// AnyPageUnrecoverable reports whether any page failed in a way that blocks
// summarising the document.
func (d *Document) AnyPageUnrecoverable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.pages {
		if d.pages[i].HasUnrecoverable() {
			return true
		}
	}
	return false
}

// Len returns the page count.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}

// Page returns a snapshot of the page at index i.
func (d *Document) Page(i int) Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clonePage(d.pages[i])
}

// Pages returns a snapshot of every page.
func (d *Document) Pages() []Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Page, len(d.pages))
	for i := range d.pages {
		out[i] = clonePage(d.pages[i])
	}
	return out
}

// Window returns the payloads of up to before preceding pages, the page at i,
// and up to after following pages, in page order.
func (d *Document) Window(i, before, after int) []Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	lo := max(0, i-before)
	hi := min(len(d.pages)-1, i+after)
	out := make([]Page, 0, hi-lo+1)
	for j := lo; j <= hi; j++ {
		out = append(out, clonePage(d.pages[j]))
	}
	return out
}

// IncAttempts bumps the extraction attempt counter for page i and returns the
// new value.
func (d *Document) IncAttempts(i int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[i].Attempts++
	return d.pages[i].Attempts
}

// SetExtraction stores a validated phase 1 result on page i.
func (d *Document) SetExtraction(i int, sections, parts []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &d.pages[i]
	p.Extraction.Sections = append([]string(nil), sections...)
	p.Extraction.Parts = append([]string(nil), parts...)
	p.Extraction.Success = true
}

// Step1Done reports whether every page has a successful extraction.
func (d *Document) Step1Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step1Done()
}

func (d *Document) step1Done() bool {
	if len(d.pages) == 0 {
		return false
	}
	for i := range d.pages {
		if !d.pages[i].Extraction.Success {
			return false
		}
	}
	return true
}

// Correct runs fn over the page arena exactly once, after every page has been
// extracted. It returns false when phase 1 is incomplete or correction has
// already happened.
func (d *Document) Correct(fn func(pages []Page)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.corrected || d.failed || !d.step1Done() {
		return false
	}
	fn(d.pages)
	d.corrected = true
	return true
}

// Corrected reports whether the correction pass has run.
func (d *Document) Corrected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.corrected
}

// SectionRun is a contiguous group of pages sharing a section_n.
type SectionRun struct {
	SectionN int
	Section  string
	Pages    []Page
}

// SectionRuns groups corrected pages by section_n in page order.
func (d *Document) SectionRuns() ([]SectionRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil, ErrNoPages
	}
	if !d.corrected {
		return nil, fmt.Errorf("document %s: section runs requested before correction", d.Name())
	}

	var runs []SectionRun
	index := make(map[int]int)
	for i := range d.pages {
		p := d.pages[i]
		n := p.Extraction.SectionN
		ri, ok := index[n]
		if !ok {
			label := ""
			if len(p.Extraction.Sections) > 0 {
				label = p.Extraction.Sections[0]
			}
			runs = append(runs, SectionRun{SectionN: n, Section: label})
			ri = len(runs) - 1
			index[n] = ri
		}
		runs[ri].Pages = append(runs[ri].Pages, clonePage(p))
	}
	return runs, nil
}

// AddSummary appends a section summary. A second summary for the same
// section_n is ignored and reported as false.
func (d *Document) AddSummary(s SectionSummary) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.summaries {
		if existing.SectionN == s.SectionN {
			return false
		}
	}
	d.summaries = append(d.summaries, s)
	return true
}

// Summaries returns the section summaries ordered by section_n.
func (d *Document) Summaries() []SectionSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]SectionSummary(nil), d.summaries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SectionN < out[j].SectionN })
	return out
}

// Step2Done reports whether every section_n present on the pages has exactly
// one summary.
func (d *Document) Step2Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step2Done()
}

func (d *Document) step2Done() bool {
	if !d.corrected {
		return false
	}
	want := make(map[int]struct{})
	for i := range d.pages {
		want[d.pages[i].Extraction.SectionN] = struct{}{}
	}
	have := make(map[int]struct{}, len(d.summaries))
	for _, s := range d.summaries {
		have[s.SectionN] = struct{}{}
	}
	if len(want) != len(have) {
		return false
	}
	for n := range want {
		if _, ok := have[n]; !ok {
			return false
		}
	}
	return true
}

// MarkComplete flips the document into its completed state once phase 2 is
// done. Only the first caller gets true.
func (d *Document) MarkComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.complete || d.failed || !d.step2Done() {
		return false
	}
	d.complete = true
	d.ledger.Finish(time.Now())
	return true
}

// Fail moves the document into the terminal failed state and records why.
// Only the first caller gets true.
func (d *Document) Fail(e Error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed || d.complete {
		return false
	}
	e.Recoverable = false
	d.errors = append(d.errors, e)
	d.failed = true
	return true
}

// Failed reports whether the document reached the failed state.
func (d *Document) Failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

// Usage returns the document's usage ledger.
func (d *Document) Usage() *usage.Ledger {
	return d.ledger
}

func clonePage(p Page) Page {
	p.Extraction.Sections = append([]string(nil), p.Extraction.Sections...)
	p.Extraction.Parts = append([]string(nil), p.Extraction.Parts...)
	p.Errors = append([]Error(nil), p.Errors...)
	return p
}
