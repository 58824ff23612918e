package resultlog

import (
	"time"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/usage"
)

// Step1Page is one page of a step1 record.
type Step1Page struct {
	PageNum  int      `json:"page_num"`
	Sections []string `json:"sections"`
	Parts    []string `json:"parts"`
	SectionN int      `json:"section_n"`
}

// Step1Record is written once a document's correction pass has run.
type Step1Record struct {
	FilePath string      `json:"file_path"`
	FileName string      `json:"file_name"`
	PagesCnt int         `json:"pages_cnt"`
	Sections []string    `json:"sections"`
	Pages    []Step1Page `json:"pages"`
}

// UsageRecord is the usage block of a step2 record.
type UsageRecord struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedInS float64      `json:"finished_in_s"`
	Calls       []usage.Call `json:"calls"`
}

// Step2Record is written once every section of a document is summarised.
type Step2Record struct {
	FilePath  string                    `json:"file_path"`
	FileName  string                    `json:"file_name"`
	PagesCnt  int                       `json:"pages_cnt"`
	Summaries []document.SectionSummary `json:"summaries"`
	Usage     UsageRecord               `json:"usage"`
}

// NewStep1 snapshots a corrected document. Sections lists the distinct
// non-empty labels in order of first appearance.
func NewStep1(doc *document.Document) Step1Record {
	pages := doc.Pages()
	rec := Step1Record{
		FilePath: doc.Path,
		FileName: doc.Name(),
		PagesCnt: len(pages),
		Sections: []string{},
		Pages:    make([]Step1Page, 0, len(pages)),
	}
	seen := make(map[string]bool)
	for _, p := range pages {
		ex := p.Extraction
		for _, s := range ex.Sections {
			if !seen[s] {
				seen[s] = true
				rec.Sections = append(rec.Sections, s)
			}
		}
		rec.Pages = append(rec.Pages, Step1Page{
			PageNum:  p.Number,
			Sections: nonNil(ex.Sections),
			Parts:    nonNil(ex.Parts),
			SectionN: ex.SectionN,
		})
	}
	return rec
}

// NewStep2 snapshots a completed document with its usage.
func NewStep2(doc *document.Document) Step2Record {
	ledger := doc.Usage()
	calls := ledger.Calls()
	if calls == nil {
		calls = []usage.Call{}
	}
	summaries := doc.Summaries()
	for i := range summaries {
		if summaries[i].Parts == nil {
			summaries[i].Parts = []document.Part{}
		}
	}
	return Step2Record{
		FilePath:  doc.Path,
		FileName:  doc.Name(),
		PagesCnt:  doc.Len(),
		Summaries: summaries,
		Usage: UsageRecord{
			StartedAt:   ledger.StartedAt(),
			FinishedInS: ledger.FinishedIn().Seconds(),
			Calls:       calls,
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
