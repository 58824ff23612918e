// Package report turns the step1 and step2 result logs into flat tables and
// writes them as CSV files and an XLSX workbook.
package report

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/catalog"
	"github.com/jackzampolin/folio/internal/resultlog"
)

// Output file names inside the artifacts directory.
const (
	SectionsFile = "output.csv"
	PartsFile    = "output_parts.csv"
	UsageFile    = "usage.csv"
	WorkbookFile = "report.xlsx"
)

// SectionRow is one contiguous (section, section_n) run of a document.
type SectionRow struct {
	FileName       string
	Section        string
	SectionN       int
	PageStart      int
	PageEnd        int
	SectionSummary string
}

// PartRow is one summarised part.
type PartRow struct {
	FileName string
	Part     string
	Section  string
	SectionN int
	Summary  string
}

// UsageRow aggregates the calls made for one document.
type UsageRow struct {
	FileName   string
	FinishedIn float64
	Models     []string
	Calls      int
	TokensIn   int
	TokensOut  int
	Cost       float64
}

// Report holds the three tables.
type Report struct {
	Sections []SectionRow
	Parts    []PartRow
	Usage    []UsageRow
}

type summaryKey struct {
	file     string
	section  string
	sectionN int
}

// Build joins step1 and step2 records into report tables. When a file appears
// in several records of the same log, the last one wins. Calls to models the
// catalog does not know are priced at zero.
func Build(step1 []resultlog.Step1Record, step2 []resultlog.Step2Record, cat *catalog.Catalog, logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.Default()
	}
	step1 = lastByFile(step1, func(r resultlog.Step1Record) string { return r.FileName })
	step2 = lastByFile(step2, func(r resultlog.Step2Record) string { return r.FileName })

	summaries := make(map[summaryKey]string)
	for _, rec := range step2 {
		for _, s := range rec.Summaries {
			summaries[summaryKey{rec.FileName, s.Section, s.SectionN}] = s.Summary
		}
	}

	r := &Report{
		Sections: []SectionRow{},
		Parts:    []PartRow{},
		Usage:    []UsageRow{},
	}
	for _, rec := range step1 {
		for _, row := range sectionRows(rec) {
			row.SectionSummary = summaries[summaryKey{row.FileName, row.Section, row.SectionN}]
			r.Sections = append(r.Sections, row)
		}
	}

	unpriced := make(map[string]bool)
	for _, rec := range step2 {
		for _, s := range rec.Summaries {
			for _, p := range s.Parts {
				r.Parts = append(r.Parts, PartRow{
					FileName: rec.FileName,
					Part:     p.Name,
					Section:  s.Section,
					SectionN: s.SectionN,
					Summary:  p.Summary,
				})
			}
		}

		row := UsageRow{
			FileName:   rec.FileName,
			FinishedIn: rec.Usage.FinishedInS,
			Calls:      len(rec.Usage.Calls),
		}
		models := make(map[string]bool)
		for _, c := range rec.Usage.Calls {
			row.TokensIn += c.TokensIn
			row.TokensOut += c.TokensOut
			models[c.Model] = true
			m, err := cat.Lookup(c.Model)
			if err != nil {
				unpriced[c.Model] = true
				continue
			}
			row.Cost += c.Cost(m.PriceInput, m.PriceOutput)
		}
		for name := range models {
			row.Models = append(row.Models, name)
		}
		sort.Strings(row.Models)
		r.Usage = append(r.Usage, row)
	}
	for name := range unpriced {
		logger.Warn("model missing from catalog, priced at zero", "model", name)
	}

	sort.SliceStable(r.Sections, func(i, j int) bool {
		a, b := r.Sections[i], r.Sections[j]
		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}
		return a.PageStart < b.PageStart
	})
	sort.SliceStable(r.Parts, func(i, j int) bool {
		a, b := r.Parts[i], r.Parts[j]
		switch {
		case a.FileName != b.FileName:
			return a.FileName < b.FileName
		case a.Section != b.Section:
			return a.Section < b.Section
		case a.SectionN != b.SectionN:
			return a.SectionN < b.SectionN
		}
		return a.Part < b.Part
	})
	sort.SliceStable(r.Usage, func(i, j int) bool {
		return r.Usage[i].FileName < r.Usage[j].FileName
	})
	return r
}

// sectionRows groups a record's pages by (section label, section_n). Pages
// without a label form runs with an empty section.
func sectionRows(rec resultlog.Step1Record) []SectionRow {
	type key struct {
		section  string
		sectionN int
	}
	var rows []SectionRow
	index := make(map[key]int)
	for _, p := range rec.Pages {
		labels := p.Sections
		if len(labels) == 0 {
			labels = []string{""}
		}
		for _, label := range labels {
			k := key{label, p.SectionN}
			i, ok := index[k]
			if !ok {
				rows = append(rows, SectionRow{
					FileName:  rec.FileName,
					Section:   label,
					SectionN:  p.SectionN,
					PageStart: p.PageNum,
					PageEnd:   p.PageNum,
				})
				index[k] = len(rows) - 1
				continue
			}
			rows[i].PageStart = min(rows[i].PageStart, p.PageNum)
			rows[i].PageEnd = max(rows[i].PageEnd, p.PageNum)
		}
	}
	return rows
}

func lastByFile[T any](recs []T, name func(T) string) []T {
	pos := make(map[string]int, len(recs))
	var out []T
	for _, r := range recs {
		n := name(r)
		if i, ok := pos[n]; ok {
			out[i] = r
			continue
		}
		pos[n] = len(out)
		out = append(out, r)
	}
	return out
}

// FormatDuration renders seconds the way the usage table does.
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%.2fs", seconds)
}

// FormatCost renders a dollar amount the way the usage table does.
func FormatCost(dollars float64) string {
	return fmt.Sprintf("$%.5f", dollars)
}

// table is a named header plus rows, shared by the CSV and XLSX writers.
type table struct {
	name   string
	file   string
	header []string
	rows   [][]any
}

func (r *Report) tables() []table {
	sections := table{
		name:   "Sections",
		file:   SectionsFile,
		header: []string{"file_name", "section", "section_n", "page_start", "page_end", "section_summary"},
	}
	for _, s := range r.Sections {
		sections.rows = append(sections.rows, []any{s.FileName, s.Section, s.SectionN, s.PageStart, s.PageEnd, s.SectionSummary})
	}

	parts := table{
		name:   "Parts",
		file:   PartsFile,
		header: []string{"file_name", "part", "section", "section_n", "summary"},
	}
	for _, p := range r.Parts {
		parts.rows = append(parts.rows, []any{p.FileName, p.Part, p.Section, p.SectionN, p.Summary})
	}

	usage := table{
		name:   "Usage",
		file:   UsageFile,
		header: []string{"file_name", "finished_in", "models", "calls", "tokens_in", "tokens_out", "cost"},
	}
	for _, u := range r.Usage {
		usage.rows = append(usage.rows, []any{
			u.FileName,
			FormatDuration(u.FinishedIn),
			strings.Join(u.Models, ", "),
			u.Calls,
			u.TokensIn,
			u.TokensOut,
			FormatCost(u.Cost),
		})
	}
	return []table{sections, parts, usage}
}
