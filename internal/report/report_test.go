package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/folio/internal/catalog"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/resultlog"
	"github.com/jackzampolin/folio/internal/usage"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(map[string]catalog.Model{
		"cheap": {Provider: "openrouter", PriceInput: 1, PriceOutput: 2},
	})
	require.NoError(t, err)
	return cat
}

func step1Record() resultlog.Step1Record {
	return resultlog.Step1Record{
		FilePath: "/data/b.pdf",
		FileName: "b.pdf",
		PagesCnt: 5,
		Sections: []string{"033000", "044000"},
		Pages: []resultlog.Step1Page{
			{PageNum: 1, Sections: []string{}, SectionN: 0},
			{PageNum: 2, Sections: []string{"033000"}, SectionN: 1},
			{PageNum: 3, Sections: []string{"033000"}, SectionN: 1},
			{PageNum: 4, Sections: []string{"044000"}, SectionN: 2},
			{PageNum: 5, Sections: []string{"033000"}, SectionN: 3},
		},
	}
}

func step2Record() resultlog.Step2Record {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return resultlog.Step2Record{
		FilePath: "/data/b.pdf",
		FileName: "b.pdf",
		PagesCnt: 5,
		Summaries: []document.SectionSummary{
			{Section: "033000", SectionN: 1, Summary: "Concrete.", Parts: []document.Part{
				{Name: "PART 2", Summary: "Products."},
				{Name: "PART 1", Summary: "General."},
			}},
			{Section: "044000", SectionN: 2, Summary: "Masonry."},
		},
		Usage: resultlog.UsageRecord{
			StartedAt:   t0,
			FinishedInS: 12.3456,
			Calls: []usage.Call{
				{Model: "cheap", TokensIn: 1_000_000, TokensOut: 500_000},
				{Model: "unknown", TokensIn: 10, TokensOut: 5},
				{Model: "cheap", TokensIn: 0, TokensOut: 0},
			},
		},
	}
}

func TestBuildSections(t *testing.T) {
	r := Build([]resultlog.Step1Record{step1Record()}, []resultlog.Step2Record{step2Record()}, testCatalog(t), nil)

	require.Len(t, r.Sections, 4)
	assert.Equal(t, SectionRow{FileName: "b.pdf", Section: "", SectionN: 0, PageStart: 1, PageEnd: 1}, r.Sections[0])
	assert.Equal(t, SectionRow{FileName: "b.pdf", Section: "033000", SectionN: 1, PageStart: 2, PageEnd: 3, SectionSummary: "Concrete."}, r.Sections[1])
	assert.Equal(t, "Masonry.", r.Sections[2].SectionSummary)
	// A repeated label with a new section_n is its own run with no summary.
	assert.Equal(t, SectionRow{FileName: "b.pdf", Section: "033000", SectionN: 3, PageStart: 5, PageEnd: 5}, r.Sections[3])
}

func TestBuildPartsSorted(t *testing.T) {
	r := Build(nil, []resultlog.Step2Record{step2Record()}, testCatalog(t), nil)
	require.Len(t, r.Parts, 2)
	assert.Equal(t, "PART 1", r.Parts[0].Part)
	assert.Equal(t, "PART 2", r.Parts[1].Part)
	assert.Equal(t, "033000", r.Parts[0].Section)
}

func TestBuildUsage(t *testing.T) {
	r := Build(nil, []resultlog.Step2Record{step2Record()}, testCatalog(t), nil)
	require.Len(t, r.Usage, 1)
	u := r.Usage[0]
	assert.Equal(t, 3, u.Calls)
	assert.Equal(t, 1_000_010, u.TokensIn)
	assert.Equal(t, 500_005, u.TokensOut)
	assert.Equal(t, []string{"cheap", "unknown"}, u.Models)
	assert.InDelta(t, 2.0, u.Cost, 1e-9)
	assert.Equal(t, "12.35s", FormatDuration(u.FinishedIn))
	assert.Equal(t, "$2.00000", FormatCost(u.Cost))
}

func TestBuildLastRecordWins(t *testing.T) {
	first := step2Record()
	second := step2Record()
	second.Summaries = second.Summaries[1:]
	second.Usage.Calls = second.Usage.Calls[:1]

	r := Build(nil, []resultlog.Step2Record{first, second}, testCatalog(t), nil)
	require.Len(t, r.Usage, 1)
	assert.Equal(t, 1, r.Usage[0].Calls)
	assert.Empty(t, r.Parts)
}

func TestBuildSortsByFile(t *testing.T) {
	a := step1Record()
	a.FileName = "a.pdf"
	r := Build([]resultlog.Step1Record{step1Record(), a}, nil, testCatalog(t), nil)
	require.Len(t, r.Sections, 8)
	assert.Equal(t, "a.pdf", r.Sections[0].FileName)
	assert.Equal(t, "b.pdf", r.Sections[4].FileName)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	out := filepath.Join(dir, "artifacts")

	step1, err := resultlog.Open(resultlog.Config{Path: filepath.Join(logs, "step1.jsonl")})
	require.NoError(t, err)
	step2, err := resultlog.Open(resultlog.Config{Path: filepath.Join(logs, "step2.jsonl")})
	require.NoError(t, err)
	require.NoError(t, step1.AppendSync(context.Background(), step1Record()))
	require.NoError(t, step2.AppendSync(context.Background(), step2Record()))
	require.NoError(t, step1.Close())
	require.NoError(t, step2.Close())

	r, err := Rebuild(context.Background(), Options{
		Step1Log:  step1.Path(),
		Step2Log:  step2.Path(),
		OutputDir: out,
		Catalog:   testCatalog(t),
		XLSX:      true,
	})
	require.NoError(t, err)
	assert.Len(t, r.Sections, 4)

	sections := readCSV(t, filepath.Join(out, SectionsFile))
	require.Len(t, sections, 5)
	assert.Equal(t, []string{"file_name", "section", "section_n", "page_start", "page_end", "section_summary"}, sections[0])
	assert.Equal(t, []string{"b.pdf", "033000", "1", "2", "3", "Concrete."}, sections[2])

	usageRows := readCSV(t, filepath.Join(out, UsageFile))
	require.Len(t, usageRows, 2)
	assert.Equal(t, []string{"b.pdf", "12.35s", "cheap, unknown", "3", "1000010", "500005", "$2.00000"}, usageRows[1])

	parts := readCSV(t, filepath.Join(out, PartsFile))
	assert.Len(t, parts, 3)

	wb, err := excelize.OpenFile(filepath.Join(out, WorkbookFile))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Sections", "Parts", "Usage"}, wb.GetSheetList())
	v, err := wb.GetCellValue("Usage", "G2")
	require.NoError(t, err)
	assert.Equal(t, "$2.00000", v)
}

func TestRebuildWithoutLogs(t *testing.T) {
	dir := t.TempDir()
	r, err := Rebuild(context.Background(), Options{
		Step1Log:  filepath.Join(dir, "missing1.jsonl"),
		Step2Log:  filepath.Join(dir, "missing2.jsonl"),
		OutputDir: dir,
		Catalog:   testCatalog(t),
	})
	require.NoError(t, err)
	assert.Empty(t, r.Sections)

	rows := readCSV(t, filepath.Join(dir, UsageFile))
	assert.Len(t, rows, 1)
	_, err = os.Stat(filepath.Join(dir, WorkbookFile))
	assert.True(t, os.IsNotExist(err))
}
