package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/folio/internal/catalog"
	"github.com/jackzampolin/folio/internal/resultlog"
)

// Options controls Rebuild.
type Options struct {
	Step1Log  string
	Step2Log  string
	OutputDir string
	Catalog   *catalog.Catalog
	XLSX      bool
	Logger    *slog.Logger
}

// Rebuild reads both result logs and rewrites every report file.
func Rebuild(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	step1, err := resultlog.Read[resultlog.Step1Record](opts.Step1Log)
	if err != nil {
		return nil, err
	}
	step2, err := resultlog.Read[resultlog.Step2Record](opts.Step2Log)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := Build(step1, step2, opts.Catalog, logger)
	if err := r.WriteCSV(opts.OutputDir); err != nil {
		return nil, err
	}
	if opts.XLSX {
		if err := r.WriteXLSX(filepath.Join(opts.OutputDir, WorkbookFile)); err != nil {
			return nil, err
		}
	}

	logger.Info("reports written",
		"dir", opts.OutputDir,
		"sections", len(r.Sections),
		"parts", len(r.Parts),
		"documents", len(r.Usage),
		"elapsed_ms", time.Since(start).Milliseconds())
	return r, nil
}

// WriteCSV writes the three CSV files into dir.
func (r *Report) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	for _, t := range r.tables() {
		if err := writeCSV(filepath.Join(dir, t.file), t); err != nil {
			return err
		}
	}
	return nil
}

// writeCSV writes to a temp file and renames it so readers never see a
// partial report.
func writeCSV(path string, t table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write(t.header)
	record := make([]string, len(t.header))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = fmt.Sprint(v)
		}
		_ = w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteXLSX writes a workbook with one sheet per table.
func (r *Report) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	tables := r.tables()
	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.name); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", t.name, err)
			}
		} else if _, err := f.NewSheet(t.name); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", t.name, err)
		}

		for col, h := range t.header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(t.name, cell, h)
		}
		for row, values := range t.rows {
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = f.SetCellValue(t.name, cell, v)
			}
		}
		_ = f.SetPanes(t.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}

	_ = f.SetColWidth("Sections", "A", "A", 32)
	_ = f.SetColWidth("Sections", "F", "F", 80)
	_ = f.SetColWidth("Parts", "A", "A", 32)
	_ = f.SetColWidth("Parts", "B", "B", 28)
	_ = f.SetColWidth("Parts", "E", "E", 80)
	_ = f.SetColWidth("Usage", "A", "A", 32)
	_ = f.SetColWidth("Usage", "C", "C", 40)
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
