package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/report"
	"github.com/jackzampolin/folio/internal/resultlog"
	"github.com/jackzampolin/folio/internal/summarize"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/watch"
)

var (
	runDir       string
	runClearLogs bool
	runDebounce  time.Duration
	runWorkers   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch a directory and process PDF documents",
	Long: `Watch a directory tree for PDF documents and process each one.

Documents already present are picked up first, then new or rewritten files
as they appear. Results are appended to the step1 and step2 logs in the home
directory, and reports are rebuilt after every completed document unless
report.auto is off.

Stop with Ctrl+C. In-flight requests finish and the logs are flushed before
exit.

Examples:
  folio run -d ./specs
  folio run -d /data/incoming --clear-logs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := svcctx.ServicesFrom(ctx)
		cfg := s.Config.Get()
		logger := s.Logger

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := s.CheckModels(); err != nil {
			return err
		}

		dir := runDir
		if dir == "" {
			dir = cfg.WatchDir
		}
		if dir == "" {
			return fmt.Errorf("a directory to watch is required (-d or watch_dir)")
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("target directory %s does not exist", dir)
		}

		if err := s.Home.EnsureExists(); err != nil {
			return err
		}
		if runClearLogs {
			if err := s.Home.ClearLogs(); err != nil {
				return err
			}
			logger.Info("cleared result logs", "dir", s.Home.LogsPath())
		}

		step1, err := resultlog.Open(resultlog.Config{Path: s.Home.Step1Log(), Logger: logger})
		if err != nil {
			return err
		}
		defer step1.Close()
		step2, err := resultlog.Open(resultlog.Config{Path: s.Home.Step2Log(), Logger: logger})
		if err != nil {
			return err
		}
		defer step2.Close()

		var rebuild pipeline.ReportFunc
		if cfg.Report.Auto {
			rebuild = func(ctx context.Context) error {
				_, err := report.Rebuild(ctx, reportOptions(s))
				return err
			}
		}

		coord := pipeline.New(s.Router, s.Prompts, pipeline.Config{
			Engine: dispatch.Config{
				BatchSize:   cfg.Pipeline.BatchSize,
				IdleTimeout: cfg.Pipeline.IdleTimeout,
			},
			Extraction: extract.Config{
				Model:       cfg.Extraction.Model,
				Samples:     cfg.Extraction.Samples,
				Temperature: cfg.Extraction.Temperature,
				TopP:        cfg.Extraction.TopP,
				MaxTokens:   cfg.Extraction.MaxTokens,
				PagesBefore: cfg.Extraction.PagesBefore,
				PagesAfter:  cfg.Extraction.PagesAfter,
				MaxAttempts: cfg.Extraction.MaxAttempts,
			},
			Summary: summarize.Config{
				Model:         cfg.Summary.Model,
				FallbackModel: cfg.Summary.FallbackModel,
				Temperature:   cfg.Summary.Temperature,
				TopP:          cfg.Summary.TopP,
				MaxTokens:     cfg.Summary.MaxTokens,
				MaxAttempts:   cfg.Summary.MaxAttempts,
			},
			Step1:  step1,
			Step2:  step2,
			Report: rebuild,
			Logger: logger,
		})

		s.Config.WatchConfig()

		paths, watchErrs, err := watch.Start(ctx, watch.Config{
			Root:        dir,
			InitialScan: true,
			Debounce:    runDebounce,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		logger.Info("watching for documents", "dir", dir, "home", s.Home.Path())

		splitter := ingest.NewSplitter(runWorkers, logger)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return coord.Run(gctx)
		})
		g.Go(func() error {
			return coord.Ingest(gctx, paths, splitter)
		})
		g.Go(func() error {
			for err := range watchErrs {
				logger.Warn("watcher error", "error", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func reportOptions(s *svcctx.Services) report.Options {
	return report.Options{
		Step1Log:  s.Home.Step1Log(),
		Step2Log:  s.Home.Step2Log(),
		OutputDir: s.Home.ArtifactsPath(),
		Catalog:   s.Catalog,
		XLSX:      s.Config.Get().Report.XLSX,
		Logger:    s.Logger,
	}
}

func init() {
	runCmd.Flags().StringVarP(&runDir, "dir", "d", "", "directory to watch for PDF documents")
	runCmd.Flags().BoolVar(&runClearLogs, "clear-logs", false, "truncate the result logs before starting")
	runCmd.Flags().DurationVar(&runDebounce, "debounce", 2*time.Second, "wait this long after the last write before processing a file")
	runCmd.Flags().IntVar(&runWorkers, "split-workers", runtime.NumCPU(), "concurrent page splits per document")

	rootCmd.AddCommand(runCmd)
}
