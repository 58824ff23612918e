// Package watch discovers source documents under a directory tree: an
// optional initial scan followed by fsnotify events.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPattern matches PDF files by base name.
const DefaultPattern = "*.pdf"

// Config configures a watcher.
type Config struct {
	Root        string
	Pattern     string        // glob against the base name, case-insensitive
	InitialScan bool          // emit files already present under Root
	Debounce    time.Duration // coalesce bursts of writes to the same file
	Logger      *slog.Logger
}

// Start watches cfg.Root recursively. Each matching path is emitted at most
// once per process. Both channels close when ctx is cancelled.
func Start(ctx context.Context, cfg Config) (<-chan string, <-chan error, error) {
	if cfg.Root == "" {
		return nil, nil, errors.New("watch root is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "watch", "root", cfg.Root)

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, errors.New("watch root is not a directory: " + cfg.Root)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	var existing []string
	err = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if cfg.InitialScan && matches(cfg.Pattern, path) {
			existing = append(existing, path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	out := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		defer w.Close()

		seen := make(map[string]struct{})
		emit := func(path string) bool {
			if _, ok := seen[path]; ok {
				return true
			}
			seen[path] = struct{}{}
			logger.Debug("discovered file", "path", path)
			select {
			case out <- path:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, path := range existing {
			if !emit(path) {
				return
			}
		}
		logger.Info("watching for new files", "initial", len(existing), "pattern", cfg.Pattern)

		pending := make(map[string]struct{})
		var timer *time.Timer
		var timerC <-chan time.Time
		flush := func() bool {
			for p := range pending {
				delete(pending, p)
				if !emit(p) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
					continue
				}
				if !matches(cfg.Pattern, e.Name) {
					continue
				}
				if _, ok := seen[e.Name]; ok {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Reset(cfg.Debounce)
				}
				timerC = timer.C

			case <-timerC:
				timerC = nil
				if !flush() {
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return out, errCh, nil
}

func matches(pattern, path string) bool {
	ok, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(filepath.Base(path)))
	return ok
}
