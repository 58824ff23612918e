// Package resultlog appends pipeline results to JSONL files. Writes are
// queued and flushed by a single writer goroutine so continuations never
// block on disk.
package resultlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned when appending to a stopped log.
var ErrClosed = errors.New("result log closed")

// Config configures a Log.
type Config struct {
	Path          string
	FlushInterval time.Duration // default: 1s
	BatchSize     int           // flush after N records (default: 16)
	QueueSize     int           // default: 256
	Logger        *slog.Logger
}

type entry struct {
	line   []byte
	result chan<- error
}

// Log is an append-only JSONL file.
type Log struct {
	path   string
	logger *slog.Logger

	flushInterval time.Duration
	batchSize     int

	file *os.File
	w    *bufio.Writer

	mu      sync.RWMutex
	closed  bool
	queue   chan entry
	flushCh chan chan error

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// Open creates the file (and its directory) if needed and starts the writer.
func Open(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("result log path is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result log %s: %w", cfg.Path, err)
	}

	l := &Log{
		path:          cfg.Path,
		logger:        cfg.Logger.With("component", "resultlog", "path", cfg.Path),
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		file:          f,
		w:             bufio.NewWriter(f),
		queue:         make(chan entry, cfg.QueueSize),
		flushCh:       make(chan chan error),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Append queues a record without waiting for it to reach disk.
func (l *Log) Append(rec any) error {
	line, err := encode(rec)
	if err != nil {
		return err
	}
	return l.send(entry{line: line})
}

// AppendSync queues a record and waits until it has been flushed.
func (l *Log) AppendSync(ctx context.Context, rec any) error {
	line, err := encode(rec)
	if err != nil {
		return err
	}
	result := make(chan error, 1)
	if err := l.send(entry{line: line, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush writes every queued record to disk.
func (l *Log) Flush(ctx context.Context) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	done := make(chan error, 1)
	select {
	case l.flushCh <- done:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records, flushes what is queued and closes the file.
func (l *Log) Close() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		l.wg.Wait()
		if err := l.file.Close(); err != nil && l.stopErr == nil {
			l.stopErr = err
		}
		l.logger.Debug("result log closed")
	})
	return l.stopErr
}

func (l *Log) send(e entry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	l.queue <- e
	return nil
}

func (l *Log) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	var waiting []chan<- error
	pending := 0
	write := func(e entry) {
		if _, err := l.w.Write(e.line); err != nil {
			l.logger.Error("failed to write record", "error", err)
			if e.result != nil {
				e.result <- err
			}
			return
		}
		pending++
		if e.result != nil {
			waiting = append(waiting, e.result)
		}
	}
	flush := func() error {
		err := l.w.Flush()
		if err == nil {
			err = l.file.Sync()
		}
		if err != nil {
			l.logger.Error("failed to flush result log", "error", err)
		}
		for _, ch := range waiting {
			ch <- err
		}
		waiting = waiting[:0]
		pending = 0
		return err
	}

	for {
		select {
		case e, ok := <-l.queue:
			if !ok {
				if err := flush(); err != nil {
					l.stopErr = err
				}
				return
			}
			write(e)
			if len(waiting) > 0 || pending >= l.batchSize {
				flush()
			}

		case done := <-l.flushCh:
			// Drain whatever is already queued so Flush covers prior Appends.
		drain:
			for {
				select {
				case e, ok := <-l.queue:
					if !ok {
						break drain
					}
					write(e)
				default:
					break drain
				}
			}
			done <- flush()

		case <-ticker.C:
			if pending > 0 {
				flush()
			}
		}
	}
}

func encode(rec any) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return append(b, '\n'), nil
}
