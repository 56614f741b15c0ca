/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package logging builds the process logger: JSON records to a file in the
// log directory, mirrored as text on stdout.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ParseLevel maps a config level string to a slog.Level. Unknown values map to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Sink owns the log file behind a logger.
type Sink struct {
	file   *os.File
	path   string
	writer *failSafeWriter
}

// Path returns the log file path, or "" when logging to the console only.
func (s *Sink) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Dropped returns how many records could not be written to the log file.
func (s *Sink) Dropped() uint64 {
	if s == nil || s.writer == nil {
		return 0
	}
	return s.writer.Dropped()
}

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil && !errors.Is(err, os.ErrClosed) {
		_ = s.file.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return s.file.Close()
}

// New creates a logger writing to <dir>/<fileName> and to console.
// If the file cannot be opened the logger falls back to console only and
// the returned error explains why; the logger is always usable.
func New(levelStr, dir, fileName string, console io.Writer) (*slog.Logger, *Sink, error) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	consoleHandler := slog.NewTextHandler(console, opts)
	if dir == "" {
		return slog.New(consoleHandler), &Sink{}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.New(consoleHandler), &Sink{}, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(consoleHandler), &Sink{}, fmt.Errorf("failed to open log file: %w", err)
	}

	writer := &failSafeWriter{w: f}
	fileHandler := slog.NewJSONHandler(writer, opts)
	return slog.New(fanout{fileHandler, consoleHandler}), &Sink{file: f, path: path, writer: writer}, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failSafeWriter swallows write errors so a full or vanished disk never
// propagates back into the caller of the logger.
type failSafeWriter struct {
	mu      sync.Mutex
	w       io.Writer
	dropped uint64
}

func (f *failSafeWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.w.Write(p); err != nil {
		f.dropped++
	}
	return len(p), nil
}

func (f *failSafeWriter) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// fanout dispatches each record to every handler that accepts its level.
type fanout []slog.Handler

func (h fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(h))
	for i, handler := range h {
		next[i] = handler.WithAttrs(attrs)
	}
	return next
}

func (h fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(h))
	for i, handler := range h {
		next[i] = handler.WithGroup(name)
	}
	return next
}
