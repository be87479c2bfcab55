// Package sink appends collected log lines to a flat file.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrFileIO wraps every open, write, flush and close failure.
	ErrFileIO = errors.New("log file I/O failed")
	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("log sink is closed")
)

type Options struct {
	// SyncEachWrite calls fsync after every line. Without it a line still
	// survives a process crash, but not an OS crash.
	SyncEachWrite bool
}

// FileSink is an append-only log file owned by a single goroutine.
type FileSink struct {
	path   string
	file   *os.File
	opts   Options
	closed bool
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string, opts Options) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrFileIO, dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrFileIO, path, err)
	}
	return &FileSink{path: path, file: f, opts: opts}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

// Append writes line in a single write call and flushes it before returning.
func (s *FileSink) Append(line string) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFileIO, s.path, err)
	}
	if s.opts.SyncEachWrite {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %w", ErrFileIO, s.path, err)
		}
	}
	return nil
}

// Close releases the file. Calling it more than once is a no-op.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrFileIO, s.path, err)
	}
	return nil
}
