// Package logging builds the component loggers used across fms.
//
// Every long-lived component takes a *log.Logger with its own prefix.
// Output goes to stderr and, when a log file is configured, also to a
// size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log output.
type Options struct {
	// File enables rotating file output when non-empty.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Quiet drops stderr output. File output is unaffected.
	Quiet bool

	// Stderr overrides the console writer (tests).
	Stderr io.Writer
}

// Factory hands out prefixed loggers sharing one output.
type Factory struct {
	out     io.Writer
	rotator *lumberjack.Logger
	flags   int

	closeOnce sync.Once
}

// New creates a factory for the given options.
func New(opts Options) (*Factory, error) {
	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, console)
	}

	f := &Factory{flags: log.LstdFlags}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f.rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, f.rotator)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f, nil
}

// Logger returns a logger whose lines start with "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", f.flags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Rotate starts a new log file. It is a no-op without file output.
func (f *Factory) Rotate() error {
	if f.rotator == nil {
		return nil
	}
	return f.rotator.Rotate()
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if f.rotator != nil {
			err = f.rotator.Close()
		}
	})
	return err
}
