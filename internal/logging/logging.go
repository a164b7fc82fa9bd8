// Package logging builds the bracket-prefixed *log.Logger values used
// across tileboard, writing to stderr or to a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destination.
type Options struct {
	// File is the log file path. Empty logs to Stderr.
	File string

	// MaxSizeMB rotates the file once it reaches this size (default: 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default: 3).
	MaxBackups int

	// Stderr is the writer used when File is empty (default: os.Stderr).
	Stderr io.Writer
}

// Factory hands out component loggers sharing one destination.
type Factory struct {
	out    io.Writer
	closer io.Closer
}

// NewFactory opens the destination described by opts.
func NewFactory(opts Options) *Factory {
	if opts.File == "" {
		out := opts.Stderr
		if out == nil {
			out = os.Stderr
		}
		return &Factory{out: out}
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 0
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return &Factory{out: rotator, closer: rotator}
}

// Logger returns a logger whose lines start with "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared destination.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
