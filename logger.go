package dwarfs

import (
	"io"
	"log"
)

// Logger is the seam every package logs through instead of calling the
// standard log package directly. The teacher (KarpelesLab/squashfs) logs
// unconditionally via log.Printf; DwarFS-go keeps the same message style but
// routes it through this interface so an embedding mount daemon can silence
// or redirect it.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}

// StdLogger adapts the standard library's *log.Logger, matching the
// teacher's own choice of logging backend.
type StdLogger struct {
	*log.Logger
	Verbose bool
}

// NewStdLogger returns a Logger writing to w with the given verbosity.
func NewStdLogger(w io.Writer, verbose bool) *StdLogger {
	return &StdLogger{Logger: log.New(w, "", log.LstdFlags), Verbose: verbose}
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if l.Verbose {
		l.Printf(format, args...)
	}
}

// NopLogger discards everything; it is the default for library embedding.
type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
func (nopLogger) Debugf(string, ...any) {}

// NopLogger is a Logger that discards all messages.
var NopLogger Logger = nopLogger{}
