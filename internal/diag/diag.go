// Package diag is the line-oriented warning channel used by code generation
// to report configuration it cannot honor.
//
// Warnings never stop generation. Every warning is a single line of the form
// "warning: <message>".
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink receives generation warnings.
type Sink interface {
	Warn(msg string)
}

// WriterSink writes each warning as one line to W and mirrors it to Logger
// at warn level when Logger is set.
type WriterSink struct {
	W      io.Writer
	Logger *slog.Logger

	mu sync.Mutex
}

// NewWriterSink returns a sink writing to w and logging through logger
// (may be nil).
func NewWriterSink(w io.Writer, logger *slog.Logger) *WriterSink {
	return &WriterSink{W: w, Logger: logger}
}

func (s *WriterSink) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.W != nil {
		fmt.Fprintf(s.W, "warning: %s\n", msg)
	}
	if s.Logger != nil {
		s.Logger.Warn("unsupported configuration", "detail", msg)
	}
}

// Recorder keeps warnings in memory, for tests and for callers that report
// them later (the CLI stores them with each generation).
type Recorder struct {
	mu       sync.Mutex
	warnings []string
}

func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

// Warnings returns a copy of the recorded warnings in emission order.
func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Len returns the number of recorded warnings.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Tee fans a warning out to every sink.
type Tee []Sink

func (t Tee) Warn(msg string) {
	for _, s := range t {
		s.Warn(msg)
	}
}

// Discard drops every warning.
var Discard Sink = discard{}

type discard struct{}

func (discard) Warn(string) {}
