package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Severity classifies an event written to a Sink
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

// String returns the lowercase name of the severity
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("unknown_severity(%d)", int(s))
	}
}

// ParseSeverity parses the name produced by String
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info", "information":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "error":
		return Error, nil
	default:
		return 0, fmt.Errorf("invalid severity: %q", s)
	}
}

// Sink receives operator-facing events. Implementations must never panic
// back into the caller.
type Sink interface {
	Log(message string, severity Severity)
}

// SlogSink forwards events to a structured logger. Info events are dropped
// unless LogInfo is set, matching how the launcher's event log was configured.
type SlogSink struct {
	logger  *slog.Logger
	logInfo bool
}

// NewSlogSink creates a sink writing to logger
func NewSlogSink(logger *slog.Logger, logInfo bool) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, logInfo: logInfo}
}

// Log writes the event with a level derived from severity
func (s *SlogSink) Log(message string, severity Severity) {
	if severity == Info && !s.logInfo {
		return
	}

	// A broken handler must not take the sync pass down with it.
	defer func() {
		_ = recover()
	}()

	var level slog.Level
	switch severity {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, message, "event", true)
}

// Entry is a single recorded event
type Entry struct {
	Message  string
	Severity Severity
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log appends the event
func (r *Recorder) Log(message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Message: message, Severity: severity})
}

// Entries returns a copy of the recorded events
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of recorded events with the given severity
func (r *Recorder) Count(severity Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

// Contains reports whether an event of the given severity contains substr
func (r *Recorder) Contains(severity Severity, substr string) bool {
	for _, e := range r.Entries() {
		if e.Severity == severity && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Multi fans an event out to several sinks
type Multi []Sink

// Log forwards the event to every sink
func (m Multi) Log(message string, severity Severity) {
	for _, s := range m {
		if s != nil {
			s.Log(message, severity)
		}
	}
}

type discard struct{}

func (discard) Log(string, Severity) {}

// Discard is a Sink that drops every event
var Discard Sink = discard{}
