// Package logging writes structured, one-object-per-line JSON events.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Fields is a single log entry's payload.
type Fields map[string]any

// Logger encodes events as JSON lines with a "ts" timestamp in a fixed location.
// It is safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	enc *json.Encoder
	loc *time.Location
}

// New returns a Logger writing to w. A nil loc means UTC.
func New(w io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{enc: json.NewEncoder(w), loc: loc}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(os.Stdout, time.UTC)
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Location returns the timezone used for timestamps.
func (l *Logger) Location() *time.Location {
	return l.loc
}

// Info logs at info level unless the entry already carries a level
// or a "status":"error" marker.
func (l *Logger) Info(f Fields) {
	l.write("info", f)
}

// Error logs at error level.
func (l *Logger) Error(f Fields) {
	l.write("error", f)
}

func (l *Logger) write(level string, f Fields) {
	entry := make(map[string]any, len(f)+2)
	for k, v := range f {
		entry[k] = v
	}
	entry["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := entry["level"]; !ok {
		if entry["status"] == "error" {
			level = "error"
		}
		entry["level"] = level
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(entry)
}
