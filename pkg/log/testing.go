package log

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// Entry is one record kept by a Recorder. A leading error argument is
// stored under "error" as its message.
type Entry struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// Recorder is a Logger that keeps records in memory. Loggers derived with
// With share the parent's records.
type Recorder struct {
	sink   *recorderSink
	level  Level
	fields []any
}

type recorderSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns a Recorder that drops records below level.
func NewRecorder(level Level) *Recorder {
	return &Recorder{sink: &recorderSink{}, level: level}
}

// Capture installs a Recorder as the process-wide logger and restores the
// previous logger when tb finishes.
//
//	rec := log.Capture(t, log.LevelDebug)
//	m.Save(ctx)
//	e, ok := rec.Find("Artifact saved")
func Capture(tb testing.TB, level Level) *Recorder {
	tb.Helper()
	prev := GetLogger()
	rec := NewRecorder(level)
	SetLogger(rec)
	tb.Cleanup(func() { SetLogger(prev) })
	return rec
}

func (r *Recorder) Debug(msg string, fields ...any) { r.record(LevelDebug, msg, fields) }
func (r *Recorder) Info(msg string, fields ...any)  { r.record(LevelInfo, msg, fields) }
func (r *Recorder) Warn(msg string, fields ...any)  { r.record(LevelWarn, msg, fields) }
func (r *Recorder) Error(msg string, fields ...any) { r.record(LevelError, msg, fields) }

// With implements Logger.With.
func (r *Recorder) With(fields ...any) Logger {
	merged := make([]any, 0, len(r.fields)+len(fields))
	merged = append(merged, r.fields...)
	merged = append(merged, fields...)
	return &Recorder{sink: r.sink, level: r.level, fields: merged}
}

// Enabled implements Logger.Enabled.
func (r *Recorder) Enabled(_ context.Context, level Level) bool {
	return level >= r.level
}

func (r *Recorder) record(level Level, msg string, fields []any) {
	if level < r.level {
		return
	}
	e := Entry{Level: level, Message: msg, Fields: make(map[string]any)}
	pairs(e.Fields, r.fields)
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e.Fields["error"] = err.Error()
			fields = fields[1:]
		}
	}
	pairs(e.Fields, fields)

	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, e)
	r.sink.mu.Unlock()
}

func pairs(dst map[string]any, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[fmt.Sprint(kv[i])] = v
	}
}

// Entries returns a snapshot of the records so far.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	return append([]Entry(nil), r.sink.entries...)
}

// Find returns the first record with the given message.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return e, true
		}
	}
	return Entry{}, false
}

// Reset drops every record.
func (r *Recorder) Reset() {
	r.sink.mu.Lock()
	r.sink.entries = nil
	r.sink.mu.Unlock()
}
