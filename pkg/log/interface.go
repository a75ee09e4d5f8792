// Package log provides the structured logging interface used across churnscope.
//
// The interface is slog-shaped so that call sites stay backend agnostic; the
// production implementation is backed by zerolog (see zerolog.go) and tests
// capture records with a Recorder (see testing.go).
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "churn-v1",
//	    log.ComponentKey, "artifact",
//	)
//	logger.Info("Artifact saved",
//	    log.OperationKey, log.OperationSave,
//	    log.SamplesKey, 7032,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. Error treats a leading
// error value specially: implementations attach it (and its stack trace, when
// the error carries one) before the remaining pairs.
type Logger interface {
	// Debug logs detailed diagnostic information, usually disabled in production.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	//
	// Example:
	//   logger.Info("Pipeline fitted",
	//       log.AccuracyKey, 0.81,
	//       log.DurationMsKey, 412,
	//   )
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the operation.
	Warn(msg string, fields ...any)

	// Error logs error conditions. If the first field is an error it is
	// attached as the record's error.
	//
	// Example:
	//   logger.Error("Save failed", err, log.ModelNameKey, "churn-v1")
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
