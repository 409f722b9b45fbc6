// Package logging provides structured logging configuration using log/slog.
//
// Import and export runs carry a trace id through context so every log
// entry for one batch can be correlated.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format in production for machine parsing (ELK, CloudWatch, etc.)
// Use "text" format in development for human readability.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type traceIDKey struct{}

// WithTraceID stores a batch trace id in ctx for later log correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID returns the batch trace id stored in ctx, or "" when none is set.
func TraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}

// FromContext returns a logger enriched with the batch trace id, when one
// has been stored via WithTraceID.
//
// Usage:
//
//	func (i *Importer) ImportBOM(ctx context.Context, ...) {
//	    logger := logging.FromContext(ctx)
//	    logger.Info("import started", "assembly_id", assemblyID)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// This is useful for creating operation-specific loggers that carry
// consistent context through a multi-step process.
//
// Usage:
//
//	batchLogger := logging.WithFields(ctx,
//	    "assembly_id", assemblyID,
//	    "rows", len(rows),
//	)
//	batchLogger.Info("import started")
//	// ... later ...
//	batchLogger.Info("import completed", "matched", report.Matched)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
