package rtnn

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with rtnn-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithRun adds the run id field.
func (l *Logger) WithRun(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", id.String()),
	}
}

// WithBatch adds a batch field.
func (l *Logger) WithBatch(batch int) *Logger {
	return &Logger{
		Logger: l.Logger.With("batch", batch),
	}
}

// WithPhase adds a phase field.
func (l *Logger) WithPhase(phase Phase) *Logger {
	return &Logger{
		Logger: l.Logger.With("phase", string(phase)),
	}
}

// LogPhase logs the completion of one pipeline phase.
func (l *Logger) LogPhase(ctx context.Context, phase Phase, batch, queries int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "phase failed",
			"phase", string(phase),
			"batch", batch,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "phase completed",
			"phase", string(phase),
			"batch", batch,
			"queries", queries,
			"duration", d,
		)
	}
}

// LogActiveSet logs the outcome of the active set selection.
func (l *Logger) LogActiveSet(ctx context.Context, activeCells, activeQueries, originalQueries int) {
	l.InfoContext(ctx, "active set selected",
		"active_cells", activeCells,
		"active_queries", activeQueries,
		"original_queries", originalQueries,
	)
}

// LogRun logs a finished run.
func (l *Logger) LogRun(ctx context.Context, points, queries, batches int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search run failed",
			"points", points,
			"queries", queries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "search run completed",
			"points", points,
			"queries", queries,
			"batches", batches,
			"duration", d,
		)
	}
}
