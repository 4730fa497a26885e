package matchgo

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/matchgo/export"
	"github.com/hupe1980/matchgo/matcher"
	"github.com/hupe1980/matchgo/regions"
)

// Logger wraps slog.Logger with matchgo-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogSceneLoaded logs the loaded view catalog.
func (l *Logger) LogSceneLoaded(ctx context.Context, path string, views int) {
	l.DebugContext(ctx, "scene catalog loaded",
		"path", path,
		"views", views,
	)
}

// LogReuse logs a run answered from a previous run's match table.
func (l *Logger) LogReuse(ctx context.Context, path string, matches int) {
	l.InfoContext(ctx, "previous match table loaded",
		"path", path,
		"matches", matches,
	)
}

// LogRegionsLoaded logs the region provisioning stage.
func (l *Logger) LogRegionsLoaded(ctx context.Context, views int, kind regions.Kind, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "region load failed",
			"views", views,
			"kind", kind.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "regions loaded",
			"views", views,
			"kind", kind.String(),
			"duration", duration,
		)
	}
}

// LogMatchStart logs the start of the pairwise matching stage.
func (l *Logger) LogMatchStart(ctx context.Context, method matcher.Method, pairs int) {
	l.InfoContext(ctx, "matching started",
		"method", method.String(),
		"pairs", pairs,
	)
}

// LogMatchDone logs the end of the pairwise matching stage.
func (l *Logger) LogMatchDone(ctx context.Context, matches int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "matching failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "matching completed",
			"matches", matches,
			"duration", duration,
		)
	}
}

// LogPersist logs the match table write.
func (l *Logger) LogPersist(ctx context.Context, path string, matches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "match table write failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "match table saved",
			"path", path,
			"matches", matches,
		)
	}
}

// LogExport logs one diagnostic artifact write. Export failures are warnings;
// they never fail the run.
func (l *Logger) LogExport(ctx context.Context, path string, err error) {
	if err != nil {
		l.WarnContext(ctx, "export failed",
			"path", path,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "export written",
			"path", path,
		)
	}
}

// LogGraphStats logs the match graph summary.
func (l *Logger) LogGraphStats(ctx context.Context, stats export.Stats) {
	l.InfoContext(ctx, "match graph",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"matched_views", stats.MatchedViews,
		"isolated_views", stats.IsolatedViews,
		"components", stats.Components,
		"largest_component", stats.LargestComponent,
	)
}
