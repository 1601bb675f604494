package sectorfs

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sectorfs-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithVolume adds the image name to the logger.
func (l *Logger) WithVolume(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("volume", name),
	}
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithFD adds a descriptor field to the logger.
func (l *Logger) WithFD(fd int) *Logger {
	return &Logger{
		Logger: l.Logger.With("fd", fd),
	}
}

// LogBoot logs the outcome of booting a volume.
func (l *Logger) LogBoot(ctx context.Context, name string, formatted bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "boot failed",
			"volume", name,
			"error", err,
		)
		return
	}
	if formatted {
		l.InfoContext(ctx, "volume formatted",
			"volume", name,
		)
	} else {
		l.InfoContext(ctx, "volume validated",
			"volume", name,
		)
	}
}

// LogSync logs a sync of the volume image to its store.
func (l *Logger) LogSync(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sync failed",
			"volume", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "volume synced",
			"volume", name,
		)
	}
}

// LogPathOp logs a path-based operation such as create or unlink.
func (l *Logger) LogPathOp(op, path string, err error) {
	if err != nil {
		l.Warn(op+" failed",
			"path", path,
			"error", err,
		)
	} else {
		l.Debug(op+" completed",
			"path", path,
		)
	}
}

// LogIO logs a descriptor-based read, write or seek.
func (l *Logger) LogIO(op string, fd, n int, err error) {
	if err != nil {
		l.Warn(op+" failed",
			"fd", fd,
			"bytes", n,
			"error", err,
		)
	} else {
		l.Debug(op+" completed",
			"fd", fd,
			"bytes", n,
		)
	}
}

// LogCheck logs a consistency check.
func (l *Logger) LogCheck(ctx context.Context, problems int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "check failed",
			"error", err,
		)
	case problems > 0:
		l.WarnContext(ctx, "check found problems",
			"problems", problems,
		)
	default:
		l.InfoContext(ctx, "check completed")
	}
}
