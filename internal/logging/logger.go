package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted by New and the log.level config key.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger writes JSON log lines with persistent attributes. Child loggers
// share the parent's destination. It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer *fileCloser
}

type fileCloser struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a Logger writing to w at the given level.
func New(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// NewFile creates a Logger appending to path. An empty path logs to stderr.
func NewFile(path, level string) (*Logger, error) {
	if path == "" {
		return New(os.Stderr, level), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := New(file, level)
	l.closer = &fileCloser{file: file}
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// ParseLevel converts a level name to slog.Level, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the given key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), closer: l.closer}
}

// WithReview tags every entry with the review ID.
func (l *Logger) WithReview(reviewID string) *Logger {
	return l.With("review_id", reviewID)
}

// WithJudge tags every entry with the judge ID.
func (l *Logger) WithJudge(judgeID string) *Logger {
	return l.With("judge_id", judgeID)
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Slog exposes the underlying *slog.Logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Close syncs and closes the log file, if any. Closing a child closes the
// shared file; later writes are dropped by the handler with an error.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	l.closer.mu.Lock()
	defer l.closer.mu.Unlock()
	if l.closer.file == nil {
		return nil
	}
	if err := l.closer.file.Sync(); err != nil {
		return fmt.Errorf("syncing log file: %w", err)
	}
	if err := l.closer.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	l.closer.file = nil
	return nil
}
