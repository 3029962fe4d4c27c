package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
	// Console overrides the console writer; defaults to stdout.
	Console io.Writer
}

// Logger writes coloured text to the console and JSON lines to an optional file.
type Logger struct {
	level   slog.Level
	text    *slog.Logger
	json    *slog.Logger
	logFile *os.File
	mu      sync.RWMutex
	closed  bool
}

// New creates a Logger. When Dir is empty only the console handler is installed.
func New(cfg Config) (*Logger, error) {
	level := ParseLevel(cfg.Level)
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	logger := &Logger{
		level: level,
		text:  slog.New(&consoleHandler{writer: console, level: level}),
	}

	if cfg.Dir != "" {
		filename := cfg.Filename
		if filename == "" {
			filename = "server.log"
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(cfg.Dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.logFile = file
		logger.json = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
	}

	return logger, nil
}

// Discard returns a logger that drops everything. Useful for tests.
func Discard() *Logger {
	l, _ := New(Config{Level: "error", Console: io.Discard})
	return l
}

// ParseLevel converts a configured level name into a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Slog exposes the console logger for structured integrations.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.text
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || level < l.level {
		return
	}

	var attrs []slog.Attr
	if len(args) > 0 && strings.Contains(msg, "%") {
		msg = fmt.Sprintf(msg, args...)
	} else if len(args) > 0 {
		attrs = fieldsToAttrs(args[0])
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	ctx := context.Background()
	l.text.LogAttrs(ctx, level, msg, attrs...)
	if l.json != nil && !l.closed {
		l.json.LogAttrs(ctx, level, msg, attrs...)
	}
}

func fieldsToAttrs(fields any) []slog.Attr {
	m, ok := fields.(map[string]any)
	if !ok {
		return []slog.Attr{slog.Any("fields", fields)}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, m[k]))
	}
	return attrs
}

// Debug logs at debug level. Printf verbs in msg are expanded with args,
// otherwise a map[string]any first arg is emitted as attributes.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// FormatLog prefixes message with a single category tag, e.g. FormatLog("HTTP", "ready")
// gives "[HTTP] ready". Messages that already start with "[" are returned as is.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) DebugTag(tag, msg string, args ...any) { l.Debug(FormatLog(tag, msg), args...) }

func (l *Logger) InfoTag(tag, msg string, args ...any) { l.Info(FormatLog(tag, msg), args...) }

func (l *Logger) WarnTag(tag, msg string, args ...any) { l.Warn(FormatLog(tag, msg), args...) }

func (l *Logger) ErrorTag(tag, msg string, args ...any) { l.Error(FormatLog(tag, msg), args...) }
