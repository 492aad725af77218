// Package logging wraps log/slog with the level-configurable
// setup the engine uses, following the same shape
// rohankatakam-coderisk/internal/logging builds on slog (file + stdout
// multi-writer, JSON in production, text while debugging).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Level mirrors slog's levels under names that read naturally at the call
// site (logging.LevelDebug, logging.LevelInfo, ...).
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	Level      Level
	OutputFile string // "" means stdout only
	JSON       bool
	AddSource  bool
}

// Logger wraps a *slog.Logger plus the open log file, if any.
type Logger struct {
	slog *slog.Logger
	file *os.File
	mu   sync.Mutex
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Initialize sets the process-wide logger used by the package-level
// Debug/Info/Warn/Error helpers. Safe to call at most once; subsequent
// calls are no-ops.
func Initialize(cfg Config) error {
	var initErr error
	globalOnce.Do(func() {
		l, err := New(cfg)
		if err != nil {
			initErr = fmt.Errorf("initialize logger: %w", err)
			return
		}
		global = l
	})
	return initErr
}

// New builds a standalone Logger (used by tests and by callers that don't
// want the process-wide singleton).
func New(cfg Config) (*Logger, error) {
	writers := []io.Writer{os.Stdout}
	l := &Logger{}

	if cfg.OutputFile != "" {
		if dir := filepath.Dir(cfg.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		l.file = f
		writers = append(writers, f)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}
	var handler slog.Handler
	mw := io.MultiWriter(writers...)
	if cfg.JSON {
		handler = slog.NewJSONHandler(mw, opts)
	} else {
		handler = slog.NewTextHandler(mw, opts)
	}
	l.slog = slog.New(handler)
	return l, nil
}

func (l *Logger) With(args ...any) *Logger {
	cp := *l
	cp.slog = l.slog.With(args...)
	return &cp
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// DefaultConfig returns sensible defaults: text + source in debug mode,
// JSON without source otherwise.
func DefaultConfig(debug bool) Config {
	lvl := LevelInfo
	if debug {
		lvl = LevelDebug
	}
	return Config{Level: lvl, JSON: !debug, AddSource: debug}
}

func get() *Logger {
	if global != nil {
		return global
	}
	l, _ := New(DefaultConfig(false))
	return l
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }
