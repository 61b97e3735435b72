// Package logging provides structured logging with slog for lyrad.
//
// The daemon logs to stderr when run in the foreground and to a rotated
// file when run as a service. Input events themselves are never logged;
// a keyboard driver that records keystrokes in its log file is a keylogger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written: "stdout", "stderr",
	// "file", or "both".
	Output string

	// FilePath is the log file when Output includes "file".
	FilePath string

	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int64

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      slog.LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

func defaultLogPath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "lyrad", "lyrad.log")
}

// Logger wraps slog.Logger with ownership of the underlying file.
type Logger struct {
	*slog.Logger
	rotator *FileRotator
}

// New creates a Logger from the configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{}
	var writers []io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		writers = append(writers, os.Stdout)
	case "file":
		r, err := NewFileRotator(cfg.FilePath, cfg.MaxSizeMB*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		l.rotator = r
		writers = append(writers, r)
	case "both":
		r, err := NewFileRotator(cfg.FilePath, cfg.MaxSizeMB*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		l.rotator = r
		writers = append(writers, os.Stderr, r)
	default:
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses a string into a log format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
