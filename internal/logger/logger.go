// Package logger builds the supervisor's own operational *slog.Logger --
// the log stream for lifecycle/tick/reload events, distinct from a managed
// program's redirected stdout/stderr, which internal/process owns and
// rotates separately.
package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the supervisor's own log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where and how the supervisor writes its own operational
// log. Color is only meaningful when File is empty (stderr is a terminal);
// rotated file output is always plain text.
type Config struct {
	File       string // optional path; empty means stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Debug      bool // include debug-level records
	Color      bool // colorize stderr output
}

// New builds the supervisor's operational logger per cfg. The returned
// logger is meant to be constructed once in main() and passed explicitly to
// Supervisor/Program/MonitorLoop -- there is deliberately no package-level
// default logger, since a hidden global here would be shared mutable state
// reached from the monitor loop and the control REPL at once.
func New(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		return slog.New(slog.NewTextHandler(w, opts))
	}

	if cfg.Color {
		return slog.New(NewColorTextHandler(w, opts, true))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
