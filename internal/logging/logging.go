// Package logging builds the process logger: JSON to a size-rotated file,
// optionally mirrored to stderr for interactive runs.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects destination and level.
type Config struct {
	File    string // rotated log file; empty logs to stderr only
	Level   string // debug, info, warn, error
	Console bool   // mirror to stderr even when a file is set
}

// New builds the logger. An invalid level falls back to info with a note on
// stderr rather than refusing to start.
func New(cfg Config) *slog.Logger {
	lvl := slog.LevelInfo
	switch cfg.Level {
	case "", "info":
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  256, // MB
			MaxAge:   14,
			Compress: true,
		}
		if cfg.Console {
			w = io.MultiWriter(rotated, os.Stderr)
		} else {
			w = rotated
		}
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
