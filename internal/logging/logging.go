// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction. File is optional; when set, JSON logs
// are written through a rotating file in addition to stderr.
type Options struct {
	Level string // "debug", "info", "warn", "error"
	File  string // path for rotated log file, empty = stderr only
}

// Setup installs the default slog logger and returns a closer for the file
// sink (nil-safe to call).
func Setup(opts Options) func() {
	level := parseLevel(opts.Level)

	var w io.Writer = os.Stderr
	closer := func() {}

	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotated)
		closer = func() { rotated.Close() }
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
