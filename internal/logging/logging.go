// Package logging builds the slog loggers used by every greenhouse binary.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger writing to stdout and, when path is non-empty,
// also appending to that file. A file that cannot be opened is reported and
// skipped.
func New(service, path, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var w io.Writer = os.Stdout
	var openErr error
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = io.MultiWriter(os.Stdout, f)
		} else {
			openErr = err
		}
	}
	l := slog.New(slog.NewTextHandler(w, opts)).With("service", service)
	if openErr != nil {
		l.Error("failed to open log file", "path", path, "err", openErr)
	} else {
		l.Info("logger initialized", "file", path)
	}
	return l
}

// Discard is a logger for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps debug/info/warn/error onto slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
