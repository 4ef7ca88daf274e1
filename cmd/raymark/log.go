package main

import (
	"io"
	"log/slog"
)

// levelFromFlags maps the verbosity flags to a level. They are evaluated
// in the order vv, v, q so -vv wins over -q. The default is warnings.
func levelFromFlags(vv, v, q bool) slog.Level {
	switch {
	case vv:
		return slog.LevelDebug
	case v:
		return slog.LevelInfo
	case q:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
