package slogx

import (
	"log/slog"
	"time"
)

// Error returns a slog.Attr carrying the error message under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Provider creates a slog.Attr carrying the provider name under the
// "provider" key, so log lines from the engine stay greppable per backend.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// Elapsed creates a slog.Attr for a wall-clock duration under the "elapsed"
// key.
func Elapsed(d time.Duration) slog.Attr {
	return slog.Duration("elapsed", d)
}
