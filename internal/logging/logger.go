package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the process-wide JSON logger. The level string accepts slog's
// textual levels (debug, info, warn, error); anything else falls back to info
// rather than failing startup over a typo in the environment.
func New(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Discard returns a logger that drops everything. Tests pass it to components
// that log on the settlement and compensation paths.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
