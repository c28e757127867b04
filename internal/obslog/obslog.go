// Package obslog wires structured logging for the engine using
// github.com/rs/zerolog, matching the teacher's preference for a
// leveled structured logger over fmt/log for anything past the CLI's
// own user-facing output.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing level-tagged JSON lines to w, with the
// engine name and a wall-clock timestamp in a fixed RFC 3339 format.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "blz").Logger()
}

// Default returns the process-wide logger writing to stderr at info
// level, overridable via BLZ_LOG_LEVEL (spec §6 environment overrides).
func Default() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("BLZ_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return New(os.Stderr, level)
}
