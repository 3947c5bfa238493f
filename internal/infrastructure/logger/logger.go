// Package logger wires up the zerolog.Logger used throughout the engine.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Setup builds a zerolog.Logger at the given level, writing structured JSON
// to stdout. Callers that want human-readable output during local
// development can wrap os.Stdout in zerolog.ConsoleWriter themselves.
func Setup(level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Default returns a logger at info level, the same level Setup falls back
// to when a caller doesn't have an explicit configuration yet.
func Default() zerolog.Logger {
	return Setup(zerolog.InfoLevel)
}
