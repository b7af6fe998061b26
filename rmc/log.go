package rmc

import (
	"io"

	"github.com/rs/zerolog"
)

// newNopLogger returns a logger that discards everything, the default for
// every component below unless a caller supplies WithLogger.
func newNopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
