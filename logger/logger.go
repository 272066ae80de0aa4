// Package logger holds the engine-wide zerolog logger. The default writes
// to stdout through a console writer and is silenced under go test unless
// debug assertions are on.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/consensys/zkvm/debug"
	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	logger = zerolog.New(output).With().Timestamp().Logger()

	if !debug.Debug && strings.HasSuffix(os.Args[0], ".test") {
		logger = zerolog.Nop()
	}

}

// SetOutput redirects the global logger.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// Set replaces the global logger.
func Set(l zerolog.Logger) {
	logger = l
}

// Disable silences the global logger.
func Disable() {
	logger = zerolog.Nop()
}

// Logger returns the global logger; callers derive per-component
// subloggers with With().
func Logger() zerolog.Logger {
	return logger
}
