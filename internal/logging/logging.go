// Package logging configures the single global zerolog logger shared by
// the vision-fusion and spotlight-controller binaries, the way
// api/cmd/hydra/main.go configures it inline for a single binary.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup parses level ("debug", "info", "warn", "error", ...), defaulting
// to info on an unparsable value, and points the global logger at a
// console writer on stderr.
func Setup(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
}
