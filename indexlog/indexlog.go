// Package indexlog provides the structured logging indexcore's index
// package uses, wrapping zerolog the way cuemby-warren's pkg/log does
// (global logger, per-component child loggers), but scoped per-Index
// rather than per-process since a host runs many indexes at once.
package indexlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Base is the process-wide root logger every per-index logger derives
// from.
var Base zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger()

// Init reconfigures Base, e.g. for JSON output under a production host.
func Init(out io.Writer, jsonOutput bool, level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	if jsonOutput {
		Base = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	Base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// ForIndex returns a child logger carrying the index's name as a
// structured field, attached to every batch/priority/error log line.
func ForIndex(name string) zerolog.Logger {
	return Base.With().Str("index", name).Logger()
}
