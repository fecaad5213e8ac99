// Package runtime implements the process-wide Runtime singleton (spec
// §4.7): the configured quality level, process/user identifier, shared-
// memory-size calculation mode, messaging facade, and rollback registry
// that every skeleton and proxy instance in the process shares.
package runtime

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide structured logger (spec §10.1),
// grounded on _examples/adred-codev-ws_poc/src/logger.go: JSON output by
// default, a human-readable console writer when pretty is requested,
// stamped with timestamp, caller, and a fixed "component" field.
func NewLogger(pretty bool, level zerolog.Level) zerolog.Logger {
	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(output).With().Timestamp().Caller().Str("component", "lola").Logger()
}
