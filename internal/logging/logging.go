// Package logging wraps zerolog so every component of agentd logs through
// the same structured, leveled sink instead of fmt.Println.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared structured logger type; components derive their own
// named sub-logger from a root via Named.
type Logger = zerolog.Logger

var root Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	root = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init configures the root logger's level and output. Call once from
// cmd/agentd before anything else logs. pretty switches to a human-readable
// console writer for local development; production runs emit JSON lines.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	root = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Named returns a sub-logger tagged with component=name, so every log line
// from that package is filterable without passing a logger through every
// call site.
func Named(name string) Logger {
	return root.With().Str("component", name).Logger()
}

// ForSession returns a sub-logger additionally tagged with the session_id,
// used by the Turn Engine and Transport Bridge so every event a session
// produces correlates under one key.
func ForSession(name, sessionID string) Logger {
	return root.With().Str("component", name).Str("session_id", sessionID).Logger()
}
