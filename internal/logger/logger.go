// Package logger holds the process-wide zerolog logger and the child
// loggers that tag recorder output with component, session and job.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance
var Logger zerolog.Logger

func init() {
	// Durations are logged in milliseconds
	zerolog.DurationFieldUnit = time.Millisecond
	Setup(Options{Level: "info", Out: os.Stderr})
}

// Options configures the global logger
type Options struct {
	// Level is debug, info, warn or error; anything else means info
	Level string
	// Pretty selects the console writer over JSON lines
	Pretty bool
	// Out defaults to stderr
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup replaces the global logger
func Setup(o Options) {
	zerolog.SetGlobalLevel(ParseLevel(o.Level))

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Logger
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithSession tags a component logger with a recording session
func WithSession(component, sessionID string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Str("session", sessionID).Logger()
	return &l
}

// WithJob tags a component logger with an extraction job and its session
func WithJob(component, jobID, sessionID string) *zerolog.Logger {
	l := Logger.With().
		Str("component", component).
		Str("job", jobID).
		Str("session", sessionID).
		Logger()
	return &l
}
