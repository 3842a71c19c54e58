package util

import (
	"io"
	"os"
	"strings"
	"time"

	stdlog "log"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger = zerolog.Logger

// LogLevel represents available log levels
type LogLevel = int

// Log levels
const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// VerbosityLevel maps a CLI verbosity between 1 (error) and 5 (trace) onto a
// LogLevel. Out of range values are clamped.
func VerbosityLevel(verbose int) LogLevel {
	verbose = max(1, min(verbose, 5))
	lvls := [5]LogLevel{ErrorLevel, WarnLevel, InfoLevel, DebugLevel, TraceLevel}
	return lvls[verbose-1]
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitializeLogger sets up the global logger with the specified configuration.
// Output goes to stderr; stdout stays free for hosted programs.
func InitializeLogger(level LogLevel) {
	// Set time format to ISO8601
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerologLevel(level))

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	ctx := zerolog.New(output).With().Timestamp()
	if level == TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	log.Info().Msg("Logger initialized")
}

// GetLogger returns a configured logger for a specific component
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// zerologWriter wraps zerolog to implement io.Writer, one event per line
type zerologWriter struct {
	logger   zerolog.Logger
	level    zerolog.Level
	stripStd bool
}

func (w zerologWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		// Remove stdlog prefix if present (timestamp and flags)
		if w.stripStd {
			if idx := strings.LastIndex(msg, ": "); idx != -1 && idx < len(msg)-2 {
				msg = msg[idx+2:]
			}
		}
		w.logger.WithLevel(w.level).Msg(msg)
	}
	return len(p), nil
}

// NewLogWriter returns an io.Writer that logs each written line at lvl.
// Used to surface the stderr of hosted programs.
func NewLogWriter(component string, lvl LogLevel) io.Writer {
	return zerologWriter{logger: GetLogger(component), level: zerologLevel(lvl)}
}

// NewLogLogger returns a configured stdlog.Logger that routes to zerolog
func NewLogLogger(component string, lvl LogLevel) *stdlog.Logger {
	writer := zerologWriter{logger: GetLogger(component), level: zerologLevel(lvl), stripStd: true}
	return stdlog.New(writer, "", 0)
}
