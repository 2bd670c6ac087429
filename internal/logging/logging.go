// Package logging provides structured logging for arcadewatchd, wrapping
// zerolog so call sites never import it directly.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger without exposing it directly.
type Logger struct {
	zl zerolog.Logger
}

// Event wraps zerolog.Event without exposing it directly.
type Event struct {
	ze *zerolog.Event
}

// Level is a logging verbosity level.
type Level int8

const (
	DebugLevel Level = Level(zerolog.DebugLevel)
	InfoLevel  Level = Level(zerolog.InfoLevel)
	WarnLevel  Level = Level(zerolog.WarnLevel)
	ErrorLevel Level = Level(zerolog.ErrorLevel)
	FatalLevel Level = Level(zerolog.FatalLevel)
)

// Standard field names, kept consistent across components.
const (
	FieldComponent = "component"
	FieldPlayID    = "play_id"
	FieldPath      = "path"
	FieldRetries   = "retries"
	FieldEvent     = "event"
)

var defaultLogger = Logger{zl: zerolog.New(os.Stdout).With().Timestamp().Logger()}

// Configure sets the global logger's level and output destination.
// output may be "stdout", "stderr", or a file path; an empty string means
// stdout. stdout and stderr always get a human console writer; a file path
// gets newline-delimited JSON.
func Configure(levelStr, output string) error {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return err
	}

	var w io.Writer
	switch output {
	case "", "stdout", "STDOUT":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	case "stderr", "STDERR":
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w = f
	}

	zerolog.SetGlobalLevel(level)
	defaultLogger = Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
	return nil
}

// Named returns a child logger with a "component" field set, the
// convention every package in this daemon uses to tag its log lines.
func Named(component string) Logger {
	return Logger{zl: defaultLogger.zl.With().Str(FieldComponent, component).Logger()}
}

func (l Logger) With() Context      { return Context{zc: l.zl.With()} }
func (l Logger) Debug() Event       { return Event{ze: l.zl.Debug()} }
func (l Logger) Info() Event        { return Event{ze: l.zl.Info()} }
func (l Logger) Warn() Event        { return Event{ze: l.zl.Warn()} }
func (l Logger) Error() Event       { return Event{ze: l.zl.Error()} }
func (l Logger) Fatal() Event       { return Event{ze: l.zl.Fatal()} }

// Context wraps zerolog.Context for building a child logger.
type Context struct {
	zc zerolog.Context
}

func (c Context) Str(key, val string) Context { return Context{zc: c.zc.Str(key, val)} }
func (c Context) Int64(key string, val int64) Context { return Context{zc: c.zc.Int64(key, val)} }
func (c Context) Logger() Logger { return Logger{zl: c.zc.Logger()} }

func (e Event) Str(key, val string) Event           { return Event{ze: e.ze.Str(key, val)} }
func (e Event) Int(key string, val int) Event        { return Event{ze: e.ze.Int(key, val)} }
func (e Event) Int64(key string, val int64) Event    { return Event{ze: e.ze.Int64(key, val)} }
func (e Event) Bool(key string, val bool) Event       { return Event{ze: e.ze.Bool(key, val)} }
func (e Event) Err(err error) Event                   { return Event{ze: e.ze.Err(err)} }
func (e Event) Dur(key string, val time.Duration) Event { return Event{ze: e.ze.Dur(key, val)} }
func (e Event) Msg(msg string)                        { e.ze.Msg(msg) }
func (e Event) Msgf(format string, v ...interface{})  { e.ze.Msgf(format, v...) }
