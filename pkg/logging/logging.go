// Package logging builds the zerolog loggers used across cmarkup.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the output format and minimum level.
type Options struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // "json" or "text"; default text
	Quiet  bool   // drop everything below warn
}

// New returns a logger writing to w. Text output uses zerolog's console
// writer; JSON output writes one object per line.
func New(w io.Writer, opts Options) zerolog.Logger {
	out := w
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    true,
		}
	}
	level := ParseLevel(opts.Level)
	if opts.Quiet && level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Nop is a disabled logger for callers that do not log.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// OpenOutput resolves a configured output name: "stderr", "stdout" or a file
// path opened for appending. The returned close function is a no-op for the
// standard streams.
func OpenOutput(name string, stdout, stderr io.Writer) (io.Writer, func() error, error) {
	switch name {
	case "", "stderr":
		return stderr, func() error { return nil }, nil
	case "stdout":
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log output: %w", err)
	}
	return f, f.Close, nil
}
