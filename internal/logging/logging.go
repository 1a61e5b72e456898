// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File, when set, receives the log through a size-rotated writer
	// instead of the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger is a slog.Logger whose level can change at runtime.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	out   io.Closer
}

// New returns a text logger writing to console, or to the rotated file
// when opts.File is set.
func New(console io.Writer, opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	if err := SetLevel(level, opts.Level); err != nil {
		return nil, err
	}

	w := console
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		w, closer = lj, lj
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler), Level: level, out: closer}, nil
}

// SetLevel parses name ("debug", "info", "warn", "error") into v. An
// empty name leaves v unchanged.
func SetLevel(v *slog.LevelVar, name string) error {
	if name == "" {
		return nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return fmt.Errorf("logging: level %q: %w", name, err)
	}
	v.Set(l)
	return nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

func (l *Logger) Close() error { return l.out.Close() }

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
