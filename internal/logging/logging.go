// Package logging builds the process logger.
//
// Interactive runs log through tint to stderr, colored when stderr is a
// terminal. When a log file is configured the logger writes JSON lines to it
// instead, rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File, when set, receives JSON logs instead of the console.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Console is where console logs go. Defaults to os.Stderr.
	Console io.Writer
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns the logger described by opts and a closer for its output.
// The closer must be called on exit when a log file is used.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
		return slog.New(handler), rotator, nil
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	noColor := true
	if f, ok := console.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		console = colorable.NewColorable(f)
		noColor = false
	}

	handler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
	return slog.New(handler), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
