// Package logging builds the process logger and carries it through
// context.Context for components that only receive a context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/quickmod/quickmod/internal/branding"
)

// New returns a logger writing to w at the named level. Unknown level names
// fall back to warn.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.WarnLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: branding.CLIName(),
		Level:  lvl,
	})
}

// Discard returns a logger that drops everything. Components default to it
// when no logger is supplied.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// WithLogger returns a new context carrying logger.
func WithLogger(ctx context.Context, logger *log.Logger) context.Context {
	return log.WithContext(ctx, logger)
}

// FromContext extracts the logger from ctx, or a discard logger when none
// was attached.
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(log.ContextKey).(*log.Logger); ok && l != nil {
		return l
	}
	return Discard()
}
