package logging

import (
	"context"
	"log/slog"
)

// DiscardHandler is a slog.Handler that drops every record.
type DiscardHandler struct{}

func (DiscardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (DiscardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d DiscardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d DiscardHandler) WithGroup(string) slog.Handler           { return d }

// NewDiscardLogger returns the default logger for components nobody configured.
func NewDiscardLogger() *slog.Logger {
	return slog.New(DiscardHandler{})
}
