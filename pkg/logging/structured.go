// Package logging builds the slog loggers used across toolgate.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config describes the process logger. The zero value writes JSON at info
// level to stderr without redaction.
type Config struct {
	Level  slog.Level
	Format LogFormat
	Output io.Writer
	// Component is attached to every record as "component".
	Component string
	// Redact scrubs bearer tokens, secrets and DSN passwords.
	Redact bool
}

// NewStructuredLogger returns a logger for cfg. Timestamps are emitted as
// "ts" in UTC.
func NewStructuredLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, ReplaceAttr: utcTimestamp}

	var h slog.Handler
	if cfg.Format == FormatText {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	if cfg.Redact {
		h = NewRedactingHandler(h)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return slog.New(h)
}

func utcTimestamp(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey || len(groups) > 0 {
		return a
	}
	t, ok := a.Value.Any().(time.Time)
	if !ok {
		return a
	}
	return slog.String("ts", t.UTC().Format(time.RFC3339Nano))
}

// WithComponent tags logger's records with a subsystem name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithOwner tags logger's records with a tool owner such as "app:billing".
func WithOwner(logger *slog.Logger, ownerID string) *slog.Logger {
	return logger.With(slog.String("owner", ownerID))
}

// ParseLevel reads a config level name. "warning" is accepted for warn;
// anything unrecognized is info.
func ParseLevel(level string) slog.Level {
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseFormat reads a config format name. "pretty" is an alias for text;
// anything else is JSON.
func ParseFormat(format string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "pretty":
		return FormatText
	}
	return FormatJSON
}
