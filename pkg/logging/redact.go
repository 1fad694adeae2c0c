package logging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
)

const redacted = "[REDACTED]"

type redactRule struct {
	re   *regexp.Regexp
	repl string
}

// Each rule keeps its first capture group (e.g. "Bearer ") and replaces
// the secret that follows.
var defaultRedactRules = []redactRule{
	{regexp.MustCompile(`(?i)(Authorization:\s*)\S+(\s+\S+)?`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)(Bearer\s+)\S+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)((?:password|passwd|secret|api[_-]?key|token|credentials?|auth[_-]?token)\s*[=:]\s*)[^\s&]+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/@\s]+:)[^@\s/]+@`), "${1}" + redacted + "@"},
}

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

// RedactingHandler scrubs secrets from the message and every string-like
// attribute before handing the record to inner.
type RedactingHandler struct {
	inner slog.Handler
	rules []redactRule
}

// NewRedactingHandler wraps an inner handler with secret redaction.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{
		inner: inner,
		rules: defaultRedactRules,
	}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &RedactingHandler{
		inner: h.inner.WithAttrs(clean),
		rules: h.rules,
	}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{
		inner: h.inner.WithGroup(name),
		rules: h.rules,
	}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		group := make([]any, len(attrs))
		for i, ga := range attrs {
			group[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, group...)
	case slog.KindAny:
		return h.redactAnyAttr(a)
	default:
		return a
	}
}

func (h *RedactingHandler) redactAnyAttr(a slog.Attr) slog.Attr {
	switch val := a.Value.Any().(type) {
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = h.redactString(s)
		}
		return slog.Any(a.Key, out)
	case http.Header:
		return slog.Any(a.Key, RedactHeaders(val))
	case error:
		return slog.String(a.Key, h.redactString(val.Error()))
	case fmt.Stringer:
		return slog.String(a.Key, h.redactString(val.String()))
	default:
		return a
	}
}

func (h *RedactingHandler) redactString(s string) string {
	return applyRules(h.rules, s)
}

// RedactString applies the default redaction rules to a string.
func RedactString(s string) string {
	return applyRules(defaultRedactRules, s)
}

func applyRules(rules []redactRule, s string) string {
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// RedactHeaders flattens h for logging, masking credential-bearing headers.
func RedactHeaders(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := http.CanonicalHeaderKey(k)
		if sensitiveHeaders[key] {
			out[key] = redacted
			continue
		}
		if len(v) > 0 {
			out[key] = RedactString(v[0])
		}
	}
	return out
}
