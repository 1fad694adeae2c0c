// Package audit records administrative mutations.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridctl/toolgate/pkg/logging"
)

// SystemActor is used when no caller identity is known.
const SystemActor = "system"

// Entry is one audited change.
type Entry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Before       any
	After        any
}

// Recorder writes audit entries. Implementations must not block the caller
// on a slow sink and never fail the audited operation.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// LogRecorder writes entries to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogRecorder creates a recorder. A nil logger discards entries.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &LogRecorder{logger: logger, now: time.Now}
}

// Record logs e at info level under the "audit" group.
func (r *LogRecorder) Record(ctx context.Context, e Entry) {
	if e.Actor == "" {
		e.Actor = SystemActor
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.Group("audit",
			slog.String("actor", e.Actor),
			slog.String("action", e.Action),
			slog.String("resource_type", e.ResourceType),
			slog.String("resource_id", e.ResourceID),
			slog.Any("before", e.Before),
			slog.Any("after", e.After),
			slog.Time("at", r.now().UTC()),
		),
	)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
