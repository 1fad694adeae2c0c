package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gridctl/toolgate/pkg/audit"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/store"
)

// Target is the store surface a reload writes to.
type Target interface {
	store.RegistrationWriter
	DeleteOwner(ctx context.Context, ownerID string, hard bool) error
}

// Result contains the result of a reload operation.
type Result struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Added           []string `json:"added,omitempty"`
	Removed         []string `json:"removed,omitempty"`
	Modified        []string `json:"modified,omitempty"`
	RestartRequired []string `json:"restart_required,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Handler applies config file changes to a running gateway.
type Handler struct {
	mu       sync.Mutex
	path     string
	current  *config.Config
	target   Target
	resetter catalog.Resetter
	auditor  audit.Recorder
	logger   *slog.Logger
}

// NewHandler creates a reload handler. current is the config the store was
// seeded from.
func NewHandler(path string, current *config.Config, target Target, resetter catalog.Resetter) *Handler {
	return &Handler{
		path:     path,
		current:  current,
		target:   target,
		resetter: resetter,
		auditor:  audit.Nop{},
		logger:   logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetAuditor records every registration change made by a reload.
func (h *Handler) SetAuditor(r audit.Recorder) {
	if r != nil {
		h.auditor = r
	}
}

// CurrentConfig returns the last successfully applied configuration.
func (h *Handler) CurrentConfig() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// OnChange adapts Reload to the watcher callback.
func (h *Handler) OnChange(ctx context.Context) error {
	result, err := h.Reload(ctx)
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Message)
	}
	return nil
}

// Reload reads the config file again and applies registration changes.
// Removed registrations are soft deleted so their tool history and policy
// rows survive a later re-add. The catalog is reset whenever anything was
// written.
func (h *Handler) Reload(ctx context.Context) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info("reloading configuration", "path", h.path)

	next, err := config.LoadConfig(h.path)
	if err != nil {
		return &Result{Message: fmt.Sprintf("failed to load config: %v", err)}, nil
	}

	diff, err := ComputeDiff(h.current, next)
	if err != nil {
		return &Result{Message: fmt.Sprintf("failed to compare config: %v", err)}, nil
	}
	if diff.IsEmpty() {
		h.logger.Info("no configuration changes detected")
		return &Result{Success: true, Message: "no changes detected"}, nil
	}

	result := &Result{Success: true, RestartRequired: diff.RestartRequired}
	if len(diff.RestartRequired) > 0 {
		h.logger.Warn("config sections changed that need a restart", "sections", diff.RestartRequired)
	}

	h.applyApplications(ctx, diff.Applications, result)
	h.applyServers(ctx, diff.Servers, result)
	h.applyPolicies(ctx, diff.Policies, result)

	if len(result.Added)+len(result.Removed)+len(result.Modified) > 0 {
		h.resetter.ResetCatalog()
	}

	h.current = next

	switch {
	case len(result.Errors) > 0:
		result.Success = false
		result.Message = fmt.Sprintf("reload applied with %d errors", len(result.Errors))
	case len(result.Added)+len(result.Removed)+len(result.Modified) == 0:
		result.Message = "restart required for: " + strings.Join(result.RestartRequired, ", ")
	default:
		result.Message = "configuration reloaded successfully"
	}

	h.logger.Info("reload complete",
		"added", len(result.Added),
		"removed", len(result.Removed),
		"modified", len(result.Modified),
		"errors", len(result.Errors))

	return result, nil
}

func (h *Handler) applyApplications(ctx context.Context, diff SetDiff[store.Application], result *Result) {
	for _, app := range diff.Removed {
		h.removeOwner(ctx, app.OwnerID(), app, result)
	}
	for _, change := range diff.Modified {
		if err := h.target.UpsertApplication(ctx, change.New); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", change.New.OwnerID(), err))
			continue
		}
		h.record(ctx, "registration.update", change.New.OwnerID(), change.Old, change.New)
		result.Modified = append(result.Modified, change.New.OwnerID())
	}
	for _, app := range diff.Added {
		if err := h.target.UpsertApplication(ctx, app); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("add %s: %v", app.OwnerID(), err))
			continue
		}
		h.record(ctx, "registration.create", app.OwnerID(), nil, app)
		result.Added = append(result.Added, app.OwnerID())
	}
}

func (h *Handler) applyServers(ctx context.Context, diff SetDiff[store.Server], result *Result) {
	for _, srv := range diff.Removed {
		h.removeOwner(ctx, srv.OwnerID(), srv, result)
	}
	for _, change := range diff.Modified {
		if err := h.target.UpsertServer(ctx, change.New); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", change.New.OwnerID(), err))
			continue
		}
		h.record(ctx, "registration.update", change.New.OwnerID(), change.Old, change.New)
		result.Modified = append(result.Modified, change.New.OwnerID())
	}
	for _, srv := range diff.Added {
		if err := h.target.UpsertServer(ctx, srv); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("add %s: %v", srv.OwnerID(), err))
			continue
		}
		h.record(ctx, "registration.create", srv.OwnerID(), nil, srv)
		result.Added = append(result.Added, srv.OwnerID())
	}
}

func (h *Handler) applyPolicies(ctx context.Context, diff SetDiff[store.AccessPolicy], result *Result) {
	for _, p := range diff.Removed {
		key := "policy:" + policyKey(p)
		if err := h.target.RemovePolicy(ctx, p.OwnerID, p.ToolID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", key, err))
			continue
		}
		h.record(ctx, "policy.delete", policyKey(p), p, nil)
		result.Removed = append(result.Removed, key)
	}
	for _, change := range diff.Modified {
		key := "policy:" + change.Key
		if err := h.target.UpsertPolicy(ctx, change.New); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", key, err))
			continue
		}
		h.record(ctx, "policy.update", change.Key, change.Old, change.New)
		result.Modified = append(result.Modified, key)
	}
	for _, p := range diff.Added {
		key := "policy:" + policyKey(p)
		if err := h.target.UpsertPolicy(ctx, p); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("add %s: %v", key, err))
			continue
		}
		h.record(ctx, "policy.create", policyKey(p), nil, p)
		result.Added = append(result.Added, key)
	}
}

func (h *Handler) removeOwner(ctx context.Context, ownerID string, before any, result *Result) {
	h.logger.Info("removing registration", "owner", ownerID)
	err := h.target.DeleteOwner(ctx, ownerID, false)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", ownerID, err))
		return
	}
	h.record(ctx, "registration.delete", ownerID, before, nil)
	result.Removed = append(result.Removed, ownerID)
}

func (h *Handler) record(ctx context.Context, action, id string, before, after any) {
	resourceType := "registration"
	if strings.HasPrefix(action, "policy.") {
		resourceType = "policy"
	}
	h.auditor.Record(ctx, audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   id,
		Before:       before,
		After:        after,
	})
}
