package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/store"
)

// DefaultSeeder creates an owner's default policy row when it is missing.
type DefaultSeeder interface {
	EnsureDefault(ctx context.Context, ownerID string, mode store.Mode) (bool, error)
}

// Synchronizer is the only writer of registry tool records.
type Synchronizer struct {
	store    store.ToolRecordStore
	seeder   DefaultSeeder
	seedMode store.Mode
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSynchronizer creates a synchronizer. A nil seeder skips default
// policy seeding.
func NewSynchronizer(records store.ToolRecordStore, seeder DefaultSeeder, seedMode store.Mode) *Synchronizer {
	return &Synchronizer{
		store:    records,
		seeder:   seeder,
		seedMode: seedMode,
		now:      time.Now,
		logger:   logging.NewDiscardLogger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger.
func (s *Synchronizer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source.
func (s *Synchronizer) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Synchronizer) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}
	return l
}

// Reconcile brings the owner's records in line with snap. selected holds
// tool names or "METHOD path" keys; an empty selection selects everything.
//
// A failed or dead snapshot is a no-op. Upserts commit before soft-deletes,
// so a failure in the second step keeps the first step's writes.
func (s *Synchronizer) Reconcile(ctx context.Context, ownerID string, snap Snapshot, selected []string) (Result, error) {
	var result Result
	logger := logging.WithOwner(s.logger, ownerID)
	if !snap.usable() {
		logger.Debug("skipping reconcile for unusable snapshot", "alive", snap.Alive, "error", snap.Err)
		return result, nil
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	filter := store.ToolFilter{Source: snap.Source, OwnerID: ownerID}
	existing, err := s.store.ListToolRecords(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("loading registry for %s: %w", ownerID, err)
	}
	byName := make(map[string]store.ToolRecord, len(existing))
	for _, rec := range existing {
		byName[rec.Name] = rec
	}

	selection := newSelection(selected)
	now := s.now().UTC()
	seen := make(map[string]bool, len(snap.Tools))

	var inserted, updated []string
	err = s.store.InTx(ctx, func(tx store.ToolRecords) error {
		for _, tool := range snap.Tools {
			if tool.Name == "" || seen[tool.Name] {
				continue
			}
			seen[tool.Name] = true

			rec, exists := byName[tool.Name]
			if !exists {
				rec = store.ToolRecord{
					Source:  snap.Source,
					OwnerID: ownerID,
					Name:    tool.Name,
					Enabled: true,
				}
			}
			rec.Method = tool.Method
			rec.Path = tool.Path
			rec.DisplayName = tool.DisplayName
			rec.Description = tool.Description
			rec.LastDiscoveredAt = now
			rec.LastSyncedAt = now
			rec.SyncError = ""
			rec.RegistrationState = selection.state(tool)
			if !exists || rec.Lifecycle() != store.LifecycleActive {
				rec.Deleted = false
				rec.Enabled = true
				rec.ExposureState = store.ExposureActive
			}

			if err := tx.UpsertToolRecord(ctx, rec); err != nil {
				return err
			}
			if exists {
				updated = append(updated, tool.Name)
			} else {
				inserted = append(inserted, tool.Name)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("upserting registry for %s: %w", ownerID, err)
	}
	result.Inserted, result.Updated = inserted, updated

	var softDeleted []string
	err = s.store.InTx(ctx, func(tx store.ToolRecords) error {
		for _, rec := range existing {
			if seen[rec.Name] || rec.Deleted {
				continue
			}
			if err := tx.SoftDeleteToolRecord(ctx, rec.Source, ownerID, rec.Name, now); err != nil {
				return err
			}
			softDeleted = append(softDeleted, rec.Name)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("soft-deleting registry for %s: %w", ownerID, err)
	}
	result.SoftDeleted = softDeleted

	if s.seeder != nil && s.seedMode != "" {
		created, err := s.seeder.EnsureDefault(ctx, ownerID, s.seedMode)
		if err != nil {
			logger.Warn("default policy seeding failed", "error", err)
		} else if created {
			logger.Info("seeded default access policy", "mode", s.seedMode)
		}
	}

	if result.Changed() {
		logger.Info("registry reconciled",
			"inserted", len(result.Inserted),
			"updated", len(result.Updated),
			"soft_deleted", len(result.SoftDeleted))
	}
	return result, nil
}

type selection map[string]bool

func newSelection(keys []string) selection {
	sel := make(selection, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			sel[k] = true
		}
	}
	return sel
}

func (sel selection) state(tool DiscoveredTool) store.RegistrationState {
	if len(sel) == 0 || sel[tool.Name] {
		return store.StateSelected
	}
	if key := tool.OperationKey(); key != "" && sel[key] {
		return store.StateSelected
	}
	return store.StateUnselected
}

// AppDiscovery is one application's outcome from a catalog build.
type AppDiscovery struct {
	App   store.Application
	Tools []openapi.ToolDefinition
	// Err is set when the spec could not be fetched.
	Err error
}

// OpenAPISnapshot converts a catalog outcome into a snapshot. Placeholder
// tools are never registered.
func OpenAPISnapshot(d AppDiscovery) Snapshot {
	snap := Snapshot{
		OwnerID: d.App.OwnerID(),
		Source:  store.SourceOpenAPI,
		Err:     d.Err,
		Alive:   d.Err == nil,
	}
	for _, def := range d.Tools {
		if def.IsPlaceholder {
			continue
		}
		snap.Tools = append(snap.Tools, DiscoveredTool{
			Name:        def.Name,
			Description: def.Description,
			Method:      def.Method,
			Path:        def.Path,
			DisplayName: def.Title,
		})
	}
	return snap
}

// SyncApplications reconciles every application in apps. Failures are
// collected; one owner's failure does not stop the others.
func (s *Synchronizer) SyncApplications(ctx context.Context, apps []AppDiscovery) error {
	var errs []error
	for _, d := range apps {
		snap := OpenAPISnapshot(d)
		if _, err := s.Reconcile(ctx, snap.OwnerID, snap, d.App.SelectedOperationKeys); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
