// Package policy resolves the access mode of a tool from hierarchical
// policy rows: a tool-specific row, then the owner's default row, then a
// fixed fallback.
package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gridctl/toolgate/pkg/store"
)

// DefaultFallback is returned when an owner has neither a tool row nor a
// default row. Deployments may override it through configuration.
const DefaultFallback = store.ModeDeny

// Resolver reads policy rows from a store.
type Resolver struct {
	store    store.PolicyStore
	fallback store.Mode
}

// NewResolver creates a resolver. An empty fallback uses DefaultFallback.
func NewResolver(ps store.PolicyStore, fallback store.Mode) *Resolver {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Resolver{store: ps, fallback: fallback}
}

// Fallback returns the mode used when no row matches.
func (r *Resolver) Fallback() store.Mode { return r.fallback }

// Resolve returns the effective mode for (ownerID, toolID).
func (r *Resolver) Resolve(ctx context.Context, ownerID, toolID string) (store.Mode, error) {
	table, err := r.Snapshot(ctx, []string{ownerID})
	if err != nil {
		return "", err
	}
	return table.Resolve(ownerID, toolID), nil
}

// Snapshot loads every row for ownerIDs in one query. Listing resolves many
// tools against the same table.
func (r *Resolver) Snapshot(ctx context.Context, ownerIDs []string) (*Table, error) {
	ids := slices.Clone(ownerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := r.store.ListPolicies(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading access policies: %w", err)
	}
	return NewTable(rows, r.fallback), nil
}

// EnsureDefault creates the owner's default row with mode unless one
// already exists. It reports whether a row was created.
func (r *Resolver) EnsureDefault(ctx context.Context, ownerID string, mode store.Mode) (bool, error) {
	if _, err := r.store.GetPolicy(ctx, ownerID, store.DefaultToolID); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("loading default policy for %s: %w", ownerID, err)
	}
	created, err := r.store.InsertPolicy(ctx, store.AccessPolicy{
		OwnerID: ownerID,
		ToolID:  store.DefaultToolID,
		Mode:    mode,
	})
	if err != nil {
		return false, fmt.Errorf("seeding default policy for %s: %w", ownerID, err)
	}
	return created, nil
}

// Table is an immutable set of policy rows.
type Table struct {
	modes    map[string]map[string]store.Mode
	fallback store.Mode
}

// NewTable indexes rows. Rows with an unknown mode are ignored so that a
// bad row never widens access.
func NewTable(rows []store.AccessPolicy, fallback store.Mode) *Table {
	t := &Table{modes: make(map[string]map[string]store.Mode), fallback: fallback}
	for _, row := range rows {
		mode, err := store.ParseMode(string(row.Mode))
		if err != nil {
			continue
		}
		byTool, ok := t.modes[row.OwnerID]
		if !ok {
			byTool = make(map[string]store.Mode)
			t.modes[row.OwnerID] = byTool
		}
		byTool[row.ToolID] = mode
	}
	return t
}

// Resolve applies tool row, then default row, then fallback.
func (t *Table) Resolve(ownerID, toolID string) store.Mode {
	if byTool, ok := t.modes[ownerID]; ok {
		if mode, ok := byTool[toolID]; ok {
			return mode
		}
		if mode, ok := byTool[store.DefaultToolID]; ok {
			return mode
		}
	}
	return t.fallback
}

// Visible reports whether a mode lets a tool appear in listings.
func Visible(mode store.Mode) bool { return mode != store.ModeDeny }
