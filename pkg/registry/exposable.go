package registry

import (
	"context"
	"fmt"

	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/store"
)

// NativeToolPrefix starts every native tool's public name.
const NativeToolPrefix = "mcp__"

// NativeToolName returns the public name of a native tool.
func NativeToolName(server, tool string) string {
	return NativeToolPrefix + server + "__" + tool
}

// ExposedTool is a registry record that may be offered to clients.
type ExposedTool struct {
	Name    string           `json:"name"`
	OwnerID string           `json:"owner_id"`
	Source  store.SourceType `json:"source_type"`
	Method  string           `json:"method,omitempty"`
	Path    string           `json:"path,omitempty"`
	Mode    store.Mode       `json:"mode"`
}

// Exposable lists enabled, selected, non-deleted records with their
// resolved access mode. Denied tools are always dropped; publicOnly also
// drops everything that is not allow.
func Exposable(ctx context.Context, records store.ToolRecords, resolver *policy.Resolver, publicOnly bool) ([]ExposedTool, error) {
	all, err := records.ListToolRecords(ctx, store.ToolFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}

	var candidates []store.ToolRecord
	var owners []string
	for _, rec := range all {
		if rec.Deleted || !rec.Enabled || rec.RegistrationState != store.StateSelected ||
			rec.Lifecycle() != store.LifecycleActive {
			continue
		}
		candidates = append(candidates, rec)
		owners = append(owners, rec.OwnerID)
	}
	if len(candidates) == 0 {
		return []ExposedTool{}, nil
	}

	table, err := resolver.Snapshot(ctx, owners)
	if err != nil {
		return nil, err
	}

	out := make([]ExposedTool, 0, len(candidates))
	for _, rec := range candidates {
		mode := table.Resolve(rec.OwnerID, rec.Name)
		if !policy.Visible(mode) || (publicOnly && mode != store.ModeAllow) {
			continue
		}
		name := rec.Name
		if rec.Source == store.SourceMCP {
			_, server, _ := store.SplitOwner(rec.OwnerID)
			name = NativeToolName(server, rec.Name)
		}
		out = append(out, ExposedTool{
			Name:    name,
			OwnerID: rec.OwnerID,
			Source:  rec.Source,
			Method:  rec.Method,
			Path:    rec.Path,
			Mode:    mode,
		})
	}
	return out, nil
}
