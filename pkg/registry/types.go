// Package registry keeps the durable tool registry in step with discovery
// snapshots.
package registry

import (
	"github.com/gridctl/toolgate/pkg/store"
)

// DiscoveredTool is one tool reported by a discovery pass.
type DiscoveredTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method,omitempty"`
	Path        string `json:"path,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// OperationKey returns "METHOD path" for OpenAPI tools and "" otherwise.
func (t DiscoveredTool) OperationKey() string {
	if t.Method == "" || t.Path == "" {
		return ""
	}
	return t.Method + " " + t.Path
}

// Snapshot is the result of discovering one owner's tools.
type Snapshot struct {
	OwnerID string
	Source  store.SourceType
	Tools   []DiscoveredTool
	// Err is set when discovery failed. A failed snapshot never changes
	// the registry.
	Err   error
	Alive bool
}

// usable reports whether the snapshot may drive reconciliation.
func (s Snapshot) usable() bool { return s.Err == nil && s.Alive }

// Result lists the tool names touched by a reconciliation.
type Result struct {
	Inserted    []string `json:"inserted"`
	Updated     []string `json:"updated"`
	SoftDeleted []string `json:"soft_deleted"`
}

// Changed reports whether any record was written.
func (r Result) Changed() bool {
	return len(r.Inserted)+len(r.Updated)+len(r.SoftDeleted) > 0
}
