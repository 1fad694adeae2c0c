// Package store defines the durable entities behind the gateway and the
// contracts used to read and write them.
package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// DefaultToolID names the owner-level fallback policy row.
const DefaultToolID = "__default__"

// Owner id prefixes.
const (
	AppOwnerPrefix    = "app:"
	ServerOwnerPrefix = "mcp:"
)

// AppOwner returns the owner id for an OpenAPI application.
func AppOwner(name string) string { return AppOwnerPrefix + name }

// ServerOwner returns the owner id for a native MCP server.
func ServerOwner(name string) string { return ServerOwnerPrefix + name }

// SplitOwner parses an owner id into its source type and registration name.
func SplitOwner(ownerID string) (SourceType, string, bool) {
	switch {
	case strings.HasPrefix(ownerID, AppOwnerPrefix):
		return SourceOpenAPI, strings.TrimPrefix(ownerID, AppOwnerPrefix), true
	case strings.HasPrefix(ownerID, ServerOwnerPrefix):
		return SourceMCP, strings.TrimPrefix(ownerID, ServerOwnerPrefix), true
	default:
		return "", "", false
	}
}

// SourceType identifies where a tool was discovered.
type SourceType string

const (
	SourceOpenAPI SourceType = "openapi"
	SourceMCP     SourceType = "mcp"
)

// Mode is an access-policy decision.
type Mode string

const (
	ModeAllow    Mode = "allow"
	ModeApproval Mode = "approval"
	ModeDeny     Mode = "deny"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAllow, ModeApproval, ModeDeny:
		return m, nil
	default:
		return "", fmt.Errorf("invalid access mode %q", s)
	}
}

// RegistrationState records whether a registry tool passes the owner's selection filter.
type RegistrationState string

const (
	StateSelected   RegistrationState = "selected"
	StateUnselected RegistrationState = "unselected"
	StateStale      RegistrationState = "stale"
)

// ExposureState records whether a registry tool may be exposed at all.
type ExposureState string

const (
	ExposureActive  ExposureState = "active"
	ExposureRetired ExposureState = "retired"
)

// Lifecycle is the derived state of a registry record.
//
//	active  -> stale    tool missing from a live discovery snapshot
//	stale   -> active   tool rediscovered
//	any     -> retired  owning registration deleted
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleStale   Lifecycle = "stale"
	LifecycleRetired Lifecycle = "retired"
)

// Application is an OpenAPI application registration.
type Application struct {
	Name                    string   `json:"name"`
	BaseURL                 string   `json:"base_url"`
	OpenAPIPath             string   `json:"openapi_path,omitempty"`
	Domain                  string   `json:"domain"`
	IncludeUnreachableTools bool     `json:"include_unreachable_tools"`
	SelectedOperationKeys   []string `json:"selected_operation_keys,omitempty"`
	Enabled                 bool     `json:"enabled"`
	Deleted                 bool     `json:"deleted"`
}

// OwnerID returns "app:{name}".
func (a Application) OwnerID() string { return AppOwner(a.Name) }

// Server is a native MCP server registration.
type Server struct {
	Name              string   `json:"name"`
	BaseURL           string   `json:"base_url"`
	Domain            string   `json:"domain"`
	SelectedToolNames []string `json:"selected_tool_names,omitempty"`
	Enabled           bool     `json:"enabled"`
	Deleted           bool     `json:"deleted"`
}

// OwnerID returns "mcp:{name}".
func (s Server) OwnerID() string { return ServerOwner(s.Name) }

// ToolRecord is the durable registry row for one discovered tool.
// Unique on (Source, OwnerID, Name).
type ToolRecord struct {
	ID                string            `json:"id"`
	Source            SourceType        `json:"source_type"`
	OwnerID           string            `json:"owner_id"`
	Name              string            `json:"name"`
	Method            string            `json:"method,omitempty"`
	Path              string            `json:"path,omitempty"`
	DisplayName       string            `json:"display_name,omitempty"`
	Description       string            `json:"description,omitempty"`
	RegistrationState RegistrationState `json:"registration_state"`
	ExposureState     ExposureState     `json:"exposure_state"`
	LastDiscoveredAt  time.Time         `json:"last_discovered_at"`
	LastSyncedAt      time.Time         `json:"last_synced_at"`
	SyncError         string            `json:"sync_error,omitempty"`
	Enabled           bool              `json:"enabled"`
	Deleted           bool              `json:"deleted"`
}

// Lifecycle derives the record's lifecycle from its durable flags.
func (r ToolRecord) Lifecycle() Lifecycle {
	switch {
	case r.ExposureState == ExposureRetired:
		return LifecycleRetired
	case r.Deleted:
		return LifecycleStale
	default:
		return LifecycleActive
	}
}

// ToolFilter narrows ListToolRecords. Zero fields match everything.
type ToolFilter struct {
	Source  SourceType
	OwnerID string
}

// Matches reports whether r passes the filter.
func (f ToolFilter) Matches(r ToolRecord) bool {
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// AccessPolicy is one hierarchical policy row. Unique on (OwnerID, ToolID).
type AccessPolicy struct {
	OwnerID       string   `json:"owner_id"`
	ToolID        string   `json:"tool_id"`
	Mode          Mode     `json:"mode"`
	AllowedUsers  []string `json:"allowed_users,omitempty"`
	AllowedGroups []string `json:"allowed_groups,omitempty"`
}

func cloneApplication(a Application) Application {
	a.SelectedOperationKeys = slices.Clone(a.SelectedOperationKeys)
	return a
}

func cloneServer(s Server) Server {
	s.SelectedToolNames = slices.Clone(s.SelectedToolNames)
	return s
}

func clonePolicy(p AccessPolicy) AccessPolicy {
	p.AllowedUsers = slices.Clone(p.AllowedUsers)
	p.AllowedGroups = slices.Clone(p.AllowedGroups)
	return p
}
