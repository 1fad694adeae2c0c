package store

import (
	"context"
	"time"
)

// ApplicationSource loads OpenAPI application registrations.
type ApplicationSource interface {
	// ListEnabledApplications returns enabled, non-deleted applications.
	ListEnabledApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, name string) (Application, error)
}

// ServerSource loads native MCP server registrations.
type ServerSource interface {
	// ListEnabledServers returns enabled, non-deleted servers.
	ListEnabledServers(ctx context.Context) ([]Server, error)
	GetServer(ctx context.Context, name string) (Server, error)
}

// PolicyStore reads and writes access-policy rows.
type PolicyStore interface {
	// ListPolicies returns every row whose owner is in ownerIDs.
	ListPolicies(ctx context.Context, ownerIDs []string) ([]AccessPolicy, error)
	GetPolicy(ctx context.Context, ownerID, toolID string) (AccessPolicy, error)
	// InsertPolicy creates p unless a row with the same key exists.
	// It reports whether a row was created.
	InsertPolicy(ctx context.Context, p AccessPolicy) (bool, error)
	UpdatePolicy(ctx context.Context, p AccessPolicy) error
}

// ToolRecords is the registry surface available inside a transaction.
type ToolRecords interface {
	ListToolRecords(ctx context.Context, filter ToolFilter) ([]ToolRecord, error)
	// UpsertToolRecord inserts rec or replaces the row with the same key.
	UpsertToolRecord(ctx context.Context, rec ToolRecord) error
	// SoftDeleteToolRecord marks a record deleted and stale. Already deleted
	// records are left untouched.
	SoftDeleteToolRecord(ctx context.Context, source SourceType, ownerID, name string, at time.Time) error
}

// ToolRecordStore adds a transaction boundary to ToolRecords.
type ToolRecordStore interface {
	ToolRecords
	// InTx runs fn against a transactional view. fn's writes commit together
	// or not at all.
	InTx(ctx context.Context, fn func(ToolRecords) error) error
}

// RegistrationWriter creates or replaces registrations and policy rows.
// Used to seed the store from configuration.
type RegistrationWriter interface {
	UpsertApplication(ctx context.Context, app Application) error
	UpsertServer(ctx context.Context, srv Server) error
	UpsertPolicy(ctx context.Context, p AccessPolicy) error
	// RemovePolicy deletes one policy row. A missing row is not an error.
	RemovePolicy(ctx context.Context, ownerID, toolID string) error
}

// Store is the full durable store contract.
type Store interface {
	ApplicationSource
	ServerSource
	PolicyStore
	ToolRecordStore
	RegistrationWriter

	// DeleteOwner removes a registration and cascades to its dependents.
	// Soft: registration and tool records are marked deleted, tools retired,
	// policy rows kept. Hard: all of them are removed.
	DeleteOwner(ctx context.Context, ownerID string, hard bool) error

	Close()
}
