package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type toolKey struct {
	source SourceType
	owner  string
	name   string
}

type policyKey struct {
	owner string
	tool  string
}

// MemoryStore is an in-process Store. Returned values are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	apps     map[string]Application
	servers  map[string]Server
	tools    map[toolKey]ToolRecord
	policies map[policyKey]AccessPolicy
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:     make(map[string]Application),
		servers:  make(map[string]Server),
		tools:    make(map[toolKey]ToolRecord),
		policies: make(map[policyKey]AccessPolicy),
	}
}

// PutApplication creates or replaces an application registration.
func (s *MemoryStore) PutApplication(app Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.Name] = cloneApplication(app)
}

// PutServer creates or replaces a server registration.
func (s *MemoryStore) PutServer(srv Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[srv.Name] = cloneServer(srv)
}

// PutPolicy creates or replaces a policy row.
func (s *MemoryStore) PutPolicy(p AccessPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey{p.OwnerID, p.ToolID}] = clonePolicy(p)
}

// DeletePolicy removes a policy row if present.
func (s *MemoryStore) DeletePolicy(ownerID, toolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, policyKey{ownerID, toolID})
}

func (s *MemoryStore) UpsertApplication(_ context.Context, app Application) error {
	s.PutApplication(app)
	return nil
}

func (s *MemoryStore) UpsertServer(_ context.Context, srv Server) error {
	s.PutServer(srv)
	return nil
}

func (s *MemoryStore) UpsertPolicy(_ context.Context, p AccessPolicy) error {
	s.PutPolicy(p)
	return nil
}

func (s *MemoryStore) RemovePolicy(_ context.Context, ownerID, toolID string) error {
	s.DeletePolicy(ownerID, toolID)
	return nil
}

func (s *MemoryStore) ListEnabledApplications(_ context.Context) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Application, 0, len(s.apps))
	for _, a := range s.apps {
		if a.Enabled && !a.Deleted {
			result = append(result, cloneApplication(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStore) GetApplication(_ context.Context, name string) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.apps[name]
	if !ok {
		return Application{}, fmt.Errorf("application %q: %w", name, ErrNotFound)
	}
	return cloneApplication(a), nil
}

func (s *MemoryStore) ListEnabledServers(_ context.Context) ([]Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Server, 0, len(s.servers))
	for _, srv := range s.servers {
		if srv.Enabled && !srv.Deleted {
			result = append(result, cloneServer(srv))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStore) GetServer(_ context.Context, name string) (Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers[name]
	if !ok {
		return Server{}, fmt.Errorf("server %q: %w", name, ErrNotFound)
	}
	return cloneServer(srv), nil
}

func (s *MemoryStore) ListPolicies(_ context.Context, ownerIDs []string) ([]AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		want[id] = true
	}
	var result []AccessPolicy
	for k, p := range s.policies {
		if want[k.owner] {
			result = append(result, clonePolicy(p))
		}
	}
	return result, nil
}

func (s *MemoryStore) GetPolicy(_ context.Context, ownerID, toolID string) (AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[policyKey{ownerID, toolID}]
	if !ok {
		return AccessPolicy{}, fmt.Errorf("policy %s/%s: %w", ownerID, toolID, ErrNotFound)
	}
	return clonePolicy(p), nil
}

func (s *MemoryStore) InsertPolicy(_ context.Context, p AccessPolicy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := policyKey{p.OwnerID, p.ToolID}
	if _, exists := s.policies[key]; exists {
		return false, nil
	}
	s.policies[key] = clonePolicy(p)
	return true, nil
}

func (s *MemoryStore) UpdatePolicy(_ context.Context, p AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := policyKey{p.OwnerID, p.ToolID}
	if _, exists := s.policies[key]; !exists {
		return fmt.Errorf("policy %s/%s: %w", p.OwnerID, p.ToolID, ErrNotFound)
	}
	s.policies[key] = clonePolicy(p)
	return nil
}

func (s *MemoryStore) ListToolRecords(ctx context.Context, filter ToolFilter) ([]ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s}.ListToolRecords(ctx, filter)
}

func (s *MemoryStore) UpsertToolRecord(ctx context.Context, rec ToolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.UpsertToolRecord(ctx, rec)
}

func (s *MemoryStore) SoftDeleteToolRecord(ctx context.Context, source SourceType, ownerID, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.SoftDeleteToolRecord(ctx, source, ownerID, name, at)
}

// InTx holds the store lock for the duration of fn and restores the tool
// records if fn fails.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ToolRecords) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[toolKey]ToolRecord, len(s.tools))
	for k, v := range s.tools {
		snapshot[k] = v
	}
	if err := fn(memTx{s}); err != nil {
		s.tools = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) DeleteOwner(_ context.Context, ownerID string, hard bool) error {
	source, name, ok := SplitOwner(ownerID)
	if !ok {
		return fmt.Errorf("invalid owner id %q", ownerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch source {
	case SourceOpenAPI:
		app, exists := s.apps[name]
		if !exists {
			return fmt.Errorf("application %q: %w", name, ErrNotFound)
		}
		if hard {
			delete(s.apps, name)
		} else {
			app.Deleted, app.Enabled = true, false
			s.apps[name] = app
		}
	case SourceMCP:
		srv, exists := s.servers[name]
		if !exists {
			return fmt.Errorf("server %q: %w", name, ErrNotFound)
		}
		if hard {
			delete(s.servers, name)
		} else {
			srv.Deleted, srv.Enabled = true, false
			s.servers[name] = srv
		}
	}

	for k, rec := range s.tools {
		if k.owner != ownerID {
			continue
		}
		if hard {
			delete(s.tools, k)
			continue
		}
		rec.Deleted, rec.Enabled = true, false
		rec.ExposureState = ExposureRetired
		s.tools[k] = rec
	}

	if hard {
		for k := range s.policies {
			if k.owner == ownerID {
				delete(s.policies, k)
			}
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// memTx operates on the maps directly; callers hold s.mu.
type memTx struct{ s *MemoryStore }

func (t memTx) ListToolRecords(_ context.Context, filter ToolFilter) ([]ToolRecord, error) {
	var result []ToolRecord
	for _, rec := range t.s.tools {
		if filter.Matches(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OwnerID != result[j].OwnerID {
			return result[i].OwnerID < result[j].OwnerID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (t memTx) UpsertToolRecord(_ context.Context, rec ToolRecord) error {
	key := toolKey{rec.Source, rec.OwnerID, rec.Name}
	if existing, ok := t.s.tools[key]; ok {
		rec.ID = existing.ID
	} else if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	t.s.tools[key] = rec
	return nil
}

func (t memTx) SoftDeleteToolRecord(_ context.Context, source SourceType, ownerID, name string, at time.Time) error {
	key := toolKey{source, ownerID, name}
	rec, ok := t.s.tools[key]
	if !ok {
		return fmt.Errorf("tool %s/%s: %w", ownerID, name, ErrNotFound)
	}
	if rec.Deleted {
		return nil
	}
	rec.Deleted = true
	rec.Enabled = false
	rec.RegistrationState = StateStale
	rec.LastSyncedAt = at
	t.s.tools[key] = rec
	return nil
}
