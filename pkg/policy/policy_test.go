package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/gridctl/toolgate/pkg/store"
)

func TestDefaultFallbackIsDeny(t *testing.T) {
	if DefaultFallback != store.ModeDeny {
		t.Fatalf("DefaultFallback = %s, want deny", DefaultFallback)
	}
	r := NewResolver(store.NewMemoryStore(), "")
	if r.Fallback() != store.ModeDeny {
		t.Errorf("empty fallback should use DefaultFallback, got %s", r.Fallback())
	}
}

func TestResolve_SpecificRowWins(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutPolicy(store.AccessPolicy{OwnerID: "app:x", ToolID: "t1", Mode: store.ModeDeny})
	s.PutPolicy(store.AccessPolicy{OwnerID: "app:x", ToolID: store.DefaultToolID, Mode: store.ModeAllow})
	r := NewResolver(s, DefaultFallback)
	ctx := t.Context()

	mode, err := r.Resolve(ctx, "app:x", "t1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if mode != store.ModeDeny {
		t.Errorf("expected deny from specific row, got %s", mode)
	}

	s.DeletePolicy("app:x", "t1")
	mode, _ = r.Resolve(ctx, "app:x", "t1")
	if mode != store.ModeAllow {
		t.Errorf("expected allow from default row, got %s", mode)
	}
}

func TestResolve_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		fallback store.Mode
	}{
		{"deny", store.ModeDeny},
		{"allow", store.ModeAllow},
		{"approval", store.ModeApproval},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(store.NewMemoryStore(), tc.fallback)
			mode, err := r.Resolve(t.Context(), "mcp:search", "query")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if mode != tc.fallback {
				t.Errorf("expected %s, got %s", tc.fallback, mode)
			}
		})
	}
}

func TestTable_OwnersAreIsolated(t *testing.T) {
	table := NewTable([]store.AccessPolicy{
		{OwnerID: "app:a", ToolID: store.DefaultToolID, Mode: store.ModeAllow},
		{OwnerID: "app:b", ToolID: "t", Mode: store.ModeApproval},
		{OwnerID: "app:b", ToolID: "bad", Mode: "sometimes"},
	}, store.ModeDeny)

	cases := []struct {
		owner, tool string
		want        store.Mode
	}{
		{"app:a", "anything", store.ModeAllow},
		{"app:b", "t", store.ModeApproval},
		{"app:b", "other", store.ModeDeny},
		{"app:b", "bad", store.ModeDeny},
		{"app:c", "t", store.ModeDeny},
	}
	for _, c := range cases {
		if got := table.Resolve(c.owner, c.tool); got != c.want {
			t.Errorf("Resolve(%s, %s) = %s, want %s", c.owner, c.tool, got, c.want)
		}
	}
}

func TestVisible(t *testing.T) {
	if !Visible(store.ModeApproval) {
		t.Error("approval must stay visible")
	}
	if Visible(store.ModeDeny) {
		t.Error("deny must be hidden")
	}
}

func TestEnsureDefault(t *testing.T) {
	s := store.NewMemoryStore()
	r := NewResolver(s, DefaultFallback)
	ctx := t.Context()

	created, err := r.EnsureDefault(ctx, "app:billing", store.ModeAllow)
	if err != nil || !created {
		t.Fatalf("first EnsureDefault: created=%v err=%v", created, err)
	}

	// An operator's later change must survive re-seeding.
	if err := s.UpdatePolicy(ctx, store.AccessPolicy{OwnerID: "app:billing", ToolID: store.DefaultToolID, Mode: store.ModeDeny}); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	created, err = r.EnsureDefault(ctx, "app:billing", store.ModeAllow)
	if err != nil || created {
		t.Fatalf("second EnsureDefault: created=%v err=%v", created, err)
	}
	mode, _ := r.Resolve(ctx, "app:billing", "billing__anything")
	if mode != store.ModeDeny {
		t.Errorf("expected operator's deny to survive, got %s", mode)
	}
}

type failingPolicies struct{ store.PolicyStore }

func (failingPolicies) ListPolicies(context.Context, []string) ([]store.AccessPolicy, error) {
	return nil, errors.New("db down")
}

func TestResolve_StoreError(t *testing.T) {
	r := NewResolver(failingPolicies{}, DefaultFallback)
	if _, err := r.Resolve(t.Context(), "app:x", "t"); err == nil {
		t.Fatal("expected error when the store fails")
	}
}
