package reload

import (
	"reflect"

	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/store"
)

// Change is one entity present in both configs with different content.
type Change[T any] struct {
	Key string
	Old T
	New T
}

// SetDiff holds the changes to one kind of entity.
type SetDiff[T any] struct {
	Added    []T
	Removed  []T
	Modified []Change[T]
}

// IsEmpty returns true if there are no changes.
func (d SetDiff[T]) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ConfigDiff represents the differences between two configurations.
type ConfigDiff struct {
	Applications SetDiff[store.Application]
	Servers      SetDiff[store.Server]
	Policies     SetDiff[store.AccessPolicy]

	// RestartRequired names changed sections that only take effect on restart.
	RestartRequired []string
}

// IsEmpty returns true if nothing changed.
func (d *ConfigDiff) IsEmpty() bool {
	return d.Applications.IsEmpty() && d.Servers.IsEmpty() && d.Policies.IsEmpty() &&
		len(d.RestartRequired) == 0
}

// ComputeDiff compares two configurations.
func ComputeDiff(old, new *config.Config) (*ConfigDiff, error) {
	oldDecl, err := FromConfig(old)
	if err != nil {
		return nil, err
	}
	newDecl, err := FromConfig(new)
	if err != nil {
		return nil, err
	}

	return &ConfigDiff{
		Applications:    diffByKey(oldDecl.Applications, newDecl.Applications, func(a store.Application) string { return a.Name }),
		Servers:         diffByKey(oldDecl.Servers, newDecl.Servers, func(s store.Server) string { return s.Name }),
		Policies:        diffByKey(oldDecl.Policies, newDecl.Policies, policyKey),
		RestartRequired: restartSections(old, new),
	}, nil
}

func policyKey(p store.AccessPolicy) string { return p.OwnerID + "/" + p.ToolID }

// diffByKey matches entities by key, keeping the order of the new list for
// additions and changes and the old list for removals.
func diffByKey[T any](oldItems, newItems []T, key func(T) string) SetDiff[T] {
	var diff SetDiff[T]

	oldMap := make(map[string]T, len(oldItems))
	for _, item := range oldItems {
		oldMap[key(item)] = item
	}
	newKeys := make(map[string]bool, len(newItems))

	for _, item := range newItems {
		k := key(item)
		newKeys[k] = true
		prev, exists := oldMap[k]
		switch {
		case !exists:
			diff.Added = append(diff.Added, item)
		case !reflect.DeepEqual(prev, item):
			diff.Modified = append(diff.Modified, Change[T]{Key: k, Old: prev, New: item})
		}
	}
	for _, item := range oldItems {
		if !newKeys[key(item)] {
			diff.Removed = append(diff.Removed, item)
		}
	}
	return diff
}

// restartSections lists the non-seed sections that differ.
func restartSections(old, new *config.Config) []string {
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", old.Server, new.Server},
		{"logging", old.Logging, new.Logging},
		{"catalog", old.Catalog, new.Catalog},
		{"native", old.Native, new.Native},
		{"policy", old.Policy, new.Policy},
		{"store", old.Store, new.Store},
		{"credentials", old.Credentials, new.Credentials},
		{"redis", old.Redis, new.Redis},
		{"tracing", old.Tracing, new.Tracing},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
