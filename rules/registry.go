package rules

import (
	"slices"
	"sync"

	"github.com/ledgerwatchdog/dtre"
)

// Registry maps versions to rule sets and enforces version uniqueness.
// Safe for concurrent use.
type Registry[S dtre.State[S], T dtre.Transaction] struct {
	mu   sync.RWMutex
	sets map[dtre.Version]*VersionedRuleSet[S, T]
}

// NewRegistry creates an empty registry.
func NewRegistry[S dtre.State[S], T dtre.Transaction]() *Registry[S, T] {
	return &Registry[S, T]{sets: make(map[dtre.Version]*VersionedRuleSet[S, T])}
}

// Register adds a rule set. Registering a version twice fails with a
// version-exists error; the registry is unchanged.
func (r *Registry[S, T]) Register(set *VersionedRuleSet[S, T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := set.Version()
	if _, exists := r.sets[v]; exists {
		return &dtre.RegistryError{Kind: dtre.KindVersionExists, Version: v}
	}
	r.sets[v] = set
	return nil
}

// Get returns the rule set registered under version.
func (r *Registry[S, T]) Get(version dtre.Version) (*VersionedRuleSet[S, T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[version]
	if !ok {
		return nil, &dtre.RegistryError{Kind: dtre.KindVersionNotFound, Version: version}
	}
	return set, nil
}

// Contains reports whether version is registered.
func (r *Registry[S, T]) Contains(version dtre.Version) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sets[version]
	return ok
}

// ListVersions returns all registered versions in ascending
// (major, minor, patch) order.
func (r *Registry[S, T]) ListVersions() []dtre.Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]dtre.Version, 0, len(r.sets))
	for v := range r.sets {
		versions = append(versions, v)
	}
	slices.SortFunc(versions, dtre.Version.Compare)
	return versions
}

// Latest returns the rule set with the highest version, or a
// version-not-found error on an empty registry.
func (r *Registry[S, T]) Latest() (*VersionedRuleSet[S, T], error) {
	versions := r.ListVersions()
	if len(versions) == 0 {
		return nil, &dtre.RegistryError{Kind: dtre.KindVersionNotFound}
	}
	return r.Get(versions[len(versions)-1])
}

// Compatible returns the rule sets sharing a major version with v, in
// ascending version order.
func (r *Registry[S, T]) Compatible(v dtre.Version) []*VersionedRuleSet[S, T] {
	var out []*VersionedRuleSet[S, T]
	for _, version := range r.ListVersions() {
		if version.Compatible(v) {
			set, err := r.Get(version)
			if err == nil {
				out = append(out, set)
			}
		}
	}
	return out
}

// Remove deletes the rule set registered under version and returns it,
// or a version-not-found error.
func (r *Registry[S, T]) Remove(version dtre.Version) (*VersionedRuleSet[S, T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[version]
	if !ok {
		return nil, &dtre.RegistryError{Kind: dtre.KindVersionNotFound, Version: version}
	}
	delete(r.sets, version)
	return set, nil
}
