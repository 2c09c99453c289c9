// Package rules provides versioned rule-set carriers and the registry
// that enforces version uniqueness.
package rules

import (
	"time"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// Metadata describes a rule set for audit purposes. Its canonical
// digest is recorded in every trace produced under the rule set.
type Metadata struct {
	Name        string
	Description string
	Author      string
	CreatedAt   time.Time
}

// NewMetadata creates Metadata stamped with the given creation time.
// Callers supply the time explicitly; the library never reads a clock.
func NewMetadata(name, description string, createdAt time.Time) Metadata {
	return Metadata{Name: name, Description: description, CreatedAt: createdAt.UTC()}
}

// Digest returns the canonical digest of the metadata.
func (m Metadata) Digest() hasher.StateHash {
	b, err := hasher.MarshalCanonical(hasher.Object{
		"name":        hasher.Str(m.Name),
		"description": hasher.Str(m.Description),
		"author":      hasher.Str(m.Author),
		"created_at":  hasher.Str(m.CreatedAt.UTC().Format(time.RFC3339Nano)),
	})
	if err != nil {
		// The object above contains only strings; canonical marshaling
		// of strings cannot fail.
		panic(err)
	}
	return hasher.SumDomain(hasher.DomainRules, b)
}

// VersionedRuleSet wraps a rule set with its version and metadata. It
// implements dtre.RuleSet itself, delegating Apply, so it can be handed
// to the engine directly.
type VersionedRuleSet[S dtre.State[S], T dtre.Transaction] struct {
	version dtre.Version
	rules   dtre.RuleSet[S, T]
	meta    Metadata
}

// NewVersionedRuleSet wraps rules under an explicit version.
func NewVersionedRuleSet[S dtre.State[S], T dtre.Transaction](
	version dtre.Version,
	rules dtre.RuleSet[S, T],
	meta Metadata,
) *VersionedRuleSet[S, T] {
	return &VersionedRuleSet[S, T]{version: version, rules: rules, meta: meta}
}

// Version returns the wrapping version, which may differ from the
// wrapped rule set's own version (e.g. a patch re-release of identical
// logic).
func (v *VersionedRuleSet[S, T]) Version() dtre.Version {
	return v.version
}

// Apply delegates to the wrapped rule set.
func (v *VersionedRuleSet[S, T]) Apply(state S, tx T, ctx *dtre.ExecutionContext) (S, error) {
	return v.rules.Apply(state, tx, ctx)
}

// Metadata returns the rule set's metadata.
func (v *VersionedRuleSet[S, T]) Metadata() Metadata {
	return v.meta
}

// MetadataDigest returns the canonical digest recorded in trace
// headers.
func (v *VersionedRuleSet[S, T]) MetadataDigest() hasher.StateHash {
	return v.meta.Digest()
}

// Rules returns the wrapped rule set.
func (v *VersionedRuleSet[S, T]) Rules() dtre.RuleSet[S, T] {
	return v.rules
}

// Compatible reports whether this rule set shares a major version with
// other.
func (v *VersionedRuleSet[S, T]) Compatible(other dtre.Version) bool {
	return v.version.Compatible(other)
}
