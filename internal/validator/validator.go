// Package validator defines the validation capability interface and the
// concrete validators tbcv ships with.
//
// A validator inspects one content artifact of a declared kind and reports
// findings. Content judgments are always findings, never errors: a validator
// that cannot fully judge a piece of content reports what it saw and moves
// on. An error return is reserved for infrastructure failures (an
// unreachable resolver, an internal fault) and is downgraded by the router
// to a per-validator finding so sibling validators are unaffected.
package validator

import (
	"context"

	"github.com/tbcv/tbcv/internal/types"
)

// Validator is the capability interface every concrete validator implements.
type Validator interface {
	// Kind is the validator's stable identifier, used to tag findings.
	Kind() string

	// ApplicableKinds declares which artifact kinds this validator inspects.
	ApplicableKinds() []types.ArtifactKind

	// Validate inspects the artifact and returns findings. It must be pure
	// with respect to external state except for read-only lookups.
	Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error)
}

// Registry maps artifact kinds to the validators that apply to them.
// Validators are registered once at startup; invocation order within a kind
// is registration order, which is what makes merged finding ordering
// deterministic.
type Registry struct {
	validators []Validator
	byKind     map[types.ArtifactKind][]Validator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[types.ArtifactKind][]Validator),
	}
}

// Register adds a validator for all of its applicable kinds. Registration
// order is invocation order.
func (r *Registry) Register(v Validator) {
	r.validators = append(r.validators, v)
	for _, kind := range v.ApplicableKinds() {
		r.byKind[kind] = append(r.byKind[kind], v)
	}
}

// For returns the validators applicable to a kind, in registration order.
// The returned slice is shared; callers must not mutate it.
func (r *Registry) For(kind types.ArtifactKind) []Validator {
	return r.byKind[kind]
}

// Kinds returns the artifact kinds with at least one registered validator
func (r *Registry) Kinds() []types.ArtifactKind {
	kinds := make([]types.ArtifactKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	return kinds
}

// Len returns the number of registered validators
func (r *Registry) Len() int {
	return len(r.validators)
}
