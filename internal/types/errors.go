package types

import "errors"

// Sentinel errors for the orchestration core. Callers check these with
// errors.Is; producers wrap them with fmt.Errorf("%w: ...") for context.
var (
	// ErrUnsupportedArtifactKind indicates no validator applies to an
	// artifact's kind. The router converts this into an error-status result
	// with a single diagnostic finding rather than a silent no-op.
	ErrUnsupportedArtifactKind = errors.New("unsupported artifact kind")

	// ErrInvalidTransition indicates a workflow transition attempt that the
	// state machine does not permit from the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrTerminalState indicates a transition attempt out of a terminal
	// status (rejected or applied).
	ErrTerminalState = errors.New("terminal state violation")

	// ErrConcurrentModification indicates a single-writer conflict: another
	// transition committed on the same recommendation first.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrReferentialIntegrity indicates a recommendation referencing a
	// missing validation result. This is an internal consistency fault and
	// must never occur if store invariants hold.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrEnhancementFailed indicates the external rewrite collaborator
	// failed after the single permitted retry. The recommendation remains
	// approved.
	ErrEnhancementFailed = errors.New("enhancement failed")

	// ErrNotFound indicates a record does not exist in the store.
	ErrNotFound = errors.New("not found")
)
