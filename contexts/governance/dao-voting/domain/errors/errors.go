package errors

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Every specific error below wraps exactly one of them so the
// transport layer can map by class with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("concurrent modification")
	ErrNotFound           = errors.New("not found")
	ErrExternalDependency = errors.New("external dependency failed")
	ErrInvariantViolation = errors.New("invariant violation")
)

var (
	ErrInvalidProposalInput   = fmt.Errorf("%w: invalid proposal input", ErrValidation)
	ErrInvalidVoteInput       = fmt.Errorf("%w: invalid vote input", ErrValidation)
	ErrInvalidPreferences     = fmt.Errorf("%w: invalid voting preferences", ErrValidation)
	ErrInvalidTransition      = fmt.Errorf("%w: proposal status transition not allowed", ErrValidation)
	ErrVotingClosed           = fmt.Errorf("%w: voting is not open for this proposal", ErrValidation)
	ErrVotingStillOpen        = fmt.Errorf("%w: voting window has not closed yet", ErrValidation)
	ErrVotingNotStarted       = fmt.Errorf("%w: voting window has not started yet", ErrValidation)
	ErrInvalidVotingWindow    = fmt.Errorf("%w: voting window must have a positive duration", ErrValidation)
	ErrDelegationNotGranted   = fmt.Errorf("%w: delegator has not delegated to this wallet", ErrValidation)
	ErrSelfDelegation         = fmt.Errorf("%w: an account cannot delegate to itself", ErrValidation)
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	ErrIdempotencyConflict    = fmt.Errorf("%w: idempotency key already used with different payload", ErrConflict)
	ErrVersionConflict        = fmt.Errorf("%w: entity version changed during update", ErrConflict)
	ErrProposalNotFound       = fmt.Errorf("%w: proposal not found", ErrNotFound)
	ErrPreferencesNotFound    = fmt.Errorf("%w: voting preferences not found", ErrNotFound)
	ErrVotingPowerUnavailable = fmt.Errorf("%w: voting power source unavailable", ErrExternalDependency)
	ErrTallyMismatch          = fmt.Errorf("%w: vote tally does not match vote list", ErrInvariantViolation)
)
