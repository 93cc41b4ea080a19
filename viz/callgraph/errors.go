package callgraph

import "errors"

var (
	// ErrMalformedRecord means a raw record violates the stats invariants,
	// which points at a corrupt or truncated profile.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrDanglingCallerReference means a caller attribution names a function
	// that has no record of its own.
	ErrDanglingCallerReference = errors.New("dangling caller reference")
	// ErrTreeTooLarge means expansion emitted more nodes than allowed.
	ErrTreeTooLarge = errors.New("tree too large")

	ErrEmptyProfile       = errors.New("empty profile")
	ErrUnknownFunction    = errors.New("unknown function")
	ErrUnknownSortKey     = errors.New("unknown sort key")
	ErrInvariantViolation = errors.New("invariant violation")
)
