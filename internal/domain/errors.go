package domain

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrNotFound means a referenced transaction, rule or blacklist entry is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness constraint rejected the write (duplicate blacklist add).
	ErrConflict = errors.New("conflict")

	// ErrInvalidRule means a stored rule is malformed. Evaluation skips such rules.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrValidation means caller input is malformed (e.g. negative amount).
	ErrValidation = errors.New("validation error")

	// ErrStoreTimeout means a store read or write exceeded its deadline.
	ErrStoreTimeout = errors.New("store timeout")

	// ErrStoreUnavailable means the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether err is a transient store failure the caller may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreUnavailable)
}
