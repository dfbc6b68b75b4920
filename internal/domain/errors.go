package domain

import (
	"errors"
	"fmt"
)

// TransientError marks a failure of an external collaborator (oracle, signer,
// submission venue) that is expected to clear on its own. Transient failures
// are retried on the next natural cycle, never in a tight loop.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the named operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DataError marks malformed stored data, typically enrollment preferences.
// The affected enrollment is skipped with a diagnostic and stays active so a
// corrected preference update is picked up on a later tick.
type DataError struct {
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsDataError reports whether err is (or wraps) a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

var (
	// ErrAlreadyResolved is returned when an operation requires a Created
	// order but the order is already in a terminal state.
	ErrAlreadyResolved = errors.New("order already resolved")

	// ErrExpired is returned when a fulfillment attempt observes that the
	// order's expiry has passed.
	ErrExpired = errors.New("order expired")

	// ErrRejected is returned by the submission venue when the chain
	// explicitly rejects a fill (reverted transaction, bad signature,
	// insufficient taker funds). Distinct from a timeout, which leaves the
	// order open for retry.
	ErrRejected = errors.New("submission rejected")

	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")
)
