// Package apperr defines the error taxonomy shared across the sync core.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict indicates a put carried a stale version token:
	// someone else updated the document since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists indicates a create targeted an existing path.
	ErrAlreadyExists = errors.New("already exists")
	// ErrLocalStorage indicates an offline-queue write or its read-back
	// verification failed. Distinct from network errors: the user's
	// offline entry may be lost and must be re-entered.
	ErrLocalStorage = errors.New("local storage failure")
)

// TransportError wraps a network-level failure (unreachable host, timeout,
// unclassified non-2xx response). Status is zero when no response arrived.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transport error (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AggregateError reports a multi-document submission that failed partway.
// Completed steps are not rolled back; the message tells the user exactly
// which writes landed and which one did not.
type AggregateError struct {
	Completed []string
	Failed    string
	Err       error
}

func (e *AggregateError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("%s failed: %v", e.Failed, e.Err)
	}
	return fmt.Sprintf("%s saved; %s failed: %v", strings.Join(e.Completed, ", "), e.Failed, e.Err)
}

func (e *AggregateError) Unwrap() error { return e.Err }
