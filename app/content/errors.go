package content

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid feed request")
	ErrMalformedQuery = errors.New("malformed query")
	ErrInvalidItem    = errors.New("invalid content item")
	ErrNotFound       = errors.New("content item not found")
)

type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// QueryError is returned by Store implementations when a query cannot be served.
type QueryError struct {
	Kind FailureKind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s store failure: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable store failure.
func Transient(err error) error {
	return &QueryError{Kind: FailureTransient, Err: err}
}

// Permanent wraps err as a store failure that will not go away on its own.
func Permanent(err error) error {
	return &QueryError{Kind: FailurePermanent, Err: err}
}

// Classify reports the failure kind of err. Anything that is not a
// QueryError or a malformed query (timeouts included) is transient.
func Classify(err error) FailureKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	if errors.Is(err, ErrMalformedQuery) {
		return FailurePermanent
	}
	return FailureTransient
}
