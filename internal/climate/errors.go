package climate

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can branch on kind
// instead of parsing messages.
type ErrorKind string

const (
	// KindTransientFetch: the external climate source was unreachable or
	// returned an error. The enclosing sync transaction is rolled back; the
	// scheduler retries by waiting for the next interval.
	KindTransientFetch ErrorKind = "transient_fetch"

	// KindDataIntegrity: the source response violated the four-parallel-array
	// contract (missing block, length mismatch, unparseable date).
	KindDataIntegrity ErrorKind = "data_integrity"

	// KindComputation: deriving insight metrics for a region failed.
	KindComputation ErrorKind = "computation"

	// KindValidation: an impossible request, e.g. a fetch window whose start
	// is after its end.
	KindValidation ErrorKind = "validation"
)

// Error is the tagged error used across the sync, aggregation and composer
// layers.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a tagged Error. Cause may be nil.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from err, or "" if err carries no tagged Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// ensureKind wraps err with kind and message unless it is already tagged, so
// a source client's own classification survives the sync layer.
func ensureKind(err error, kind ErrorKind, message string) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return NewError(kind, message, err)
}
