package capture

import (
	"errors"
	"fmt"
)

// ErrorClass buckets capture failures by what the operator can do about
// them.
type ErrorClass string

const (
	// ClassPermissionDenied means access was declined; terminal until the
	// operator explicitly retries.
	ClassPermissionDenied ErrorClass = "permission_denied"

	// ClassDeviceUnavailable means no device, or the device disappeared; a
	// retry after a catalog refresh may succeed.
	ClassDeviceUnavailable ErrorClass = "device_unavailable"

	// ClassConstraintUnsupported means every ladder level was rejected.
	ClassConstraintUnsupported ErrorClass = "constraint_unsupported"

	// ClassUnknown is unclassified; retry is offered but not guaranteed.
	ClassUnknown ErrorClass = "unknown"
)

// Sentinels a Provider returns so failures classify without string matching.
var (
	ErrPermissionDenied  = errors.New("camera access denied")
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrConstraintFailed  = errors.New("capture constraints not satisfiable")

	// ErrNoFrame marks the expected case of the sink having nothing to read
	// yet. Never surfaced to the operator.
	ErrNoFrame = errors.New("no frame available")
)

// Attempt records one failed ladder level for diagnostics.
type Attempt struct {
	Constraints Constraints
	Err         error
}

// Error is the terminal failure of a Start call after the whole ladder was
// walked. Err is the error from the least restrictive attempt, which is the
// most diagnostic one.
type Error struct {
	Class    ErrorClass
	Attempts []Attempt
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture failed (%s) after %d attempts: %v", e.Class, len(e.Attempts), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ClassPermissionDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return ClassDeviceUnavailable
	case errors.Is(err, ErrConstraintFailed):
		return ClassConstraintUnsupported
	default:
		return ClassUnknown
	}
}
