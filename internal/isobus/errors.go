package isobus

import "errors"

// Domain errors for DDOP construction and serialization.
var (
	// ErrDuplicateObjectID is returned when an object is added with an ID
	// already present in the pool.
	ErrDuplicateObjectID = errors.New("isobus: duplicate object id")

	// ErrObjectNotFound is returned when a referenced object ID does not
	// exist in the pool.
	ErrObjectNotFound = errors.New("isobus: object not found")

	// ErrInvalidObject is returned when an object's fields fail validation
	// (designator too long, null object ID, bad element type).
	ErrInvalidObject = errors.New("isobus: invalid object")

	// ErrDanglingReference is returned by pool validation when a child or
	// presentation reference points at an ID that was never added.
	ErrDanglingReference = errors.New("isobus: dangling object reference")

	// ErrCyclicReference is returned by pool validation when the element
	// graph reachable from the root contains a cycle.
	ErrCyclicReference = errors.New("isobus: cyclic element reference")

	// ErrPoolInvalid is returned when serialization is requested for a pool
	// that fails validation.
	ErrPoolInvalid = errors.New("isobus: pool failed validation")

	// ErrRangeExhausted is returned when an IDPlan cannot reserve the
	// requested capacity within the 16-bit object ID space.
	ErrRangeExhausted = errors.New("isobus: object id space exhausted")

	// ErrRangeOverlap is returned when a reserved range would overlap an
	// existing one.
	ErrRangeOverlap = errors.New("isobus: object id range overlap")

	// ErrRangeUnknown is returned when looking up a range name that was
	// never reserved.
	ErrRangeUnknown = errors.New("isobus: unknown object id range")
)
