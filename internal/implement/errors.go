package implement

import "errors"

// Domain errors for the implement package.
var (
	// ErrSectionCount is returned when a section bank is constructed with
	// a section count outside [1, 256].
	ErrSectionCount = errors.New("implement: section count out of range")

	// ErrBuildFailed is returned when DDOP construction could not produce
	// a usable pool. The pool may be partially populated and must not be
	// handed to a task controller.
	ErrBuildFailed = errors.New("implement: device descriptor build failed")

	// ErrDuplicateHandler is returned when a request or command handler is
	// registered twice for the same (element, DDI) pair.
	ErrDuplicateHandler = errors.New("implement: handler already registered")

	// ErrInvalidConfig is returned when the builder configuration is
	// incomplete or inconsistent.
	ErrInvalidConfig = errors.New("implement: invalid device configuration")
)
