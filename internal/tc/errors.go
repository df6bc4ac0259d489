package tc

import "errors"

// Domain errors for the tc package.
var (
	// ErrInvalidOptions is returned when the client or scheduler is
	// constructed with missing or unusable dependencies.
	ErrInvalidOptions = errors.New("tc: invalid options")

	// ErrRunning is returned when an operation requires the client to be
	// stopped, e.g. registering a sink after Start.
	ErrRunning = errors.New("tc: client already running")
)
