package totals

import "errors"

var (
	// ErrInvalidConfig indicates a missing or unusable construction input.
	ErrInvalidConfig = errors.New("totals: invalid config")

	// ErrRunning indicates the accumulator has already been started.
	ErrRunning = errors.New("totals: accumulator already running")
)
