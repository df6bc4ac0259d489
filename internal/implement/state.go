package implement

import "sync/atomic"

// SharedState carries the values that cross goroutine boundaries on
// their way into process-data responses: the authentication result and
// warning flag extracted from the positioning feed, and the work-state
// setpoint commanded by the task controller.
//
// Construct one SharedState explicitly and hand it to every consumer
// that needs it. Each field has a single writer (the feed consumer for
// the authentication fields, the command callback for the work state)
// and any number of readers; atomics keep the readers wait-free.
type SharedState struct {
	authResult        atomic.Int32
	warning           atomic.Int32
	setpointWorkState atomic.Bool
}

// NewSharedState creates a SharedState with the work-state setpoint
// enabled, matching an implement that powers up ready to work.
func NewSharedState() *SharedState {
	s := &SharedState{}
	s.setpointWorkState.Store(true)
	return s
}

// AuthResult returns the most recent authentication result.
func (s *SharedState) AuthResult() int32 {
	return s.authResult.Load()
}

// SetAuthResult stores a new authentication result and reports whether
// the value changed, so the caller can raise an on-change trigger only
// for genuine transitions.
func (s *SharedState) SetAuthResult(v int32) bool {
	return s.authResult.Swap(v) != v
}

// Warning returns the most recent warning flag from the feed.
func (s *SharedState) Warning() int32 {
	return s.warning.Load()
}

// SetWarning stores a new warning flag and reports whether the value
// changed.
func (s *SharedState) SetWarning(v int32) bool {
	return s.warning.Swap(v) != v
}

// SetpointWorkState reports the work-state setpoint last commanded by
// the task controller.
func (s *SharedState) SetpointWorkState() bool {
	return s.setpointWorkState.Load()
}

// SetSetpointWorkState records the commanded work state.
func (s *SharedState) SetSetpointWorkState(on bool) {
	s.setpointWorkState.Store(on)
}
