package implement

import "testing"

func TestSharedStateStartup(t *testing.T) {
	state := NewSharedState()

	if got := state.AuthResult(); got != 0 {
		t.Errorf("AuthResult() = %d, want 0", got)
	}
	if got := state.Warning(); got != 0 {
		t.Errorf("Warning() = %d, want 0", got)
	}
	if !state.SetpointWorkState() {
		t.Error("SetpointWorkState() = false, want enabled at startup")
	}
}

func TestSetAuthResultReportsChange(t *testing.T) {
	state := NewSharedState()

	if !state.SetAuthResult(1) {
		t.Error("SetAuthResult(1) = false, want change from 0")
	}
	if state.SetAuthResult(1) {
		t.Error("SetAuthResult(1) repeated = true, want no change")
	}
	if !state.SetAuthResult(2) {
		t.Error("SetAuthResult(2) = false, want change from 1")
	}
	if got := state.AuthResult(); got != 2 {
		t.Errorf("AuthResult() = %d, want 2", got)
	}
}

func TestSetWarningReportsChange(t *testing.T) {
	state := NewSharedState()

	if state.SetWarning(0) {
		t.Error("SetWarning(0) = true, want no change from 0")
	}
	if !state.SetWarning(1) {
		t.Error("SetWarning(1) = false, want change")
	}
	if got := state.Warning(); got != 1 {
		t.Errorf("Warning() = %d, want 1", got)
	}
}

func TestSetpointWorkStateRoundTrip(t *testing.T) {
	state := NewSharedState()

	state.SetSetpointWorkState(false)
	if state.SetpointWorkState() {
		t.Error("SetpointWorkState() = true after disabling")
	}
	state.SetSetpointWorkState(true)
	if !state.SetpointWorkState() {
		t.Error("SetpointWorkState() = false after enabling")
	}
}
