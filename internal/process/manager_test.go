package process

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// ─── Configuration Tests ───────────────────────────────────────────

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "feeder",
		Binary: "/usr/bin/socat",
		Args:   []string{"-d"},
	})

	if m.config.Name != "feeder" {
		t.Errorf("Name = %q, want %q", m.config.Name, "feeder")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 2*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", m.config.HealthCheckInterval, 30*time.Second)
	}
}

func TestNewManager_CustomConfig(t *testing.T) {
	m := NewManager(Config{
		Name:               "replayer",
		Binary:             "/opt/bin/replay",
		RestartDelay:       10 * time.Second,
		MaxRestartDelay:    10 * time.Minute,
		StableThreshold:    5 * time.Minute,
		GracefulTimeout:    30 * time.Second,
		MaxRestartAttempts: 20,
	})

	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 10*time.Second)
	}
	if m.config.MaxRestartDelay != 10*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 10*time.Minute)
	}
	if m.config.StableThreshold != 5*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 5*time.Minute)
	}
	if m.config.MaxRestartAttempts != 20 {
		t.Errorf("MaxRestartAttempts = %d, want 20", m.config.MaxRestartAttempts)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("feeder", "/usr/bin/socat", []string{"-d", "-d"})

	if cfg.Name != "feeder" {
		t.Errorf("Name = %q, want %q", cfg.Name, "feeder")
	}
	if cfg.Binary != "/usr/bin/socat" {
		t.Errorf("Binary = %q, want %q", cfg.Binary, "/usr/bin/socat")
	}
	if len(cfg.Args) != 2 {
		t.Errorf("Args = %v, want two entries", cfg.Args)
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}
}

// ─── State Tests ───────────────────────────────────────────────────

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
	if m.Uptime() != 0 {
		t.Errorf("Uptime() = %v, want 0", m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestManager_StatsBeforeStart(t *testing.T) {
	m := NewManager(Config{Name: "feeder", Binary: "/bin/echo"})

	stats := m.Stats()
	if stats.Name != "feeder" {
		t.Errorf("Stats.Name = %q, want %q", stats.Name, "feeder")
	}
	if stats.Status != StatusStopped {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, StatusStopped)
	}
	if stats.PID != 0 {
		t.Errorf("Stats.PID = %d, want 0", stats.PID)
	}
	if stats.LastError != "" {
		t.Errorf("Stats.LastError = %q, want empty", stats.LastError)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped process error = %v, want nil", err)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start()")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// Give the monitor goroutine time to observe the exit
	time.Sleep(100 * time.Millisecond)

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

func TestManager_StartAlreadyRunning(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/sleep",
		Args:            []string{"10"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer m.Stop()

	if err := m.Start(ctx); err == nil {
		t.Error("second Start() expected error, got nil")
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "bad-binary",
		Binary: "/nonexistent/binary",
	})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}

	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestManager_OnStartCallback(t *testing.T) {
	started := make(chan struct{}, 1)
	m := NewManager(Config{
		Name:            "callback-test",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnStart: func() {
			started <- struct{}{}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	select {
	case <-started:
	default:
		t.Error("OnStart callback was not called")
	}
}

func TestManager_RestartAfterCrash(t *testing.T) {
	m := NewManager(Config{
		Name:               "crasher",
		Binary:             "/bin/false",
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Process exits non-zero immediately; the monitor should burn through
	// its restart budget and give up.
	time.Sleep(800 * time.Millisecond)

	if m.RestartCount() < 2 {
		t.Errorf("RestartCount() = %d, want at least 2", m.RestartCount())
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after exhausting restart attempts")
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after repeated crashes")
	}
}

// ─── Backoff Tests ─────────────────────────────────────────────────

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped
		{7, 30 * time.Second},
		{64, 30 * time.Second}, // shift would overflow without the guard
	}

	for _, tt := range tests {
		if got := m.calculateBackoffDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// ─── Recoverability Tests ──────────────────────────────────────────

type stubRecoverableError struct {
	recoverable bool
}

func (e *stubRecoverableError) Error() string       { return "stub failure" }
func (e *stubRecoverableError) IsRecoverable() bool { return e.recoverable }

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, true},
		{"plain error", errors.New("boom"), true},
		{"recoverable", &stubRecoverableError{recoverable: true}, true},
		{"not recoverable", &stubRecoverableError{recoverable: false}, false},
		{
			"not recoverable under wrapping",
			fmt.Errorf("killed after 3 failed health checks: %w", &stubRecoverableError{recoverable: false}),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
