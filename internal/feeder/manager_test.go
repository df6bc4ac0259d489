package feeder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bresilla/tractor-isobus/internal/process"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if m.config.Endpoint != "tcp://localhost:10110" {
		t.Errorf("Endpoint = %q, want %q", m.config.Endpoint, "tcp://localhost:10110")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", m.config.MaxRestartAttempts)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.ReadyTimeout != 30*time.Second {
		t.Errorf("ReadyTimeout = %v, want %v", m.config.ReadyTimeout, 30*time.Second)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", m.config.HealthCheckInterval, 30*time.Second)
	}
	if m.network != "tcp" || m.address != "localhost:10110" {
		t.Errorf("parsed endpoint = %s/%s, want tcp/localhost:10110", m.network, m.address)
	}
}

func TestNewManager_CustomConfig(t *testing.T) {
	m, err := NewManager(Config{
		Enabled:            true,
		Command:            "/usr/bin/socat",
		Args:               []string{"tcp-listen:2000,reuseaddr", "/dev/ttyACM0,b38400,raw"},
		Endpoint:           "tcp://127.0.0.1:2000",
		RestartDelay:       10 * time.Second,
		MaxRestartAttempts: 5,
		ReadyTimeout:       time.Minute,
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if m.config.Command != "/usr/bin/socat" {
		t.Errorf("Command = %q, want %q", m.config.Command, "/usr/bin/socat")
	}
	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 10*time.Second)
	}
	if m.config.ReadyTimeout != time.Minute {
		t.Errorf("ReadyTimeout = %v, want %v", m.config.ReadyTimeout, time.Minute)
	}
	if m.address != "127.0.0.1:2000" {
		t.Errorf("address = %q, want %q", m.address, "127.0.0.1:2000")
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "enabled without command",
			cfg:  Config{Enabled: true},
		},
		{
			name: "command with shell metacharacters",
			cfg: Config{
				Enabled: true,
				Command: "/usr/bin/socat; rm -rf /",
			},
		},
		{
			name: "command with backtick",
			cfg: Config{
				Enabled: true,
				Command: "/usr/bin/`reboot`",
			},
		},
		{
			name: "unsupported endpoint scheme",
			cfg: Config{
				Enabled:  true,
				Command:  "/usr/bin/socat",
				Endpoint: "udp://localhost:10110",
			},
		},
		{
			name: "malformed endpoint",
			cfg: Config{
				Endpoint: "://nothing",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg)
			if err == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("Enabled = true, want false")
	}
	if cfg.Endpoint != "tcp://localhost:10110" {
		t.Errorf("Endpoint = %q, want %q", cfg.Endpoint, "tcp://localhost:10110")
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}

	// Default config should validate cleanly
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestValidateCommandPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/usr/bin/socat", false},
		{"/opt/feeder/replay-1.2.sh", false},
		{"socat", false},
		{"/usr/local/bin/nmea_replay", false},
		{"/usr/bin/socat; rm -rf /", true},
		{"/bin/echo$(reboot)", true},
		{"cmd|tee", true},
		{"with space", true},
		{"`reboot`", true},
		{"a&b", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validateCommandPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCommandPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint    string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{"tcp://localhost:10110", "tcp", "localhost:10110", false},
		{"tcp://10.0.0.5:2000", "tcp", "10.0.0.5:2000", false},
		{"tcp://", "tcp", "localhost:10110", false},
		{"unix:///tmp/feed.sock", "unix", "/tmp/feed.sock", false},
		{"udp://localhost:10110", "", "", true},
		{"", "", "", true},
		{"://nothing", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			network, address, err := parseEndpoint(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEndpoint(%q) error = %v, wantErr %v", tt.endpoint, err, tt.wantErr)
				return
			}
			if network != tt.wantNetwork || address != tt.wantAddress {
				t.Errorf("parseEndpoint(%q) = %s/%s, want %s/%s",
					tt.endpoint, network, address, tt.wantNetwork, tt.wantAddress)
			}
		})
	}
}

func TestHealthError(t *testing.T) {
	t.Run("recoverable error", func(t *testing.T) {
		err := newHealthError("endpoint", true, fmt.Errorf("connection refused"))
		if !err.IsRecoverable() {
			t.Error("IsRecoverable() = false, want true")
		}
		if err.Probe != "endpoint" {
			t.Errorf("Probe = %q, want %q", err.Probe, "endpoint")
		}
		if err.Error() == "" {
			t.Error("Error() should not be empty")
		}
	})

	t.Run("non-recoverable error", func(t *testing.T) {
		err := newHealthError("process", false, fmt.Errorf("binary removed"))
		if err.IsRecoverable() {
			t.Error("IsRecoverable() = true, want false")
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := fmt.Errorf("inner error")
		err := newHealthError("process", true, inner)
		if !errors.Is(err, inner) {
			t.Error("errors.Is() did not match inner error")
		}
	})

	t.Run("recoverability flows through process package", func(t *testing.T) {
		if !process.IsRecoverable(newHealthError("endpoint", true, fmt.Errorf("refused"))) {
			t.Error("process.IsRecoverable() = false for recoverable health error")
		}
		wrapped := fmt.Errorf("killed: %w", newHealthError("process", false, fmt.Errorf("gone")))
		if process.IsRecoverable(wrapped) {
			t.Error("process.IsRecoverable() = true for wrapped non-recoverable health error")
		}
	})
}

func TestStats_External(t *testing.T) {
	m, err := NewManager(Config{Enabled: false, Endpoint: "tcp://gnss-box:10110"})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	stats := m.Stats()
	if stats.Status != "external" {
		t.Errorf("Status = %q, want %q", stats.Status, "external")
	}
	if stats.Enabled {
		t.Error("Stats.Enabled = true, want false")
	}
	if stats.Endpoint != "tcp://gnss-box:10110" {
		t.Errorf("Endpoint = %q, want %q", stats.Endpoint, "tcp://gnss-box:10110")
	}
	if !m.IsRunning() {
		t.Error("IsRunning() = false for external feed, want true")
	}
	if m.Enabled() {
		t.Error("Enabled() = true, want false")
	}
}

func TestStart_Disabled(t *testing.T) {
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Start() with supervision disabled error = %v, want nil", err)
	}
	if m.process != nil {
		t.Error("Start() with supervision disabled spawned a process")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
}

func TestStart_WaitsForEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	defer ln.Close()

	m, err := NewManager(Config{
		Enabled:         true,
		Command:         "/bin/sleep",
		Args:            []string{"60"},
		Endpoint:        "tcp://" + ln.Addr().String(),
		ReadyTimeout:    5 * time.Second,
		GracefulTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	stats := m.Stats()
	if stats.Status != "running" {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, "running")
	}
	if stats.PID == 0 {
		t.Error("Stats.PID = 0 after Start()")
	}

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestStart_ReadinessTimeout(t *testing.T) {
	// Grab a port nobody is listening on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m, err := NewManager(Config{
		Enabled:         true,
		Command:         "/bin/sleep",
		Args:            []string{"60"},
		Endpoint:        "tcp://" + addr,
		ReadyTimeout:    300 * time.Millisecond,
		GracefulTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = m.Start(ctx)
	if err == nil {
		m.Stop()
		t.Fatal("Start() expected readiness error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to become ready") {
		t.Errorf("Start() error = %v, want readiness failure", err)
	}

	// The process should have been stopped after the failed readiness check
	time.Sleep(200 * time.Millisecond)
	if m.IsRunning() {
		t.Error("IsRunning() = true after failed readiness check")
	}
}

func TestHealthCheck_Endpoint(t *testing.T) {
	t.Run("tcp endpoint up", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("net.Listen() error: %v", err)
		}
		defer ln.Close()

		m, err := NewManager(Config{Endpoint: "tcp://" + ln.Addr().String()})
		if err != nil {
			t.Fatalf("NewManager() error: %v", err)
		}

		if err := m.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v, want nil", err)
		}
	})

	t.Run("unix endpoint up", func(t *testing.T) {
		sock := filepath.Join(t.TempDir(), "feed.sock")
		ln, err := net.Listen("unix", sock)
		if err != nil {
			t.Fatalf("net.Listen() error: %v", err)
		}
		defer ln.Close()

		m, err := NewManager(Config{Endpoint: "unix://" + sock})
		if err != nil {
			t.Fatalf("NewManager() error: %v", err)
		}

		if err := m.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v, want nil", err)
		}
	})

	t.Run("endpoint down", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("net.Listen() error: %v", err)
		}
		addr := ln.Addr().String()
		ln.Close()

		m, err := NewManager(Config{Endpoint: "tcp://" + addr})
		if err != nil {
			t.Fatalf("NewManager() error: %v", err)
		}

		err = m.HealthCheck(context.Background())
		if err == nil {
			t.Fatal("HealthCheck() expected error for dead endpoint, got nil")
		}

		var healthErr *HealthError
		if !errors.As(err, &healthErr) {
			t.Fatalf("HealthCheck() error type = %T, want *HealthError", err)
		}
		if healthErr.Probe != "endpoint" {
			t.Errorf("Probe = %q, want %q", healthErr.Probe, "endpoint")
		}
		if !healthErr.IsRecoverable() {
			t.Error("IsRecoverable() = false, want true")
		}
	})
}

func TestCheckProcessState(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	// Our own process is alive and healthy
	if err := m.checkProcessState(os.Getpid()); err != nil {
		t.Errorf("checkProcessState(self) error = %v, want nil", err)
	}

	// A PID beyond pid_max cannot exist
	if err := m.checkProcessState(1 << 30); err == nil {
		t.Error("checkProcessState(1<<30) expected error, got nil")
	}
}
