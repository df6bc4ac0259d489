package feeder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bresilla/tractor-isobus/internal/process"
)

// Probe timing for readiness and health checks.
const (
	// readyPollInterval is how often to try connecting during the readiness check.
	readyPollInterval = 100 * time.Millisecond

	// dialTimeout is the timeout for individual connection attempts.
	dialTimeout = 500 * time.Millisecond
)

// HealthError represents a health probe failure with recoverability
// information, so the process manager can decide whether restarting
// the feed source will help.
type HealthError struct {
	// Probe names the check that failed ("process" or "endpoint").
	Probe string
	// Recoverable indicates if restarting the process might fix the issue.
	Recoverable bool
	// Err is the underlying error.
	Err error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health probe %s failed: %v", e.Probe, e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// IsRecoverable implements the process.RecoverableError interface.
func (e *HealthError) IsRecoverable() bool {
	return e.Recoverable
}

// newHealthError creates a health probe error.
func newHealthError(probe string, recoverable bool, err error) *HealthError {
	return &HealthError{
		Probe:       probe,
		Recoverable: recoverable,
		Err:         err,
	}
}

// Logger defines the logging interface for the feeder manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises the feed source process.
type Manager struct {
	config  Config
	network string
	address string
	process *process.Manager
	logger  Logger

	// dStateCount tracks consecutive health checks with the process in
	// D (uninterruptible sleep) state, which happens when serial I/O
	// hangs. Reset when the process returns to a healthy state.
	dStateCount atomic.Int32
}

// NewManager creates a new feeder manager.
func NewManager(cfg Config) (*Manager, error) {
	// Apply defaults for zero values
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 10
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feeder config: %w", err)
	}

	// Validate already proved the endpoint parses
	network, address, _ := parseEndpoint(cfg.Endpoint)

	return &Manager{
		config:  cfg,
		network: network,
		address: address,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Enabled returns true if this manager supervises the feed source.
func (m *Manager) Enabled() bool {
	return m.config.Enabled
}

// Start launches the feed source process and blocks until the feed
// endpoint accepts connections.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("feeder supervision disabled, expecting external feed source",
			"endpoint", m.config.Endpoint,
		)
		return nil
	}

	m.logger.Info("starting feed source",
		"command", m.config.Command,
		"args", m.config.Args,
		"endpoint", m.config.Endpoint,
	)

	procConfig := process.Config{
		Name:               "feeder",
		Binary:             m.config.Command,
		Args:               m.config.Args,
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStart: func() {
			m.logger.Info("feed source started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("feed source stopped", "error", err)
			} else {
				m.logger.Info("feed source stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("feed source restarting", "attempt", attempt)
		},
		// Watchdog: periodic probe to detect a hung feed source
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting feed source: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		// Stop the process if it didn't become ready
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping feed source after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("feed source failed to become ready: %w", err)
	}

	m.logger.Info("feed source ready", "endpoint", m.config.Endpoint)

	return nil
}

// waitForReady waits for the feed endpoint to accept connections.
func (m *Manager) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(m.config.ReadyTimeout)

	m.logger.Debug("waiting for feed endpoint", "network", m.network, "address", m.address)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for feed endpoint: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for feed endpoint %s after %v", m.address, m.config.ReadyTimeout)
		}

		// Check if the process is still running
		if !m.process.IsRunning() {
			lastErr := m.process.LastError()
			if lastErr != nil {
				return fmt.Errorf("feed source exited: %w", lastErr)
			}
			return errors.New("feed source exited unexpectedly")
		}

		conn, err := net.DialTimeout(m.network, m.address, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// Stop gracefully stops the feed source process.
func (m *Manager) Stop() error {
	if !m.config.Enabled || m.process == nil {
		return nil
	}

	m.logger.Info("stopping feed source")
	return m.process.Stop()
}

// IsRunning returns true if the feed source is currently running.
// When supervision is disabled the endpoint is served externally and
// this reports true.
func (m *Manager) IsRunning() bool {
	if !m.config.Enabled {
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// HealthCheck verifies the feed source is healthy using two probes:
//
// Probe "process": state check via /proc/PID/stat
//   - Detects: SIGSTOP (T), zombie (Z), dead (X) states, hung serial I/O (D)
//   - Speed: ~0.1ms
//
// Probe "endpoint": connection attempt against the feed endpoint
//   - Detects: process alive but no longer listening, socket leaks
//   - Speed: sub-millisecond locally
//
// Both failures are recoverable; a restart re-opens the device and
// re-binds the endpoint.
func (m *Manager) HealthCheck(ctx context.Context) error {
	// Probe 1: process state via /proc (fast, catches SIGSTOP/zombie)
	if m.process != nil {
		pid := m.process.PID()
		if pid > 0 {
			if err := m.checkProcessState(pid); err != nil {
				return newHealthError("process", true, err)
			}
		}
	}

	// Probe 2: the endpoint must accept connections
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, m.network, m.address)
	if err != nil {
		return newHealthError("endpoint", true, err)
	}
	conn.Close()

	return nil
}

// checkProcessState reads /proc/PID/stat to verify the process is in a
// healthy state. Returns an error for stopped (T/t), zombie (Z), dead
// (X/x), and persistent uninterruptible sleep (D) states.
func (m *Manager) checkProcessState(pid int) error {
	// Format: pid (comm) state ...
	// comm may contain spaces and parentheses, so locate the last ")"
	// and take the first field after it.
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		// Process might have just exited
		return fmt.Errorf("cannot read process state: %w", err)
	}

	statStr := string(data)
	closeParenIdx := strings.LastIndex(statStr, ")")
	if closeParenIdx == -1 || closeParenIdx+2 >= len(statStr) {
		return fmt.Errorf("invalid /proc/stat format")
	}

	fields := strings.Fields(statStr[closeParenIdx+2:])
	if len(fields) < 1 {
		return fmt.Errorf("invalid /proc/stat format: no state field")
	}

	state := fields[0]

	switch state {
	case "T", "t":
		return fmt.Errorf("feed source is stopped (state=%s)", state)
	case "Z":
		return fmt.Errorf("feed source is zombie (state=%s)", state)
	case "X", "x":
		return fmt.Errorf("feed source is dead (state=%s)", state)
	case "D":
		// Uninterruptible sleep is usually transient I/O. A feed source
		// stuck there for several checks has a hung serial device.
		count := m.dStateCount.Add(1)
		if count >= 3 {
			return fmt.Errorf("feed source stuck in uninterruptible sleep (state=D, count=%d)", count)
		}
		m.logger.Debug("feed source in uninterruptible sleep (state=D)", "count", count)
		return nil
	default:
		// R, S, I are healthy states
		m.dStateCount.Store(0)
		return nil
	}
}

// Stats holds statistics about the feed source process.
type Stats struct {
	Enabled      bool          `json:"enabled"`
	Status       string        `json:"status"`
	Endpoint     string        `json:"endpoint"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the feed source.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Enabled:  m.config.Enabled,
		Endpoint: m.config.Endpoint,
	}

	if m.process != nil {
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	} else if !m.config.Enabled {
		stats.Status = "external"
	} else {
		stats.Status = "stopped"
	}

	return stats
}
