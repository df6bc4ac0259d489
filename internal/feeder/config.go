package feeder

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// defaultEndpoint matches the default feed connection in the daemon config.
const defaultEndpoint = "tcp://localhost:10110"

// Config holds settings for supervising the feed source process.
type Config struct {
	// Enabled runs the feed source under daemon supervision. When false,
	// Start and Stop are no-ops and the endpoint is assumed external.
	Enabled bool

	// Command is the path to the feed source executable.
	Command string

	// Args are passed to the command verbatim. The command is executed
	// directly (no shell), so socat-style arguments with commas and
	// colons need no quoting.
	Args []string

	// Endpoint is the feed connection the process is expected to serve:
	// "tcp://host:port" or "unix:///path". Readiness and health probes
	// dial it.
	Endpoint string

	// RestartOnFailure enables automatic restart if the process exits.
	RestartOnFailure bool

	// RestartDelay is the base delay before the first restart attempt.
	RestartDelay time.Duration

	// MaxRestartAttempts limits consecutive restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration

	// ReadyTimeout is how long Start waits for the endpoint to accept
	// connections. Serial GNSS shims can take several seconds to
	// enumerate the device.
	ReadyTimeout time.Duration

	// HealthCheckInterval is how often the watchdog probes the process.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults. Supervision is
// off by default; most installations run the feed source externally.
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		Endpoint:            defaultEndpoint,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		ReadyTimeout:        30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Enabled {
		if c.Command == "" {
			return fmt.Errorf("feeder command is required when supervision is enabled")
		}
		if err := validateCommandPath(c.Command); err != nil {
			return err
		}
	}

	if _, _, err := parseEndpoint(c.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	return nil
}

// commandPathPattern allows the characters that appear in executable paths:
// alphanumeric, dot, hyphen, underscore, and forward slash.
var commandPathPattern = regexp.MustCompile(`^[a-zA-Z0-9._\-/]+$`)

// validateCommandPath ensures the command path contains no shell
// metacharacters. The process is executed directly, but a path like
// "/usr/bin/socat; rm -rf /" in a config file is a mistake worth
// rejecting loudly rather than passing to exec.
func validateCommandPath(path string) error {
	if !commandPathPattern.MatchString(path) {
		return fmt.Errorf("command contains invalid characters (allowed: alphanumeric, dot, hyphen, underscore, slash)")
	}
	for _, c := range []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\\", "'", "\"", " "} {
		if strings.Contains(path, c) {
			return fmt.Errorf("command contains forbidden character %q", c)
		}
	}
	return nil
}

// parseEndpoint parses a feed endpoint into network and address. The
// semantics match the feed client's URL handling so both ends agree on
// what an endpoint string means.
func parseEndpoint(endpoint string) (network, address string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:10110"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}
