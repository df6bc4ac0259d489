package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the implement daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Implement ImplementConfig `yaml:"implement"`
	Feed      FeedConfig      `yaml:"feed"`
	Feeder    FeederConfig    `yaml:"feeder"`
	Totals    TotalsConfig    `yaml:"totals"`
	Reports   ReportsConfig   `yaml:"reports"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ImplementConfig describes the virtual implement presented to the task
// controller. Zero values fall back to the device builder's defaults.
type ImplementConfig struct {
	// Name is the device designator shown on the terminal.
	Name string `yaml:"name"`

	// SerialNumber identifies this unit. Feeds the device serial field and,
	// together with the manufacturer code, the 64-bit NAME.
	SerialNumber string `yaml:"serial_number"`

	// Sections is the number of physical boom sections (1-256).
	Sections int `yaml:"sections"`

	// BoomWidthMM is the total working width in millimetres.
	// Default: 9144 (30 ft).
	BoomWidthMM int32 `yaml:"boom_width_mm"`

	// TankCapacityML is the tank capacity in millilitres.
	// Default: 4000000 (4000 L).
	TankCapacityML int32 `yaml:"tank_capacity_ml"`

	// TargetRate is the startup application rate setpoint in mm3/m2
	// (100 mm3/m2 = 1 L/ha).
	TargetRate int32 `yaml:"target_rate"`
}

// FeedConfig points at the NMEA sentence feed used for section authorisation.
type FeedConfig struct {
	Enabled bool `yaml:"enabled"`

	// Connection is the feed endpoint: "tcp://host:port" or "unix:///path".
	Connection string `yaml:"connection"`

	// ReadTimeout is the per-sentence read deadline in seconds.
	ReadTimeout int `yaml:"read_timeout"`
}

// FeederConfig contains settings for supervising an external feed process,
// typically a GNSS-to-NMEA shim the daemon keeps alive alongside itself.
type FeederConfig struct {
	// Enabled starts the feeder under daemon supervision. If false, the
	// feed endpoint is expected to be served externally.
	Enabled bool `yaml:"enabled"`

	// Command is the path to the feeder executable.
	Command string `yaml:"command"`

	// Args are passed to the feeder verbatim.
	Args []string `yaml:"args"`

	// RestartOnFailure enables automatic restart if the feeder exits.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting (in seconds).
	// Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// TotalsConfig tunes the lifetime totals accumulator.
type TotalsConfig struct {
	// SampleInterval is the work integration period in seconds.
	SampleInterval int `yaml:"sample_interval"`

	// SaveInterval is the persistence period in seconds.
	SaveInterval int `yaml:"save_interval"`

	// NominalSpeedMMs is the assumed ground speed in mm/s used to turn
	// working time into worked area.
	NominalSpeedMMs int32 `yaml:"nominal_speed_mms"`

	// InitialTankML seeds the tank level on first run, before any
	// persisted state exists.
	InitialTankML int32 `yaml:"initial_tank_ml"`
}

// ReportsConfig sets measurement reporting behaviour towards the controller.
type ReportsConfig struct {
	// DefaultIntervalMs is the time interval used for scheduled value
	// reports when the controller does not request one.
	DefaultIntervalMs int `yaml:"default_interval_ms"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ISOBUS_SECTION_KEY
// For example: ISOBUS_DATABASE_PATH, ISOBUS_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults. A daemon started
// with an empty file presents a six section implement and talks to a broker
// on localhost.
func defaultConfig() *Config {
	return &Config{
		Implement: ImplementConfig{
			Sections:   6,
			TargetRate: 100000,
		},
		Feed: FeedConfig{
			Connection:  "tcp://localhost:10110",
			ReadTimeout: 30,
		},
		Feeder: FeederConfig{
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
		},
		Totals: TotalsConfig{
			SampleInterval:  1,
			SaveInterval:    15,
			NominalSpeedMMs: 2000,
			InitialTankML:   3000000,
		},
		Reports: ReportsConfig{
			DefaultIntervalMs: 2000,
		},
		Database: DatabaseConfig{
			Path:        "./data/isobus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "isobus-implement",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ISOBUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ISOBUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Feed
	if v := os.Getenv("ISOBUS_FEED_CONNECTION"); v != "" {
		cfg.Feed.Connection = v
	}

	// MQTT
	if v := os.Getenv("ISOBUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ISOBUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ISOBUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ISOBUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ISOBUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Implement validation
	if c.Implement.Sections < 1 || c.Implement.Sections > 256 {
		errs = append(errs, "implement.sections must be between 1 and 256")
	}
	if c.Implement.TargetRate < 0 {
		errs = append(errs, "implement.target_rate must not be negative")
	}
	if c.Implement.BoomWidthMM < 0 {
		errs = append(errs, "implement.boom_width_mm must not be negative")
	}
	if c.Implement.TankCapacityML < 0 {
		errs = append(errs, "implement.tank_capacity_ml must not be negative")
	}

	// Feed validation
	if c.Feed.Enabled && c.Feed.Connection == "" {
		errs = append(errs, "feed.connection is required when feed is enabled")
	}

	// Feeder validation
	if c.Feeder.Enabled && c.Feeder.Command == "" {
		errs = append(errs, "feeder.command is required when feeder is enabled")
	}

	// Totals validation
	if c.Totals.NominalSpeedMMs < 0 {
		errs = append(errs, "totals.nominal_speed_mms must not be negative")
	}
	if c.Reports.DefaultIntervalMs < 0 {
		errs = append(errs, "reports.default_interval_ms must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled {
		if c.API.TLS.CertFile == "" {
			errs = append(errs, "api.tls.cert_file is required when TLS is enabled")
		}
		if c.API.TLS.KeyFile == "" {
			errs = append(errs, "api.tls.key_file is required when TLS is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set ISOBUS_INFLUXDB_TOKEN environment variable)")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetFeedReadTimeout returns the feed read deadline as a Duration.
func (c *Config) GetFeedReadTimeout() time.Duration {
	return time.Duration(c.Feed.ReadTimeout) * time.Second
}

// GetSampleInterval returns the totals sampling period as a Duration.
func (c *Config) GetSampleInterval() time.Duration {
	return time.Duration(c.Totals.SampleInterval) * time.Second
}

// GetSaveInterval returns the totals persistence period as a Duration.
func (c *Config) GetSaveInterval() time.Duration {
	return time.Duration(c.Totals.SaveInterval) * time.Second
}

// GetReportInterval returns the default value report interval as a Duration.
func (c *Config) GetReportInterval() time.Duration {
	return time.Duration(c.Reports.DefaultIntervalMs) * time.Millisecond
}
