// isobusd - ISO 11783-10 Implement Daemon
//
// This is the main entry point for the implement daemon. It presents a
// virtual sprayer to an ISOBUS task controller:
//   - Device descriptor pool (DDOP) built from configuration
//   - Section control, rate setpoints, and lifetime work totals
//   - Correction-feed authentication gating via NMEA $PHTG sentences
//   - MQTT telemetry mirror and REST/WebSocket diagnostics API
//
// For the wire dictionary, see: internal/isobus
// For the reporting harness, see: internal/tc
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/bresilla/tractor-isobus/migrations"

	"github.com/bresilla/tractor-isobus/internal/api"
	"github.com/bresilla/tractor-isobus/internal/feeder"
	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/config"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/database"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/influxdb"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/logging"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/mqtt"
	"github.com/bresilla/tractor-isobus/internal/isobus"
	"github.com/bresilla/tractor-isobus/internal/nmea"
	"github.com/bresilla/tractor-isobus/internal/tc"
	"github.com/bresilla/tractor-isobus/internal/telemetry"
	"github.com/bresilla/tractor-isobus/internal/totals"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting isobusd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the device descriptor
	builder, err := implement.NewBuilder(implement.Config{
		DeviceName:     cfg.Implement.Name,
		SerialNumber:   cfg.Implement.SerialNumber,
		SectionCount:   cfg.Implement.Sections,
		BoomWidthMM:    cfg.Implement.BoomWidthMM,
		TankCapacityML: cfg.Implement.TankCapacityML,
	})
	if err != nil {
		return fmt.Errorf("describing implement: %w", err)
	}
	pool := isobus.NewObjectPool()
	layout, err := builder.Build(pool)
	if err != nil {
		return fmt.Errorf("building device descriptor: %w", err)
	}
	log.Info("device descriptor built",
		"objects", pool.Len(),
		"sections", layout.SectionCount,
		"boom_width_mm", layout.BoomWidthMM,
	)

	// Live implement state
	bank, err := implement.NewSectionBank(cfg.Implement.Sections)
	if err != nil {
		return fmt.Errorf("creating section bank: %w", err)
	}
	bank.SetTargetRate(cfg.Implement.TargetRate)
	state := implement.NewSharedState()

	// Lifetime totals, persisted to SQLite
	acc, err := totals.New(totals.Config{
		SampleInterval:  cfg.GetSampleInterval(),
		SaveInterval:    cfg.GetSaveInterval(),
		NominalSpeedMMs: cfg.Totals.NominalSpeedMMs,
		InitialTankML:   cfg.Totals.InitialTankML,
	}, bank, layout, totals.NewSQLiteRepository(db.DB), log)
	if err != nil {
		return fmt.Errorf("creating totals accumulator: %w", err)
	}
	if loadErr := acc.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading persisted totals: %w", loadErr)
	}
	if startErr := acc.Start(ctx); startErr != nil {
		return fmt.Errorf("starting totals accumulator: %w", startErr)
	}
	defer func() {
		log.Info("stopping totals accumulator")
		acc.Stop()
	}()
	snap := acc.Snapshot()
	log.Info("work totals loaded",
		"time_s", int64(snap.EffectiveTimeS),
		"area_m2", int64(snap.TotalAreaM2),
		"lifetime_ml", int64(snap.LifetimeVolumeML),
		"tank_ml", int64(snap.TankVolumeML),
	)

	// Wire the process-data dispatcher
	dispatcher := implement.NewDispatcher()
	if regErr := implement.RegisterDefaultHandlers(dispatcher, layout, implement.HandlerSources{
		Sections:         bank,
		State:            state,
		TotalTimeSeconds: acc.TimeSeconds,
		TotalAreaM2:      acc.AreaM2,
		LifetimeVolumeML: acc.LifetimeVolumeML,
		TankVolumeML:     acc.TankVolumeML,
	}); regErr != nil {
		return fmt.Errorf("registering process-data handlers: %w", regErr)
	}

	// Task controller harness
	task, err := tc.NewClient(tc.Options{
		Dispatcher: dispatcher,
		Pool:       pool,
		Layout:     layout,
		Scheduler:  tc.SchedulerConfig{DefaultInterval: cfg.GetReportInterval()},
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating task controller client: %w", err)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB history store (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry bridge mirrors the implement onto the broker
	var bridge *telemetry.Bridge
	if mqttClient != nil {
		bridge, err = telemetry.NewBridge(telemetry.Options{
			Client:  mqttClient,
			Task:    task,
			Bank:    bank,
			Layout:  layout,
			State:   state,
			Totals:  acc,
			Name:    cfg.Implement.Name,
			Version: version,
			QoS:     byte(cfg.MQTT.QoS),
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("creating telemetry bridge: %w", err)
		}
	}

	// WebSocket hub is created up front so it can receive pushed values;
	// the API server takes ownership and runs it.
	hub := api.NewHub(cfg.WebSocket, log)

	// Register every value sink before the harness starts reporting
	if bridge != nil {
		if sinkErr := task.AddSink(bridge); sinkErr != nil {
			return fmt.Errorf("registering telemetry sink: %w", sinkErr)
		}
	}
	if influxClient != nil {
		if sinkErr := task.AddSink(&historyRecorder{client: influxClient}); sinkErr != nil {
			return fmt.Errorf("registering history sink: %w", sinkErr)
		}
	}
	if sinkErr := task.AddSink(hub); sinkErr != nil {
		return fmt.Errorf("registering websocket sink: %w", sinkErr)
	}

	// Start scheduled reporting
	if startErr := task.Start(ctx); startErr != nil {
		return fmt.Errorf("starting task controller client: %w", startErr)
	}
	defer func() {
		log.Info("stopping task controller client", "session", task.SessionID())
		task.Stop()
		if influxClient != nil {
			influxClient.WriteSessionEvent(task.SessionID(), "stopped")
		}
	}()
	if influxClient != nil {
		influxClient.WriteSessionEvent(task.SessionID(), "started")
	}

	if bridge != nil {
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting telemetry bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping telemetry bridge")
			bridge.Stop()
		}()
	}

	// Authentication feed (optional): supervise the feed source, then
	// consume its sentences
	var feederMgr *feeder.Manager
	var feedClient *nmea.FeedClient
	if cfg.Feed.Enabled {
		feederMgr, err = startFeeder(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("starting feeder: %w", err)
		}
		defer func() {
			log.Info("stopping feeder")
			if stopErr := feederMgr.Stop(); stopErr != nil {
				log.Error("error stopping feeder", "error", stopErr)
			}
		}()

		feedClient, err = connectFeed(ctx, cfg, task, state, layout, log)
		if err != nil {
			return fmt.Errorf("connecting authentication feed: %w", err)
		}
		defer func() {
			log.Info("closing authentication feed")
			feedClient.Close()
		}()
	} else {
		log.Info("authentication feed disabled")
	}

	// Start the diagnostics API
	apiDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Task:        task,
		Bank:        bank,
		Layout:      layout,
		State:       state,
		Totals:      acc,
		History:     influxClient,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
	}
	if bridge != nil {
		apiDeps.Telemetry = bridge
	}
	if feederMgr != nil {
		apiDeps.Feeder = feederMgr
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, feedClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"session", task.SessionID())

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (and with it the WebSocket hub)
	// 2. Authentication feed, then its supervised source
	// 3. Telemetry bridge
	// 4. Task controller client
	// 5. InfluxDB (if enabled), MQTT (if enabled)
	// 6. Totals accumulator (persists a final snapshot)
	// 7. Database

	log.Info("isobusd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ISOBUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ISOBUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - feedClient: Authentication feed to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, feedClient *nmea.FeedClient) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Check authentication feed (if enabled)
	if feedClient != nil {
		if err := feedClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("feed: %w", err)
		}
	}

	return nil
}

// startFeeder initialises and starts the feed source supervisor.
//
// With feeder.enabled set, the configured command is launched and kept
// alive, and Start blocks until the feed endpoint accepts connections.
// Without it the manager only validates the endpoint and expects an
// externally run source.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *feeder.Manager: Running feeder manager
//   - error: If the feed source fails to start or become ready
func startFeeder(ctx context.Context, cfg *config.Config, log *logging.Logger) (*feeder.Manager, error) {
	feederCfg := feeder.Config{
		Enabled:            cfg.Feeder.Enabled,
		Command:            cfg.Feeder.Command,
		Args:               cfg.Feeder.Args,
		Endpoint:           cfg.Feed.Connection,
		RestartOnFailure:   cfg.Feeder.RestartOnFailure,
		RestartDelay:       time.Duration(cfg.Feeder.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.Feeder.MaxRestartAttempts,
	}

	manager, err := feeder.NewManager(feederCfg)
	if err != nil {
		return nil, fmt.Errorf("creating feeder manager: %w", err)
	}
	manager.SetLogger(log)

	if feederCfg.Enabled {
		log.Info("starting feed source",
			"command", feederCfg.Command,
			"endpoint", feederCfg.Endpoint,
		)
	}

	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting feed source: %w", err)
	}

	return manager, nil
}

// connectFeed connects the NMEA authentication feed and wires its
// sentences into the shared implement state. A changed authentication
// verdict is pushed to the task controller sinks immediately rather
// than waiting for the next scheduled report.
//
// Parameters:
//   - ctx: Context for connection/cancellation
//   - cfg: Application configuration
//   - task: Task controller harness for change notifications
//   - state: Shared state receiving verdicts and warnings
//   - layout: Device layout supplying the main element number
//   - log: Logger instance
//
// Returns:
//   - *nmea.FeedClient: Connected feed client
//   - error: If the initial connection fails
func connectFeed(ctx context.Context, cfg *config.Config, task *tc.Client, state *implement.SharedState, layout *implement.DeviceLayout, log *logging.Logger) (*nmea.FeedClient, error) {
	feedClient, err := nmea.Connect(ctx, nmea.FeedConfig{
		Connection:  cfg.Feed.Connection,
		ReadTimeout: cfg.GetFeedReadTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Feed.Connection, err)
	}
	feedClient.SetLogger(log)

	feedClient.SetOnSentence(func(s nmea.Sentence) {
		if state.SetAuthResult(int32(s.AuthResult)) {
			task.NotifyValueChanged(layout.MainElement, isobus.DDIAuthenticationResult)
			log.Info("authentication result changed",
				"result", s.AuthResult,
				"system", s.System,
				"service", s.Service,
			)
		}
		if state.SetWarning(int32(s.Warning)) && s.Warning != 0 {
			log.Warn("feed receiver raised a warning", "warning", s.Warning)
		}
	})

	log.Info("authentication feed connected", "connection", cfg.Feed.Connection)
	return feedClient, nil
}

// historyRecorder adapts the InfluxDB client to the harness value sink
// interface so every reported process value lands in the history store.
// Writes are batched and non-blocking, as the sink contract requires.
type historyRecorder struct {
	client *influxdb.Client
}

// ProcessValue implements tc.ValueSink.
func (r *historyRecorder) ProcessValue(element uint16, ddi isobus.DDI, value int32) {
	r.client.WriteProcessValue(element, ddi, value)
}
