package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bresilla/tractor-isobus/internal/feeder"
	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/config"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/database"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/influxdb"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/logging"
	"github.com/bresilla/tractor-isobus/internal/tc"
	"github.com/bresilla/tractor-isobus/internal/telemetry"
	"github.com/bresilla/tractor-isobus/internal/totals"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TelemetryStatsProvider reports MQTT telemetry bridge counters for the
// metrics endpoint. An interface so the server observes the bridge
// without owning its lifecycle.
type TelemetryStatsProvider interface {
	GetMetrics() telemetry.BridgeMetrics
}

// FeederStatsProvider reports feed source supervision state for the
// metrics endpoint.
type FeederStatsProvider interface {
	Stats() feeder.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Task is the task-controller harness. Required; the status,
	// value, and descriptor endpoints read through it.
	Task *tc.Client

	// Bank, Layout, and State are the implement model the section and
	// value endpoints operate on. All required.
	Bank   *implement.SectionBank
	Layout *implement.DeviceLayout
	State  *implement.SharedState

	// Totals backs the work-totals endpoints. Optional; without it
	// those endpoints return 503.
	Totals *totals.Accumulator

	// History backs the value-history endpoint. Optional.
	History *influxdb.Client

	// DB is only consulted for connection-pool metrics. Optional.
	DB *database.DB

	// Telemetry contributes bridge counters to the metrics endpoint.
	// Optional.
	Telemetry TelemetryStatsProvider

	// Feeder contributes feed source supervision state to the metrics
	// endpoint. Optional.
	Feeder FeederStatsProvider

	// ExternalHub lets the caller create the WebSocket hub up front so
	// it can be registered as a value sink on the harness before the
	// server starts. If nil the server creates its own.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP API server for the implement terminal.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	task      *tc.Client
	bank      *implement.SectionBank
	layout    *implement.DeviceLayout
	state     *implement.SharedState
	totals    *totals.Accumulator
	history   *influxdb.Client
	db        *database.DB
	telemetry TelemetryStatsProvider
	feeder    FeederStatsProvider
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Task == nil {
		return nil, fmt.Errorf("task client is required")
	}
	if deps.Bank == nil {
		return nil, fmt.Errorf("section bank is required")
	}
	if deps.Layout == nil {
		return nil, fmt.Errorf("device layout is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("shared state is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		task:      deps.Task,
		bank:      deps.Bank,
		layout:    deps.Layout,
		state:     deps.State,
		totals:    deps.Totals,
		history:   deps.History,
		db:        deps.DB,
		telemetry: deps.Telemetry,
		feeder:    deps.Feeder,
		version:   deps.Version,
		startTime: time.Now().UTC(),
	}

	// Use an externally-provided hub if available (needed when the
	// harness must broadcast through the hub before the server starts).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
