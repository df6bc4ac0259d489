package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bresilla/tractor-isobus/internal/infrastructure/mqtt"
)

// defaultHealthInterval is how often health reports go out when the
// interval is not configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the publishing slice of the MQTT client the
// reporter needs.
type HealthPublisher interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Name identifies this implement in health reports.
	Name string

	// Version is the build version reported in messages.
	Version string

	// Interval between reports. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the broker connection reports go out on.
	Publisher HealthPublisher

	// Task is consulted for the degraded check. Optional.
	Task TaskClient

	// Sections is the configured section count, echoed in reports.
	Sections int

	// Stats supplies the counter snapshot for each report. Optional.
	Stats func() BridgeStatistics
}

// HealthReporter periodically publishes retained health reports for the
// telemetry bridge, so dashboards can tell a quiet implement from a
// dead one.
type HealthReporter struct {
	name      string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	task      TaskClient
	sections  int
	stats     func() BridgeStatistics

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter from the given config.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}

	return &HealthReporter{
		name:      cfg.Name,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  cfg.Interval,
		publisher: cfg.Publisher,
		task:      cfg.Task,
		sections:  cfg.Sections,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final stopping status.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Final stopping status is best-effort; the broker may already
		// be gone.
		h.publishStatus(HealthStopping, "") //nolint:errcheck
	})
}

// PublishStarting publishes a starting status, called before the bridge
// begins subscribing.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop publishes on the configured interval until stopped.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	// Immediate report on startup
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish health report", err)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health report", err)
			}
		}
	}
}

// determineStatus inspects the collaborators and picks a status with an
// optional reason.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.task != nil && !h.task.Status().Running {
		return HealthDegraded, "scheduled reporting stopped"
	}
	return HealthHealthy, ""
}

// publishStatus builds and publishes one health message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	var stats BridgeStatistics
	if h.stats != nil {
		stats = h.stats()
	}

	msg := NewHealthMessage(h.name, h.version, status, stats, h.sections, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health message: %w", err)
	}

	if err := h.publisher.Publish(mqtt.Topics{}.TelemetryHealth(), payload, 1, true); err != nil {
		return fmt.Errorf("publish health message: %w", err)
	}
	return nil
}

// SetLogger sets the logger for the reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// logError logs an error message if a logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
