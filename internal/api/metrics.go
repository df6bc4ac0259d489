package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Task          TaskMetrics       `json:"task"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
	Feeder        *FeederMetrics    `json:"feeder,omitempty"`
	Database      DatabaseMetrics   `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// TaskMetrics contains task-controller harness statistics.
type TaskMetrics struct {
	Session       string `json:"session"`
	Running       bool   `json:"running"`
	PoolObjects   int    `json:"pool_objects"`
	Published     uint64 `json:"published"`
	Notifications uint64 `json:"notifications"`
	TrackedValues int    `json:"tracked_values"`
	TimedReports  uint64 `json:"timed_reports"`
	ChangeReports uint64 `json:"change_reports"`
}

// TelemetryMetrics contains MQTT telemetry bridge statistics.
type TelemetryMetrics struct {
	Connected       bool   `json:"connected"`
	Status          string `json:"status"`
	ValuesPublished uint64 `json:"values_published"`
	ValuesDropped   uint64 `json:"values_dropped"`
	CommandsHandled uint64 `json:"commands_handled"`
	CommandsFailed  uint64 `json:"commands_failed"`
}

// FeederMetrics contains feed source supervision statistics.
type FeederMetrics struct {
	Enabled       bool   `json:"enabled"`
	Status        string `json:"status"`
	Endpoint      string `json:"endpoint"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RestartCount  int    `json:"restart_count"`
	LastError     string `json:"last_error,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := s.task.Status()
	regStats := s.task.Registry().Stats()

	// Build metrics response
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Task: TaskMetrics{
			Session:       status.SessionID,
			Running:       status.Running,
			PoolObjects:   status.PoolObjects,
			Published:     status.Published,
			Notifications: status.Notifications,
			TrackedValues: regStats.Tracked,
			TimedReports:  status.Reports.TimedReports,
			ChangeReports: status.Reports.ChangeReports,
		},
	}

	// Telemetry bridge metrics (if available)
	if s.telemetry != nil {
		bridgeStats := s.telemetry.GetMetrics()
		metrics.Telemetry = &TelemetryMetrics{
			Connected:       bridgeStats.Connected,
			Status:          bridgeStats.Status,
			ValuesPublished: bridgeStats.ValuesPublished,
			ValuesDropped:   bridgeStats.ValuesDropped,
			CommandsHandled: bridgeStats.CommandsHandled,
			CommandsFailed:  bridgeStats.CommandsFailed,
		}
	}

	// Feed source supervision metrics (if available)
	if s.feeder != nil {
		feederStats := s.feeder.Stats()
		metrics.Feeder = &FeederMetrics{
			Enabled:       feederStats.Enabled,
			Status:        feederStats.Status,
			Endpoint:      feederStats.Endpoint,
			PID:           feederStats.PID,
			UptimeSeconds: int64(feederStats.Uptime.Seconds()),
			RestartCount:  feederStats.RestartCount,
			LastError:     feederStats.LastError,
		}
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
