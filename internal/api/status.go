package api

import (
	"net/http"
	"time"
)

// StatusResponse is the harness diagnostics view returned by GET /status.
type StatusResponse struct {
	Timestamp     string           `json:"timestamp"`
	Session       string           `json:"session"`
	Running       bool             `json:"running"`
	Capabilities  CapabilitiesInfo `json:"capabilities"`
	PoolObjects   int              `json:"pool_objects"`
	Published     uint64           `json:"published"`
	Notifications uint64           `json:"notifications"`
	Reports       ReportsInfo      `json:"reports"`
	Targets       []TargetInfo     `json:"targets"`
}

// CapabilitiesInfo mirrors the feature set reported during the
// task-controller version handshake.
type CapabilitiesInfo struct {
	Booms          uint8 `json:"booms"`
	Sections       uint8 `json:"sections"`
	Channels       uint8 `json:"channels"`
	Documentation  bool  `json:"documentation"`
	SectionControl bool  `json:"section_control"`
	PositionBased  bool  `json:"position_based_control"`
}

// ReportsInfo summarises the trigger scheduler.
type ReportsInfo struct {
	Entries       int    `json:"entries"`
	TimedReports  uint64 `json:"timed_reports"`
	ChangeReports uint64 `json:"change_reports"`
}

// TargetInfo identifies one scheduled process-data quantity.
type TargetInfo struct {
	Element uint16 `json:"element"`
	DDI     uint16 `json:"ddi"`
}

// handleStatus returns the harness session, capabilities, and reporting
// counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.task.Status()

	targets := s.task.ScheduledTargets()
	targetInfos := make([]TargetInfo, 0, len(targets))
	for _, t := range targets {
		targetInfos = append(targetInfos, TargetInfo{
			Element: t.Element,
			DDI:     uint16(t.DDI),
		})
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Session:   status.SessionID,
		Running:   status.Running,
		Capabilities: CapabilitiesInfo{
			Booms:          status.Capabilities.Booms,
			Sections:       status.Capabilities.Sections,
			Channels:       status.Capabilities.Channels,
			Documentation:  status.Capabilities.SupportsDocumentation,
			SectionControl: status.Capabilities.SupportsImplementSectionControl,
			PositionBased:  status.Capabilities.SupportsTCGEOWithPositionBasedControl,
		},
		PoolObjects:   status.PoolObjects,
		Published:     status.Published,
		Notifications: status.Notifications,
		Reports: ReportsInfo{
			Entries:       status.Reports.Entries,
			TimedReports:  status.Reports.TimedReports,
			ChangeReports: status.Reports.ChangeReports,
		},
		Targets: targetInfos,
	})
}
