package api

import (
	"net/http"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// RefillResponse reports the tank level after a refill.
type RefillResponse struct {
	Status string `json:"status"`
	TankML int32  `json:"tank_ml"`
}

// handleGetTotals returns the accumulated work counters.
func (s *Server) handleGetTotals(w http.ResponseWriter, _ *http.Request) {
	if s.totals == nil {
		writeUnavailable(w, "totals accumulator unavailable")
		return
	}

	writeJSON(w, http.StatusOK, s.totals.Snapshot())
}

// handleTankRefill resets the tank level to capacity, the service action
// after filling at the water bowser. The harness is told so the task
// controller sees the new level immediately.
func (s *Server) handleTankRefill(w http.ResponseWriter, _ *http.Request) {
	if s.totals == nil {
		writeUnavailable(w, "totals accumulator unavailable")
		return
	}

	level := s.totals.Refill()
	s.task.NotifyValueChanged(s.layout.ProductElement, isobus.DDIActualVolumeContent)

	s.logger.Info("tank refilled", "tank_ml", level)

	writeJSON(w, http.StatusOK, RefillResponse{
		Status: "ok",
		TankML: level,
	})
}
