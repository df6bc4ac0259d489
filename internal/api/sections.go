package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// SectionInfo is the state of one boom section.
type SectionInfo struct {
	Index    int  `json:"index"`
	Setpoint bool `json:"setpoint"`
	Switch   bool `json:"switch"`
	Actual   bool `json:"actual"`
}

// SectionsResponse is the full section-bank view returned by GET /sections.
type SectionsResponse struct {
	Auto       bool          `json:"auto"`
	TargetRate int32         `json:"target_rate"`
	ActualRate int32         `json:"actual_rate"`
	SectionsOn int           `json:"sections_on"`
	Count      int           `json:"count"`
	Sections   []SectionInfo `json:"sections"`
}

// sectionModeRequest selects between setpoint-driven and switch-driven
// section control.
type sectionModeRequest struct {
	Auto *bool `json:"auto"`
}

// sectionSwitchRequest sets one manual section switch.
type sectionSwitchRequest struct {
	On *bool `json:"on"`
}

// handleListSections returns the state of every section plus the
// bank-level rate and mode.
func (s *Server) handleListSections(w http.ResponseWriter, _ *http.Request) {
	count := s.bank.Count()
	sections := make([]SectionInfo, count)
	for i := 0; i < count; i++ {
		sections[i] = SectionInfo{
			Index:    i,
			Setpoint: s.bank.SetpointState(i),
			Switch:   s.bank.SwitchState(i),
			Actual:   s.bank.ActualState(i),
		}
	}

	writeJSON(w, http.StatusOK, SectionsResponse{
		Auto:       s.bank.AutoMode(),
		TargetRate: s.bank.TargetRate(),
		ActualRate: s.bank.ActualRate(),
		SectionsOn: s.bank.ActualSectionsOn(),
		Count:      count,
		Sections:   sections,
	})
}

// handleSetSectionMode switches between automatic (task controller
// setpoints) and manual (operator switches) section control.
func (s *Server) handleSetSectionMode(w http.ResponseWriter, r *http.Request) {
	var req sectionModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Auto == nil {
		writeBadRequest(w, "auto field is required")
		return
	}

	s.bank.SetAutoMode(*req.Auto)
	s.task.NotifyValueChanged(s.layout.BoomElement, isobus.DDISectionControlState)

	s.logger.Info("section mode changed", "auto", *req.Auto)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"auto":   *req.Auto,
	})
}

// handleSetSectionSwitch sets one manual section switch. This is the
// operator's switch box; in manual mode it drives the actual section
// state directly.
func (s *Server) handleSetSectionSwitch(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "invalid section index")
		return
	}
	if index < 0 || index >= s.bank.Count() {
		writeNotFound(w, "section not found")
		return
	}

	var req sectionSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on field is required")
		return
	}

	s.bank.SetSwitchState(index, *req.On)

	// Announce the condensed block this section lives in so the harness
	// pushes the fresh actual state without waiting for the next timed
	// report.
	block := index / isobus.SectionsPerCondensedBlock
	s.task.NotifyValueChanged(s.layout.BoomElement, isobus.ActualCondensedWorkStateDDI(block))

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"index":  index,
		"on":     *req.On,
		"actual": s.bank.ActualState(index),
	})
}
