package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

const (
	// defaultHistorySince is the history range when the caller gives none.
	defaultHistorySince = time.Hour

	// defaultHistoryWindow is the aggregation window when the caller
	// gives none. Zero (raw points) must be asked for explicitly.
	defaultHistoryWindow = time.Minute

	// maxHistorySince caps the history range at roughly one spraying
	// season.
	maxHistorySince = 90 * 24 * time.Hour
)

// ValueInfo is one cached process-data value.
type ValueInfo struct {
	Element    uint16 `json:"element"`
	DDI        uint16 `json:"ddi"`
	Designator string `json:"designator,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Value      int32  `json:"value"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// handleListValues returns the latest reported value of every quantity
// the harness has pushed, ordered by element then DDI.
func (s *Server) handleListValues(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.task.Registry().Snapshot()

	values := make([]ValueInfo, 0, len(snapshot))
	for target, record := range snapshot {
		info := ValueInfo{
			Element:   target.Element,
			DDI:       uint16(target.DDI),
			Value:     record.Value,
			UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if def := isobus.LookupDDI(target.DDI); def != nil {
			info.Designator = def.Designator
			info.Unit = def.Unit
		}
		values = append(values, info)
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Element != values[j].Element {
			return values[i].Element < values[j].Element
		}
		return values[i].DDI < values[j].DDI
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"values": values,
		"count":  len(values),
	})
}

// handleGetValue reads one quantity live through the dispatcher, the
// same path a value request from the task controller takes.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	element, ddi, ok := parseTarget(w, r)
	if !ok {
		return
	}
	if !s.isReportedTarget(element, ddi) {
		writeNotFound(w, "no such process-data quantity")
		return
	}

	info := ValueInfo{
		Element: element,
		DDI:     uint16(ddi),
		Value:   s.task.RequestValue(element, ddi),
	}
	if def := isobus.LookupDDI(ddi); def != nil {
		info.Designator = def.Designator
		info.Unit = def.Unit
	}

	writeJSON(w, http.StatusOK, info)
}

// handleValueHistory returns the recorded history of one quantity from
// the time-series store.
func (s *Server) handleValueHistory(w http.ResponseWriter, r *http.Request) {
	element, ddi, ok := parseTarget(w, r)
	if !ok {
		return
	}
	if !s.isReportedTarget(element, ddi) {
		writeNotFound(w, "no such process-data quantity")
		return
	}

	since, err := parseDurationParam(r.URL.Query().Get("since"), defaultHistorySince)
	if err != nil || since <= 0 {
		writeBadRequest(w, "invalid since duration")
		return
	}
	if since > maxHistorySince {
		writeBadRequest(w, "since exceeds maximum range")
		return
	}

	window, err := parseDurationParam(r.URL.Query().Get("window"), defaultHistoryWindow)
	if err != nil || window < 0 {
		writeBadRequest(w, "invalid window duration")
		return
	}

	if s.history == nil || !s.history.IsConnected() {
		writeUnavailable(w, "history store unavailable")
		return
	}

	points, err := s.history.QueryValueHistory(r.Context(), element, ddi, since, window)
	if err != nil {
		s.logger.Warn("value history query failed", "element", element, "ddi", uint16(ddi), "error", err)
		writeUnavailable(w, "history store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"element": element,
		"ddi":     uint16(ddi),
		"since":   since.String(),
		"window":  window.String(),
		"points":  points,
		"count":   len(points),
	})
}

// parseTarget extracts and validates the element/ddi path parameters,
// writing the error response itself on failure.
func parseTarget(w http.ResponseWriter, r *http.Request) (uint16, isobus.DDI, bool) {
	element, err := strconv.ParseUint(chi.URLParam(r, "element"), 10, 16)
	if err != nil {
		writeBadRequest(w, "invalid element number")
		return 0, 0, false
	}
	ddi, err := strconv.ParseUint(chi.URLParam(r, "ddi"), 10, 16)
	if err != nil {
		writeBadRequest(w, "invalid DDI")
		return 0, 0, false
	}
	return uint16(element), isobus.DDI(ddi), true
}

// isReportedTarget reports whether the harness schedules the quantity,
// which is exactly the set of registered request handlers.
func (s *Server) isReportedTarget(element uint16, ddi isobus.DDI) bool {
	for _, t := range s.task.ScheduledTargets() {
		if t.Element == element && t.DDI == ddi {
			return true
		}
	}
	return false
}

// parseDurationParam parses a Go duration string with day and week
// suffixes on top, falling back to the default when empty.
func parseDurationParam(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed, nil
	}

	return parseExtendedDuration(raw)
}

// parseExtendedDuration handles day/week suffixes not supported by
// time.ParseDuration.
func parseExtendedDuration(raw string) (time.Duration, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("invalid duration")
	}

	number := raw[:len(raw)-1]
	unit := raw[len(raw)-1]

	multiplier, ok := map[byte]time.Duration{
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[unit]
	if !ok {
		return 0, fmt.Errorf("invalid duration")
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration")
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid duration")
	}

	return time.Duration(value * float64(multiplier)), nil
}
