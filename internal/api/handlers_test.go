package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bresilla/tractor-isobus/internal/feeder"
	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// ─── Status Endpoint Tests ─────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !strings.HasPrefix(resp.Session, "tc-") {
		t.Errorf("session = %q, want tc- prefix", resp.Session)
	}
	if resp.Running {
		t.Error("running = true for unstarted harness")
	}
	if resp.Capabilities.Sections != 6 {
		t.Errorf("capabilities.sections = %d, want 6", resp.Capabilities.Sections)
	}
	if !resp.Capabilities.SectionControl {
		t.Error("capabilities.section_control = false")
	}
	if resp.PoolObjects == 0 {
		t.Error("pool_objects = 0, want populated descriptor")
	}
	if len(resp.Targets) == 0 {
		t.Error("targets empty, want scheduled quantities")
	}
}

// ─── Section Endpoint Tests ────────────────────────────────────────

func TestListSections(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sections", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp SectionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 6 {
		t.Errorf("count = %d, want 6", resp.Count)
	}
	if len(resp.Sections) != 6 {
		t.Errorf("len(sections) = %d, want 6", len(resp.Sections))
	}
	if !resp.Auto {
		t.Error("auto = false, want true by default")
	}
	if resp.SectionsOn != 0 {
		t.Errorf("sections_on = %d, want 0", resp.SectionsOn)
	}
}

func TestSetSectionMode(t *testing.T) {
	srv, _, bank, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/mode", strings.NewReader(`{"auto": false}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	if bank.AutoMode() {
		t.Error("bank still in auto mode after PUT")
	}

	t.Run("missing auto field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/mode", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/mode", strings.NewReader(`not json`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestSetSectionSwitch(t *testing.T) {
	srv, _, bank, _ := newTestServer(t)
	router := srv.buildRouter()

	// Manual mode so the switch drives the actual state
	bank.SetAutoMode(false)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/2", strings.NewReader(`{"on": true}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["actual"] != true {
		t.Errorf("actual = %v, want true", resp["actual"])
	}
	if !bank.SwitchState(2) {
		t.Error("bank switch 2 still off after PUT")
	}
	if !bank.ActualState(2) {
		t.Error("bank actual 2 still off in manual mode")
	}

	t.Run("non-numeric index", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/abc", strings.NewReader(`{"on": true}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/99", strings.NewReader(`{"on": true}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("missing on field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sections/2", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

// ─── Value Endpoint Tests ──────────────────────────────────────────

func TestListValues_Empty(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestListValues_Reported(t *testing.T) {
	srv, client, _, layout := newTestServer(t)
	router := srv.buildRouter()

	client.Registry().Record(implement.Target{
		Element: layout.ProductElement,
		DDI:     isobus.DDIActualVolumePerAreaRate,
	}, 9800)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Values []ValueInfo `json:"values"`
		Count  int         `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}

	got := resp.Values[0]
	if got.Element != layout.ProductElement {
		t.Errorf("element = %d, want %d", got.Element, layout.ProductElement)
	}
	if got.Value != 9800 {
		t.Errorf("value = %d, want 9800", got.Value)
	}
	if got.Designator != "Actual Volume Per Area Application Rate" {
		t.Errorf("designator = %q", got.Designator)
	}
	if got.Unit != "mm³/m²" {
		t.Errorf("unit = %q", got.Unit)
	}
	if got.UpdatedAt == "" {
		t.Error("updated_at empty")
	}
}

func TestGetValue_Live(t *testing.T) {
	srv, _, bank, layout := newTestServer(t)
	router := srv.buildRouter()

	// Rate applies only while at least one section sprays
	bank.SetTargetRate(9800)
	bank.SetSetpointState(0, true)

	path := fmt.Sprintf("/api/v1/values/%d/%d", layout.ProductElement, uint16(isobus.DDIActualVolumePerAreaRate))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp ValueInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Value != 9800 {
		t.Errorf("value = %d, want 9800", resp.Value)
	}
	if resp.Unit != "mm³/m²" {
		t.Errorf("unit = %q", resp.Unit)
	}
}

func TestGetValue_UnknownTarget(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values/0/9999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetValue_BadElement(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values/abc/2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestValueHistory_Unavailable(t *testing.T) {
	srv, _, _, layout := newTestServer(t)
	router := srv.buildRouter()

	path := fmt.Sprintf("/api/v1/values/%d/%d/history", layout.ProductElement, uint16(isobus.DDIActualVolumePerAreaRate))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	var errResp Error
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Code != ErrCodeUnavailable {
		t.Errorf("code = %q, want %q", errResp.Code, ErrCodeUnavailable)
	}
}

func TestValueHistory_BadDuration(t *testing.T) {
	srv, _, _, layout := newTestServer(t)
	router := srv.buildRouter()

	base := fmt.Sprintf("/api/v1/values/%d/%d/history", layout.ProductElement, uint16(isobus.DDIActualVolumePerAreaRate))

	tests := []struct {
		name  string
		query string
	}{
		{"malformed since", "?since=nope"},
		{"negative since", "?since=-1h"},
		{"since beyond range", "?since=400d"},
		{"malformed window", "?window=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, base+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

// ─── Totals Endpoint Tests ─────────────────────────────────────────

func TestGetTotals(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/totals", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["tank_volume_ml"].(float64) != 3_000_000 {
		t.Errorf("tank_volume_ml = %v, want 3000000", resp["tank_volume_ml"])
	}
	if resp["total_area_m2"].(float64) != 0 {
		t.Errorf("total_area_m2 = %v, want 0", resp["total_area_m2"])
	}
}

func TestGetTotals_Unavailable(t *testing.T) {
	srv := newBareServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/totals", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestTankRefill(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/totals/refill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp RefillResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	// Refill tops up to the tank capacity from the descriptor
	if resp.TankML != 4_000_000 {
		t.Errorf("tank_ml = %d, want 4000000", resp.TankML)
	}
}

func TestTankRefill_Unavailable(t *testing.T) {
	srv := newBareServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/totals/refill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Descriptor Endpoint Tests ─────────────────────────────────────

func TestDescriptorXML(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/descriptor/taskdata.xml", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "TASKDATA.XML") {
		t.Errorf("Content-Disposition = %q, want TASKDATA.XML filename", cd)
	}
	if body := w.Body.String(); !strings.Contains(body, "ISO11783_TaskData") {
		t.Error("body missing ISO11783_TaskData root element")
	}
}

func TestDescriptorBinary(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/descriptor/pool.bin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("binary descriptor body empty")
	}
}

// ─── Metrics Endpoint Tests ────────────────────────────────────────

func TestMetrics(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Task.Session == "" {
		t.Error("task.session empty")
	}
	if resp.Runtime.Goroutines < 1 {
		t.Errorf("goroutines = %d, want at least 1", resp.Runtime.Goroutines)
	}
	if resp.Telemetry != nil {
		t.Error("telemetry metrics present without a bridge")
	}
	if resp.Feeder != nil {
		t.Error("feeder metrics present without a supervisor")
	}
}

func TestMetrics_WithFeeder(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	mgr, err := feeder.NewManager(feeder.Config{Endpoint: "tcp://gnss-box:10110"})
	if err != nil {
		t.Fatalf("feeder.NewManager: %v", err)
	}
	srv.feeder = mgr
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Feeder == nil {
		t.Fatal("feeder metrics missing")
	}
	if resp.Feeder.Status != "external" {
		t.Errorf("feeder.status = %q, want external", resp.Feeder.Status)
	}
	if resp.Feeder.Endpoint != "tcp://gnss-box:10110" {
		t.Errorf("feeder.endpoint = %q, want tcp://gnss-box:10110", resp.Feeder.Endpoint)
	}
}
