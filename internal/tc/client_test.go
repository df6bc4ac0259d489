package tc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// fakeSink records pushed values.
type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	element uint16
	ddi     isobus.DDI
	value   int32
}

func (s *fakeSink) ProcessValue(element uint16, ddi isobus.DDI, value int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{element: element, ddi: ddi, value: value})
}

func (s *fakeSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeSink) last() (sinkEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return sinkEvent{}, false
	}
	return s.events[len(s.events)-1], true
}

// newTestClient wires the whole stack: descriptor, section bank, shared
// state, default handlers, and a harness with one recording sink.
func newTestClient(t *testing.T) (*Client, *fakeSink, *implement.SharedState, *implement.DeviceLayout) {
	t.Helper()

	pool, layout := buildTestPool(t, 6)
	bank, err := implement.NewSectionBank(6)
	if err != nil {
		t.Fatalf("NewSectionBank() error = %v", err)
	}
	state := implement.NewSharedState()

	dispatcher := implement.NewDispatcher()
	if err := implement.RegisterDefaultHandlers(dispatcher, layout, implement.HandlerSources{
		Sections: bank,
		State:    state,
	}); err != nil {
		t.Fatalf("RegisterDefaultHandlers() error = %v", err)
	}

	client, err := NewClient(Options{
		Dispatcher: dispatcher,
		Pool:       pool,
		Layout:     layout,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sink := &fakeSink{}
	if err := client.AddSink(sink); err != nil {
		t.Fatalf("AddSink() error = %v", err)
	}
	return client, sink, state, layout
}

// ─── Construction ──────────────────────────────────────────────────

func TestNewClientValidation(t *testing.T) {
	pool, layout := buildTestPool(t, 6)
	dispatcher := implement.NewDispatcher()

	tests := []struct {
		name string
		opts Options
	}{
		{"nil dispatcher", Options{Pool: pool, Layout: layout}},
		{"nil pool", Options{Dispatcher: dispatcher, Layout: layout}},
		{"nil layout", Options{Dispatcher: dispatcher, Pool: pool}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.opts)
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("NewClient() error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestNewClientRejectsUnusableDescriptor(t *testing.T) {
	_, layout := buildTestPool(t, 6)

	_, err := NewClient(Options{
		Dispatcher: implement.NewDispatcher(),
		Pool:       isobus.NewObjectPool(),
		Layout:     layout,
	})
	if !errors.Is(err, isobus.ErrObjectNotFound) {
		t.Errorf("NewClient() error = %v, want wrapped ErrObjectNotFound", err)
	}
}

func TestNewClientSessionIDs(t *testing.T) {
	first, _, _, _ := newTestClient(t)
	second, _, _, _ := newTestClient(t)

	for _, id := range []string{first.SessionID(), second.SessionID()} {
		if !strings.HasPrefix(id, "tc-") {
			t.Errorf("session ID %q lacks tc- prefix", id)
		}
		if len(id) != len("tc-")+8 {
			t.Errorf("session ID %q length = %d, want %d", id, len(id), len("tc-")+8)
		}
	}
	if first.SessionID() == second.SessionID() {
		t.Error("two configure cycles share a session ID")
	}
}

// ─── Capabilities ──────────────────────────────────────────────────

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities(6)

	if caps.Booms != 1 || caps.Sections != 6 || caps.Channels != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/6/1", caps.Booms, caps.Sections, caps.Channels)
	}
	if !caps.SupportsDocumentation {
		t.Error("documentation support missing")
	}
	if !caps.SupportsTCGEOWithPositionBasedControl {
		t.Error("TC-GEO with position-based control missing")
	}
	if caps.SupportsTCGEOWithoutPositionBasedControl {
		t.Error("TC-GEO without position-based control should be off")
	}
	if caps.SupportsPeerControlAssignment {
		t.Error("peer control assignment should be off")
	}
	if !caps.SupportsImplementSectionControl {
		t.Error("implement section control missing")
	}

	if got := DefaultCapabilities(300).Sections; got != 255 {
		t.Errorf("Sections for 300 = %d, want clamped 255", got)
	}
	if got := DefaultCapabilities(-1).Sections; got != 0 {
		t.Errorf("Sections for -1 = %d, want 0", got)
	}
}

func TestClientAppliesDefaultCapabilities(t *testing.T) {
	client, _, _, _ := newTestClient(t)

	if got := client.Status().Capabilities; got != DefaultCapabilities(6) {
		t.Errorf("Capabilities = %+v, want defaults for 6 sections", got)
	}
}

func TestClientKeepsCustomCapabilities(t *testing.T) {
	pool, layout := buildTestPool(t, 6)
	custom := Capabilities{Booms: 2, Sections: 12, SupportsDocumentation: true}

	client, err := NewClient(Options{
		Dispatcher:   implement.NewDispatcher(),
		Pool:         pool,
		Layout:       layout,
		Capabilities: custom,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if got := client.Status().Capabilities; got != custom {
		t.Errorf("Capabilities = %+v, want %+v", got, custom)
	}
}

// ─── Value Flow ────────────────────────────────────────────────────

func TestCommandValuePushesFreshValue(t *testing.T) {
	client, sink, _, layout := newTestClient(t)

	client.CommandValue(layout.ProductElement, isobus.DDISetpointVolumePerAreaRate, 250000)

	event, ok := sink.last()
	if !ok {
		t.Fatal("no value pushed after command")
	}
	want := sinkEvent{element: layout.ProductElement, ddi: isobus.DDISetpointVolumePerAreaRate, value: 250000}
	if event != want {
		t.Errorf("pushed event = %+v, want %+v", event, want)
	}

	target := implement.Target{Element: layout.ProductElement, DDI: isobus.DDISetpointVolumePerAreaRate}
	if rec, ok := client.Registry().Value(target); !ok || rec.Value != 250000 {
		t.Errorf("cached value = %d, %v, want 250000, true", rec.Value, ok)
	}
}

func TestCommandValueCondensedSetpoint(t *testing.T) {
	client, sink, _, layout := newTestClient(t)

	// Sections 1 and 3 on: fields 0 and 2 carry 0b01.
	client.CommandValue(layout.BoomElement, isobus.SetpointCondensedWorkStateDDI(0), 0b010001)

	event, ok := sink.last()
	if !ok {
		t.Fatal("no value pushed after condensed command")
	}
	// Fields 0 and 2 on, fields 6-15 not installed: 0xFFFFF011 signed.
	want := sinkEvent{element: layout.BoomElement, ddi: isobus.SetpointCondensedWorkStateDDI(0), value: -4079}
	if event != want {
		t.Errorf("pushed event = %+v, want %+v", event, want)
	}
}

func TestCommandValueDroppedStillPushesCurrent(t *testing.T) {
	client, sink, _, layout := newTestClient(t)

	// The connector offsets accept no commands; the push reports the
	// unchanged value so the commander sees the command had no effect.
	client.CommandValue(layout.ConnectorElement, isobus.DDIDeviceElementOffsetX, 500)

	event, ok := sink.last()
	if !ok {
		t.Fatal("no value pushed after dropped command")
	}
	want := sinkEvent{element: layout.ConnectorElement, ddi: isobus.DDIDeviceElementOffsetX, value: 0}
	if event != want {
		t.Errorf("pushed event = %+v, want %+v", event, want)
	}
}

func TestNotifyValueChanged(t *testing.T) {
	client, sink, state, layout := newTestClient(t)

	state.SetAuthResult(1)
	client.NotifyValueChanged(layout.MainElement, isobus.DDIAuthenticationResult)

	event, ok := sink.last()
	if !ok {
		t.Fatal("no value pushed after change notification")
	}
	want := sinkEvent{element: layout.MainElement, ddi: isobus.DDIAuthenticationResult, value: 1}
	if event != want {
		t.Errorf("pushed event = %+v, want %+v", event, want)
	}

	if got := client.Status().Notifications; got != 1 {
		t.Errorf("Notifications = %d, want 1", got)
	}
}

func TestNotifyValueChangedUnknownIgnored(t *testing.T) {
	client, sink, _, _ := newTestClient(t)

	client.NotifyValueChanged(5, isobus.DDI(9999))

	if sink.len() != 0 {
		t.Error("unknown quantity pushed a value")
	}
	if got := client.Status().Notifications; got != 0 {
		t.Errorf("Notifications = %d, want 0", got)
	}
}

func TestRequestValueCaches(t *testing.T) {
	client, _, _, layout := newTestClient(t)

	if got := client.RequestValue(layout.ProductElement, isobus.DDIMaximumVolumeContent); got != 4_000_000 {
		t.Fatalf("RequestValue() = %d, want 4000000", got)
	}

	target := implement.Target{Element: layout.ProductElement, DDI: isobus.DDIMaximumVolumeContent}
	if rec, ok := client.Registry().Value(target); !ok || rec.Value != 4_000_000 {
		t.Errorf("cached value = %d, %v, want 4000000, true", rec.Value, ok)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestClientStartStop(t *testing.T) {
	client, _, _, _ := newTestClient(t)

	if client.Status().Running {
		t.Fatal("client running before Start")
	}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !client.Status().Running {
		t.Error("client not running after Start")
	}

	if err := client.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start() error = %v, want ErrRunning", err)
	}
	if err := client.AddSink(&fakeSink{}); !errors.Is(err, ErrRunning) {
		t.Errorf("AddSink() after Start error = %v, want ErrRunning", err)
	}

	client.Stop()
	if client.Status().Running {
		t.Error("client still running after Stop")
	}
	client.Stop()
}

func TestClientScheduledReportsReachSink(t *testing.T) {
	pool, layout := buildTestPool(t, 6)
	bank, err := implement.NewSectionBank(6)
	if err != nil {
		t.Fatalf("NewSectionBank() error = %v", err)
	}
	dispatcher := implement.NewDispatcher()
	if err := implement.RegisterDefaultHandlers(dispatcher, layout, implement.HandlerSources{
		Sections: bank,
		State:    implement.NewSharedState(),
	}); err != nil {
		t.Fatalf("RegisterDefaultHandlers() error = %v", err)
	}

	client, err := NewClient(Options{
		Dispatcher: dispatcher,
		Pool:       pool,
		Layout:     layout,
		Scheduler: SchedulerConfig{
			DefaultInterval: 20 * time.Millisecond,
			Resolution:      5 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	sink := &fakeSink{}
	if err := client.AddSink(sink); err != nil {
		t.Fatalf("AddSink() error = %v", err)
	}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	client.Stop()

	// The initial pass alone reports all fourteen scheduled quantities.
	if sink.len() < 14 {
		t.Errorf("sink events = %d, want >= 14", sink.len())
	}

	status := client.Status()
	if status.Published != uint64(sink.len()) {
		t.Errorf("Published = %d, sink saw %d", status.Published, sink.len())
	}
	if status.Reports.Entries != 14 {
		t.Errorf("scheduled entries = %d, want 14", status.Reports.Entries)
	}
	if cached := client.Registry().Len(); cached != 14 {
		t.Errorf("cached targets = %d, want 14", cached)
	}
}

func TestClientStatusFields(t *testing.T) {
	client, _, _, layout := newTestClient(t)

	client.CommandValue(layout.ProductElement, isobus.DDISetpointVolumePerAreaRate, 150000)

	status := client.Status()
	if status.SessionID != client.SessionID() {
		t.Errorf("SessionID = %q, want %q", status.SessionID, client.SessionID())
	}
	if status.PoolObjects != 57 {
		t.Errorf("PoolObjects = %d, want 57", status.PoolObjects)
	}
	if status.Published != 1 {
		t.Errorf("Published = %d, want 1", status.Published)
	}
	if status.Notifications != 1 {
		t.Errorf("Notifications = %d, want 1", status.Notifications)
	}
	if len(client.ScheduledTargets()) != 14 {
		t.Errorf("ScheduledTargets() len = %d, want 14", len(client.ScheduledTargets()))
	}
}

func TestAddSinkNil(t *testing.T) {
	client, _, _, _ := newTestClient(t)

	if err := client.AddSink(nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("AddSink(nil) error = %v, want ErrInvalidOptions", err)
	}
}
