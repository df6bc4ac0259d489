package tc

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ValueSink receives process-data values the harness pushes: scheduled
// reports, fresh values after commands, and out-of-band change
// notifications. Implementations must not block; the telemetry bridge
// and the websocket hub satisfy this by queueing.
type ValueSink interface {
	ProcessValue(element uint16, ddi isobus.DDI, value int32)
}

// Capabilities is the implement's task-controller feature set, as a
// wire-level client would report it during the version handshake.
type Capabilities struct {
	// Booms, Sections, and Channels are one byte each on the wire.
	Booms    uint8
	Sections uint8
	Channels uint8

	SupportsDocumentation                    bool
	SupportsTCGEOWithoutPositionBasedControl bool
	SupportsTCGEOWithPositionBasedControl    bool
	SupportsPeerControlAssignment            bool
	SupportsImplementSectionControl          bool
}

// DefaultCapabilities returns the sprayer's capability set: one boom
// carrying the installed sections, one position-based-control channel,
// rate documentation, and implement section control. Section counts
// past 255 clamp to the one-byte wire field.
func DefaultCapabilities(sectionCount int) Capabilities {
	if sectionCount < 0 {
		sectionCount = 0
	}
	if sectionCount > 255 {
		sectionCount = 255
	}
	return Capabilities{
		Booms:                                 1,
		Sections:                              uint8(sectionCount),
		Channels:                              1,
		SupportsDocumentation:                 true,
		SupportsTCGEOWithPositionBasedControl: true,
		SupportsImplementSectionControl:       true,
	}
}

// Options holds configuration for creating a client.
type Options struct {
	// Dispatcher routes value requests and commands. Required.
	Dispatcher *implement.Dispatcher

	// Pool is the built device descriptor. Required; must validate.
	Pool *isobus.ObjectPool

	// Layout records where the builder placed the descriptor. Required.
	Layout *implement.DeviceLayout

	// Capabilities overrides the reported feature set. Zero value means
	// DefaultCapabilities for the layout's section count.
	Capabilities Capabilities

	// Scheduler tunes the reporting plan.
	Scheduler SchedulerConfig

	// Logger is optional structured logging.
	Logger Logger
}

// ClientStatus is a point-in-time view of the harness for diagnostics.
type ClientStatus struct {
	SessionID     string
	Capabilities  Capabilities
	PoolObjects   int
	Published     uint64
	Notifications uint64
	Running       bool
	Reports       SchedulerStats
}

// Client is the task-controller client harness. It owns the validated
// descriptor, a per-configure-cycle session ID, the trigger scheduler,
// and the latest-value cache, and it fans reported values out to the
// registered sinks.
//
// Lifecycle: NewClient, AddSink for every delivery target, Start, and
// Stop once on shutdown. The descriptor and the sink list are frozen
// when Start is called.
type Client struct {
	dispatcher *implement.Dispatcher
	pool       *isobus.ObjectPool
	layout     *implement.DeviceLayout
	registry   *Registry
	scheduler  *Scheduler
	caps       Capabilities
	sessionID  string

	sinks   []ValueSink
	started atomic.Bool
	stopped atomic.Bool

	published     atomic.Uint64
	notifications atomic.Uint64

	logger Logger
}

// NewClient validates the descriptor and assembles the harness. Each
// call is one configure cycle and mints a fresh session ID.
//
// Returns:
//   - *Client: Configured harness, not yet reporting
//   - error: ErrInvalidOptions on missing dependencies, or the pool
//     validation failure when the descriptor is unusable
func NewClient(opts Options) (*Client, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", ErrInvalidOptions)
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("%w: descriptor pool is required", ErrInvalidOptions)
	}
	if opts.Layout == nil {
		return nil, fmt.Errorf("%w: device layout is required", ErrInvalidOptions)
	}
	if err := opts.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("descriptor not usable: %w", err)
	}

	caps := opts.Capabilities
	if caps == (Capabilities{}) {
		caps = DefaultCapabilities(opts.Layout.SectionCount)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		dispatcher: opts.Dispatcher,
		pool:       opts.Pool,
		layout:     opts.Layout,
		registry:   NewRegistry(),
		caps:       caps,
		sessionID:  "tc-" + uuid.NewString()[:8],
		logger:     logger,
	}

	scheduler, err := NewScheduler(opts.Scheduler, opts.Pool, opts.Dispatcher, c.push)
	if err != nil {
		return nil, err
	}
	c.scheduler = scheduler

	return c, nil
}

// AddSink registers a delivery target for pushed values. Register every
// sink before Start; the list is read without locks afterwards.
func (c *Client) AddSink(sink ValueSink) error {
	if sink == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidOptions)
	}
	if c.started.Load() {
		return ErrRunning
	}
	c.sinks = append(c.sinks, sink)
	return nil
}

// Start begins scheduled reporting.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrRunning
	}

	c.scheduler.Start(ctx)

	c.logger.Info("task controller client started",
		"session", c.sessionID,
		"pool_objects", c.pool.Len(),
		"scheduled", c.scheduler.Stats().Entries,
		"sections", c.caps.Sections,
		"sinks", len(c.sinks))
	return nil
}

// Stop halts scheduled reporting. Safe to call multiple times.
func (c *Client) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.scheduler.Stop()
	c.logger.Info("task controller client stopped", "session", c.sessionID)
}

// RequestValue answers a value request through the dispatcher and
// caches the result. Unknown quantities answer 0.
func (c *Client) RequestValue(element uint16, ddi isobus.DDI) int32 {
	value := c.dispatcher.RequestValue(element, ddi)
	c.registry.Record(implement.Target{Element: element, DDI: ddi}, value)
	return value
}

// CommandValue applies a commanded value through the dispatcher, then
// pushes the quantity's resulting value so the commander sees the
// effect without waiting for the next scheduled report. A command the
// dispatcher dropped still pushes the unchanged value.
func (c *Client) CommandValue(element uint16, ddi isobus.DDI, value int32) {
	c.dispatcher.CommandValue(element, ddi, value)
	c.NotifyValueChanged(element, ddi)
}

// NotifyValueChanged pushes the current value of a quantity to every
// sink. Call it when a tracked quantity changes outside the command
// path, e.g. when the authentication verdict flips. Quantities without
// a request handler are ignored.
func (c *Client) NotifyValueChanged(element uint16, ddi isobus.DDI) {
	if !c.dispatcher.HandlesRequest(element, ddi) {
		return
	}

	value := c.dispatcher.RequestValue(element, ddi)
	c.push(implement.Target{Element: element, DDI: ddi}, value)
	c.notifications.Add(1)

	c.logger.Debug("value change pushed",
		"element", element,
		"ddi", ddi.String(),
		"value", value)
}

// Registry returns the latest-value cache.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Pool returns the device descriptor. The pool is read-only after
// construction and safe to share.
func (c *Client) Pool() *isobus.ObjectPool {
	return c.pool
}

// Layout returns the descriptor layout.
func (c *Client) Layout() *implement.DeviceLayout {
	return c.layout
}

// SessionID returns this configure cycle's session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// ScheduledTargets returns every quantity under trigger scheduling,
// ordered by element number then DDI.
func (c *Client) ScheduledTargets() []implement.Target {
	return c.scheduler.Targets()
}

// Status returns a snapshot of the harness for the diagnostics API.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		SessionID:     c.sessionID,
		Capabilities:  c.caps,
		PoolObjects:   c.pool.Len(),
		Published:     c.published.Load(),
		Notifications: c.notifications.Load(),
		Running:       c.started.Load() && !c.stopped.Load(),
		Reports:       c.scheduler.Stats(),
	}
}

// push records one reported value and delivers it to every sink.
func (c *Client) push(target implement.Target, value int32) {
	c.registry.Record(target, value)
	for _, sink := range c.sinks {
		sink.ProcessValue(target.Element, target.DDI, value)
	}
	c.published.Add(1)
}
