package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/infrastructure/mqtt"
	"github.com/bresilla/tractor-isobus/internal/isobus"
	"github.com/bresilla/tractor-isobus/internal/tc"
	"github.com/bresilla/tractor-isobus/internal/totals"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of segments in a command topic.
	minTopicParts = 3

	// defaultStateInterval is the cadence of section, totals, and task
	// snapshots.
	defaultStateInterval = time.Second

	// defaultQueueSize is the depth of the value queue between the
	// reporting callback and the publish worker.
	defaultQueueSize = 256
)

// ErrInvalidOptions is returned when the bridge is constructed with
// missing dependencies.
var ErrInvalidOptions = errors.New("telemetry: invalid options")

// Bridge mirrors the implement onto MQTT and routes broker commands
// back into the task controller harness. It handles:
//   - Publishing process values pushed by the harness (retained, one
//     topic per element/DDI pair)
//   - Publishing section, totals, and task snapshots on change
//   - Consuming isobus/command/{name} messages and acknowledging them
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	task   TaskClient
	bank   *implement.SectionBank
	layout *implement.DeviceLayout
	state  *implement.SharedState
	totals TotalsSource // Optional totals source for snapshots and refill
	health *HealthReporter

	qos           byte
	stateInterval time.Duration
	topics        mqtt.Topics

	// Value queue between the harness callback and the publish worker
	values chan valueEvent

	// Snapshot cache for publish-on-change suppression
	stateMu      sync.Mutex
	lastSections *SectionsMessage
	lastTotals   *TotalsMessage
	lastTask     *TaskMessage

	// Shutdown coordination
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Counters
	valuesPublished atomic.Uint64
	valuesDropped   atomic.Uint64
	commandsHandled atomic.Uint64
	commandsFailed  atomic.Uint64
	statePublishes  atomic.Uint64

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// valueEvent is one pushed process value waiting for publication.
type valueEvent struct {
	element uint16
	ddi     isobus.DDI
	value   int32
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the slice of the broker client the bridge needs.
// The concrete *mqtt.Client satisfies it; tests substitute a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// TaskClient is the slice of the task controller harness the bridge
// drives and reports on. *tc.Client satisfies it.
type TaskClient interface {
	// CommandValue applies a commanded value through the dispatcher.
	CommandValue(element uint16, ddi isobus.DDI, value int32)

	// NotifyValueChanged pushes a quantity's current value to the sinks.
	NotifyValueChanged(element uint16, ddi isobus.DDI)

	// Status returns a snapshot of the harness.
	Status() tc.ClientStatus
}

// TotalsSource is the slice of the totals accumulator the bridge reads
// and refills. *totals.Accumulator satisfies it.
type TotalsSource interface {
	// Snapshot returns a copy of the current counters.
	Snapshot() totals.State

	// Refill sets the tank back to capacity and returns the new level.
	Refill() int32
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Client is the broker connection values and snapshots go out on.
	// Required.
	Client MQTTClient

	// Task is the harness commands are routed into. Required.
	Task TaskClient

	// Bank is the live section state. Required.
	Bank *implement.SectionBank

	// Layout supplies the element numbers for command routing. Required.
	Layout *implement.DeviceLayout

	// State is the shared feed state reported in task snapshots.
	// Required.
	State *implement.SharedState

	// Totals is the lifetime counter source. Optional; without it
	// totals snapshots are skipped and refill commands are rejected.
	Totals TotalsSource

	// Name identifies this implement in health reports.
	// Default: "implement".
	Name string

	// Version is reported in health messages. Default: "dev".
	Version string

	// QoS applies to value and snapshot publishes.
	QoS byte

	// StateInterval is the snapshot cadence. Default: 1 second.
	StateInterval time.Duration

	// HealthInterval is the health report cadence. Default: 30 seconds.
	HealthInterval time.Duration

	// QueueSize bounds the value queue. Default: 256.
	QueueSize int

	// Logger is optional structured logging.
	Logger Logger
}

// applyDefaults fills zero fields in place.
func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "implement"
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.StateInterval <= 0 {
		o.StateInterval = defaultStateInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Task == nil {
		return nil, fmt.Errorf("%w: task client is required", ErrInvalidOptions)
	}
	if opts.Bank == nil {
		return nil, fmt.Errorf("%w: section bank is required", ErrInvalidOptions)
	}
	if opts.Layout == nil {
		return nil, fmt.Errorf("%w: device layout is required", ErrInvalidOptions)
	}
	if opts.State == nil {
		return nil, fmt.Errorf("%w: shared state is required", ErrInvalidOptions)
	}
	opts.applyDefaults()

	b := &Bridge{
		mqtt:          opts.Client,
		task:          opts.Task,
		bank:          opts.Bank,
		layout:        opts.Layout,
		state:         opts.State,
		totals:        opts.Totals,
		qos:           opts.QoS,
		stateInterval: opts.StateInterval,
		values:        make(chan valueEvent, opts.QueueSize),
		done:          make(chan struct{}),
		logger:        opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Name:      opts.Name,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.Client,
		Task:      opts.Task,
		Sections:  opts.Bank.Count(),
		Stats:     b.statistics,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation. This subscribes to the command topics,
// starts the value and snapshot workers, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Subscribe to command topics
	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Start the publish workers
	b.wg.Add(2)
	go b.valueLoop(ctx)
	go b.stateLoop(ctx)

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial healthy status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("telemetry bridge started",
		"sections", b.bank.Count(),
		"state_interval", b.stateInterval)

	return nil
}

// Stop gracefully shuts down the bridge. Values still queued are
// dropped; retained topics keep their last published state.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for the publish workers
		b.wg.Wait()

		b.logInfo("telemetry bridge stopped")
	})
}

// ProcessValue implements the harness value sink. It queues the value
// for publication; the reporting callback must never block, so a full
// queue drops the value and the next scheduled report corrects the
// retained topic.
func (b *Bridge) ProcessValue(element uint16, ddi isobus.DDI, value int32) {
	select {
	case b.values <- valueEvent{element: element, ddi: ddi, value: value}:
	default:
		b.valuesDropped.Add(1)
		b.logDebug("value queue full, dropping",
			"element", element,
			"ddi", ddi.String())
	}
}

// valueLoop drains the value queue into retained value topics.
func (b *Bridge) valueLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.values:
			b.publishValue(ev)
		}
	}
}

// publishValue publishes one process value.
func (b *Bridge) publishValue(ev valueEvent) {
	msg := NewValueMessage(ev.element, ev.ddi, ev.value)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal value", err)
		return
	}

	topic := b.topics.Value(ev.element, uint16(ev.ddi))
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.logError("failed to publish value", err)
		return
	}
	b.valuesPublished.Add(1)
}

// stateLoop publishes section, totals, and task snapshots at the
// configured cadence, suppressing unchanged ones.
func (b *Bridge) stateLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.stateInterval)
	defer ticker.Stop()

	// Publish initial snapshots
	b.publishSnapshots()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.publishSnapshots()
		}
	}
}

// publishSnapshots runs one snapshot round.
func (b *Bridge) publishSnapshots() {
	b.publishSections()
	b.publishTotals()
	b.publishTask()
}

// publishSections publishes the section snapshot if it changed.
func (b *Bridge) publishSections() {
	msg := NewSectionsMessage(b.bank)

	b.stateMu.Lock()
	unchanged := b.lastSections != nil && msg.Equal(*b.lastSections)
	if !unchanged {
		b.lastSections = &msg
	}
	b.stateMu.Unlock()
	if unchanged {
		return
	}

	b.publishSnapshot(b.topics.SectionsState(), &msg)
}

// publishTotals publishes the totals snapshot if it changed. Without a
// totals source the topic stays silent.
func (b *Bridge) publishTotals() {
	if b.totals == nil {
		return
	}
	msg := NewTotalsMessage(b.totals.Snapshot())

	b.stateMu.Lock()
	unchanged := b.lastTotals != nil && msg.Equal(*b.lastTotals)
	if !unchanged {
		b.lastTotals = &msg
	}
	b.stateMu.Unlock()
	if unchanged {
		return
	}

	b.publishSnapshot(b.topics.TotalsState(), &msg)
}

// publishTask publishes the task session snapshot if it changed.
func (b *Bridge) publishTask() {
	msg := b.buildTaskMessage()

	b.stateMu.Lock()
	unchanged := b.lastTask != nil && msg.Equal(*b.lastTask)
	if !unchanged {
		b.lastTask = &msg
	}
	b.stateMu.Unlock()
	if unchanged {
		return
	}

	b.publishSnapshot(b.topics.TaskState(), &msg)
}

// buildTaskMessage assembles the session snapshot from the harness, the
// section bank, and the shared feed state.
func (b *Bridge) buildTaskMessage() TaskMessage {
	status := b.task.Status()
	return TaskMessage{
		Session:      status.SessionID,
		Running:      status.Running,
		AutoMode:     b.bank.AutoMode(),
		ActualWork:   b.bank.AnySectionOn(),
		SetpointWork: b.state.SetpointWorkState(),
		AuthResult:   b.state.AuthResult(),
		AuthWarning:  b.state.Warning(),
		Scheduled:    status.Reports.Entries,
		Timestamp:    time.Now().UTC(),
	}
}

// publishSnapshot marshals and publishes one retained snapshot message.
func (b *Bridge) publishSnapshot(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal snapshot", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.logError("failed to publish snapshot", err)
		return
	}
	b.statePublishes.Add(1)
}

// handleCommand processes one command message from the broker. The
// command name is the last topic segment; the payload carries its
// parameters. Rejected commands are acknowledged with an error and
// returned to the MQTT client, which logs them.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.commandsFailed.Add(1)
		return fmt.Errorf("invalid command topic: %s", topic)
	}
	name := parts[len(parts)-1]

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.commandsFailed.Add(1)
			b.publishAckError(cmd, name, ErrCodeInvalidParameters,
				fmt.Sprintf("malformed payload: %v", err))
			return fmt.Errorf("parsing %s command: %w", name, err)
		}
	}

	b.logInfo("received command",
		"command", name,
		"command_id", cmd.ID,
		"source", cmd.Source)

	var err error
	switch name {
	case CommandTargetRate:
		err = b.executeTargetRate(cmd)
	case CommandSections:
		err = b.executeSections(cmd)
	case CommandAutoMode:
		err = b.executeAutoMode(cmd)
	case CommandWorkState:
		err = b.executeWorkState(cmd)
	case CommandRefill:
		err = b.executeRefill(cmd)
	default:
		b.publishAckError(cmd, name, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", name))
		err = fmt.Errorf("unknown command: %s", name)
	}

	if err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	b.commandsHandled.Add(1)
	return nil
}

// executeTargetRate applies an application rate setpoint.
func (b *Bridge) executeTargetRate(cmd CommandMessage) error {
	if cmd.Value == nil {
		b.publishAckError(cmd, CommandTargetRate, ErrCodeInvalidParameters,
			"missing 'value'")
		return fmt.Errorf("target-rate: missing value")
	}
	if *cmd.Value < 0 {
		b.publishAckError(cmd, CommandTargetRate, ErrCodeInvalidParameters,
			fmt.Sprintf("'value' must be >= 0, got %d", *cmd.Value))
		return fmt.Errorf("target-rate: negative value %d", *cmd.Value)
	}

	b.task.CommandValue(b.layout.ProductElement, isobus.DDISetpointVolumePerAreaRate, *cmd.Value)
	b.publishAck(cmd, CommandTargetRate, AckAccepted)
	return nil
}

// executeSections applies a per-section setpoint sequence, encoded into
// one condensed work-state command per 16-section block.
func (b *Bridge) executeSections(cmd CommandMessage) error {
	if len(cmd.States) == 0 {
		b.publishAckError(cmd, CommandSections, ErrCodeInvalidParameters,
			"missing 'states'")
		return fmt.Errorf("sections: missing states")
	}
	if len(cmd.States) != b.bank.Count() {
		b.publishAckError(cmd, CommandSections, ErrCodeInvalidParameters,
			fmt.Sprintf("'states' has %d entries, implement has %d sections",
				len(cmd.States), b.bank.Count()))
		return fmt.Errorf("sections: got %d states for %d sections",
			len(cmd.States), b.bank.Count())
	}

	for block := 0; block < b.layout.Blocks; block++ {
		base := block * isobus.SectionsPerCondensedBlock
		inBlock := isobus.BlockSectionCount(b.layout.SectionCount, block)
		encoded := isobus.EncodeCondensedWorkState(inBlock, func(i int) bool {
			return cmd.States[base+i]
		})
		b.task.CommandValue(b.layout.BoomElement, isobus.SetpointCondensedWorkStateDDI(block), int32(encoded))
	}

	b.publishAck(cmd, CommandSections, AckAccepted)
	return nil
}

// executeAutoMode selects setpoint-driven or switch-driven control.
func (b *Bridge) executeAutoMode(cmd CommandMessage) error {
	if cmd.Enabled == nil {
		b.publishAckError(cmd, CommandAutoMode, ErrCodeInvalidParameters,
			"missing 'enabled'")
		return fmt.Errorf("auto-mode: missing enabled")
	}

	b.task.CommandValue(b.layout.BoomElement, isobus.DDISectionControlState, wireBool(*cmd.Enabled))
	b.publishAck(cmd, CommandAutoMode, AckAccepted)
	return nil
}

// executeWorkState applies the device-wide work-state setpoint.
func (b *Bridge) executeWorkState(cmd CommandMessage) error {
	if cmd.Enabled == nil {
		b.publishAckError(cmd, CommandWorkState, ErrCodeInvalidParameters,
			"missing 'enabled'")
		return fmt.Errorf("work-state: missing enabled")
	}

	b.task.CommandValue(b.layout.MainElement, isobus.DDISetpointWorkState, wireBool(*cmd.Enabled))
	b.publishAck(cmd, CommandWorkState, AckAccepted)
	return nil
}

// executeRefill resets the tank level and pushes the fresh reading so
// subscribers see it without waiting for the next scheduled report.
func (b *Bridge) executeRefill(cmd CommandMessage) error {
	if b.totals == nil {
		b.publishAckError(cmd, CommandRefill, ErrCodeNotConfigured,
			"no totals accumulator wired")
		return fmt.Errorf("refill: totals not configured")
	}

	level := b.totals.Refill()
	b.task.NotifyValueChanged(b.layout.ProductElement, isobus.DDIActualVolumeContent)

	b.logInfo("tank refilled by command",
		"command_id", cmd.ID,
		"tank_ml", level)
	b.publishAck(cmd, CommandRefill, AckAccepted)
	return nil
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, name string, status AckStatus) {
	ack := NewAckMessage(cmd, name, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(name), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, name, code, message string) {
	ack := NewAckError(cmd, name, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(name), payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command rejected",
		fmt.Errorf("command=%s code=%s message=%s", name, code, message))
}

// statistics snapshots the bridge counters for health reports.
func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		ValuesPublished: b.valuesPublished.Load(),
		ValuesDropped:   b.valuesDropped.Load(),
		CommandsHandled: b.commandsHandled.Load(),
		CommandsFailed:  b.commandsFailed.Load(),
		StatePublishes:  b.statePublishes.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if a logger is set.
func (b *Bridge) logInfo(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, args...)
	}
}

// logError logs an error message if a logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if a logger is set.
func (b *Bridge) logDebug(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// wireBool renders a boolean as the 0/1 wire convention.
func wireBool(on bool) int32 {
	if on {
		return 1
	}
	return 0
}

// BridgeMetrics contains metrics data for the diagnostics API.
type BridgeMetrics struct {
	Connected       bool
	Status          string
	ValuesPublished uint64
	ValuesDropped   uint64
	CommandsHandled uint64
	CommandsFailed  uint64
	StatePublishes  uint64
}

// GetMetrics returns current bridge metrics for the diagnostics API.
func (b *Bridge) GetMetrics() BridgeMetrics {
	connected := b.mqtt.IsConnected()
	status := "disconnected"
	if connected {
		status = "healthy"
	}

	return BridgeMetrics{
		Connected:       connected,
		Status:          status,
		ValuesPublished: b.valuesPublished.Load(),
		ValuesDropped:   b.valuesDropped.Load(),
		CommandsHandled: b.commandsHandled.Load(),
		CommandsFailed:  b.commandsFailed.Load(),
		StatePublishes:  b.statePublishes.Load(),
	}
}
