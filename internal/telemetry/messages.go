package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/isobus"
	"github.com/bresilla/tractor-isobus/internal/totals"
)

// MQTT message types exchanged between the implement daemon and the
// dashboards, recorders, and operator tools on the broker side.

// Command names accepted on isobus/command/{name}. The name selects the
// handler; the payload carries its parameters.
const (
	// CommandTargetRate sets the application rate setpoint.
	// Payload: {"value": <mm³/m²>}
	CommandTargetRate = "target-rate"

	// CommandSections sets the per-section setpoint sequence.
	// Payload: {"states": [true, false, ...]}, one entry per section.
	CommandSections = "sections"

	// CommandAutoMode selects setpoint-driven (true) or switch-driven
	// (false) section control.
	// Payload: {"enabled": <bool>}
	CommandAutoMode = "auto-mode"

	// CommandWorkState sets the device-wide work-state setpoint.
	// Payload: {"enabled": <bool>}
	CommandWorkState = "work-state"

	// CommandRefill resets the tank level to the configured capacity.
	// Payload: {} (no parameters)
	CommandRefill = "refill"
)

// CommandMessage is a command sent to the implement.
// Topic: isobus/command/{name}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment. Optional.
	ID string `json:"id,omitempty"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Value is the numeric parameter for value-style commands.
	Value *int32 `json:"value,omitempty"`

	// Enabled is the boolean parameter for mode-style commands.
	Enabled *bool `json:"enabled,omitempty"`

	// States is the per-section sequence for the sections command.
	States []bool `json:"states,omitempty"`

	// Source indicates where the command originated (e.g. "dashboard").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was applied to the implement.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected.
	AckFailed AckStatus = "failed"
)

// Error codes for rejected commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// AckMessage acknowledges a command.
// Topic: isobus/ack/{name}
// QoS: 1, Retained: No
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id,omitempty"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name the acknowledgment answers.
	Command string `json:"command"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for rejected commands.
type AckError struct {
	// Code is the error code (e.g. "INVALID_PARAMETERS").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// ValueMessage is one reported process-data value.
// Topic: isobus/value/{element}/{ddi}
// QoS: configured, Retained: Yes
type ValueMessage struct {
	// Element is the device element number the value belongs to.
	Element uint16 `json:"element"`

	// DDI is the data dictionary identifier of the quantity.
	DDI uint16 `json:"ddi"`

	// Designator is the dictionary name of the quantity, when known.
	Designator string `json:"designator,omitempty"`

	// Value is the raw wire value.
	Value int32 `json:"value"`

	// Unit is the dictionary display unit, when the quantity has one.
	Unit string `json:"unit,omitempty"`

	// Timestamp is when the value was reported (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// SectionsMessage is a snapshot of the section bank.
// Topic: isobus/sections/state
// QoS: configured, Retained: Yes
type SectionsMessage struct {
	// Count is the number of installed sections.
	Count int `json:"count"`

	// AutoMode reports whether setpoints or switches drive the sections.
	AutoMode bool `json:"auto_mode"`

	// Actual is the effective on/off state per section.
	Actual []bool `json:"actual"`

	// Setpoint is the task-controller-commanded state per section.
	Setpoint []bool `json:"setpoint"`

	// Switches is the operator's manual switch position per section.
	Switches []bool `json:"switches"`

	// ActualOn is the number of sections effectively on.
	ActualOn int `json:"actual_on"`

	// TargetRate is the commanded application rate in mm³/m².
	TargetRate int32 `json:"target_rate"`

	// ActualRate is the effective application rate in mm³/m².
	ActualRate int32 `json:"actual_rate"`

	// Timestamp is when the snapshot was taken (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// TotalsMessage is a snapshot of the lifetime counters.
// Topic: isobus/totals/state
// QoS: configured, Retained: Yes
type TotalsMessage struct {
	// EffectiveTimeS is the accumulated working time in seconds.
	EffectiveTimeS int32 `json:"effective_time_s"`

	// TotalAreaM2 is the accumulated worked area in square metres.
	TotalAreaM2 int32 `json:"total_area_m2"`

	// LifetimeVolumeML is the total applied volume in millilitres.
	LifetimeVolumeML int32 `json:"lifetime_volume_ml"`

	// TankVolumeML is the current tank level in millilitres.
	TankVolumeML int32 `json:"tank_volume_ml"`

	// Timestamp is when the snapshot was taken (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// TaskMessage is a snapshot of the task controller session.
// Topic: isobus/task/state
// QoS: configured, Retained: Yes
type TaskMessage struct {
	// Session is the current configure cycle's session identifier.
	Session string `json:"session"`

	// Running reports whether scheduled reporting is active.
	Running bool `json:"running"`

	// AutoMode reports the section control mode.
	AutoMode bool `json:"auto_mode"`

	// ActualWork reports whether any section is applying product.
	ActualWork bool `json:"actual_work"`

	// SetpointWork is the commanded device-wide work state.
	SetpointWork bool `json:"setpoint_work"`

	// AuthResult is the most recent authentication result from the feed.
	AuthResult int32 `json:"auth_result"`

	// AuthWarning is the most recent warning flag from the feed.
	AuthWarning int32 `json:"auth_warning"`

	// Scheduled is the number of quantities under trigger scheduling.
	Scheduled int `json:"scheduled"`

	// Timestamp is when the snapshot was taken (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the telemetry bridge's operational status.
// Topic: isobus/telemetry/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Implement is the implement identifier from configuration.
	Implement string `json:"implement"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the daemon software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Statistics contains operational counters.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Sections is the number of installed sections.
	Sections int `json:"sections"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains the bridge's operational counters.
type BridgeStatistics struct {
	// ValuesPublished is the number of process values put on the broker.
	ValuesPublished uint64 `json:"values_published"`

	// ValuesDropped is the number of values lost to a full queue.
	ValuesDropped uint64 `json:"values_dropped"`

	// CommandsHandled is the number of commands applied.
	CommandsHandled uint64 `json:"commands_handled"`

	// CommandsFailed is the number of commands rejected.
	CommandsFailed uint64 `json:"commands_failed"`

	// StatePublishes is the number of snapshot messages published.
	StatePublishes uint64 `json:"state_publishes"`
}

// NewValueMessage builds a value message, resolving the designator and
// unit from the DDI dictionary when the quantity is known.
func NewValueMessage(element uint16, ddi isobus.DDI, value int32) ValueMessage {
	msg := ValueMessage{
		Element:   element,
		DDI:       uint16(ddi),
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
	if def := isobus.LookupDDI(ddi); def != nil {
		msg.Designator = def.Designator
		msg.Unit = def.Unit
	}
	return msg
}

// NewSectionsMessage snapshots the section bank.
func NewSectionsMessage(bank *implement.SectionBank) SectionsMessage {
	n := bank.Count()
	msg := SectionsMessage{
		Count:      n,
		AutoMode:   bank.AutoMode(),
		Actual:     make([]bool, n),
		Setpoint:   make([]bool, n),
		Switches:   make([]bool, n),
		TargetRate: bank.TargetRate(),
		ActualRate: bank.ActualRate(),
		Timestamp:  time.Now().UTC(),
	}
	for i := 0; i < n; i++ {
		msg.Actual[i] = bank.ActualState(i)
		msg.Setpoint[i] = bank.SetpointState(i)
		msg.Switches[i] = bank.SwitchState(i)
		if msg.Actual[i] {
			msg.ActualOn++
		}
	}
	return msg
}

// NewTotalsMessage renders the accumulator's counters at wire precision.
func NewTotalsMessage(s totals.State) TotalsMessage {
	return TotalsMessage{
		EffectiveTimeS:   wireCount(s.EffectiveTimeS),
		TotalAreaM2:      wireCount(s.TotalAreaM2),
		LifetimeVolumeML: wireCount(s.LifetimeVolumeML),
		TankVolumeML:     wireCount(s.TankVolumeML),
		Timestamp:        time.Now().UTC(),
	}
}

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, command string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Status:    status,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, command, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Status:    AckFailed,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(implementName, version string, status HealthStatus, stats BridgeStatistics, sections int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Implement:     implementName,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Statistics:    &stats,
		Sections:      sections,
	}
}

// Equal reports whether two snapshots carry the same section state,
// ignoring timestamps. Used for publish-on-change suppression.
func (m SectionsMessage) Equal(o SectionsMessage) bool {
	if m.Count != o.Count || m.AutoMode != o.AutoMode || m.ActualOn != o.ActualOn ||
		m.TargetRate != o.TargetRate || m.ActualRate != o.ActualRate {
		return false
	}
	return boolsEqual(m.Actual, o.Actual) &&
		boolsEqual(m.Setpoint, o.Setpoint) &&
		boolsEqual(m.Switches, o.Switches)
}

// Equal reports whether two snapshots carry the same counters, ignoring
// timestamps.
func (m TotalsMessage) Equal(o TotalsMessage) bool {
	m.Timestamp = time.Time{}
	o.Timestamp = time.Time{}
	return m == o
}

// Equal reports whether two snapshots carry the same session state,
// ignoring timestamps.
func (m TaskMessage) Equal(o TaskMessage) bool {
	m.Timestamp = time.Time{}
	o.Timestamp = time.Time{}
	return m == o
}

// boolsEqual compares two bool slices element-wise; Go's == operator
// cannot compare slices directly.
func boolsEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// wireCount rounds a non-negative counter down to the int32 wire range.
func wireCount(v float64) int32 {
	if v <= 0 {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

// JSON marshalling helpers

// MarshalJSON marshals a CommandMessage with an explicit RFC3339
// timestamp string.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage, tolerating a missing
// timestamp. Senders on the broker side are not all trustworthy clocks.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}
