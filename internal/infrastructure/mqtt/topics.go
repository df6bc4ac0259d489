package mqtt

import "fmt"

// Topic prefixes for the implement daemon's MQTT surface.
//
// The daemon publishes under the flat scheme: isobus/{category}/...
// Process values carry the device element number and DDI in the topic so
// recorders can subscribe to exactly the signals they care about.
const (
	// TopicPrefix is the base for all implement topics.
	TopicPrefix = "isobus"

	// TopicPrefixImplement is the base for daemon lifecycle topics.
	TopicPrefixImplement = "isobus/implement"

	// TopicPrefixCommand is the base for inbound command topics.
	TopicPrefixCommand = "isobus/command"
)

// Topics provides builders for implement MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	valueTopic := topics.Value(2, 2)
//	// Returns: "isobus/value/2/2"
type Topics struct{}

// =============================================================================
// Outbound Topics
// =============================================================================

// Value returns the topic for a process value update from the implement.
// Element and DDI are rendered in decimal.
//
// Example: isobus/value/2/2 (boom element, actual application rate)
func (Topics) Value(element, ddi uint16) string {
	return fmt.Sprintf("%s/value/%d/%d", TopicPrefix, element, ddi)
}

// SectionsState returns the topic for the per-section on/off summary.
//
// Example: isobus/sections/state
func (Topics) SectionsState() string {
	return fmt.Sprintf("%s/sections/state", TopicPrefix)
}

// TotalsState returns the topic for lifetime totals snapshots.
//
// Example: isobus/totals/state
func (Topics) TotalsState() string {
	return fmt.Sprintf("%s/totals/state", TopicPrefix)
}

// TaskState returns the topic for task controller session state.
//
// Example: isobus/task/state
func (Topics) TaskState() string {
	return fmt.Sprintf("%s/task/state", TopicPrefix)
}

// ImplementStatus returns the daemon online/offline status topic.
// This is also the Last Will topic, so subscribers see crashes too.
//
// Example: isobus/implement/status
func (Topics) ImplementStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixImplement)
}

// TelemetryHealth returns the topic for the telemetry bridge's periodic
// health reports. Distinct from ImplementStatus, which is the broker
// connection's own online/offline flag.
//
// Example: isobus/telemetry/health
func (Topics) TelemetryHealth() string {
	return fmt.Sprintf("%s/telemetry/health", TopicPrefix)
}

// Ack returns the topic for command acknowledgments, mirroring the
// command topic the request arrived on.
//
// Example: isobus/ack/target-rate
func (Topics) Ack(name string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, name)
}

// =============================================================================
// Inbound Topics
// =============================================================================

// Command returns the topic for a named command to the implement.
//
// Example: isobus/command/target-rate
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, name)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllValues returns a pattern matching every process value topic.
//
// Pattern: isobus/value/+/+
func (Topics) AllValues() string {
	return fmt.Sprintf("%s/value/+/+", TopicPrefix)
}

// ElementValues returns a pattern matching all values of one device element.
//
// Pattern: isobus/value/2/+
func (Topics) ElementValues(element uint16) string {
	return fmt.Sprintf("%s/value/%d/+", TopicPrefix, element)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: isobus/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+", TopicPrefixCommand)
}

// AllTopics returns a pattern matching all implement topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: isobus/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
