// Package telemetry mirrors the implement onto MQTT and routes broker
// commands back into the task controller harness.
//
// # Architecture
//
// The bridge sits between the harness and the broker:
//
//	┌─────────────────┐            ┌─────────────────┐
//	│ Task Controller │   values   │ Telemetry Bridge│   MQTT
//	│     Harness     │───────────►│   (this pkg)    │◄────────► Broker
//	└─────────────────┘  commands  └─────────────────┘
//	                   ◄───────────
//
// Process values the harness reports (scheduled, on-change, or on
// request) are pushed into the bridge through its ProcessValue sink and
// published retained, one topic per element/DDI pair. Alongside the raw
// values the bridge publishes aggregated section, totals, and task
// snapshots once per second, suppressing unchanged ones so the topics
// stay quiet on an idle implement.
//
// # Topics
//
// Outbound (retained unless noted):
//
//	isobus/value/{element}/{ddi}  one process value
//	isobus/sections/state         section bank snapshot
//	isobus/totals/state           lifetime and tank counters
//	isobus/task/state             session snapshot
//	isobus/telemetry/health       periodic health report
//	isobus/ack/{command}          command acknowledgment (not retained)
//
// Inbound:
//
//	isobus/command/{command}      target-rate, sections, auto-mode,
//	                              work-state, refill
//
// Commands are routed into the harness as commanded process values, so
// a rate change from the broker takes the same path through the
// dispatcher as one from the task controller.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines. ProcessValue never blocks; a full queue drops the value
// and the next scheduled report corrects the retained topic.
package telemetry
