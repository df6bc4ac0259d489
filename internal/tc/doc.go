// Package tc is the task-controller client harness: the boundary object
// between the implement model and whatever carries process data to a
// task controller.
//
// A wire-level ISO 11783-10 client would own address claiming, the
// session handshake, object-pool upload, and the measurement commands a
// TC server sends to subscribe to values. None of that protocol lives
// here. The harness keeps the client's shape without the wire: it holds
// the validated device descriptor, answers value requests and applies
// value commands through the dispatcher, derives a reporting plan from
// the descriptor's own trigger flags, and fans every reported value out
// to registered sinks (the MQTT telemetry bridge, the websocket hub).
//
// # Components
//
//   - Client: owns the descriptor, the session ID, the sinks, and the
//     request/command/notify surface
//   - Scheduler: drives unsolicited reports for default-set quantities
//     (time-interval, on-change, and threshold-gated change)
//   - Registry: latest-value cache behind the diagnostics API
//
// Each configure cycle gets a fresh session ID, logged at startup and
// reported through Status.
package tc
