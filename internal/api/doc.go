// Package api implements the HTTP REST API and WebSocket server for the
// implement terminal.
//
// This package provides:
//   - REST endpoints for section control, process values, work totals,
//     and the device descriptor
//   - WebSocket hub for real-time process-value broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between the operator's cab display (or a service
// laptop) and the task-controller harness. Reads go straight to the
// section bank, the shared state, and the latest-value cache; writes to
// the section endpoints act as the operator's switch box and are
// announced to the harness through change notifications. Every value the
// harness reports is also fanned out to WebSocket clients through the
// hub, which the harness drives as one of its value sinks.
//
// # Graceful Degradation
//
// The server operates without the history store and without the totals
// accumulator. The affected endpoints return 503 service_unavailable and
// everything else keeps working, which is the normal state on a bench
// rig without InfluxDB.
package api
