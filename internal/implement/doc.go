// Package implement models the sprayer implement a task controller talks
// to: its section bank, its device description, and the process-data
// callbacks that bridge the two.
//
// # Architecture
//
// The package sits between the machine state and the task-controller
// client harness:
//
//	┌──────────────┐   request /   ┌──────────────┐   reads    ┌──────────────┐
//	│      TC      │   command     │  Dispatcher  │──────────► │ SectionBank  │
//	│    Client    │◄─────────────►│  (this pkg)  │            │ SharedState  │
//	└──────────────┘               └──────────────┘◄────────── └──────────────┘
//	       ▲                                          writes
//	       │ object pool
//	┌──────┴───────┐
//	│ DDOP Builder │
//	└──────────────┘
//
// # Key Responsibilities
//
//   - Hold per-section setpoint and manual switch state with lock-free reads
//   - Derive actual section state from the auto/manual mode selector
//   - Build the device descriptor object pool for a sectioned sprayer
//   - Dispatch process-data value requests and commands by (element, DDI)
//   - Carry the GNSS authentication verdict from the feed to the dispatcher
//
// # Concurrency
//
// The task-controller client invokes the request and command callbacks
// sequentially on its own goroutine while the NMEA feed consumer writes
// the shared authentication state from another. Every cross-goroutine
// field is an atomic; no callback path takes a lock, blocks, or performs
// I/O.
package implement
