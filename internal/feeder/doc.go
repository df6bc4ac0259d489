// Package feeder supervises the process that serves the NMEA feed.
//
// The daemon reads position sentences from a TCP or Unix socket (see
// internal/nmea). Something has to put sentences on that socket: a socat
// bridge exposing a serial GNSS receiver, a gpsd shim, or a replayer
// playing back a recorded drive. This package runs that program as a
// child of the daemon, providing:
//
//   - Startup gated on the feed endpoint accepting connections
//   - Automatic restart with exponential backoff on failure
//   - Health monitoring (process state plus endpoint reachability)
//   - Graceful shutdown coordination
//
// Supervision is optional. With feeder.enabled false the daemon expects
// the endpoint to be served externally (systemd unit, remote receiver)
// and connects without managing anything.
//
// Example configuration (in config.yaml):
//
//	feed:
//	  connection: "tcp://localhost:10110"
//	feeder:
//	  enabled: true
//	  command: "/usr/bin/socat"
//	  args: ["tcp-listen:10110,reuseaddr,fork", "/dev/ttyACM0,b38400,raw"]
//
// The low-level restart machinery lives in internal/process; this package
// adds the feed-specific pieces: readiness, health probes, and stats.
package feeder
