// Package process provides generic subprocess lifecycle management.
//
// The daemon uses it to keep helper processes alive alongside itself,
// typically the NMEA feeder shim (a socat pty bridge or a sentence
// replayer) that serves the positioning feed endpoint.
//
// Features:
//   - Start/stop subprocess with graceful shutdown (SIGTERM, then SIGKILL)
//   - Automatic restart on failure with exponential backoff
//   - Restart budget that resets after a stable run
//   - Watchdog health checks that kill and restart a hung process
//   - Log capture from subprocess stdout/stderr
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "feeder",
//	    Binary:           "/usr/bin/socat",
//	    Args:             []string{"tcp-listen:10110,reuseaddr,fork", "/dev/ttyACM0,b115200"},
//	    RestartOnFailure: true,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
