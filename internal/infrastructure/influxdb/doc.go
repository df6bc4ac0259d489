// Package influxdb is the daemon's process-data history store.
//
// It wraps the official influxdb-client-go v2 library: every value the
// task controller harness reports is recorded as a point (non-blocking,
// batched), and the diagnostics API reads histories back through Flux.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Record reported values
//	client.WriteProcessValue(9, isobus.DDIActualVolumePerAreaRate, 9800)
//
//	// Read a quantity's last hour, minute-averaged
//	points, err := client.QueryValueHistory(ctx, 9,
//	    isobus.DDIActualVolumePerAreaRate, time.Hour, time.Minute)
//
// # Schema
//
// Measurement "process_value": tags element, ddi, designator; field
// value (raw dictionary units, int64). One series per quantity.
// Measurement "session_event": tag session; field event, marking
// configure-cycle boundaries.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, so the
// harness's reporting path never waits on the network.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors surface via the
// SetOnError callback. Connection, health check, and query errors are
// returned directly.
package influxdb
