package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrNotConnected) {
//	    // Handle disconnected state
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrQueryFailed indicates a history query failed.
	ErrQueryFailed = errors.New("influxdb: query failed")

	// ErrDisabled indicates the history store is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
