package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// Measurement names used by the history store.
const (
	measurementProcessValue = "process_value"
	measurementSessionEvent = "session_event"
)

// processValuePoint builds the point for one reported process value.
// Element and DDI are tags so each quantity forms its own series; the
// raw dictionary value is the field.
func processValuePoint(element uint16, ddi isobus.DDI, value int32, ts time.Time) *write.Point {
	tags := map[string]string{
		"element": strconv.FormatUint(uint64(element), 10),
		"ddi":     strconv.FormatUint(uint64(ddi), 10),
	}
	if def := isobus.LookupDDI(ddi); def != nil {
		tags["designator"] = def.Designator
	}

	return write.NewPoint(
		measurementProcessValue,
		tags,
		map[string]interface{}{
			"value": int64(value),
		},
		ts,
	)
}

// WriteProcessValue records one reported process value.
//
// This is the primary recording path: the harness's value sink feeds
// every published value through here. The write is non-blocking; data
// is batched and sent asynchronously.
//
// Example:
//
//	client.WriteProcessValue(9, isobus.DDIActualVolumePerAreaRate, 9800)
func (c *Client) WriteProcessValue(element uint16, ddi isobus.DDI, value int32) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(processValuePoint(element, ddi, value, time.Now()))
}

// sessionEventPoint builds the point for one session lifecycle event.
func sessionEventPoint(session, event string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementSessionEvent,
		map[string]string{
			"session": session,
		},
		map[string]interface{}{
			"event": event,
		},
		ts,
	)
}

// WriteSessionEvent records a task controller session lifecycle mark
// (e.g. "started", "stopped"), so histories can be segmented by
// configure cycle.
func (c *Client) WriteSessionEvent(session, event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sessionEventPoint(session, event, time.Now()))
}
