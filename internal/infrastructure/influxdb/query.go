package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// ValuePoint is one sample from a recorded process-value history.
type ValuePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// QueryValueHistory reads back the recorded history of one quantity.
//
// Parameters:
//   - element: device element number the quantity belongs to
//   - ddi: data dictionary identifier of the quantity
//   - since: how far back to read (must be positive)
//   - window: aggregation window; mean-downsampled when positive, raw
//     samples when zero
//
// Returns samples in ascending time order.
func (c *Client) QueryValueHistory(ctx context.Context, element uint16, ddi isobus.DDI, since, window time.Duration) ([]ValuePoint, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if since <= 0 {
		return nil, fmt.Errorf("since must be positive")
	}
	if window < 0 {
		return nil, fmt.Errorf("window must not be negative")
	}

	result, err := c.queryAPI.Query(ctx, historyFlux(c.cfg.Bucket, element, ddi, since, window))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	var points []ValuePoint
	for result.Next() {
		v, ok := asFloat(result.Record().Value())
		if !ok {
			continue
		}
		points = append(points, ValuePoint{
			Time:  result.Record().Time(),
			Value: v,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return points, nil
}

// historyFlux renders the Flux pipeline for one quantity's history.
// Element and DDI are numeric, so interpolating them is injection-safe;
// the bucket comes from configuration.
func historyFlux(bucket string, element uint16, ddi isobus.DDI, since, window time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "  |> range(start: -%s)\n", since)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", measurementProcessValue)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.element == \"%d\" and r.ddi == \"%d\")\n", element, uint16(ddi))
	b.WriteString("  |> filter(fn: (r) => r._field == \"value\")\n")
	if window > 0 {
		fmt.Fprintf(&b, "  |> aggregateWindow(every: %s, fn: mean, createEmpty: false)\n", window)
	}
	b.WriteString("  |> sort(columns: [\"_time\"])")
	return b.String()
}

// asFloat widens the field value the server hands back. Raw samples
// come back as int64, aggregated ones as float64.
func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
