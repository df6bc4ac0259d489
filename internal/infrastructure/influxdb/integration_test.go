//go:build integration

package influxdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bresilla/tractor-isobus/internal/infrastructure/config"
	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// testConfig returns a configuration for the local dev InfluxDB.
// These values match docker-compose.yml.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "tractor-dev-token",
		Org:           "tractor",
		Bucket:        "isobus",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	return client
}

func TestIntegrationConnectAndHealth(t *testing.T) {
	client := connectOrSkip(t)
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegrationWriteAndQueryRoundTrip(t *testing.T) {
	client := connectOrSkip(t)
	defer client.Close()

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteProcessValue(9, isobus.DDIActualVolumePerAreaRate, 9800)
	client.WriteSessionEvent("integration-test", "started")
	client.Flush()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	if writeErr != nil {
		t.Fatalf("Write error = %v", writeErr)
	}
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	points, err := client.QueryValueHistory(ctx, 9, isobus.DDIActualVolumePerAreaRate, time.Hour, 0)
	if err != nil {
		t.Fatalf("QueryValueHistory() error = %v", err)
	}
	if len(points) == 0 {
		t.Fatal("QueryValueHistory() returned no points after write")
	}

	last := points[len(points)-1]
	if last.Value != 9800 {
		t.Errorf("Last value = %v, want 9800", last.Value)
	}
}

func TestIntegrationClose(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteProcessValue(0, isobus.DDIActualWorkState, 1)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes and flushes after Close are no-ops
	client.WriteProcessValue(0, isobus.DDIActualWorkState, 0)
	client.Flush()
}
