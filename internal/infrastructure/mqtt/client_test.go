package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bresilla/tractor-isobus/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "isobus-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// unconnectedClient returns a client that has never connected. Validation
// paths run before any broker traffic, so they are testable without one.
func unconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func (l *mockLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := unconnectedClient()

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := unconnectedClient()

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := unconnectedClient()

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := unconnectedClient()

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	client := unconnectedClient()

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := unconnectedClient()

	err := client.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := unconnectedClient()

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := unconnectedClient()

	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}

	if client.HasSubscription("test/topic") {
		t.Error("failed Subscribe() must not leave a tracked subscription")
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := unconnectedClient()

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestUnsubscribeDisconnected(t *testing.T) {
	client := unconnectedClient()

	err := client.Unsubscribe("test/topic")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	client := unconnectedClient()

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := unconnectedClient()

	if client.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for unsubscribed topic")
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := unconnectedClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := unconnectedClient()

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestWrapHandlerLogsError(t *testing.T) {
	client := unconnectedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		return errors.New("handler error")
	})

	wrapped(nil, &fakeMessage{topic: "isobus/command/target-rate", payload: []byte(`{}`)})

	if logger.warnCount() != 1 {
		t.Errorf("handler error should log one warning, got %d", logger.warnCount())
	}
}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	client := unconnectedClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("handler exploded")
	})

	// Must not propagate the panic.
	wrapped(nil, &fakeMessage{topic: "isobus/command/sections", payload: []byte(`{}`)})

	if logger.errorCount() != 1 {
		t.Errorf("handler panic should log one error, got %d", logger.errorCount())
	}
}

func TestWrapHandlerNilLogger(t *testing.T) {
	client := unconnectedClient()

	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("handler exploded")
	})

	// No logger set; recovery must still swallow the panic.
	wrapped(nil, &fakeMessage{topic: "isobus/command/refill"})
}

func TestSetLogger(t *testing.T) {
	client := unconnectedClient()

	logger := &mockLogger{}
	client.SetLogger(logger)

	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)

	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "tractor"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("Servers count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want %q", got, "tcp://127.0.0.1:1883")
	}
	if opts.ClientID != "isobus-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "isobus-test")
	}
	if opts.Username != "tractor" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want tractor/secret", opts.Username, opts.Password)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("broker scheme = %q, want %q", got, "ssl")
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil, want configured")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "isobus-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "isobus/implement/status" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "isobus/implement/status")
	}
	if opts.WillQos != 1 {
		t.Errorf("WillQos = %d, want 1", opts.WillQos)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}

	var payload struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("LWT payload is not valid JSON: %v", err)
	}
	if payload.Status != "offline" {
		t.Errorf("LWT status = %q, want %q", payload.Status, "offline")
	}
	if payload.Reason != "unexpected_disconnect" {
		t.Errorf("LWT reason = %q, want %q", payload.Reason, "unexpected_disconnect")
	}
	if payload.ClientID != "isobus-test" {
		t.Errorf("LWT client_id = %q, want %q", payload.ClientID, "isobus-test")
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("tractor-01"), "online", ""},
		{"offline", buildOfflinePayload("tractor-01"), "offline", "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Status    string `json:"status"`
				ClientID  string `json:"client_id"`
				Reason    string `json:"reason"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal([]byte(tt.payload), &got); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.ClientID != "tractor-01" {
				t.Errorf("client_id = %q, want %q", got.ClientID, "tractor-01")
			}
			if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
				t.Errorf("timestamp %q is not RFC3339: %v", got.Timestamp, err)
			}
		})
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "Value",
			builder: func() string {
				return Topics{}.Value(2, 2)
			},
			expected: "isobus/value/2/2",
		},
		{
			name: "ValueSection",
			builder: func() string {
				return Topics{}.Value(4, 141)
			},
			expected: "isobus/value/4/141",
		},
		{
			name: "SectionsState",
			builder: func() string {
				return Topics{}.SectionsState()
			},
			expected: "isobus/sections/state",
		},
		{
			name: "TotalsState",
			builder: func() string {
				return Topics{}.TotalsState()
			},
			expected: "isobus/totals/state",
		},
		{
			name: "TaskState",
			builder: func() string {
				return Topics{}.TaskState()
			},
			expected: "isobus/task/state",
		},
		{
			name: "ImplementStatus",
			builder: func() string {
				return Topics{}.ImplementStatus()
			},
			expected: "isobus/implement/status",
		},
		{
			name: "TelemetryHealth",
			builder: func() string {
				return Topics{}.TelemetryHealth()
			},
			expected: "isobus/telemetry/health",
		},
		{
			name: "Command",
			builder: func() string {
				return Topics{}.Command("target-rate")
			},
			expected: "isobus/command/target-rate",
		},
		{
			name: "Ack",
			builder: func() string {
				return Topics{}.Ack("refill")
			},
			expected: "isobus/ack/refill",
		},
		{
			name: "AllValues",
			builder: func() string {
				return Topics{}.AllValues()
			},
			expected: "isobus/value/+/+",
		},
		{
			name: "ElementValues",
			builder: func() string {
				return Topics{}.ElementValues(2)
			},
			expected: "isobus/value/2/+",
		},
		{
			name: "AllCommands",
			builder: func() string {
				return Topics{}.AllCommands()
			},
			expected: "isobus/command/+",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "isobus/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}
