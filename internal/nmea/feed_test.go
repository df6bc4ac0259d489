package nmea

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func TestParseFeedURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{
			name:        "unix socket",
			url:         "unix:///run/gnss/nmea",
			wantNetwork: "unix",
			wantAddress: "/run/gnss/nmea",
		},
		{
			name:        "tcp with host and port",
			url:         "tcp://localhost:10110",
			wantNetwork: "tcp",
			wantAddress: "localhost:10110",
		},
		{
			name:        "tcp with IP",
			url:         "tcp://192.168.5.20:10110",
			wantNetwork: "tcp",
			wantAddress: "192.168.5.20:10110",
		},
		{
			name:        "tcp without host defaults",
			url:         "tcp://",
			wantNetwork: "tcp",
			wantAddress: "localhost:10110",
		},
		{
			name:    "unsupported scheme",
			url:     "http://localhost:10110",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			url:     "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address, err := parseFeedURL(tt.url)

			if tt.wantErr {
				if err == nil {
					t.Error("parseFeedURL() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("parseFeedURL() unexpected error: %v", err)
				return
			}

			if network != tt.wantNetwork {
				t.Errorf("network = %q, want %q", network, tt.wantNetwork)
			}
			if address != tt.wantAddress {
				t.Errorf("address = %q, want %q", address, tt.wantAddress)
			}
		})
	}
}

func TestFeedConfigDefaults(t *testing.T) {
	if defaultConnectTimeout != 10*time.Second {
		t.Errorf("defaultConnectTimeout = %v, want 10s", defaultConnectTimeout)
	}
	if defaultReadTimeout != 30*time.Second {
		t.Errorf("defaultReadTimeout = %v, want 30s", defaultReadTimeout)
	}
	if defaultReconnectInterval != 5*time.Second {
		t.Errorf("defaultReconnectInterval = %v, want 5s", defaultReconnectInterval)
	}
}

func TestFeedStats(t *testing.T) {
	client := &FeedClient{
		done: newCloseOnce(),
	}
	client.lastActivity.Store(time.Now().Unix())

	stats := client.Stats()
	if stats.SentencesRx != 0 {
		t.Errorf("SentencesRx = %d, want 0", stats.SentencesRx)
	}
	if stats.Connected {
		t.Error("Connected = true, want false")
	}

	// Simulate activity
	client.sentencesRx.Add(5)
	client.sentencesIgnored.Add(3)
	client.parseFailures.Add(1)
	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	stats = client.Stats()
	if stats.SentencesRx != 5 {
		t.Errorf("SentencesRx = %d, want 5", stats.SentencesRx)
	}
	if stats.SentencesIgnored != 3 {
		t.Errorf("SentencesIgnored = %d, want 3", stats.SentencesIgnored)
	}
	if stats.ParseFailures != 1 {
		t.Errorf("ParseFailures = %d, want 1", stats.ParseFailures)
	}
	if !stats.Connected {
		t.Error("Connected = false, want true")
	}
}

func TestFeedClientHealthCheck(t *testing.T) {
	client := &FeedClient{
		done: newCloseOnce(),
	}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}

func TestFeedClientHandleLine(t *testing.T) {
	client := &FeedClient{
		done:          newCloseOnce(),
		callbackQueue: make(chan Sentence, callbackQueueSize),
	}

	client.handleLine("$GPGGA,123456,4807.038,N*2D")
	client.handleLine("$PHTG,121212,123456,GPS,RTK,1,0*5A") // wrong checksum
	client.handleLine("$PHTG,121212,123456,GPS,RTK,1,0*07")
	client.handleLine("   ")

	stats := client.Stats()
	if stats.SentencesIgnored != 1 {
		t.Errorf("SentencesIgnored = %d, want 1", stats.SentencesIgnored)
	}
	if stats.ParseFailures != 1 {
		t.Errorf("ParseFailures = %d, want 1", stats.ParseFailures)
	}
	if stats.SentencesRx != 1 {
		t.Errorf("SentencesRx = %d, want 1", stats.SentencesRx)
	}
}

// MockFeedServer simulates a GNSS receiver feed for testing.
type MockFeedServer struct {
	listener net.Listener
	conn     net.Conn
	mu       sync.Mutex
	done     chan struct{}
}

// NewMockFeedServer creates a mock feed listening on a loopback port.
func NewMockFeedServer(t *testing.T) *MockFeedServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	server := &MockFeedServer{
		listener: listener,
		done:     make(chan struct{}),
	}

	go server.acceptLoop()
	return server
}

func (s *MockFeedServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *MockFeedServer) Address() string {
	return s.listener.Addr().String()
}

// SendLine writes one feed line with the CRLF terminator.
func (s *MockFeedServer) SendLine(t *testing.T, line string) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
				t.Fatalf("SendLine write: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("SendLine: no client connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *MockFeedServer) Close() {
	close(s.done)
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.listener.Close()
}

func TestFeedClientReceivesSentences(t *testing.T) {
	server := NewMockFeedServer(t)
	defer server.Close()

	cfg := FeedConfig{
		Connection:     "tcp://" + server.Address(),
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}

	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	received := make(chan Sentence, 16)
	client.SetOnSentence(func(s Sentence) { received <- s })

	// A position sentence and a corrupted report around the real one.
	server.SendLine(t, "$GPGGA,123456,4807.038,N*2D")
	server.SendLine(t, "$PHTG,121212,123456,GPS,RTK,1,0*5A")
	server.SendLine(t, "$PHTG,121212,123456,GPS,RTK,1,0*07")

	select {
	case got := <-received:
		want := Sentence{Date: "121212", Time: "123456", System: "GPS", Service: "RTK", AuthResult: 1}
		if got != want {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sentence received")
	}

	// Only the valid report must have been delivered.
	select {
	case extra := <-received:
		t.Errorf("unexpected extra sentence: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	stats := client.Stats()
	if stats.SentencesRx != 1 {
		t.Errorf("SentencesRx = %d, want 1", stats.SentencesRx)
	}
	if stats.SentencesIgnored != 1 {
		t.Errorf("SentencesIgnored = %d, want 1", stats.SentencesIgnored)
	}
	if stats.ParseFailures != 1 {
		t.Errorf("ParseFailures = %d, want 1", stats.ParseFailures)
	}
}

func TestFeedClientCloseTwice(t *testing.T) {
	server := NewMockFeedServer(t)
	defer server.Close()

	client, err := Connect(context.Background(), FeedConfig{
		Connection:     "tcp://" + server.Address(),
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
