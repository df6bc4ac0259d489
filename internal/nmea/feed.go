package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for the receiver feed.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the longest silence tolerated before the feed
	// is treated as lost. The receiver reports once per second, so half a
	// minute of nothing means the stream is dead.
	defaultReadTimeout = 30 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// maxLineLength caps one feed line. NMEA 0183 limits sentences to 82
	// characters; anything far past that means framing is lost.
	maxLineLength = 256

	// callbackQueueSize is the buffer size for the sentence callback queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of concurrent callback workers.
	callbackWorkerCount = 2
)

// FeedConfig holds receiver feed connection configuration.
type FeedConfig struct {
	// Connection is the feed connection URL.
	// Supported formats:
	//   - "tcp://localhost:10110" (TCP, NMEA 0183 convention port)
	//   - "unix:///run/gnss/nmea" (Unix socket)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the longest silence tolerated before reconnecting.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// FeedStats holds operational statistics.
type FeedStats struct {
	SentencesRx      uint64 // $PHTG sentences decoded and delivered
	SentencesIgnored uint64 // Other talkers' sentences, skipped silently
	SentencesDropped uint64 // Sentences dropped due to full callback queue
	ParseFailures    uint64 // Malformed $PHTG sentences
	ErrorsTotal      uint64
	ReconnectsTotal  uint64 // Successful reconnections
	LastActivity     time.Time
	Connected        bool
	Reconnecting     bool // True if currently attempting to reconnect
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Receiver interface for testability.
// This allows mocking the feed client in tests.
type Receiver interface {
	SetOnSentence(callback func(Sentence))
	IsConnected() bool
	Stats() FeedStats
	Close() error
}

// Ensure FeedClient implements Receiver.
var _ Receiver = (*FeedClient)(nil)

// FeedClient reads the GNSS receiver's NMEA stream.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Sentence callbacks are invoked from a bounded worker pool.
//
// Auto-Reconnection:
//   - When the connection drops, or the feed stays silent past
//     ReadTimeout, the client reconnects automatically.
//   - Uses exponential backoff starting at ReconnectInterval (default 5s)
//     up to maxReconnectInterval (2min).
//   - Reconnection stops only when Close() is called.
type FeedClient struct {
	cfg FeedConfig

	// Connection state
	connMu    sync.RWMutex
	conn      net.Conn
	scanner   *bufio.Scanner
	connected bool

	// Reconnection state
	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	// Sentence handler callback
	onSentence func(Sentence)
	callbackMu sync.RWMutex

	// Callback worker pool (bounded goroutine spawning)
	callbackQueue chan Sentence

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	sentencesRx      atomic.Uint64
	sentencesIgnored atomic.Uint64
	sentencesDropped atomic.Uint64
	parseFailures    atomic.Uint64
	errorsTotal      atomic.Uint64
	reconnectsTotal  atomic.Uint64
	lastActivity     atomic.Int64 // Unix timestamp
}

// Connect establishes the connection to the receiver feed.
//
// The connection URL determines the transport:
//   - "tcp://localhost:10110" → TCP socket
//   - "unix:///run/gnss/nmea" → Unix socket
//
// The feed is a plain byte stream with no handshake; after dialing, a
// goroutine starts consuming lines immediately.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *FeedClient: Connected client ready for use
//   - error: If connection fails
func Connect(ctx context.Context, cfg FeedConfig) (*FeedClient, error) {
	// Apply defaults
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseFeedURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &FeedClient{
		cfg:           cfg,
		conn:          conn,
		scanner:       newSentenceScanner(conn),
		connected:     true,
		done:          newCloseOnce(),
		callbackQueue: make(chan Sentence, callbackQueueSize),
	}
	client.lastActivity.Store(time.Now().Unix())

	// Start callback worker pool (bounded goroutine count)
	for i := 0; i < callbackWorkerCount; i++ {
		client.wg.Add(1)
		go client.callbackWorker()
	}

	// Start receive loop
	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

// parseFeedURL parses a feed connection URL into network and address.
func parseFeedURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:10110"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// newSentenceScanner builds a line scanner with the feed's length cap.
func newSentenceScanner(conn net.Conn) *bufio.Scanner {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineLength), maxLineLength)
	return scanner
}

// receiveLoop continuously reads lines from the feed.
// On connection loss, it automatically attempts reconnection with
// exponential backoff.
func (c *FeedClient) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		line, err := c.readLine()
		if err != nil {
			if c.isClosed() {
				return // Shutdown requested, exit cleanly
			}

			c.handleReadError(err)

			// Try to reconnect
			if !c.reconnect() {
				return // Shutdown during reconnection, exit cleanly
			}
			continue
		}

		c.handleLine(line)
	}
}

// readLine reads a single feed line.
//
// Every error is fatal for the current connection: the scanner cannot
// resume after a deadline fires, and a deadline firing means the feed
// went silent past ReadTimeout anyway.
func (c *FeedClient) readLine() (string, error) {
	c.connMu.RLock()
	conn, scanner := c.conn, c.scanner
	c.connMu.RUnlock()

	if conn == nil || scanner == nil {
		return "", ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if !scanner.Scan() {
		err := scanner.Err()
		switch {
		case err == nil:
			return "", fmt.Errorf("feed closed: %w", ErrNotConnected)
		case errors.Is(err, bufio.ErrTooLong):
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrFeedDesync, maxLineLength)
		default:
			return "", fmt.Errorf("read line: %w", err)
		}
	}

	return scanner.Text(), nil
}

// handleReadError records a read failure and marks the feed disconnected.
func (c *FeedClient) handleReadError(err error) {
	c.logError("feed read failed", err)
	c.errorsTotal.Add(1)

	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("feed lost, will attempt reconnection")
	}
}

// handleLine classifies and dispatches one feed line.
func (c *FeedClient) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	sentence, err := ParseSentence(line)
	if err != nil {
		if errors.Is(err, ErrNotPHTG) {
			// Receivers interleave position sentences on the same feed.
			c.sentencesIgnored.Add(1)
			return
		}
		c.logDebug("parse sentence failed", "error", err)
		c.parseFailures.Add(1)
		c.errorsTotal.Add(1)
		return
	}

	c.sentencesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	// Check if callback is set before queueing
	c.callbackMu.RLock()
	hasCallback := c.onSentence != nil
	c.callbackMu.RUnlock()

	if hasCallback {
		// Queue for the bounded worker pool (non-blocking with drop on overflow)
		select {
		case c.callbackQueue <- sentence:
			// Queued successfully
		default:
			c.logError("callback queue full, dropping sentence", nil)
			c.sentencesDropped.Add(1)
			c.errorsTotal.Add(1)
		}
	}
}

// callbackWorker processes sentences from the callback queue.
// Runs in a bounded worker pool to prevent goroutine explosion.
func (c *FeedClient) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case sentence := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onSentence
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("sentence callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(sentence)
				}()
			}
		}
	}
}

// reconnect attempts to re-establish the feed connection with exponential
// backoff. Returns true if reconnection succeeded, false if shutdown was
// signalled.
func (c *FeedClient) reconnect() bool {
	// Prevent multiple concurrent reconnection attempts
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseFeedURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval
	if backoff == 0 {
		backoff = defaultReconnectInterval
	}

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout(network, address)
		if err != nil {
			backoff = c.handleReconnectFailure("dial failed", err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		c.adoptConnection(conn)
		c.finalizeReconnection()
		return true
	}
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *FeedClient) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

// closeOldConnection closes the existing connection if any.
func (c *FeedClient) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.scanner = nil
	}
	c.connMu.Unlock()
}

// dialWithTimeout attempts to dial the network address with timeout.
func (c *FeedClient) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

// adoptConnection installs a fresh connection and scanner.
func (c *FeedClient) adoptConnection(conn net.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.scanner = newSentenceScanner(conn)
	c.connMu.Unlock()
}

// handleReconnectFailure handles a failed reconnection attempt.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (c *FeedClient) handleReconnectFailure(reason string, err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: "+reason, err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0 // Signal shutdown
	case <-time.After(backoff):
	}

	// Exponential backoff with cap
	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectInterval {
		newBackoff = maxReconnectInterval
	}
	return newBackoff
}

// finalizeReconnection marks the connection as established and updates stats.
func (c *FeedClient) finalizeReconnection() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.reconnectCount.Store(0)
	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
}

// drainCallbackQueue removes and discards any remaining queued sentences.
// Called during shutdown to prevent goroutines from blocking on send.
func (c *FeedClient) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
			// Discard item
		default:
			return // Queue is empty
		}
	}
}

// isClosed returns true if the client has been closed.
func (c *FeedClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the feed connection.
//
// It signals the receive loop to stop and closes the underlying network
// connection. Safe to call multiple times (uses sync.Once).
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *FeedClient) Close() error {
	// Signal shutdown (safe to call multiple times via sync.Once)
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Wait for all goroutines to finish
	c.wg.Wait()

	c.logInfo("feed connection closed")
	return nil
}

// SetOnSentence sets the callback for decoded $PHTG sentences.
//
// The callback is invoked from a bounded worker pool. Panics in the
// callback are recovered and logged.
//
// Parameters:
//   - callback: Function to call for each decoded sentence
func (c *FeedClient) SetOnSentence(callback func(Sentence)) {
	c.callbackMu.Lock()
	c.onSentence = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *FeedClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if the feed connection is up.
func (c *FeedClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *FeedClient) Stats() FeedStats {
	return FeedStats{
		SentencesRx:      c.sentencesRx.Load(),
		SentencesIgnored: c.sentencesIgnored.Load(),
		SentencesDropped: c.sentencesDropped.Load(),
		ParseFailures:    c.parseFailures.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		ReconnectsTotal:  c.reconnectsTotal.Load(),
		LastActivity:     time.Unix(c.lastActivity.Load(), 0),
		Connected:        c.IsConnected(),
		Reconnecting:     c.reconnecting.Load(),
	}
}

// HealthCheck verifies the feed connection is alive.
//
// Note: This only checks connection state, not stream liveness; use
// Stats().LastActivity for staleness checks.
func (c *FeedClient) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// logDebug logs a debug message if logger is set.
func (c *FeedClient) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *FeedClient) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *FeedClient) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
