package zwave

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// Default timeouts and intervals for gateway communication.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// envelopeSize is the 2-byte big-endian size prefix on every frame.
	envelopeSize = 2

	// maxFrameSize is the largest frame accepted from the gateway.
	// Header plus a full 255-byte length field.
	maxFrameSize = zw.HeaderSize + 255

	// Received frames wait in a queue of frameQueueSize for one of
	// frameWorkers callback goroutines.
	frameQueueSize = 100
	frameWorkers   = 4
)

// GatewayConfig holds gateway connection configuration.
type GatewayConfig struct {
	// Connection is "tcp://host:port" or "unix:///path".
	Connection string

	ConnectTimeout time.Duration

	// ReadTimeout is the idle wait for the next frame, where expiry is not
	// an error. Once a frame has started it also bounds the rest of the
	// envelope, and expiry there drops the connection.
	ReadTimeout time.Duration

	// ReconnectInterval is the first redial delay; later delays grow 1.5x.
	ReconnectInterval time.Duration

	// StrictLength rejects frames whose length byte is inconsistent.
	StrictLength bool
}

// GatewayStats holds operational statistics.
type GatewayStats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64 // Dropped due to full callback queue
	FramesRejected  uint64 // Failed to parse
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger is the structured logger the bridge components accept.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the gateway link used by the bridge and health reporter.
type Connector interface {
	Send(ctx context.Context, msg zw.Message) error
	SetOnFrame(callback func(zw.Message))
	IsConnected() bool
	Stats() GatewayStats
	Close() error
}

var _ Connector = (*GatewayClient)(nil)

// GatewayClient streams Z-Wave frames to and from a gateway socket.
//
// Received frames are parsed and handed to the frame callback through a
// bounded worker pool. When the queue is full, frames are dropped and
// counted. On connection loss the receive goroutine redials with
// exponential backoff until Close is called.
type GatewayClient struct {
	cfg              GatewayConfig
	network, address string

	// conn is nil while disconnected.
	connMu sync.RWMutex
	conn   net.Conn

	// writeMu serialises envelope writes so frames never interleave.
	writeMu sync.Mutex

	hookMu  sync.RWMutex
	onFrame func(zw.Message)
	logger  Logger

	queue  chan zw.Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnecting    atomic.Bool
	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64
	framesRejected  atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // unix seconds
}

// Connect dials the gateway and starts the receive loop. Zero durations in
// cfg take their defaults.
func Connect(ctx context.Context, cfg GatewayConfig) (*GatewayClient, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &GatewayClient{
		cfg:     cfg,
		network: network,
		address: address,
		queue:   make(chan zw.Message, frameQueueSize),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.conn = conn
	c.touch()

	// The client outlives the dial context.
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for range frameWorkers {
		c.wg.Add(1)
		go c.deliver()
	}
	c.wg.Add(1)
	go c.receive()

	return c, nil
}

// parseConnectionURL parses a gateway connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
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
			host = "localhost:4549"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// EncodeEnvelope prefixes a frame with its 2-byte big-endian size.
func EncodeEnvelope(frame []byte) ([]byte, error) {
	if len(frame) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	buf := make([]byte, envelopeSize+len(frame))
	binary.BigEndian.PutUint16(buf[:envelopeSize], uint16(len(frame)))
	copy(buf[envelopeSize:], frame)
	return buf, nil
}

// ReadEnvelope reads one size-prefixed frame from r into buf and returns
// the frame slice. Frames larger than buf yield ErrProtocolDesync.
func ReadEnvelope(r io.Reader, buf []byte) ([]byte, error) {
	var size [envelopeSize]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}

	n := int(binary.BigEndian.Uint16(size[:]))
	if n > len(buf) {
		return nil, fmt.Errorf("%w: frame size %d exceeds %d", ErrProtocolDesync, n, len(buf))
	}

	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return buf[:n], nil
}

func (c *GatewayClient) receive() {
	defer c.wg.Done()
	buf := make([]byte, maxFrameSize)

	for c.ctx.Err() == nil {
		conn := c.current()
		if conn == nil {
			if !c.redial() {
				return
			}
			continue
		}

		frame, err := c.readFrame(conn, buf)
		if err == nil {
			c.dispatch(frame)
			continue
		}

		switch {
		case c.ctx.Err() != nil:
			return
		case errors.Is(err, ErrFrameStalled):
			c.dropConn(conn, "gateway stalled mid-frame, closing socket", err)
		case isTimeout(err):
			// Idle link.
		case errors.Is(err, ErrProtocolDesync):
			c.dropConn(conn, "protocol desync detected, closing socket", err)
		default:
			c.dropConn(conn, "read failed", err)
		}
	}
}

// readFrame waits up to ReadTimeout for the first byte of an envelope, then
// gives the rest of it a fresh ReadTimeout. A deadline that expires after
// the first byte leaves the stream position unknown and is reported as
// ErrFrameStalled.
func (c *GatewayClient) readFrame(conn net.Conn, buf []byte) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	var first [1]byte
	if _, err := io.ReadFull(conn, first[:]); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	frame, err := ReadEnvelope(io.MultiReader(bytes.NewReader(first[:]), conn), buf)
	if err != nil && isTimeout(err) {
		return nil, fmt.Errorf("%w: %w", ErrFrameStalled, err)
	}
	return frame, err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// dispatch parses a received frame and queues it for the callback.
func (c *GatewayClient) dispatch(frame []byte) {
	msg, err := zw.ParseWithOptions(frame, zw.ParseOptions{StrictLength: c.cfg.StrictLength})
	if err != nil {
		c.framesRejected.Add(1)
		c.errorsTotal.Add(1)
		c.log().Debug("rejected frame", "error", err, "frame", zw.FormatHex(frame))
		return
	}
	c.framesRx.Add(1)
	c.touch()

	c.hookMu.RLock()
	listening := c.onFrame != nil
	c.hookMu.RUnlock()
	if !listening {
		return
	}

	select {
	case c.queue <- msg:
	default:
		c.framesDropped.Add(1)
		c.errorsTotal.Add(1)
		c.log().Warn("frame queue full, dropping frame", "node", msg.NodeID, "class", msg.CommandClass.String())
	}
}

func (c *GatewayClient) deliver() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.queue:
			c.hookMu.RLock()
			fn := c.onFrame
			c.hookMu.RUnlock()
			if fn != nil {
				c.invoke(fn, msg)
			}
		}
	}
}

func (c *GatewayClient) invoke(fn func(zw.Message), msg zw.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.errorsTotal.Add(1)
			c.log().Error("frame callback panic", "panic", r, "node", msg.NodeID)
		}
	}()
	fn(msg)
}

// dropConn closes conn if it is still the current connection.
func (c *GatewayClient) dropConn(conn net.Conn, reason string, err error) {
	c.errorsTotal.Add(1)

	c.connMu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.connMu.Unlock()

	conn.Close() //nolint:errcheck // connection is being discarded
	if current {
		c.log().Warn("gateway connection lost, reconnecting", "reason", reason, "error", err)
	}
}

// redial loops until a connection is made or the client is closed. It
// reports whether a connection was made.
func (c *GatewayClient) redial() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		conn, err := c.dial(c.ctx)
		if err == nil {
			c.connMu.Lock()
			c.conn = conn
			c.connMu.Unlock()

			c.reconnectsTotal.Add(1)
			c.touch()
			c.log().Info("gateway reconnected", "attempts", attempt, "total_reconnects", c.reconnectsTotal.Load())
			return true
		}

		c.errorsTotal.Add(1)
		c.log().Warn("gateway redial failed", "attempt", attempt, "retry_in", backoff.String(), "error", err)

		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *GatewayClient) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", c.network, c.address, err)
	}
	return conn, nil
}

// nextBackoff grows the delay by 1.5x up to maxReconnectInterval.
func nextBackoff(backoff time.Duration) time.Duration {
	return min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
}

func (c *GatewayClient) current() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *GatewayClient) touch() { c.lastActivity.Store(time.Now().Unix()) }

// Close stops the receive loop and workers and closes the connection.
// Queued frames are discarded. It is idempotent.
func (c *GatewayClient) Close() error {
	if c.ctx.Err() != nil {
		return nil
	}
	c.cancel()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close() //nolint:errcheck // shutting down
	}

	c.wg.Wait()
	c.log().Info("gateway connection closed")
	return nil
}

// Send writes msg to the gateway as an enveloped frame. The write deadline
// is the earlier of ctx's deadline and 5s from now.
func (c *GatewayClient) Send(ctx context.Context, msg zw.Message) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	envelope, err := EncodeEnvelope(msg.Encode())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := conn.Write(envelope); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.framesTx.Add(1)
	c.touch()
	return nil
}

// SetOnFrame sets the callback for received frames. Callback panics are
// recovered and counted as errors.
func (c *GatewayClient) SetOnFrame(callback func(zw.Message)) {
	c.hookMu.Lock()
	c.onFrame = callback
	c.hookMu.Unlock()
}

func (c *GatewayClient) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *GatewayClient) IsConnected() bool { return c.current() != nil }

func (c *GatewayClient) Stats() GatewayStats {
	return GatewayStats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		FramesRejected:  c.framesRejected.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck reports ErrNotConnected when the socket is down.
func (c *GatewayClient) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *GatewayClient) log() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
