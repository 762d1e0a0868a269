// Package tcpclient provides an event-driven TCP client. Connection state
// changes, received data and errors are delivered to registered handlers,
// synchronously and in order, from the single read goroutine.
package tcpclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/cyberinferno/protohackers/logger"
)

// ConnectionState is the lifecycle state of a Client.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // not connected
	Connecting                          // dial in progress, including retries
	Connected                           // read loop running
	Closed                              // closed for good
)

// String returns a human-readable name for the state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Framing selects how received bytes are cut into data events.
type Framing int

const (
	// FramingRaw emits whatever each read returned.
	FramingRaw Framing = iota
	// FramingLine emits one event per complete line, newline included. An
	// unterminated line at end of stream is discarded.
	FramingLine
)

// ErrNotConnected is returned by Send outside the Connected state.
var ErrNotConnected = errors.New("not connected")

// ConnectionStateEvent reports a state change.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error // cause of a Disconnected transition, if any
}

// DataReceivedEvent carries received bytes. Data is owned by the handler.
type DataReceivedEvent struct {
	Data      []byte
	Timestamp time.Time
}

// ErrorEvent reports a dial, read or write failure.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// Handlers run on the read goroutine, or on the caller of Connect, Send and
// Close. They must not call Close.
type (
	ConnectionStateHandler func(event ConnectionStateEvent)
	DataReceivedHandler    func(event DataReceivedEvent)
	ErrorHandler           func(event ErrorEvent)
)

// Config holds client settings.
type Config struct {
	// Address is the "host:port" to dial.
	Address string
	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration
	// MaxDialRetry is the number of extra dial attempts after the first
	// failure; 0 disables retries.
	MaxDialRetry int
	// MaxRetryInterval caps the exponential delay between dial attempts.
	MaxRetryInterval time.Duration
	// WriteTimeout bounds a single Send; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadBufferSize is the read chunk for FramingRaw and the buffer size
	// for FramingLine.
	ReadBufferSize int
	Framing        Framing
}

// DefaultConfig returns line-framed defaults for address.
//
// Parameters:
//   - address: The "host:port" to dial
//
// Returns:
//   - A Config with DialTimeout 10s, MaxDialRetry 3, MaxRetryInterval 2s,
//     WriteTimeout 10s, ReadBufferSize 4096 and FramingLine
func DefaultConfig(address string) Config {
	return Config{
		Address:          address,
		DialTimeout:      10 * time.Second,
		MaxDialRetry:     3,
		MaxRetryInterval: 2 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   4096,
		Framing:          FramingLine,
	}
}

// Client is an event-driven TCP client. Register handlers before Connect.
// It is safe for concurrent use.
type Client struct {
	config Config
	log    logger.Logger

	onConnectionState ConnectionStateHandler
	onDataReceived    DataReceivedHandler
	onError           ErrorHandler

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    net.Conn
	state   ConnectionState
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New returns a disconnected client.
func New(config Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		log:    log,
		state:  Disconnected,
		done:   make(chan struct{}),
	}
}

// OnConnectionState registers the state handler, replacing any previous one.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnDataReceived registers the data handler, replacing any previous one.
func (c *Client) OnDataReceived(handler DataReceivedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataReceived = handler
}

// OnError registers the error handler, replacing any previous one.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured address, retrying with exponential backoff
// up to MaxDialRetry times, and starts the read loop.
//
// Parameters:
//   - ctx: Cancels the dial and any pending retry
//
// Returns:
//   - nil once connected; otherwise the last dial error or ctx.Err()
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return errors.New("client is closed")
	case c.state != Disconnected:
		c.mu.Unlock()
		return errors.New("already connected or connecting")
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("client is closed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: c.config.MaxRetryInterval}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
		if err == nil {
			return conn, nil
		}

		c.emitError(err)
		attempt := int(b.Attempt())
		if attempt >= c.config.MaxDialRetry {
			return nil, fmt.Errorf("dial %s failed after %d attempts: %w", c.config.Address, attempt+1, err)
		}

		d := b.Duration()
		c.log.Warn("dial failed, retrying",
			logger.Field{Key: "addr", Value: c.config.Address},
			logger.Field{Key: "attempt", Value: attempt + 1},
			logger.Field{Key: "delay", Value: d.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}

// Send writes data. Concurrent calls never interleave.
//
// Returns:
//   - ErrNotConnected outside the Connected state, or the write error
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := conn.Write(data); err != nil {
		c.emitError(err)
		return err
	}

	return nil
}

// State returns the current state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Done is closed when the client is closed, either by Close or because the
// peer ended the stream.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the read loop. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.wg.Wait()
	c.setState(Closed, nil)
	close(c.done)

	return err
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	var err error
	if c.config.Framing == FramingLine {
		err = c.readLines(conn)
	} else {
		err = c.readChunks(conn)
	}

	if c.isClosed() {
		return
	}

	if errors.Is(err, io.EOF) {
		err = nil
	} else {
		c.emitError(err)
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.setState(Disconnected, err)

	// the read loop cannot wait on itself, so finish Close asynchronously
	go c.Close()
}

func (c *Client) readLines(conn net.Conn) error {
	size := c.config.ReadBufferSize
	if size < 16 {
		size = 4096
	}

	r := bufio.NewReaderSize(conn, size)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return err
		}

		c.emitDataReceived(line)
	}
}

func (c *Client) readChunks(conn net.Conn) error {
	size := c.config.ReadBufferSize
	if size <= 0 {
		size = 4096
	}

	buf := make([]byte, size)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.emitDataReceived(data)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{State: state, Address: c.config.Address, Timestamp: time.Now(), Error: err})
	}
}

func (c *Client) emitDataReceived(data []byte) {
	c.mu.RLock()
	handler := c.onDataReceived
	c.mu.RUnlock()

	if handler != nil {
		handler(DataReceivedEvent{Data: data, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
