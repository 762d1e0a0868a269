// Package udpserver runs a read loop over one UDP socket and hands every
// datagram to a handler. Replies go out through WriteTo on the same socket.
package udpserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/protohackers/logger"
)

// DefaultBufferSize is large enough for every datagram the services accept.
const DefaultBufferSize = 1024

// Packet is one received datagram. Data is owned by the handler.
type Packet struct {
	Data []byte
	Addr net.Addr
}

// HandlerFunc processes a datagram. It runs on the read goroutine, so it
// must not block for long.
type HandlerFunc func(pkt Packet)

// UDPServer reads datagrams from Addr and passes each one to Handler.
type UDPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	BufferSize int
	Handler    HandlerFunc
	Metrics    *Metrics
	Conn       net.PacketConn
	Running    atomic.Bool

	wg sync.WaitGroup
}

// New returns a UDPServer with the default buffer size.
func New(name, addr string, log logger.Logger, handler HandlerFunc) *UDPServer {
	return &UDPServer{
		Logger:     log,
		Name:       name,
		Addr:       addr,
		BufferSize: DefaultBufferSize,
		Handler:    handler,
	}
}

// Start binds the socket and begins the read loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or the bind fails
func (s *UDPServer) Start() error {
	if s.Running.Load() {
		return fmt.Errorf("server %s already running", s.Name)
	}

	conn, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Conn = conn
	s.Running.Store(true)
	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: conn.LocalAddr().String()})

	s.wg.Add(1)
	go s.ReadLoop()

	return nil
}

// Run starts the server and blocks until ctx is done, then stops it.
func (s *UDPServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (s *UDPServer) Stop() {
	if !s.Running.CompareAndSwap(true, false) {
		return
	}

	_ = s.Conn.Close()
	s.wg.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// ListenAddr returns the bound address, or nil before Start.
func (s *UDPServer) ListenAddr() net.Addr {
	if s.Conn == nil {
		return nil
	}

	return s.Conn.LocalAddr()
}

// WriteTo sends one datagram. Failures are logged, counted and returned;
// they never stop the server.
func (s *UDPServer) WriteTo(data []byte, addr net.Addr) error {
	_, err := s.Conn.WriteTo(data, addr)
	if err != nil {
		s.Metrics.incSendErrors(s.Name)
		s.Logger.Warn("send failed", logger.Field{Key: "addr", Value: addr.String()}, logger.Field{Key: "error", Value: err})
		return err
	}

	s.Metrics.incSent(s.Name)
	return nil
}

// ReadLoop reads until the socket is closed. Read errors while running are
// logged and the loop continues.
func (s *UDPServer) ReadLoop() {
	defer s.wg.Done()

	size := s.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	buf := make([]byte, size)
	for {
		n, addr, err := s.Conn.ReadFrom(buf)
		if err != nil {
			if !s.Running.Load() {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server read error", s.Name), logger.Field{Key: "error", Value: err})
			continue
		}

		s.Metrics.incReceived(s.Name)
		data := make([]byte, n)
		copy(data, buf[:n])
		s.Handler(Packet{Data: data, Addr: addr})
	}
}
