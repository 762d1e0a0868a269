// Package lrcp implements the Line Reversal Control Protocol: reliable,
// ordered byte-stream sessions carried over a single UDP socket. Sessions are
// keyed by a peer-chosen id; every byte is acknowledged by offset and any
// unacknowledged output is resent on a fixed interval until confirmed.
//
// A receive goroutine only decodes datagrams. One worker goroutine owns the
// session Table and serializes every transition, so no session state is
// shared between goroutines.
package lrcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/udpserver"
)

// Config tunes the transport.
type Config struct {
	// RetransmitInterval is the fixed period of the retransmission sweep.
	RetransmitInterval time.Duration `yaml:"retransmit_interval"`
	// MaxChunkSize caps the escaped payload of one data message.
	MaxChunkSize int `yaml:"max_chunk_size"`
	// MaxDatagramSize is the first datagram size that is rejected.
	MaxDatagramSize int `yaml:"max_datagram_size"`
	// InboxSize is the capacity of the receive-to-worker queue.
	InboxSize int `yaml:"inbox_size"`
}

// DefaultConfig returns the standard LRCP tuning.
func DefaultConfig() Config {
	return Config{
		RetransmitInterval: 3 * time.Second,
		MaxChunkSize:       900,
		MaxDatagramSize:    1000,
		InboxSize:          1024,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.RetransmitInterval <= 0:
		return errors.New("lrcp: retransmit_interval must be positive")
	case c.MaxChunkSize <= 0:
		return errors.New("lrcp: max_chunk_size must be positive")
	case c.MaxDatagramSize <= 0 || c.MaxDatagramSize > udpserver.DefaultBufferSize:
		return fmt.Errorf("lrcp: max_datagram_size must be in (0, %d]", udpserver.DefaultBufferSize)
	case c.InboxSize <= 0:
		return errors.New("lrcp: inbox_size must be positive")
	}

	return nil
}

type inbound struct {
	msg  Message
	addr net.Addr
}

// Server runs LRCP on one UDP socket.
type Server struct {
	cfg     Config
	log     logger.Logger
	udp     *udpserver.UDPServer
	table   *Table
	inbox   chan inbound
	metrics *Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a server for addr.
//
// Parameters:
//   - addr: UDP listen address
//   - cfg: Transport tuning; see DefaultConfig
//   - app: Application riding on every session
//   - log: Service logger
//   - m: Metrics sink; nil records nothing
//
// Returns:
//   - The server, not yet started
func NewServer(addr string, cfg Config, app Application, log logger.Logger, m *Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		table:   NewTable(app, cfg.MaxChunkSize, log, m),
		inbox:   make(chan inbound, cfg.InboxSize),
		metrics: m,
	}
	s.udp = udpserver.New("lrcp", addr, log, s.receive)
	s.udp.BufferSize = udpserver.DefaultBufferSize

	return s
}

// UDP exposes the underlying datagram server, e.g. to attach its metrics.
func (s *Server) UDP() *udpserver.UDPServer {
	return s.udp
}

// ListenAddr returns the bound address, or nil before Start.
func (s *Server) ListenAddr() net.Addr {
	return s.udp.ListenAddr()
}

// Start binds the socket and starts the receive path and the worker.
func (s *Server) Start() error {
	if err := s.udp.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.work(ctx)

	return nil
}

// Stop halts the worker, then closes the socket.
func (s *Server) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.udp.Stop()
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// receive runs on the read goroutine: decode, then hand off without
// blocking. A full inbox drops the message; the peer will retransmit.
func (s *Server) receive(pkt udpserver.Packet) {
	if len(pkt.Data) >= s.cfg.MaxDatagramSize {
		s.metrics.messageMalformed()
		s.log.Debug("dropping oversized datagram", logger.Field{Key: "size", Value: len(pkt.Data)})
		return
	}

	msg, err := Decode(pkt.Data)
	if err != nil {
		s.metrics.messageMalformed()
		s.log.Debug("dropping datagram", logger.Field{Key: "error", Value: err.Error()}, logger.Field{Key: "peer", Value: pkt.Addr.String()})
		return
	}
	s.metrics.messageReceived(msg.Kind)

	select {
	case s.inbox <- inbound{msg: msg, addr: pkt.Addr}:
	default:
		s.metrics.messageDropped()
		s.log.Debug("inbox full, dropping message", logger.Field{Key: "session", Value: msg.Session})
	}
}

// work is the only goroutine touching the table. It handles whichever comes
// first, the next message or the retransmission deadline, and re-arms the
// deadline after each sweep.
func (s *Server) work(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.RetransmitInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.inbox:
			s.send(s.table.Handle(in.msg, in.addr))
		case <-timer.C:
			s.send(s.table.Sweep())
			timer.Reset(s.cfg.RetransmitInterval)
		}
	}
}

func (s *Server) send(out []Outbound) {
	for _, o := range out {
		if err := s.udp.WriteTo(o.Message.Encode(), o.Addr); err != nil {
			s.metrics.sendFailed()
			continue
		}

		if o.Message.Kind == KindData {
			s.metrics.segmentSent(o.Retransmit)
		}
	}
}
