// Package tcpserver runs the accept loop shared by every TCP service. Each
// accepted connection becomes a TCPServerSession created by the service's
// NewSessionFunc and handled on its own goroutine.
package tcpserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/protohackers/idgenerator"
	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/safemap"
)

// NewSessionFunc creates the session that will own an accepted connection.
// It receives the assigned session ID and the accepted net.Conn.
type NewSessionFunc func(id uint64, conn net.Conn) TCPServerSession

// TCPServer accepts connections and delegates each one to a session created
// by NewSession. Live sessions are tracked by ID; a session is removed and
// closed as soon as its Handle returns.
type TCPServer struct {
	Logger      logger.Logger
	Name        string
	Addr        string
	Listener    net.Listener
	Sessions    *safemap.SafeMap[uint64, TCPServerSession]
	Running     atomic.Bool
	NewSession  NewSessionFunc
	IdGenerator *idgenerator.IdGenerator
	Metrics     *Metrics

	wg sync.WaitGroup
}

// New returns a TCPServer with its session registry and id generator set up.
//
// Parameters:
//   - name: Service name used in logs and metric labels
//   - addr: Listen address, e.g. "0.0.0.0:1200" or "127.0.0.1:0"
//   - log: Logger for server-level events
//   - newSession: Factory for per-connection sessions
//
// Returns:
//   - A server ready for Start or Run
func New(name, addr string, log logger.Logger, newSession NewSessionFunc) *TCPServer {
	return &TCPServer{
		Logger:      log,
		Name:        name,
		Addr:        addr,
		Sessions:    safemap.NewSafeMap[uint64, TCPServerSession](),
		NewSession:  newSession,
		IdGenerator: idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and begins the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	s.wg.Add(1)
	go s.AcceptLoop()

	return nil
}

// Run starts the server and blocks until ctx is done, then stops it.
func (s *TCPServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop closes the listener and every live session, then waits for all
// session handlers to return. Safe to call when the server is not running.
func (s *TCPServer) Stop() {
	if !s.Running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.Sessions.Range(func(_ uint64, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})

	s.wg.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// ListenAddr returns the bound listener address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.Listener == nil {
		return nil
	}

	return s.Listener.Addr()
}

// AddSession stores a session under the given id.
func (s *TCPServer) AddSession(id uint64, session TCPServerSession) {
	s.Sessions.Store(id, session)
}

// RemoveSession removes the session with the given id.
func (s *TCPServer) RemoveSession(id uint64) {
	s.Sessions.Delete(id)
}

// GetSession returns the session for the given id, if present.
func (s *TCPServer) GetSession(id uint64) (TCPServerSession, bool) {
	return s.Sessions.Load(id)
}

// AcceptLoop accepts connections until the server is stopped. Every
// connection gets an ID from IdGenerator, a session from NewSession and a
// goroutine running Handle; when Handle returns the session is removed and
// closed.
func (s *TCPServer) AcceptLoop() {
	defer s.wg.Done()

	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			continue
		}

		id := s.IdGenerator.Id()
		session := s.NewSession(id, conn)
		s.AddSession(id, session)
		s.Metrics.opened(s.Name)
		if !s.Running.Load() {
			_ = session.Close()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.Metrics.closed(s.Name)

			session.Handle()
			s.RemoveSession(id)
			_ = session.Close()
		}()
	}
}
