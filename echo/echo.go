// Package echo sends every received byte straight back.
package echo

import (
	"io"
	"net"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// Session echoes one connection.
type Session struct {
	*tcpserver.BaseSession
}

// NewSessionFunc returns the session factory for tcpserver.
func NewSessionFunc(log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log)}
	}
}

// Handle copies input to output until the peer stops sending.
func (s *Session) Handle() {
	if _, err := io.Copy(sessionWriter{s}, s.Reader); err != nil && !s.Closed() {
		s.Logger.Debug("echo ended", logger.Field{Key: "error", Value: err.Error()})
	}
}

// sessionWriter routes writes through Send so output is counted.
type sessionWriter struct{ s *Session }

func (w sessionWriter) Write(p []byte) (int, error) {
	if err := w.s.Send(p); err != nil {
		return 0, err
	}

	return len(p), nil
}
