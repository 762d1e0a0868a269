// Package isl serves the toy priority application behind an obfuscating
// stream layer. Each client opens with a cipher spec; every byte after it is
// obfuscated, with independent stream positions in each direction.
package isl

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// ErrBadRequest marks a toy list that cannot be parsed.
var ErrBadRequest = errors.New("bad toy request")

// MostCopies returns the entry of a comma separated "<n>x <toy>" list with
// the largest count. The first entry wins ties.
func MostCopies(line string) (string, error) {
	best, bestN := "", -1
	for _, entry := range strings.Split(line, ",") {
		count, _, ok := strings.Cut(entry, "x")
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrBadRequest, entry)
		}

		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w: %q", ErrBadRequest, entry)
		}

		if n > bestN {
			best, bestN = entry, n
		}
	}

	return best, nil
}

// Session serves one obfuscated connection.
type Session struct {
	*tcpserver.BaseSession
}

// NewSessionFunc returns the session factory for tcpserver.
func NewSessionFunc(log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log)}
	}
}

// Handle reads the cipher spec, then answers one decoded line at a time.
// A no-op or invalid cipher, or an unparsable request, ends the session.
func (s *Session) Handle() {
	cipher, err := ReadSpec(s.Reader)
	if err != nil {
		s.Logger.Debug("rejecting cipher", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	in := bufio.NewReader(NewReader(s.Reader, cipher))
	out := NewWriter(sessionWriter{s.BaseSession}, cipher)
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}

		toy, err := MostCopies(strings.TrimSuffix(line, "\n"))
		if err != nil {
			s.Logger.Debug("bad request", logger.Field{Key: "error", Value: err.Error()})
			return
		}

		if _, err := out.Write([]byte(toy + "\n")); err != nil {
			return
		}
	}
}

type sessionWriter struct{ b *tcpserver.BaseSession }

func (w sessionWriter) Write(p []byte) (int, error) {
	if err := w.b.Send(p); err != nil {
		return 0, err
	}

	return len(p), nil
}
