package tcpserver

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sizestr"

	"github.com/cyberinferno/protohackers/logger"
)

// TCPServerSession is implemented by each connection session. The server
// runs Handle in a goroutine and calls Close once Handle returns or the
// server stops.
type TCPServerSession interface {
	// ID returns the session's unique identifier assigned by the server.
	ID() uint64

	// Handle runs the session's main loop until the connection is closed or
	// the session decides to exit.
	Handle()

	// Close closes the session and releases resources. It must be safe to
	// call multiple times and concurrently with Handle.
	Close() error

	// Send writes data to the connection. Safe for concurrent use.
	Send(data []byte) error
}

// BaseSession implements the connection plumbing shared by every service:
// a buffered, byte-counting reader, serialized writes and idempotent close.
// Services embed it and provide Handle.
type BaseSession struct {
	Logger logger.Logger
	Reader *bufio.Reader

	id        uint64
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	bytesIn   atomic.Int64
	bytesOut  atomic.Int64
}

// NewBaseSession wraps conn. The session logger carries the session id and
// remote address.
//
// Parameters:
//   - id: The session ID assigned by the server
//   - conn: The accepted connection
//   - log: Server logger to derive the session logger from
//
// Returns:
//   - The initialized BaseSession
func NewBaseSession(id uint64, conn net.Conn, log logger.Logger) *BaseSession {
	b := &BaseSession{id: id, conn: conn}
	b.Logger = log.With(
		logger.Field{Key: "session", Value: id},
		logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
	)
	b.Reader = bufio.NewReader(&countingReader{r: conn, n: &b.bytesIn})
	b.Logger.Debug("session opened")

	return b
}

// ID implements TCPServerSession.
func (b *BaseSession) ID() uint64 {
	return b.id
}

// Conn returns the underlying connection.
func (b *BaseSession) Conn() net.Conn {
	return b.conn
}

// Send implements TCPServerSession. Writes from concurrent goroutines are
// never interleaved.
func (b *BaseSession) Send(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	n, err := b.conn.Write(data)
	b.bytesOut.Add(int64(n))
	return err
}

// SendString is Send for text replies.
func (b *BaseSession) SendString(s string) error {
	return b.Send([]byte(s))
}

// ReadLine reads up to and including the next '\n' and returns the line
// without it. A final line that is not newline-terminated is discarded and
// reported as io.EOF (or the read error).
func (b *BaseSession) ReadLine() ([]byte, error) {
	line, err := b.Reader.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 && err == io.EOF {
			b.Logger.Debug("discarding unterminated line", logger.Field{Key: "len", Value: len(line)})
		}
		return nil, err
	}

	return line[:len(line)-1], nil
}

// Closed reports whether Close has been called.
func (b *BaseSession) Closed() bool {
	return b.closed.Load()
}

// Close implements TCPServerSession.
func (b *BaseSession) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.conn.Close()
		b.Logger.Debug("session closed",
			logger.Field{Key: "received", Value: sizestr.ToString(b.bytesIn.Load())},
			logger.Field{Key: "sent", Value: sizestr.ToString(b.bytesOut.Load())},
		)
	})

	return err
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
