// Package vcs is a line-based version control server. Clients store text
// files under absolute paths, read back any revision and list directories.
// Every reply ends with a READY prompt except the one that closes the
// session.
package vcs

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// ErrTooLarge marks a PUT body over the configured limit.
var ErrTooLarge = errors.New("file too large")

const (
	ready     = "READY\n"
	usageHelp = "OK usage: HELP|GET|PUT|LIST"
	usageList = "ERR usage: LIST dir"
	usageGet  = "ERR usage: GET file [revision]"
	usagePut  = "ERR usage: PUT file length newline data"
)

// Session is one client connection.
type Session struct {
	*tcpserver.BaseSession
	repo    *Repo
	maxSize int
}

// NewSessionFunc returns the session factory for tcpserver. All sessions
// share repo and PUT bodies are limited to maxSize bytes.
func NewSessionFunc(repo *Repo, maxSize int, log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{
			BaseSession: tcpserver.NewBaseSession(id, conn, log),
			repo:        repo,
			maxSize:     maxSize,
		}
	}
}

// Handle greets the client and serves commands until it disconnects or
// sends an unknown one.
func (s *Session) Handle() {
	if err := s.SendString(ready); err != nil {
		return
	}

	for {
		line, err := s.ReadLine()
		if err != nil {
			return
		}

		reply, keep := s.serve(strings.Fields(string(line)))
		if !keep {
			_ = s.SendString(reply)
			return
		}
		if err := s.SendString(reply + ready); err != nil {
			return
		}
	}
}

// serve runs one command and returns its reply. keep is false when the
// session must end after the reply.
func (s *Session) serve(args []string) (reply string, keep bool) {
	method := ""
	if len(args) > 0 {
		method = args[0]
	}

	switch strings.ToUpper(method) {
	case "HELP":
		return usageHelp + "\n", true
	case "LIST":
		if len(args) != 2 {
			return usageList + "\n", true
		}
		return s.list(args[1]), true
	case "GET":
		if len(args) != 2 && len(args) != 3 {
			return usageGet + "\n", true
		}
		rev := ""
		if len(args) == 3 {
			rev = args[2]
		}
		return s.get(args[1], rev), true
	case "PUT":
		if len(args) != 3 {
			return usagePut + "\n", true
		}
		size, err := strconv.Atoi(args[2])
		if err != nil || size < 0 {
			return usagePut + "\n", true
		}
		return s.put(args[1], size)
	default:
		return "ERR illegal method: " + method + "\n", false
	}
}

func (s *Session) list(dir string) string {
	entries, err := s.repo.List(dir)
	if err != nil {
		return errReply(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OK %d\n", len(entries))
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}

	return b.String()
}

func (s *Session) get(name, rev string) string {
	n := 0
	if rev != "" {
		var err error
		if n, err = strconv.Atoi(strings.TrimPrefix(rev, "r")); err != nil || n < 1 {
			if !ValidFileName(name) {
				return errReply(ErrIllegalFileName)
			}
			return errReply(ErrNoSuchRevision)
		}
	}

	data, err := s.repo.Get(name, n)
	if err != nil {
		return errReply(err)
	}

	return fmt.Sprintf("OK %d\n%s", len(data), data)
}

// put reads the body announced by PUT. A body that cannot be read ends the
// session.
func (s *Session) put(name string, size int) (string, bool) {
	if !ValidFileName(name) {
		return errReply(ErrIllegalFileName), true
	}

	if size > s.maxSize {
		if _, err := io.CopyN(io.Discard, s.Reader, int64(size)); err != nil {
			return errReply(ErrTooLarge), false
		}
		return errReply(ErrTooLarge), true
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(s.Reader, data); err != nil {
		s.Logger.Debug("short PUT body", logger.Field{Key: "error", Value: err.Error()})
		return errReply(err), false
	}

	rev, err := s.repo.Put(name, data)
	if err != nil {
		return errReply(err), true
	}

	s.Logger.Debug("stored revision",
		logger.Field{Key: "file", Value: name},
		logger.Field{Key: "rev", Value: rev},
	)
	return fmt.Sprintf("OK r%d\n", rev), true
}

func errReply(err error) string {
	return "ERR " + err.Error() + "\n"
}
