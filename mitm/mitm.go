// Package mitm proxies a line-based chat to an upstream server, replacing
// every Boguscoin address in either direction with a fixed target address.
package mitm

import (
	"bytes"
	"context"
	"net"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpclient"
	"github.com/cyberinferno/protohackers/tcpserver"
	"github.com/cyberinferno/protohackers/utils"
)

const (
	minAddressLen = 26
	maxAddressLen = 35
)

// IsAddress reports whether token is a Boguscoin address: a '7' followed by
// alphanumerics, 26 to 35 characters in total.
func IsAddress(token []byte) bool {
	return len(token) >= minAddressLen && len(token) <= maxAddressLen &&
		token[0] == '7' && utils.IsAlphanumeric(string(token))
}

// Rewrite replaces each space-delimited address in line with target.
func Rewrite(line []byte, target string) []byte {
	tokens := bytes.Split(line, []byte{' '})
	for i, tok := range tokens {
		if IsAddress(tok) {
			tokens[i] = []byte(target)
		}
	}

	return bytes.Join(tokens, []byte{' '})
}

// Config configures the proxy.
type Config struct {
	Upstream      string
	TargetAddress string
	Client        tcpclient.Config
}

// Session pairs one downstream client with its own upstream connection.
type Session struct {
	*tcpserver.BaseSession
	cfg Config
}

// NewSessionFunc returns the session factory for tcpserver.
func NewSessionFunc(cfg Config, log logger.Logger) tcpserver.NewSessionFunc {
	if cfg.Client.Address == "" {
		cfg.Client = tcpclient.DefaultConfig(cfg.Upstream)
	}
	cfg.Client.Framing = tcpclient.FramingLine

	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log), cfg: cfg}
	}
}

// Handle connects upstream and relays complete lines both ways until
// either side closes, which closes the other.
func (s *Session) Handle() {
	up := tcpclient.New(s.cfg.Client, s.Logger)
	up.OnDataReceived(func(e tcpclient.DataReceivedEvent) {
		line := bytes.TrimSuffix(e.Data, []byte{'\n'})
		if err := s.Send(append(Rewrite(line, s.cfg.TargetAddress), '\n')); err != nil {
			s.Logger.Debug("downstream write failed", logger.Field{Key: "error", Value: err.Error()})
		}
	})
	up.OnError(func(e tcpclient.ErrorEvent) {
		s.Logger.Debug("upstream error", logger.Field{Key: "error", Value: e.Error.Error()})
	})

	if err := up.Connect(context.Background()); err != nil {
		s.Logger.Warn("upstream unavailable", logger.Field{Key: "upstream", Value: s.cfg.Client.Address}, logger.Field{Key: "error", Value: err.Error()})
		return
	}
	defer up.Close()

	go func() {
		<-up.Done()
		_ = s.Close()
	}()

	for {
		line, err := s.ReadLine()
		if err != nil {
			return
		}

		if err := up.Send(append(Rewrite(line, s.cfg.TargetAddress), '\n')); err != nil {
			return
		}
	}
}
