package mitm

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

const target = "7YWHMfk9JZe0LM0g1ZauHuiSxhI"

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress([]byte("7F1u3wSD5RbOHQmupo9nx4TnhQ")))
	assert.True(t, IsAddress([]byte("7iKDZEwPZSqIvDnHvVN2r0hUWXD5rHX")))
	assert.True(t, IsAddress([]byte("7LOrwbDlS8NujgjddyogWgIM93MV5N2VR")))
	assert.False(t, IsAddress([]byte("7F1u3wSD5RbOHQmupo9nx4Tnh")))
	assert.False(t, IsAddress([]byte("7adfadfadfadfadfadfadfadfadfadfadfad")))
	assert.False(t, IsAddress([]byte("8F1u3wSD5RbOHQmupo9nx4TnhQ")))
	assert.False(t, IsAddress([]byte("7F1u3wSD5RbOHQmupo9nx4TnhQ-")))
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hi alice, please send payment to 7iKDZEwPZSqIvDnHvVN2r0hUWXD5rHX", "Hi alice, please send payment to " + target},
		{"7F1u3wSD5RbOHQmupo9nx4TnhQ", target},
		{"7F1u3wSD5RbOHQmupo9nx4TnhQ and 7LOrwbDlS8NujgjddyogWgIM93MV5N2VR", target + " and " + target},
		{"Send to 7F1u3wSD5RbOHQmupo9nx4TnhQ-1234 please", "Send to 7F1u3wSD5RbOHQmupo9nx4TnhQ-1234 please"},
		{"no coins here", "no coins here"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(Rewrite([]byte(tt.in), target)))
	}
}

// startUpstream runs a minimal chat server: it greets, then echoes every
// line prefixed with "[echo] ".
func startUpstream(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = conn.Write([]byte("Welcome 7F1u3wSD5RbOHQmupo9nx4TnhQ\n"))
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if line == "quit\n" {
						return
					}
					_, _ = conn.Write([]byte("[echo] " + line))
				}
			}()
		}
	}()

	return ln
}

func startProxy(t *testing.T, upstream string) *tcpserver.TCPServer {
	t.Helper()

	srv := tcpserver.New("proxy", "127.0.0.1:0", logger.Nop(), NewSessionFunc(Config{Upstream: upstream, TargetAddress: target}, logger.Nop()))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

func TestProxy(t *testing.T) {
	up := startUpstream(t)
	srv := startProxy(t, up.Addr().String())

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Welcome "+target+"\n", line)

	_, err = conn.Write([]byte("pay 7LOrwbDlS8NujgjddyogWgIM93MV5N2VR now\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "[echo] pay "+target+" now\n", line)

	// upstream hanging up closes the client
	_, err = conn.Write([]byte("quit\n"))
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestProxyUpstreamDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := startProxy(t, addr)
	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err)
}
