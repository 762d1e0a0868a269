package tcpserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/protohackers/logger"
)

type upperSession struct {
	*BaseSession
}

func (s *upperSession) Handle() {
	for {
		line, err := s.ReadLine()
		if err != nil {
			return
		}
		for i, c := range line {
			if c >= 'a' && c <= 'z' {
				line[i] = c - 'a' + 'A'
			}
		}
		if err := s.Send(append(line, '\n')); err != nil {
			return
		}
	}
}

func startUpper(t *testing.T, reg prometheus.Registerer) *TCPServer {
	t.Helper()

	srv := New("upper", "127.0.0.1:0", logger.Nop(), func(id uint64, conn net.Conn) TCPServerSession {
		return &upperSession{BaseSession: NewBaseSession(id, conn, logger.Nop())}
	})
	srv.Metrics = NewMetrics(reg)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

func TestTCPServer_StartStop(t *testing.T) {
	t.Run("serves sessions", func(t *testing.T) {
		srv := startUpper(t, nil)

		conn, err := net.Dial("tcp", srv.ListenAddr().String())
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte("hello\n"))
		require.NoError(t, err)

		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "HELLO\n", line)
	})

	t.Run("start twice fails", func(t *testing.T) {
		srv := startUpper(t, nil)
		assert.Error(t, srv.Start())
	})

	t.Run("stop when not running is a no-op", func(t *testing.T) {
		srv := New("idle", "127.0.0.1:0", logger.Nop(), nil)
		srv.Stop()
		assert.Nil(t, srv.ListenAddr())
	})

	t.Run("bad address fails", func(t *testing.T) {
		srv := New("bad", "256.0.0.1:-1", logger.Nop(), nil)
		assert.Error(t, srv.Start())
	})
}

func TestTCPServer_sessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := startUpper(t, reg)

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.Sessions.Len() == 1 }, time.Second, 10*time.Millisecond)
	s, ok := srv.GetSession(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.ID())
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics.accepted.WithLabelValues("upper")))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Sessions.Len() == 0 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics.open.WithLabelValues("upper")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTCPServer_StopClosesSessions(t *testing.T) {
	srv := New("upper", "127.0.0.1:0", logger.Nop(), func(id uint64, conn net.Conn) TCPServerSession {
		return &upperSession{BaseSession: NewBaseSession(id, conn, logger.Nop())}
	})
	require.NoError(t, srv.Start())

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Sessions.Len() == 1 }, time.Second, 10*time.Millisecond)

	srv.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPServer_Run(t *testing.T) {
	srv := New("upper", "127.0.0.1:0", logger.Nop(), func(id uint64, conn net.Conn) TCPServerSession {
		return &upperSession{BaseSession: NewBaseSession(id, conn, logger.Nop())}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, srv.Running.Load, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, srv.Running.Load())
}

func TestBaseSession(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	b := NewBaseSession(9, server, logger.Nop())
	assert.Equal(t, uint64(9), b.ID())
	assert.Equal(t, server, b.Conn())

	t.Run("ReadLine strips newline", func(t *testing.T) {
		go func() { _, _ = client.Write([]byte("one\ntwo\n")) }()

		line, err := b.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "one", string(line))

		line, err = b.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "two", string(line))
	})

	t.Run("SendString writes", func(t *testing.T) {
		go func() { _ = b.SendString("hi\n") }()

		buf := make([]byte, 3)
		_, err := io.ReadFull(client, buf)
		require.NoError(t, err)
		assert.Equal(t, "hi\n", string(buf))
	})

	t.Run("unterminated final line is EOF", func(t *testing.T) {
		go func() {
			_, _ = client.Write([]byte("partial"))
			_ = client.Close()
		}()

		_, err := b.ReadLine()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		assert.False(t, b.Closed())
		assert.NoError(t, b.Close())
		assert.NoError(t, b.Close())
		assert.True(t, b.Closed())
	})
}
