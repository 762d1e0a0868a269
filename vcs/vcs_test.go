package vcs

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, maxSize int) *client {
	t.Helper()

	srv := tcpserver.New("vcs", "127.0.0.1:0", logger.Nop(), NewSessionFunc(NewRepo(), maxSize, logger.Nop()))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	c.expect("READY")
	return c
}

func (c *client) send(s string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(s))
	require.NoError(c.t, err)
}

func (c *client) expect(lines ...string) {
	c.t.Helper()
	for _, want := range lines {
		got, err := c.r.ReadString('\n')
		require.NoError(c.t, err)
		assert.Equal(c.t, want+"\n", got)
	}
}

func TestSession(t *testing.T) {
	c := connect(t, 1024)

	c.send("help\n")
	c.expect("OK usage: HELP|GET|PUT|LIST", "READY")

	c.send("PUT /dir/file.txt 6\nhello\n")
	c.expect("OK r1", "READY")
	c.send("put /dir/file.txt 6\nhello\n")
	c.expect("OK r1", "READY")
	c.send("PUT /dir/file.txt 4\nbye\n")
	c.expect("OK r2", "READY")
	c.send("PUT /top 2\nx\n")
	c.expect("OK r1", "READY")

	c.send("GET /dir/file.txt\n")
	c.expect("OK 4", "bye", "READY")
	c.send("GET /dir/file.txt r1\n")
	c.expect("OK 6", "hello", "READY")
	c.send("GET /dir/file.txt 2\n")
	c.expect("OK 4", "bye", "READY")
	c.send("GET /dir/file.txt r9\n")
	c.expect("ERR no such revision", "READY")
	c.send("GET /missing\n")
	c.expect("ERR no such file", "READY")

	c.send("LIST /\n")
	c.expect("OK 2", "dir/ DIR", "top r1", "READY")
	c.send("LIST /dir/\n")
	c.expect("OK 1", "file.txt r2", "READY")

	c.send("PUT /bad//name 1\n")
	c.expect("ERR illegal file name", "READY")
	c.send("PUT /bin 2\n\x00\x01")
	c.expect("ERR text files only", "READY")
	c.send("LIST\n")
	c.expect("ERR usage: LIST dir", "READY")
	c.send("GET\n")
	c.expect("ERR usage: GET file [revision]", "READY")
	c.send("PUT /x\n")
	c.expect("ERR usage: PUT file length newline data", "READY")

	c.send("DANCE\n")
	c.expect("ERR illegal method: DANCE")
	_, err := c.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSession_TooLarge(t *testing.T) {
	c := connect(t, 4)

	c.send("PUT /f 8\n12345678")
	c.expect("ERR file too large", "READY")
	c.send("PUT /f 3\nab\n")
	c.expect("OK r1", "READY")
}
