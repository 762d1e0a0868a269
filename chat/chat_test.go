package chat

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("alice"))
	assert.True(t, ValidName("Bob42"))
	assert.True(t, ValidName(strings.Repeat("x", 16)))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName(strings.Repeat("x", 17)))
	assert.False(t, ValidName("with space"))
	assert.False(t, ValidName("über"))
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, srv *tcpserver.TCPServer) *client {
	t.Helper()

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	c.expect(Welcome)
	return c
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *client) expect(want string) {
	c.t.Helper()
	got, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	assert.Equal(c.t, want, got)
}

func startChat(t *testing.T) *tcpserver.TCPServer {
	t.Helper()

	srv := tcpserver.New("chat", "127.0.0.1:0", logger.Nop(), NewSessionFunc(NewRoom(), logger.Nop()))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

func TestChat(t *testing.T) {
	srv := startChat(t)

	alice := connect(t, srv)
	alice.send("alice")
	alice.expect("* The room contains: \n")

	bob := connect(t, srv)
	bob.send("bob")
	bob.expect("* The room contains: alice\n")
	alice.expect("* bob has entered the room\n")

	carol := connect(t, srv)
	carol.send("carol")
	carol.expect("* The room contains: alice, bob\n")
	alice.expect("* carol has entered the room\n")
	bob.expect("* carol has entered the room\n")

	alice.send("hi all")
	bob.expect("[alice] hi all\n")
	carol.expect("[alice] hi all\n")

	require.NoError(t, carol.conn.Close())
	alice.expect("* carol has left the room\n")
	bob.expect("* carol has left the room\n")

	bob.send("bye")
	alice.expect("[bob] bye\n")
}

func TestChatRejectsNames(t *testing.T) {
	srv := startChat(t)

	alice := connect(t, srv)
	alice.send("alice")
	alice.expect("* The room contains: \n")

	for _, name := range []string{"alice", "", "not ok", strings.Repeat("n", 17)} {
		c := connect(t, srv)
		c.send(name)
		c.expect(InvalidName)
		_, err := c.r.ReadString('\n')
		assert.Error(t, err)
	}

	// a client that leaves before joining is never announced
	lurker := connect(t, srv)
	require.NoError(t, lurker.conn.Close())

	bob := connect(t, srv)
	bob.send("bob")
	bob.expect("* The room contains: alice\n")
	alice.expect("* bob has entered the room\n")
}

type recorder struct {
	id    uint64
	lines []string
}

func (r *recorder) ID() uint64 { return r.id }

func (r *recorder) Send(data []byte) error {
	r.lines = append(r.lines, string(data))
	return nil
}

func TestRoom(t *testing.T) {
	room := NewRoom()
	a, b := &recorder{id: 1}, &recorder{id: 2}

	require.True(t, room.Join(a, "a"))
	require.True(t, room.Join(b, "b"))
	assert.False(t, room.Join(&recorder{id: 3}, "a"))
	assert.Equal(t, []string{"a", "b"}, room.Names())

	room.Say(1, "x")
	room.Say(99, "ghost")
	room.Leave(2)
	room.Leave(2)

	assert.Equal(t, []string{"* The room contains: \n", "* b has entered the room\n", "* b has left the room\n"}, a.lines)
	assert.Equal(t, []string{"* The room contains: a\n", "[a] x\n"}, b.lines)
	assert.Equal(t, []string{"a"}, room.Names())
}
