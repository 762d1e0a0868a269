// Package chat runs a single line-based chat room. A client picks a name,
// sees who is present and then exchanges messages with everyone else.
package chat

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
	"github.com/cyberinferno/protohackers/utils"
)

const (
	Welcome     = "Welcome to budgetchat! What shall I call you?\n"
	InvalidName = "Invalid name\n"

	MaxNameLength = 16
)

// ValidName reports whether name is 1 to MaxNameLength ASCII alphanumerics.
func ValidName(name string) bool {
	return len(name) <= MaxNameLength && utils.IsAlphanumeric(name)
}

// Member is a joined participant.
type Member interface {
	ID() uint64
	Send(data []byte) error
}

type entry struct {
	name   string
	member Member
}

// Room holds the joined members. Membership changes and broadcasts are
// serialized, so every member sees events in the same order.
type Room struct {
	mu      sync.Mutex
	members map[uint64]entry
}

// NewRoom returns an empty room.
func NewRoom() *Room {
	return &Room{members: make(map[uint64]entry)}
}

// Join adds m under name, tells m who is already present and announces m to
// them. It fails if name is taken.
func (r *Room) Join(m Member, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.members))
	for _, e := range r.members {
		if e.name == name {
			return false
		}
		names = append(names, e.name)
	}
	sort.Strings(names)

	_ = m.Send([]byte("* The room contains: " + strings.Join(names, ", ") + "\n"))
	r.broadcastLocked(m.ID(), "* "+name+" has entered the room\n")
	r.members[m.ID()] = entry{name: name, member: m}

	return true
}

// Say relays msg from the member to everyone else.
func (r *Room) Say(from uint64, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.members[from]
	if !ok {
		return
	}

	r.broadcastLocked(from, "["+e.name+"] "+msg+"\n")
}

// Leave removes the member and announces the departure. Members that never
// joined are ignored.
func (r *Room) Leave(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.members[id]
	if !ok {
		return
	}

	delete(r.members, id)
	r.broadcastLocked(id, "* "+e.name+" has left the room\n")
}

// Names returns the joined names, sorted.
func (r *Room) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.members))
	for _, e := range r.members {
		names = append(names, e.name)
	}
	sort.Strings(names)

	return names
}

func (r *Room) broadcastLocked(except uint64, line string) {
	for id, e := range r.members {
		if id == except {
			continue
		}
		_ = e.member.Send([]byte(line))
	}
}

// Session is one chat client.
type Session struct {
	*tcpserver.BaseSession
	room *Room
}

// NewSessionFunc returns the session factory for tcpserver. All sessions
// share room.
func NewSessionFunc(room *Room, log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log), room: room}
	}
}

// Handle runs the name handshake and then relays lines until disconnect.
func (s *Session) Handle() {
	if err := s.SendString(Welcome); err != nil {
		return
	}

	line, err := s.ReadLine()
	if err != nil {
		return
	}

	name := strings.TrimRight(string(line), "\r")
	if !ValidName(name) || !s.room.Join(s, name) {
		s.Logger.Debug("rejected name", logger.Field{Key: "name", Value: name})
		_ = s.SendString(InvalidName)
		return
	}
	defer s.room.Leave(s.ID())

	s.Logger.Debug("joined", logger.Field{Key: "name", Value: name})
	for {
		line, err := s.ReadLine()
		if err != nil {
			return
		}

		s.room.Say(s.ID(), strings.TrimRight(string(line), "\r"))
	}
}
