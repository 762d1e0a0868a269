package lrcp

import (
	"net"
	"sort"

	"github.com/cyberinferno/protohackers/logger"
)

// Outbound is one message the Table wants sent.
type Outbound struct {
	Message    Message
	Addr       net.Addr
	Retransmit bool
}

// Table is the transport state machine: it owns every session and turns
// each inbound message into the replies it requires. A Table is not safe
// for concurrent use; the Server confines it to a single worker.
type Table struct {
	sessions map[uint32]*session
	app      Application
	maxChunk int
	log      logger.Logger
	metrics  *Metrics
}

// NewTable returns an empty table.
//
// Parameters:
//   - app: Application fed with in-order inbound bytes
//   - maxChunk: Escaped payload budget per data message
//   - log: Logger for session lifecycle events
//   - m: Metrics sink; nil records nothing
//
// Returns:
//   - The new Table
func NewTable(app Application, maxChunk int, log logger.Logger, m *Metrics) *Table {
	return &Table{
		sessions: make(map[uint32]*session),
		app:      app,
		maxChunk: maxChunk,
		log:      log,
		metrics:  m,
	}
}

// Len returns the number of open sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}

// Session returns a copy of the state of session id.
func (t *Table) Session(id uint32) (SessionState, bool) {
	s, ok := t.sessions[id]
	if !ok {
		return SessionState{}, false
	}

	return s.state(), true
}

// Handle applies msg, received from addr, and returns the replies.
func (t *Table) Handle(msg Message, addr net.Addr) []Outbound {
	switch msg.Kind {
	case KindOpen:
		return t.open(msg, addr)
	case KindData:
		return t.data(msg, addr)
	case KindAck:
		return t.ack(msg, addr)
	case KindClose:
		return t.close(msg, addr)
	default:
		return nil
	}
}

// Sweep returns a retransmission of every unacknowledged byte of every
// session, in session id order.
func (t *Table) Sweep() []Outbound {
	ids := make([]uint32, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Outbound
	for _, id := range ids {
		out = append(out, t.flush(t.sessions[id], true)...)
	}

	return out
}

func (t *Table) open(msg Message, addr net.Addr) []Outbound {
	s, ok := t.sessions[msg.Session]
	if !ok {
		s = &session{id: msg.Session}
		t.sessions[msg.Session] = s
		t.metrics.setSessions(len(t.sessions))
		t.log.Debug("session opened", logger.Field{Key: "session", Value: msg.Session}, logger.Field{Key: "peer", Value: addr.String()})
	}
	s.peer = addr

	return []Outbound{{Message: NewAck(s.id, s.rxPos), Addr: addr}}
}

func (t *Table) data(msg Message, addr net.Addr) []Outbound {
	s, ok := t.sessions[msg.Session]
	if !ok {
		return nil
	}
	s.peer = addr

	if msg.Pos != s.rxPos {
		return []Outbound{{Message: NewAck(s.id, s.rxPos), Addr: addr}}
	}

	if s.rxPos+len(msg.Data) > MaxNumeric {
		return t.exhaust(s, addr)
	}

	produced := s.accept(msg.Data, t.app)
	if s.txEnd() > MaxNumeric {
		return t.exhaust(s, addr)
	}

	out := []Outbound{{Message: NewAck(s.id, s.rxPos), Addr: addr}}
	if len(produced) > 0 {
		out = append(out, t.flush(s, false)...)
	}

	return out
}

func (t *Table) ack(msg Message, addr net.Addr) []Outbound {
	s, ok := t.sessions[msg.Session]
	if !ok {
		return nil
	}
	s.peer = addr

	if msg.Len <= s.txAcked {
		return nil
	}

	if msg.Len > s.txEnd() {
		t.metrics.violation()
		t.log.Warn("ack beyond sent data, closing session",
			logger.Field{Key: "session", Value: s.id},
			logger.Field{Key: "ack", Value: msg.Len},
			logger.Field{Key: "sent", Value: s.txEnd()},
		)
		t.remove(s.id)
		return []Outbound{{Message: NewClose(s.id), Addr: addr}}
	}

	s.confirm(msg.Len)
	return t.flush(s, false)
}

func (t *Table) close(msg Message, addr net.Addr) []Outbound {
	if _, ok := t.sessions[msg.Session]; ok {
		t.remove(msg.Session)
		t.log.Debug("session closed by peer", logger.Field{Key: "session", Value: msg.Session})
	}

	return []Outbound{{Message: NewClose(msg.Session), Addr: addr}}
}

// exhaust closes a session whose stream positions would no longer fit a
// numeric field.
func (t *Table) exhaust(s *session, addr net.Addr) []Outbound {
	t.metrics.violation()
	t.log.Warn("stream position limit reached, closing session",
		logger.Field{Key: "session", Value: s.id},
		logger.Field{Key: "rx", Value: s.rxPos},
		logger.Field{Key: "tx", Value: s.txEnd()},
	)
	t.remove(s.id)

	return []Outbound{{Message: NewClose(s.id), Addr: addr}}
}

func (t *Table) remove(id uint32) {
	delete(t.sessions, id)
	t.metrics.setSessions(len(t.sessions))
}

func (t *Table) flush(s *session, retransmit bool) []Outbound {
	segments := Segment(s.id, s.txAcked, s.txBuf, t.maxChunk)
	out := make([]Outbound, 0, len(segments))
	for _, m := range segments {
		out = append(out, Outbound{Message: m, Addr: s.peer, Retransmit: retransmit})
	}

	return out
}
