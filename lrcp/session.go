package lrcp

import "net"

// session is the transport state of one peer-chosen session id. It is only
// touched by the worker that owns the Table.
type session struct {
	id   uint32
	peer net.Addr

	// rxPos counts inbound bytes accepted contiguously from offset 0;
	// rxPending holds those not yet consumed by the application.
	rxPos     int
	rxPending []byte

	// txAcked is the offset of txBuf[0]; everything before it is confirmed.
	txAcked int
	txBuf   []byte
}

func (s *session) txEnd() int {
	return s.txAcked + len(s.txBuf)
}

// accept appends in-order payload and returns the bytes the application
// produced from it.
func (s *session) accept(payload []byte, app Application) []byte {
	s.rxPending = append(s.rxPending, payload...)
	s.rxPos += len(payload)

	consumed, produced := app.Consume(s.rxPending)
	s.rxPending = append(s.rxPending[:0], s.rxPending[consumed:]...)
	s.txBuf = append(s.txBuf, produced...)

	return produced
}

// confirm advances txAcked to length, dropping the confirmed prefix. The
// caller has checked txAcked < length <= txEnd().
func (s *session) confirm(length int) {
	s.txBuf = s.txBuf[length-s.txAcked:]
	s.txAcked = length
	if len(s.txBuf) == 0 {
		s.txBuf = nil
	}
}

// SessionState is a copy of one session's state, for inspection.
type SessionState struct {
	ID      uint32
	Peer    net.Addr
	RxPos   int
	Pending []byte
	TxAcked int
	Unacked []byte
}

func (s *session) state() SessionState {
	return SessionState{
		ID:      s.id,
		Peer:    s.peer,
		RxPos:   s.rxPos,
		Pending: append([]byte(nil), s.rxPending...),
		TxAcked: s.txAcked,
		Unacked: append([]byte(nil), s.txBuf...),
	}
}
