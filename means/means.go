// Package means stores timestamped prices per connection and answers mean
// price queries over a time range. Messages are 9 bytes: one op byte and two
// big-endian int32 operands.
package means

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sort"

	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/tcpserver"
)

// MessageSize is the fixed length of every request.
const MessageSize = 9

const (
	OpInsert = 'I'
	OpQuery  = 'Q'
)

type price struct {
	ts    int32
	value int32
}

// Prices is an ordered price history. The zero value is empty.
type Prices struct {
	entries []price
}

// Insert records value at ts.
func (p *Prices) Insert(ts, value int32) {
	i := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].ts >= ts })
	p.entries = append(p.entries, price{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = price{ts: ts, value: value}
}

// Mean returns the mean of values with lo <= ts <= hi, truncated toward
// zero, or 0 when the range is empty.
func (p *Prices) Mean(lo, hi int32) int32 {
	if lo > hi {
		return 0
	}

	var sum, n int64
	start := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].ts >= lo })
	for _, e := range p.entries[start:] {
		if e.ts > hi {
			break
		}
		sum += int64(e.value)
		n++
	}

	if n == 0 {
		return 0
	}

	return int32(sum / n)
}

// Len returns the number of stored prices.
func (p *Prices) Len() int {
	return len(p.entries)
}

// Session serves one connection with its own price history.
type Session struct {
	*tcpserver.BaseSession
	prices Prices
}

// NewSessionFunc returns the session factory for tcpserver.
func NewSessionFunc(log logger.Logger) tcpserver.NewSessionFunc {
	return func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return &Session{BaseSession: tcpserver.NewBaseSession(id, conn, log)}
	}
}

// Handle processes messages until EOF or an unknown op.
func (s *Session) Handle() {
	var msg [MessageSize]byte
	for {
		if _, err := io.ReadFull(s.Reader, msg[:]); err != nil {
			return
		}

		a := int32(binary.BigEndian.Uint32(msg[1:5]))
		b := int32(binary.BigEndian.Uint32(msg[5:9]))
		switch msg[0] {
		case OpInsert:
			s.prices.Insert(a, b)
		case OpQuery:
			var reply [4]byte
			binary.BigEndian.PutUint32(reply[:], uint32(s.prices.Mean(a, b)))
			if err := s.Send(reply[:]); err != nil {
				return
			}
		default:
			s.Logger.Debug("unknown op, closing", logger.Field{Key: "op", Value: fmt.Sprintf("%#x", msg[0])})
			return
		}
	}
}
