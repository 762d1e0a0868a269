package lrcp

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxNumeric bounds every numeric field on the wire: values must be
// strictly below 2^31.
const MaxNumeric = 1<<31 - 1

// ErrMalformed is wrapped by every Decode failure. Malformed datagrams are
// dropped without a reply.
var ErrMalformed = errors.New("malformed message")

// Kind identifies the message type by its first field.
type Kind int

const (
	KindOpen Kind = iota + 1
	KindData
	KindAck
	KindClose
)

// String returns the kind's name, which is also its metrics label.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// verb returns the first wire field. Open is written as "connect"; "open"
// is accepted on input as a synonym.
func (k Kind) verb() string {
	if k == KindOpen {
		return "connect"
	}

	return k.String()
}

// Message is one decoded LRCP datagram. Pos is set for data, Len for ack,
// Data holds the unescaped payload of a data message.
type Message struct {
	Kind    Kind
	Session uint32
	Pos     int
	Len     int
	Data    []byte
}

// NewAck builds ack/<session>/<length>/.
func NewAck(session uint32, length int) Message {
	return Message{Kind: KindAck, Session: session, Len: length}
}

// NewClose builds close/<session>/.
func NewClose(session uint32) Message {
	return Message{Kind: KindClose, Session: session}
}

// NewData builds data/<session>/<pos>/<payload>/.
func NewData(session uint32, pos int, payload []byte) Message {
	return Message{Kind: KindData, Session: session, Pos: pos, Data: payload}
}

// Encode renders the message in wire form, escaping the payload.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, 24+EscapedLen(m.Data))
	buf = append(buf, '/')
	buf = append(buf, m.Kind.verb()...)
	buf = append(buf, '/')
	buf = strconv.AppendUint(buf, uint64(m.Session), 10)
	buf = append(buf, '/')

	switch m.Kind {
	case KindData:
		buf = strconv.AppendInt(buf, int64(m.Pos), 10)
		buf = append(buf, '/')
		buf = AppendEscaped(buf, m.Data)
		buf = append(buf, '/')
	case KindAck:
		buf = strconv.AppendInt(buf, int64(m.Len), 10)
		buf = append(buf, '/')
	}

	return buf
}

// String renders the message for logs.
func (m Message) String() string {
	return string(m.Encode())
}

// Decode parses one datagram.
//
// Parameters:
//   - b: The raw datagram
//
// Returns:
//   - The decoded message, or an error wrapping ErrMalformed
func Decode(b []byte) (Message, error) {
	fields, err := split(b)
	if err != nil {
		return Message{}, err
	}

	verb := string(fields[0])
	switch {
	case (verb == "connect" || verb == "open") && len(fields) == 2:
		id, err := parseSession(fields[1])
		return Message{Kind: KindOpen, Session: id}, err
	case verb == "data" && len(fields) == 4:
		id, err := parseSession(fields[1])
		if err != nil {
			return Message{}, err
		}
		pos, err := parseNumeric(fields[2])
		if err != nil {
			return Message{}, err
		}
		return NewData(id, pos, fields[3]), nil
	case verb == "ack" && len(fields) == 3:
		id, err := parseSession(fields[1])
		if err != nil {
			return Message{}, err
		}
		length, err := parseNumeric(fields[2])
		if err != nil {
			return Message{}, err
		}
		return NewAck(id, length), nil
	case verb == "close" && len(fields) == 2:
		id, err := parseSession(fields[1])
		return Message{Kind: KindClose, Session: id}, err
	default:
		return Message{}, fmt.Errorf("%w: unknown verb %q with %d fields", ErrMalformed, verb, len(fields))
	}
}

// split walks the datagram once, unescaping as it goes. Each escape pair is
// consumed whole, so `\\/` is a literal backslash followed by a separator.
func split(b []byte) ([][]byte, error) {
	if len(b) < 2 || b[0] != '/' {
		return nil, fmt.Errorf("%w: missing leading slash", ErrMalformed)
	}

	var fields [][]byte
	field := []byte{}
	terminated := false
	for i := 1; i < len(b); i++ {
		terminated = false
		switch c := b[i]; c {
		case '\\':
			if i+1 >= len(b) || (b[i+1] != '\\' && b[i+1] != '/') {
				return nil, fmt.Errorf("%w: bad escape at %d", ErrMalformed, i)
			}
			i++
			field = append(field, b[i])
		case '/':
			fields = append(fields, field)
			field = []byte{}
			terminated = true
		default:
			field = append(field, c)
		}
	}

	if !terminated {
		return nil, fmt.Errorf("%w: missing trailing slash", ErrMalformed)
	}

	return fields, nil
}

func parseNumeric(b []byte) (int, error) {
	if len(b) == 0 || len(b) > 10 {
		return 0, fmt.Errorf("%w: bad number %q", ErrMalformed, b)
	}

	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: bad number %q", ErrMalformed, b)
		}
		n = n*10 + int(c-'0')
	}

	if n > MaxNumeric {
		return 0, fmt.Errorf("%w: number %q out of range", ErrMalformed, b)
	}

	return n, nil
}

func parseSession(b []byte) (uint32, error) {
	n, err := parseNumeric(b)
	return uint32(n), err
}

// EscapedLen returns the number of bytes b occupies once escaped.
func EscapedLen(b []byte) int {
	n := len(b)
	for _, c := range b {
		if c == '\\' || c == '/' {
			n++
		}
	}

	return n
}

// AppendEscaped appends b to dst with `\` and `/` escaped.
func AppendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == '\\' || c == '/' {
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}

	return dst
}
