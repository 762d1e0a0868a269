package lrcp

import (
	"bytes"

	"github.com/cyberinferno/protohackers/utils"
)

// Application turns received stream bytes into reply bytes. Consume sees
// every byte not yet consumed, in order, and reports how many leading bytes
// it used; the rest is offered again with the next delivery.
type Application interface {
	Consume(pending []byte) (consumed int, produced []byte)
}

// ApplicationFunc adapts a function to Application.
type ApplicationFunc func(pending []byte) (int, []byte)

// Consume implements Application.
func (f ApplicationFunc) Consume(pending []byte) (int, []byte) {
	return f(pending)
}

// LineReverser answers each complete line with the line reversed.
type LineReverser struct{}

// Consume implements Application. A trailing partial line is left pending.
func (LineReverser) Consume(pending []byte) (int, []byte) {
	var out []byte
	consumed := 0
	for {
		i := bytes.IndexByte(pending[consumed:], '\n')
		if i < 0 {
			return consumed, out
		}

		out = append(out, utils.ReverseBytes(pending[consumed:consumed+i])...)
		out = append(out, '\n')
		consumed += i + 1
	}
}
