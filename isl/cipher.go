package isl

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
)

var (
	// ErrNoopCipher is returned for a cipher spec that leaves every byte
	// unchanged at every position.
	ErrNoopCipher = errors.New("no-op cipher")
	// ErrInvalidSpec is returned for an unknown op byte.
	ErrInvalidSpec = errors.New("invalid cipher spec")
)

// OpCode is the first byte of a cipher op on the wire.
type OpCode byte

const (
	OpEnd         OpCode = 0x00
	OpReverseBits OpCode = 0x01
	OpXor         OpCode = 0x02
	OpXorPos      OpCode = 0x03
	OpAdd         OpCode = 0x04
	OpAddPos      OpCode = 0x05
)

// Op is one step of a cipher. Operand is used by OpXor and OpAdd.
type Op struct {
	Code    OpCode
	Operand byte
}

// Cipher is an ordered list of ops applied to each byte when encoding and
// undone in reverse order when decoding. pos is the byte's offset in its
// stream.
type Cipher []Op

// ReadSpec reads a cipher spec terminated by OpEnd.
//
// Parameters:
//   - r: The client stream positioned at the spec
//
// Returns:
//   - The cipher, or an error wrapping ErrInvalidSpec or ErrNoopCipher, or
//     the read error
func ReadSpec(r io.ByteReader) (Cipher, error) {
	var c Cipher
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		op := Op{Code: OpCode(b)}
		switch op.Code {
		case OpEnd:
			if c.IsNoop() {
				return nil, ErrNoopCipher
			}
			return c, nil
		case OpReverseBits, OpXorPos, OpAddPos:
		case OpXor, OpAdd:
			if op.Operand, err = r.ReadByte(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: op %#02x", ErrInvalidSpec, b)
		}

		c = append(c, op)
	}
}

// Encode obfuscates b found at stream offset pos.
func (c Cipher) Encode(b byte, pos int) byte {
	p := byte(pos)
	for _, op := range c {
		switch op.Code {
		case OpReverseBits:
			b = bits.Reverse8(b)
		case OpXor:
			b ^= op.Operand
		case OpXorPos:
			b ^= p
		case OpAdd:
			b += op.Operand
		case OpAddPos:
			b += p
		}
	}

	return b
}

// Decode inverts Encode.
func (c Cipher) Decode(b byte, pos int) byte {
	p := byte(pos)
	for i := len(c) - 1; i >= 0; i-- {
		switch op := c[i]; op.Code {
		case OpReverseBits:
			b = bits.Reverse8(b)
		case OpXor:
			b ^= op.Operand
		case OpXorPos:
			b ^= p
		case OpAdd:
			b -= op.Operand
		case OpAddPos:
			b -= p
		}
	}

	return b
}

// IsNoop reports whether Encode is the identity for every byte at every
// position. Positions repeat modulo 256.
func (c Cipher) IsNoop() bool {
	for pos := 0; pos < 256; pos++ {
		for b := 0; b < 256; b++ {
			if c.Encode(byte(b), pos) != byte(b) {
				return false
			}
		}
	}

	return true
}

// Reader decodes a stream.
type Reader struct {
	r      io.Reader
	cipher Cipher
	pos    int
}

// NewReader returns a Reader decoding r from stream offset 0.
func NewReader(r io.Reader, c Cipher) *Reader {
	return &Reader{r: r, cipher: c}
}

// Read implements io.Reader.
func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	for i := 0; i < n; i++ {
		p[i] = d.cipher.Decode(p[i], d.pos)
		d.pos++
	}

	return n, err
}

// Writer encodes a stream. It is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	cipher Cipher
	pos    int
}

// NewWriter returns a Writer encoding to w from stream offset 0.
func NewWriter(w io.Writer, c Cipher) *Writer {
	return &Writer{w: w, cipher: c}
}

// Write implements io.Writer.
func (e *Writer) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = e.cipher.Encode(b, e.pos+i)
	}

	n, err := e.w.Write(out)
	e.pos += n
	return n, err
}
