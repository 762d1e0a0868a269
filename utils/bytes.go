// Package utils provides the small byte and ASCII text helpers shared by the
// line-oriented services.
package utils

// ReverseBytes returns a new slice holding b in reverse order.
//
// Parameters:
//   - b: The bytes to reverse; not modified
//
// Returns:
//   - A reversed copy of b
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}

	return out
}

// JoinBytes concatenates the given byte slices into a single byte slice.
//
// Parameters:
//   - s: One or more byte slices to concatenate
//
// Returns:
//   - A new byte slice containing all input slices in order
func JoinBytes(s ...[]byte) []byte {
	n := 0
	for _, v := range s {
		n += len(v)
	}

	b, i := make([]byte, n), 0
	for _, v := range s {
		i += copy(b[i:], v)
	}

	return b
}

// IsText reports whether every byte is printable ASCII or ASCII whitespace.
func IsText(b []byte) bool {
	for _, c := range b {
		if !(c >= 0x20 && c < 0x7f) && c != '\n' && c != '\r' && c != '\t' && c != '\v' && c != '\f' {
			return false
		}
	}

	return true
}
