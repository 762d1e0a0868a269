package lrcp

// Segment splits buf, whose first byte sits at stream offset offset, into
// data messages whose escaped payload is at most maxChunk bytes. The
// resulting offsets tile buf exactly. Payloads alias buf.
//
// Parameters:
//   - session: Session id stamped on every message
//   - offset: Stream offset of buf[0]
//   - buf: Unacknowledged outbound bytes
//   - maxChunk: Escaped payload budget per message; every chunk carries at
//     least one byte even if that byte alone exceeds the budget
//
// Returns:
//   - The data messages in offset order; nil for an empty buf
func Segment(session uint32, offset int, buf []byte, maxChunk int) []Message {
	var out []Message
	for start := 0; start < len(buf); {
		end, size := start, 0
		for end < len(buf) {
			cost := 1
			if buf[end] == '\\' || buf[end] == '/' {
				cost = 2
			}
			if size+cost > maxChunk && end > start {
				break
			}
			size += cost
			end++
		}

		out = append(out, NewData(session, offset+start, buf[start:end]))
		start = end
	}

	return out
}
