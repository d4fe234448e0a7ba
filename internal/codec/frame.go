// Package codec implements the two wire disciplines spec §4.1 describes: balanced-brace
// extraction of concatenated JSON objects from a TCP byte stream, and STX/ETX framing for
// serial traffic, plus the command/event JSON schemas carried inside each frame.
package codec

import (
	"bytes"
	"unicode/utf8"
)

// serialMaxNoSTXBuffer is the accumulator flush threshold when no STX has been seen (spec §4.1:
// "If the accumulator exceeds 2 048 bytes with no STX it is flushed.").
const serialMaxNoSTXBuffer = 2048

// TCPAccumulator extracts complete top-level JSON objects from a stream of concatenated objects
// with no delimiter, correctly handling string literals (including escaped quotes and braces
// inside strings) and retaining unterminated tails across Feed calls.
type TCPAccumulator struct {
	buf []byte
}

// Feed appends data to the accumulator and returns every complete JSON frame extracted so far.
// Frames whose bytes are not valid UTF-8 are dropped (invalidUTF8 reports how many were
// dropped); the accumulator itself is preserved across the call either way.
func (a *TCPAccumulator) Feed(data []byte) (frames []string, invalidUTF8 int) {
	a.buf = append(a.buf, data...)
	for {
		frame, rest, ok := extractBalancedObject(a.buf)
		if !ok {
			break
		}
		a.buf = rest
		if isValidUTF8(frame) {
			frames = append(frames, string(frame))
		} else {
			invalidUTF8++
		}
	}
	return frames, invalidUTF8
}

// extractBalancedObject finds the first '{' in buf and scans forward, tracking string context
// (so a brace inside a quoted string does not affect nesting depth), until the matching closing
// '}' balances the opening one. It returns the frame bytes (inclusive of both braces), the
// remaining buffer, and whether a complete frame was found.
func extractBalancedObject(buf []byte) (frame []byte, rest []byte, ok bool) {
	start := bytes.IndexByte(buf, '{')
	if start < 0 {
		return nil, buf, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf[start : i+1], buf[i+1:], true
			}
		}
	}
	return nil, buf, false
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// SerialAccumulator extracts STX(0x02)/ETX(0x03)-framed payloads from a serial byte stream.
// Bytes outside any STX/ETX pair are discarded; if more than serialMaxNoSTXBuffer bytes
// accumulate with no STX seen at all, the buffer is flushed.
type SerialAccumulator struct {
	buf []byte
}

const (
	stx byte = 0x02
	etx byte = 0x03
)

// Feed appends data and returns every complete STX/ETX frame (payload only, delimiters
// stripped) extracted so far.
func (a *SerialAccumulator) Feed(data []byte) [][]byte {
	a.buf = append(a.buf, data...)
	var frames [][]byte
	for {
		start := bytes.IndexByte(a.buf, stx)
		if start < 0 {
			if len(a.buf) > serialMaxNoSTXBuffer {
				a.buf = nil
			}
			break
		}
		if start > 0 {
			a.buf = a.buf[start:] // discard noise before STX
		}
		end := bytes.IndexByte(a.buf, etx)
		if end < 0 {
			break // incomplete; wait for more data
		}
		payload := make([]byte, end-1)
		copy(payload, a.buf[1:end])
		frames = append(frames, payload)
		a.buf = a.buf[end+1:]
	}
	return frames
}
