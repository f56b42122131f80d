// Package ndjson reassembles newline-delimited JSON objects from arbitrarily
// split transport chunks.
package ndjson

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// DefaultMaxFrame bounds how many bytes may be held waiting for a newline.
const DefaultMaxFrame = 1 << 20

// Frame is one reassembled line.
type Frame struct {
	Data []byte
	// Valid reports whether Data is a well-formed JSON document. Invalid
	// frames are lines that never parsed, or fragments given up on.
	Valid bool
}

// Framer buffers unterminated fragments across chunk boundaries.
// It is not safe for concurrent use.
type Framer struct {
	buf      []byte
	maxFrame int
}

// NewFramer returns a Framer holding at most maxFrame pending bytes.
// A non-positive maxFrame selects DefaultMaxFrame.
func NewFramer(maxFrame int) *Framer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Framer{maxFrame: maxFrame}
}

// Push appends a chunk and returns every frame it completes, in order.
func (f *Framer) Push(chunk []byte) []Frame {
	f.buf = append(f.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		frames = appendFrame(frames, f.buf[:i])
		f.buf = f.buf[i+1:]
	}

	// A trailing object some upstreams send without its newline is complete
	// once it parses.
	if rest := bytes.TrimSpace(f.buf); len(rest) > 0 && rest[0] == '{' && gjson.ValidBytes(rest) {
		frames = appendFrame(frames, rest)
		f.buf = f.buf[:0]
	} else if len(f.buf) > f.maxFrame {
		frames = appendFrame(frames, f.buf)
		f.buf = f.buf[:0]
	}

	if len(f.buf) == 0 {
		f.buf = nil
	}
	return frames
}

// Flush returns whatever is still buffered as a final frame.
func (f *Framer) Flush() []Frame {
	frames := appendFrame(nil, f.buf)
	f.buf = nil
	return frames
}

// Pending reports the number of buffered bytes.
func (f *Framer) Pending() int { return len(f.buf) }

func appendFrame(frames []Frame, line []byte) []Frame {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return frames
	}
	data := make([]byte, len(line))
	copy(data, line)
	return append(frames, Frame{Data: data, Valid: gjson.ValidBytes(data)})
}
