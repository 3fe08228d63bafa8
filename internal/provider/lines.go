package provider

import (
	"bytes"
	"errors"
)

// maxLineSize bounds a single unterminated line (1 MiB).
const maxLineSize = 1 << 20

var errLineTooLong = errors.New("stream line exceeds maximum size")

// lineBuffer splits a byte stream into LF terminated lines. Network chunks
// rarely end on a line boundary, so the unterminated tail of each chunk is
// kept and completed by the next one. One buffer belongs to one stream.
type lineBuffer struct {
	buf []byte
}

// feed appends chunk and calls emit for every complete line, without its
// terminator. The line slice is only valid during the call. It stops early
// and returns false when emit does.
func (b *lineBuffer) feed(chunk []byte, emit func(line []byte) bool) bool {
	b.buf = append(b.buf, chunk...)

	start := 0
	for {
		i := bytes.IndexByte(b.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(b.buf[start:start+i], []byte{'\r'})
		start += i + 1
		if !emit(line) {
			b.compact(start)
			return false
		}
	}
	b.compact(start)
	return true
}

// flush emits whatever is left once the stream has ended.
func (b *lineBuffer) flush(emit func(line []byte) bool) bool {
	if len(b.buf) == 0 {
		return true
	}
	line := bytes.TrimSuffix(b.buf, []byte{'\r'})
	b.buf = b.buf[:0]
	return emit(line)
}

// overflow reports whether the pending partial line has grown past
// maxLineSize.
func (b *lineBuffer) overflow() bool {
	return len(b.buf) > maxLineSize
}

func (b *lineBuffer) compact(consumed int) {
	n := copy(b.buf, b.buf[consumed:])
	b.buf = b.buf[:n]
}

func (b *lineBuffer) reset() {
	b.buf = nil
}

var dataPrefix = []byte("data:")

// payloadOf returns the payload of a "data: " line. Every other line
// (event names, comments, blank separators) is not a payload line.
func payloadOf(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimPrefix(line[len(dataPrefix):], []byte{' '})
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}
