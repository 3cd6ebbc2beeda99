package record

// streaming.go cleans up batch files as they are read:
//
//   - a leading UTF-8 BOM (written by Excel and other Windows tools) is dropped
//   - invalid UTF-8 bytes are replaced with '?'
//   - bytes are counted so callers can log batch sizes
//
// Everything works on the stream; a batch is never buffered whole just to be
// cleaned.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CountingReader tracks how many bytes have passed through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// WrapForStreaming strips a BOM, sanitizes UTF-8 and counts bytes, in that order.
func WrapForStreaming(r io.Reader) *CountingReader {
	return &CountingReader{r: &utf8Sanitizer{r: skipBOM(r)}}
}

// skipBOM drops a leading UTF-8 byte order mark if present.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes in place. A multi-byte sequence
// split across two reads is held back until the next read completes it.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	for {
		off := copy(p, s.pending)
		s.pending = s.pending[:0]

		n, err := s.r.Read(p[off:])
		n += off
		if n == 0 {
			return 0, err
		}

		data := p[:n]
		if err == nil {
			if tail := incompleteTail(data); tail > 0 {
				s.pending = append(s.pending, data[len(data)-tail:]...)
				data = data[:len(data)-tail]
			}
		}

		w := 0
		for i := 0; i < len(data); {
			ru, size := utf8.DecodeRune(data[i:])
			if ru == utf8.RuneError && size == 1 {
				data[w] = '?'
				w++
				i++
				continue
			}
			copy(data[w:], data[i:i+size])
			w += size
			i += size
		}

		if w > 0 || err != nil {
			return w, err
		}
	}
}

// incompleteTail returns how many trailing bytes form the start of a
// multi-byte sequence that is not yet complete.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue
		}
		if b >= 0xC0 && sequenceLen(b) > i {
			return i
		}
		return 0
	}
	return 0
}

func sequenceLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	default:
		return 4
	}
}
