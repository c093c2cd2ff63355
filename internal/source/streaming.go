package source

// streaming.go provides constant-memory readers that clean up exported
// text files before they reach the CSV or JSON decoder:
//
//   - a leading UTF-8 byte order mark is dropped
//   - invalid UTF-8 bytes are replaced with '?'

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader positioned after the UTF-8 BOM, if one is present.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(utf8BOM))
	if bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams
// through. Sequences split across reads are carried to the next call.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	atEOF := err == io.EOF

	if isASCII(data) {
		return n, err
	}

	write := 0
	for read := 0; read < len(data); {
		c := data[read]
		if c < utf8.RuneSelf {
			data[write] = c
			write++
			read++
			continue
		}

		// Hold back a truncated sequence at the end of the buffer.
		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			break
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}

	// Never return (0, nil) while bytes are pending.
	if write == 0 && err == nil && len(s.pending) > 0 {
		return s.Read(p)
	}
	return write, err
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Clean applies BOM skipping and UTF-8 sanitization in that order.
func Clean(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(SkipBOM(r))
}
