package stream

import (
	"bytes"
	"errors"
	"io"
)

// DefaultReadBufferSize is the chunk size FrameReader requests from its source
const DefaultReadBufferSize = 4096

// LineDecoder splits an arbitrarily chunked byte stream into complete lines.
// The trailing partial line is carried over until a later chunk terminates it.
type LineDecoder struct {
	buf []byte
}

// NewLineDecoder creates an empty line decoder
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{}
}

// Feed appends chunk to the carry-over buffer and returns every line it completes,
// in arrival order. A trailing carriage return is stripped from each line.
func (d *LineDecoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		d.buf = d.buf[idx+1:]
	}

	// Compact so the carry-over does not pin the whole history of chunks
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+DefaultReadBufferSize {
		d.buf = append([]byte(nil), d.buf...)
	}

	return lines
}

// Pending returns the number of bytes held for an unterminated line
func (d *LineDecoder) Pending() int {
	return len(d.buf)
}

// Reset discards any partial line
func (d *LineDecoder) Reset() {
	d.buf = nil
}

// FrameReader lazily yields complete lines from an io.Reader.
// It is single use: once Next returns an error every later call returns the same error.
type FrameReader struct {
	src     io.Reader
	decoder *LineDecoder
	chunk   []byte
	queue   []string
	onChunk func(n int)
	err     error
}

// NewFrameReader creates a reader pulling chunks of bufSize bytes from src.
// A non-positive bufSize selects DefaultReadBufferSize.
func NewFrameReader(src io.Reader, bufSize int) *FrameReader {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	return &FrameReader{
		src:     src,
		decoder: NewLineDecoder(),
		chunk:   make([]byte, bufSize),
	}
}

// OnChunk registers a hook called with the size of every non-empty chunk read
func (r *FrameReader) OnChunk(fn func(n int)) {
	r.onChunk = fn
}

// Next returns the next complete line. It returns io.EOF once the source is
// exhausted; an unterminated final line is discarded.
func (r *FrameReader) Next() (string, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return "", r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			if r.onChunk != nil {
				r.onChunk(n)
			}
			r.queue = append(r.queue, r.decoder.Feed(r.chunk[:n])...)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.decoder.Reset()
				r.err = io.EOF
			} else {
				r.err = err
			}
		}
	}

	line := r.queue[0]
	r.queue = r.queue[1:]
	return line, nil
}

// Lines drains a reader into a slice. It is meant for tests and small fixtures.
func Lines(src io.Reader, bufSize int) ([]string, error) {
	reader := NewFrameReader(src, bufSize)
	var lines []string
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}
