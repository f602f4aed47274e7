package task

import (
	"errors"
	"io"
)

// Body is the response body produced by an application. Next returns
// io.EOF once the body is exhausted. A Body may also implement Lengther
// (the number of chunks is known) and io.Closer (it holds resources that
// must be released after the response).
type Body interface {
	Next() ([]byte, error)
}

// Lengther reports the total number of chunks a body will produce
type Lengther interface {
	Len() int
}

// BodyFunc adapts a function to Body
type BodyFunc func() ([]byte, error)

// Next calls f
func (f BodyFunc) Next() ([]byte, error) { return f() }

// SliceBody yields a fixed list of chunks
type SliceBody struct {
	chunks [][]byte
	pos    int
	closed bool
}

// NewSliceBody creates a body over chunks
func NewSliceBody(chunks ...[]byte) *SliceBody {
	return &SliceBody{chunks: chunks}
}

// Next returns the next chunk
func (b *SliceBody) Next() ([]byte, error) {
	if b.pos >= len(b.chunks) {
		return nil, io.EOF
	}
	chunk := b.chunks[b.pos]
	b.pos++
	return chunk, nil
}

// Len returns the number of chunks
func (b *SliceBody) Len() int { return len(b.chunks) }

// Close marks the body closed
func (b *SliceBody) Close() error {
	b.closed = true
	return nil
}

// Closed reports whether Close was called
func (b *SliceBody) Closed() bool { return b.closed }

// ReaderBody streams an io.Reader in fixed-size blocks. It backs the
// wsgi.file_wrapper environment entry.
type ReaderBody struct {
	r         io.Reader
	blockSize int
	buf       []byte
}

// NewReaderBody creates a body reading blockSize bytes at a time
func NewReaderBody(r io.Reader, blockSize int) *ReaderBody {
	if blockSize <= 0 {
		blockSize = 8192
	}
	return &ReaderBody{r: r, blockSize: blockSize}
}

// Next returns the next block read from the underlying reader
func (b *ReaderBody) Next() ([]byte, error) {
	if b.buf == nil {
		b.buf = make([]byte, b.blockSize)
	}
	n, err := io.ReadFull(b.r, b.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, b.buf[:n])
		return chunk, nil
	}
	if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return nil, err
}

// Close closes the underlying reader when it is an io.Closer
func (b *ReaderBody) Close() error {
	if c, ok := b.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileWrapper builds a Body from a reader; applications find it in the
// environment under wsgi.file_wrapper
type FileWrapper func(r io.Reader, blockSize int) Body
