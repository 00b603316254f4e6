package cursor

import (
	"errors"
	"io"
)

// ErrNegativePosition is returned when a seek would move before the start.
var ErrNegativePosition = errors.New("cursor: negative position")

// Buffer is an in-memory cursor over a growable byte slice.
// Seeking past the end is allowed; a later write zero-fills the gap.
type Buffer struct {
	buf []byte
	pos uint64
}

// NewBuffer creates a Buffer positioned at the start of data.
// The slice is used directly, not copied.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// Bytes returns the underlying contents.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Position returns the current byte position.
func (b *Buffer) Position() uint64 {
	return b.pos
}

// Len returns the total length of the buffer.
func (b *Buffer) Len() uint64 {
	return uint64(len(b.buf))
}

// Size is Len; a buffer always knows its length.
func (b *Buffer) Size() (uint64, bool) {
	return b.Len(), true
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.pos >= uint64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += uint64(n)
	return n, nil
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= uint64(len(b.buf)) {
		return 0, io.EOF
	}
	c := b.buf[b.pos]
	b.pos++
	return c, nil
}

// Write implements io.Writer, overwriting in place and growing as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + uint64(len(p))
	if end > uint64(len(b.buf)) {
		if end <= uint64(cap(b.buf)) {
			old := len(b.buf)
			b.buf = b.buf[:end]
			clear(b.buf[old:])
		} else {
			grown := make([]byte, end, max(end, uint64(2*cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		}
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += uint64(n)
	return n, nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Seek implements io.Seeker.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.buf))
	default:
		return 0, errors.New("cursor: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, ErrNegativePosition
	}
	b.pos = uint64(next)
	return next, nil
}
