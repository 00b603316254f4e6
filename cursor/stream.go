package cursor

import (
	"errors"
	"io"
)

// ErrReadOnly is returned by Write on a Stream opened over a read-only source.
var ErrReadOnly = errors.New("cursor: stream is read-only")

// Stream adapts an io.ReadSeeker (optionally also an io.Writer) to the cursor
// contract by tracking the position locally.
type Stream struct {
	rs  io.ReadSeeker
	w   io.Writer
	pos uint64
}

// NewStream wraps rs. If rs also implements io.Writer, writes are forwarded.
// The current position of rs is taken as the starting position.
func NewStream(rs io.ReadSeeker) (*Stream, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	s := &Stream{rs: rs, pos: uint64(pos)}
	if w, ok := rs.(io.Writer); ok {
		s.w = w
	}
	return s, nil
}

// Position returns the current byte position.
func (s *Stream) Position() uint64 {
	return s.pos
}

// Size returns the length of the underlying stream, restoring the position.
// It reports false when the stream cannot seek to its end.
func (s *Stream) Size() (uint64, bool) {
	end, err := s.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	if _, err := s.rs.Seek(int64(s.pos), io.SeekStart); err != nil {
		return 0, false
	}
	return uint64(end), true
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.rs.Read(p)
	s.pos += uint64(n)
	return n, err
}

func (s *Stream) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrReadOnly
	}
	n, err := s.w.Write(p)
	s.pos += uint64(n)
	return n, err
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.rs.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = uint64(pos)
	return pos, nil
}
