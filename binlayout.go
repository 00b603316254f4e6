package binlayout

import "io"

// Cursor is a seekable byte source and sink.
//
// Seek follows io.Seeker semantics (io.SeekStart, io.SeekCurrent,
// io.SeekEnd). Position reports the current absolute offset without
// touching the underlying stream.
type Cursor interface {
	io.Reader
	io.Writer
	io.Seeker
	Position() uint64
}

// Sizer is implemented by cursors that can report their total length.
// ok is false when the length cannot be determined.
type Sizer interface {
	Size() (size uint64, ok bool)
}
