// Package cursor provides byte cursors and the primitive codecs the engine
// calls: fixed-width integers and floats in either byte order, LEB128,
// NUL-terminated strings and zero padding.
//
// Buffer is an in-memory read/write cursor. Stream adapts any io.ReadSeeker
// (files, section readers) and forwards writes when the source is writable.
// Both satisfy binlayout.Cursor and report their total Size.
package cursor
