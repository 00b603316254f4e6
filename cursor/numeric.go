package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ReadFull reads exactly len(p) bytes. A short read is always reported as
// io.ErrUnexpectedEOF, including when no bytes were available.
func ReadFull(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// readChunk bounds the allocation ReadN makes ahead of the data arriving.
const readChunk = 64 << 10

// ReadN reads exactly n bytes into a new slice. Memory grows with the bytes
// actually read, so a bogus length fails at end of input instead of
// allocating n up front.
func ReadN(r io.Reader, n uint64) ([]byte, error) {
	if n <= readChunk {
		buf := make([]byte, n)
		if err := ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	buf := make([]byte, 0, readChunk)
	for rem := n; rem > 0; {
		step := min(rem, readChunk)
		off := len(buf)
		buf = append(buf, make([]byte, step)...)
		if err := ReadFull(r, buf[off:]); err != nil {
			return nil, err
		}
		rem -= step
	}
	return buf, nil
}

// ReadUint reads an unsigned integer of size 1, 2, 4 or 8 bytes.
func ReadUint(r io.Reader, size int, order binary.ByteOrder) (uint64, error) {
	var buf [8]byte
	if err := ReadFull(r, buf[:size]); err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(order.Uint16(buf[:2])), nil
	case 4:
		return uint64(order.Uint32(buf[:4])), nil
	case 8:
		return order.Uint64(buf[:8]), nil
	}
	return 0, fmt.Errorf("cursor: unsupported integer size %d", size)
}

// WriteUint writes the low size bytes of v.
func WriteUint(w io.Writer, size int, order binary.ByteOrder, v uint64) error {
	var buf [8]byte
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		order.PutUint16(buf[:2], uint16(v))
	case 4:
		order.PutUint32(buf[:4], uint32(v))
	case 8:
		order.PutUint64(buf[:8], v)
	default:
		return fmt.Errorf("cursor: unsupported integer size %d", size)
	}
	_, err := w.Write(buf[:size])
	return err
}

// ReadFloat32 reads an IEEE 754 binary32 value.
func ReadFloat32(r io.Reader, order binary.ByteOrder) (float32, error) {
	bits, err := ReadUint(r, 4, order)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(bits)), nil
}

// ReadFloat64 reads an IEEE 754 binary64 value.
func ReadFloat64(r io.Reader, order binary.ByteOrder) (float64, error) {
	bits, err := ReadUint(r, 8, order)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// WriteFloat32 writes an IEEE 754 binary32 value.
func WriteFloat32(w io.Writer, order binary.ByteOrder, v float32) error {
	return WriteUint(w, 4, order, uint64(math.Float32bits(v)))
}

// WriteFloat64 writes an IEEE 754 binary64 value.
func WriteFloat64(w io.Writer, order binary.ByteOrder, v float64) error {
	return WriteUint(w, 8, order, math.Float64bits(v))
}

// Skip advances the cursor by n bytes without reading.
func Skip(s io.Seeker, n uint64) error {
	if n == 0 {
		return nil
	}
	_, err := s.Seek(int64(n), io.SeekCurrent)
	return err
}

var zeros [256]byte

// WriteZeros writes n zero bytes.
func WriteZeros(w io.Writer, n uint64) error {
	for n > 0 {
		chunk := min(n, uint64(len(zeros)))
		if _, err := w.Write(zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// SeekTo moves to an absolute position.
func SeekTo(s io.Seeker, pos uint64) error {
	_, err := s.Seek(int64(pos), io.SeekStart)
	return err
}
