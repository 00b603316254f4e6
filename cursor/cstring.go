package cursor

import (
	"bytes"
	"io"
)

// ReadCString reads bytes up to and including a NUL terminator and returns
// them without the terminator. Reaching the end first is io.ErrUnexpectedEOF.
func ReadCString(r io.Reader) (string, error) {
	var buf bytes.Buffer
	for {
		b, err := readByte(r)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

// WriteCString writes s followed by a NUL terminator.
func WriteCString(w io.Writer, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}
