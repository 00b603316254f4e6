package cursor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBufferReadSeek(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3, 4, 5})

	v, err := ReadUint(b, 2, binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x0102 {
		t.Errorf("ReadUint = %#x, want 0x0102", v)
	}
	if b.Position() != 2 {
		t.Errorf("Position = %d, want 2", b.Position())
	}

	if _, err := b.Seek(-1, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	c, err := b.ReadByte()
	if err != nil || c != 5 {
		t.Errorf("ReadByte = %d, %v", c, err)
	}

	if _, err := b.Seek(-10, io.SeekCurrent); !errors.Is(err, ErrNegativePosition) {
		t.Errorf("expected ErrNegativePosition, got %v", err)
	}
}

func TestBufferShortRead(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3})
	_, err := ReadUint(b, 4, binary.LittleEndian)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF, got %v", err)
	}

	empty := NewBuffer(nil)
	if _, err := ReadUint(empty, 1, binary.LittleEndian); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("empty read should be unexpected EOF, got %v", err)
	}
}

func TestBufferWriteGrowsAndZeroFills(t *testing.T) {
	b := NewBuffer(nil)
	if _, err := b.Seek(3, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := WriteUint(b, 2, binary.LittleEndian, 0xbeef); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 0xef, 0xbe}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Bytes = %x, want %x", b.Bytes(), want)
	}

	if _, err := b.Seek(1, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte{9}); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 5 || b.Bytes()[1] != 9 {
		t.Errorf("overwrite failed: %x", b.Bytes())
	}
}

func TestFloats(t *testing.T) {
	b := NewBuffer(nil)
	if err := WriteFloat32(b, binary.BigEndian, 1.5); err != nil {
		t.Fatal(err)
	}
	if err := WriteFloat64(b, binary.LittleEndian, -2.25); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	f32, err := ReadFloat32(b, binary.BigEndian)
	if err != nil || f32 != 1.5 {
		t.Errorf("ReadFloat32 = %v, %v", f32, err)
	}
	f64, err := ReadFloat64(b, binary.LittleEndian)
	if err != nil || f64 != -2.25 {
		t.Errorf("ReadFloat64 = %v, %v", f64, err)
	}
}

func TestLEB128(t *testing.T) {
	unsigned := []struct {
		v   uint64
		enc []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range unsigned {
		got := AppendULEB128(nil, tt.v)
		if !bytes.Equal(got, tt.enc) {
			t.Errorf("AppendULEB128(%d) = %x, want %x", tt.v, got, tt.enc)
		}
		dec, err := ReadULEB128(NewBuffer(tt.enc))
		if err != nil || dec != tt.v {
			t.Errorf("ReadULEB128(%x) = %d, %v", tt.enc, dec, err)
		}
	}

	signed := []struct {
		v   int64
		enc []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{-64, []byte{0x40}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range signed {
		got := AppendSLEB128(nil, tt.v)
		if !bytes.Equal(got, tt.enc) {
			t.Errorf("AppendSLEB128(%d) = %x, want %x", tt.v, got, tt.enc)
		}
		dec, err := ReadSLEB128(NewBuffer(tt.enc))
		if err != nil || dec != tt.v {
			t.Errorf("ReadSLEB128(%x) = %d, %v", tt.enc, dec, err)
		}
	}

	if _, err := ReadULEB128(NewBuffer([]byte{0x80, 0x80})); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated LEB128 should be unexpected EOF, got %v", err)
	}
	overlong := bytes.Repeat([]byte{0xff}, 11)
	if _, err := ReadULEB128(NewBuffer(overlong)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestCString(t *testing.T) {
	b := NewBuffer([]byte("abc\x00rest"))
	s, err := ReadCString(b)
	if err != nil || s != "abc" {
		t.Errorf("ReadCString = %q, %v", s, err)
	}
	if b.Position() != 4 {
		t.Errorf("Position = %d, want 4", b.Position())
	}
	if _, err := ReadCString(b); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("unterminated string should fail, got %v", err)
	}

	out := NewBuffer(nil)
	if err := WriteCString(out, "hi"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), []byte("hi\x00")) {
		t.Errorf("WriteCString = %q", out.Bytes())
	}
}

func TestWriteZeros(t *testing.T) {
	b := NewBuffer(nil)
	if err := WriteZeros(b, 600); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 600 {
		t.Errorf("Len = %d, want 600", b.Len())
	}
	if err := Skip(b, 0); err != nil {
		t.Fatal(err)
	}
}

func TestStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte{0xaa, 0xbb, 0xcc}, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s, err := NewStream(f)
	if err != nil {
		t.Fatal(err)
	}
	if size, ok := s.Size(); !ok || size != 3 {
		t.Errorf("Size = %d, %v, want 3", size, ok)
	}
	if err := Skip(s, 1); err != nil {
		t.Fatal(err)
	}
	v, err := ReadUint(s, 1, binary.LittleEndian)
	if err != nil || v != 0xbb {
		t.Errorf("ReadUint = %#x, %v", v, err)
	}
	if err := WriteUint(s, 2, binary.BigEndian, 0x0102); err != nil {
		t.Fatal(err)
	}
	if s.Position() != 4 {
		t.Errorf("Position = %d, want 4", s.Position())
	}

	ro, err := NewStream(bytes.NewReader([]byte{1}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ro.Write([]byte{1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

// noEndSeeker reads and seeks normally except that it cannot seek to its end.
type noEndSeeker struct {
	*bytes.Reader
}

func (s noEndSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekEnd {
		return 0, errors.New("seek end unsupported")
	}
	return s.Reader.Seek(offset, whence)
}

func TestStreamSizeUnknown(t *testing.T) {
	s, err := NewStream(noEndSeeker{bytes.NewReader([]byte{1, 2, 3})})
	if err != nil {
		t.Fatal(err)
	}
	if err := Skip(s, 1); err != nil {
		t.Fatal(err)
	}
	if size, ok := s.Size(); ok {
		t.Errorf("Size = %d, true; want unknown", size)
	}
	if s.Position() != 1 {
		t.Errorf("Position = %d, want 1", s.Position())
	}
	v, err := ReadUint(s, 1, binary.LittleEndian)
	if err != nil || v != 2 {
		t.Errorf("ReadUint = %d, %v", v, err)
	}
}

func TestReadN(t *testing.T) {
	large := bytes.Repeat([]byte{0x5a}, 3*readChunk+7)

	tests := []struct {
		name    string
		data    []byte
		n       uint64
		wantErr error
	}{
		{"empty", nil, 0, nil},
		{"small", []byte{1, 2, 3}, 2, nil},
		{"small short", []byte{1}, 2, io.ErrUnexpectedEOF},
		{"chunked", large, uint64(len(large)), nil},
		{"chunked short", large, uint64(len(large)) + 1, io.ErrUnexpectedEOF},
		{"huge length", []byte{1, 2, 3, 4}, 1 << 40, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// io.MultiReader hides Seek and Size from ReadN.
			got, err := ReadN(io.MultiReader(bytes.NewReader(tt.data)), tt.n)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if uint64(len(got)) != tt.n || !bytes.Equal(got, tt.data[:tt.n]) {
				t.Errorf("ReadN returned %d bytes, want %d", len(got), tt.n)
			}
		})
	}
}
