// Package source reads and writes the byte streams the CLI decodes and
// encodes, handling compressed containers and content digests.
package source

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression identifies the container around an input or output.
type Compression uint8

const (
	// Auto detects zstd and lz4 frames by magic and falls back to None.
	Auto Compression = iota
	None
	Zstd
	LZ4
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

func (c Compression) String() string {
	switch c {
	case Auto:
		return "auto"
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "auto":
		return Auto, nil
	case "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// Detect reports the container of data by its leading magic.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	case bytes.HasPrefix(data, lz4Magic):
		return LZ4
	default:
		return None
	}
}

// zstd.Decoder and zstd.Encoder are safe for concurrent use.
var (
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
)

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("source: zstd decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("source: zstd encoder initialization failed: " + err.Error())
	}
}

// Decompress unwraps data. With Auto the container is detected; the
// returned Compression is the one actually removed.
func Decompress(data []byte, c Compression) ([]byte, Compression, error) {
	if c == Auto {
		c = Detect(data)
	}
	switch c {
	case None:
		return data, None, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, c, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, c, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, c, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, c, nil
	default:
		return nil, c, fmt.Errorf("unsupported compression: %s", c)
	}
}

// Compress wraps data in a frame. Auto and None return data unchanged.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case Auto, None:
		return data, nil
	case Zstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

// Input is a decoded input file.
type Input struct {
	Name        string
	Data        []byte
	Compression Compression
	// Digest is the BLAKE3 hash of Data after decompression.
	Digest [32]byte
}

// DigestHex returns the digest as lowercase hex.
func (in *Input) DigestHex() string {
	return hex.EncodeToString(in.Digest[:])
}

// Read loads path ("-" for stdin) and removes its container.
func Read(path string, c Compression) (*Input, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		path = "-"
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromBytes(path, raw, c)
}

// FromBytes is Read for data already in memory.
func FromBytes(name string, raw []byte, c Compression) (*Input, error) {
	data, used, err := Decompress(raw, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Input{
		Name:        name,
		Data:        data,
		Compression: used,
		Digest:      blake3.Sum256(data),
	}, nil
}

// Write compresses data and stores it at path ("-" for stdout).
func Write(path string, data []byte, c Compression) error {
	out, err := Compress(data, c)
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
