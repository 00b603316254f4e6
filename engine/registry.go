package engine

import (
	"encoding/binary"
	"sync"

	"github.com/wippyai/binlayout"
	"github.com/wippyai/binlayout/value"
)

// Codec is a custom read/write routine substituted for a field's type.
// It has the same shape as the engine's own type handlers.
type Codec interface {
	ReadValue(c binlayout.Cursor, order binary.ByteOrder, args value.Args) (any, error)
	WriteValue(c binlayout.Cursor, order binary.ByteOrder, v any, args value.Args) error
}

// CodecFuncs adapts a pair of functions to Codec.
type CodecFuncs struct {
	Read  func(c binlayout.Cursor, order binary.ByteOrder, args value.Args) (any, error)
	Write func(c binlayout.Cursor, order binary.ByteOrder, v any, args value.Args) error
}

func (f CodecFuncs) ReadValue(c binlayout.Cursor, order binary.ByteOrder, args value.Args) (any, error) {
	return f.Read(c, order, args)
}

func (f CodecFuncs) WriteValue(c binlayout.Cursor, order binary.ByteOrder, v any, args value.Args) error {
	return f.Write(c, order, v, args)
}

// Mapper converts a field's value after reading (Decode) and before
// writing (Encode).
type Mapper interface {
	Decode(v any) (any, error)
	Encode(v any) (any, error)
}

type fallibleMap struct {
	decode func(any) (any, error)
	encode func(any) (any, error)
}

func (m fallibleMap) Decode(v any) (any, error) { return m.decode(v) }

func (m fallibleMap) Encode(v any) (any, error) {
	if m.encode == nil {
		return v, nil
	}
	return m.encode(v)
}

// FallibleMap builds a Mapper from functions that may fail. A nil encode
// writes values unchanged.
func FallibleMap(decode, encode func(any) (any, error)) Mapper {
	return fallibleMap{decode: decode, encode: encode}
}

// PureMap builds a Mapper from infallible functions.
func PureMap(decode, encode func(any) any) Mapper {
	m := fallibleMap{decode: func(v any) (any, error) { return decode(v), nil }}
	if encode != nil {
		m.encode = func(v any) (any, error) { return encode(v), nil }
	}
	return m
}

// Registry holds named codecs and mappers referenced by schemas.
type Registry struct {
	codecs  map[string]Codec
	mappers map[string]Mapper
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs:  make(map[string]Codec),
		mappers: make(map[string]Mapper),
	}
}

// RegisterCodec binds name to c, replacing any previous binding.
func (r *Registry) RegisterCodec(name string, c Codec) {
	r.mu.Lock()
	r.codecs[name] = c
	r.mu.Unlock()
}

// RegisterMapper binds name to m, replacing any previous binding.
func (r *Registry) RegisterMapper(name string, m Mapper) {
	r.mu.Lock()
	r.mappers[name] = m
	r.mu.Unlock()
}

// Codec returns the named codec.
func (r *Registry) Codec(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Mapper returns the named mapper.
func (r *Registry) Mapper(name string) (Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[name]
	return m, ok
}
