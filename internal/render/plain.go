package render

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/value"
)

// Entry is one key of an ordered map.
type Entry struct {
	Value any
	Key   string
}

// Map is a map that keeps field order when rendered.
type Map []Entry

// Get returns the value stored under key.
func (m Map) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the entries in order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML emits a mapping node in entry order.
func (m Map) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m {
		val := &yaml.Node{}
		if err := val.Encode(e.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			val)
	}
	return node, nil
}

// Plain converts engine values into the plain form Engine.FromPlain
// accepts: records become ordered maps, variants their name or a map
// carrying engine.PlainVariant, pointers a map of offset and target,
// and byte strings 0x-prefixed hex.
func Plain(v any) any {
	return plain(v, false)
}

func plain(v any, rawBytes bool) any {
	switch x := v.(type) {
	case *value.Record:
		if x == nil {
			return nil
		}
		m := make(Map, 0, len(x.Fields))
		for _, f := range x.Fields {
			m = append(m, Entry{Key: f.Name, Value: plain(f.Value, rawBytes)})
		}
		return m
	case *value.Variant:
		if x == nil {
			return nil
		}
		if x.Value == nil {
			return x.Name
		}
		m := Map{{Key: engine.PlainVariant, Value: x.Name}}
		for _, f := range x.Value.Fields {
			m = append(m, Entry{Key: f.Name, Value: plain(f.Value, rawBytes)})
		}
		return m
	case *value.Pointer:
		if x == nil {
			return nil
		}
		m := Map{{Key: engine.PlainOffset, Value: x.Offset}}
		if target, err := x.Value(); err == nil {
			m = append(m, Entry{Key: engine.PlainValue, Value: plain(target, rawBytes)})
		}
		return m
	case []byte:
		if rawBytes {
			return x
		}
		return "0x" + hex.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e, rawBytes)
		}
		return out
	default:
		return v
	}
}
