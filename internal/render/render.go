// Package render turns decoded values into JSON, YAML, CBOR or an
// indented text tree, and formats codec errors for terminals.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format names an output encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
	Text Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JSON, YAML, CBOR, Text:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Binary reports whether the format is not meant for a terminal.
func (f Format) Binary() bool {
	return f == CBOR
}

var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("render: cbor encoder initialization failed: " + err.Error())
	}
}

// Write renders v to w.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Plain(v))
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Plain(v)); err != nil {
			return err
		}
		return enc.Close()
	case CBOR:
		b, err := cborMode.Marshal(cborValue(plain(v, true)))
		if err != nil {
			return fmt.Errorf("cbor: %w", err)
		}
		_, err = w.Write(b)
		return err
	case Text:
		return writeText(w, v)
	}
	return fmt.Errorf("unknown format %q", f)
}

// cborValue replaces ordered maps with plain ones; core deterministic
// encoding sorts the keys.
func cborValue(v any) any {
	switch x := v.(type) {
	case Map:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = cborValue(e.Value)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cborValue(e)
		}
		return out
	}
	return v
}
