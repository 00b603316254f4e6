package engine

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// Keys of the plain form of variants and pointers.
const (
	PlainVariant = "$variant"
	PlainOffset  = "$offset"
	PlainValue   = "$value"
)

// FromPlain converts JSON- or YAML-decoded data into the values Write
// expects for the named type: maps become records, a variant name or a map
// carrying $variant becomes a union value, {$offset, $value} a pointer and
// hex strings bytes. Values of mapped fields are left as decoded.
func (e *Engine) FromPlain(name string, v any) (any, error) {
	return e.plainType([]string{name}, schema.Named(name), v)
}

func (e *Engine) plainType(path []string, t *schema.Type, v any) (any, error) {
	switch t.Kind {
	case schema.KindUnit:
		return nil, nil

	case schema.KindBytes:
		s, ok := v.(string)
		if !ok {
			if b, ok := v.([]byte); ok {
				return b, nil
			}
			return nil, errors.TypeMismatch(errors.PhaseWrite, path, "hex bytes", v)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseWrite, path, "bad hex: "+err.Error())
		}
		return b, nil

	case schema.KindArray:
		items, ok := toSlice(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseWrite, path, t.String(), v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			x, err := e.plainType(append(path, strconv.Itoa(i)), t.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil

	case schema.KindPointer:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseWrite, path, t.String(), v)
		}
		off, err := expr.ToUint64(m[PlainOffset])
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseWrite, path, "pointer needs "+PlainOffset)
		}
		target, err := e.plainType(append(path, PlainValue), t.Elem, m[PlainValue])
		if err != nil {
			return nil, err
		}
		return value.Resolved(off, target), nil

	case schema.KindNamed:
		if r, ok := e.schema.Record(t.Name); ok {
			rec, err := e.plainRecord(path, r, v)
			if err != nil {
				return nil, err
			}
			return rec, nil
		}
		if u, ok := e.schema.Union(t.Name); ok {
			vr, err := e.plainUnion(path, u, v)
			if err != nil {
				return nil, err
			}
			return vr, nil
		}
		return nil, errors.NotFound(errors.PhaseWrite, "type", t.Name)
	}

	out := coerce(t, v)
	if t.Kind.IsInteger() {
		if _, isString := out.(string); isString {
			return nil, errors.TypeMismatch(errors.PhaseWrite, path, t.String(), v)
		}
	}
	return out, nil
}

func (e *Engine) plainRecord(path []string, r *schema.RecordSpec, v any) (*value.Record, error) {
	m, ok := v.(map[string]any)
	if !ok && v != nil {
		return nil, errors.TypeMismatch(errors.PhaseWrite, path, r.Name, v)
	}
	rec := value.NewRecord(r.Name)
	for _, f := range r.Fields {
		x, ok := m[f.Name]
		if !ok {
			continue
		}
		if f.Map != "" || f.ReadMode == schema.ReadCustom {
			rec.Set(f.Name, x)
			continue
		}
		conv, err := e.plainType(append(path, f.Name), f.Type, x)
		if err != nil {
			return nil, err
		}
		rec.Set(f.Name, conv)
	}
	return rec, nil
}

func (e *Engine) plainUnion(path []string, u *schema.UnionSpec, v any) (*value.Variant, error) {
	var name string
	var fields any
	switch x := v.(type) {
	case string:
		name = x
	case map[string]any:
		name, _ = x[PlainVariant].(string)
		rest := make(map[string]any, len(x))
		for k, val := range x {
			if k != PlainVariant {
				rest[k] = val
			}
		}
		fields = rest
	default:
		return nil, errors.TypeMismatch(errors.PhaseWrite, path, u.Name, v)
	}

	for _, variant := range u.Variants {
		if variant.Name != name {
			continue
		}
		out := &value.Variant{Union: u.Name, Name: name, Discriminant: variant.Discriminant}
		if variant.Record != nil {
			rec, err := e.plainRecord(append(path, name), variant.Record, fields)
			if err != nil {
				return nil, err
			}
			out.Value = rec
		}
		return out, nil
	}
	return nil, errors.NotFound(errors.PhaseWrite, "variant", u.Name+"::"+name)
}
