package engine

import (
	"sync"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
)

// layoutInfo is the encoded size of a named type. Static is false when the
// size depends on data: conditionals, seeks, alignment, variable-length
// encodings or counts that are not constants.
type layoutInfo struct {
	Size   uint64
	Static bool
}

// layoutCache memoizes named type sizes. Entries are computed under the
// lock; a type currently being computed counts as not static, which keeps
// recursive types finite.
type layoutCache struct {
	mu      sync.Mutex
	entries map[string]layoutInfo
	busy    map[string]bool
}

func newLayoutCache() *layoutCache {
	return &layoutCache{
		entries: make(map[string]layoutInfo),
		busy:    make(map[string]bool),
	}
}

func (c *layoutCache) named(s *schema.Schema, name string) layoutInfo {
	if info, ok := c.entries[name]; ok {
		return info
	}
	if c.busy[name] {
		return layoutInfo{}
	}
	c.busy[name] = true
	defer delete(c.busy, name)

	var info layoutInfo
	if r, ok := s.Record(name); ok {
		info = c.record(s, r)
	} else if u, ok := s.Union(name); ok {
		info = c.union(s, u)
	}
	c.entries[name] = info
	return info
}

func (c *layoutCache) typeSize(s *schema.Schema, t *schema.Type, count *uint64) layoutInfo {
	if n, ok := t.Kind.FixedSize(); ok {
		return layoutInfo{Size: n, Static: true}
	}
	switch t.Kind {
	case schema.KindBytes, schema.KindString:
		if count == nil {
			return layoutInfo{}
		}
		return layoutInfo{Size: *count, Static: true}
	case schema.KindArray:
		if count == nil {
			return layoutInfo{}
		}
		elem := c.typeSize(s, t.Elem, nil)
		if !elem.Static {
			return layoutInfo{}
		}
		size, ok := abi.SafeMul(*count, elem.Size)
		return layoutInfo{Size: size, Static: ok}
	case schema.KindPointer:
		n, ok := t.Offset.FixedSize()
		return layoutInfo{Size: n, Static: ok}
	case schema.KindNamed:
		return c.named(s, t.Name)
	}
	return layoutInfo{}
}

func constUint(e expr.Expr) (uint64, bool) {
	v, ok := expr.ConstValue(e)
	if !ok {
		return 0, false
	}
	return abi.CoerceToUint64(v)
}

// fieldCount returns the constant element count passed to a field, if any.
func fieldCount(s *schema.Schema, f *schema.FieldSpec) (*uint64, bool) {
	var e expr.Expr
	switch {
	case f.Count != nil:
		e = f.Count
	case f.Args.Mode == schema.ArgsNamed:
		for _, a := range f.Args.Named {
			if a.Name == schema.ParamCount {
				e = a.Value
			}
		}
	case f.Args.Mode == schema.ArgsPositional:
		for i, p := range s.Params(f.Type) {
			if p.Name == schema.ParamCount && i < len(f.Args.Positional) {
				e = f.Args.Positional[i]
			}
		}
	}
	if e == nil {
		return nil, true
	}
	n, ok := constUint(e)
	if !ok {
		return nil, false
	}
	return &n, true
}

func (c *layoutCache) field(s *schema.Schema, f *schema.FieldSpec) layoutInfo {
	if f.If != nil || f.SeekBefore != nil || f.AlignBefore != nil || f.AlignAfter != nil ||
		f.Restore || f.Try || f.ReadMode == schema.ReadCustom || f.Args.Mode == schema.ArgsRaw {
		return layoutInfo{}
	}

	var size uint64
	for _, pad := range []expr.Expr{f.PadBefore, f.PadAfter} {
		if pad == nil {
			continue
		}
		n, ok := constUint(pad)
		if !ok {
			return layoutInfo{}
		}
		size += n
	}
	if f.Magic != nil {
		size += f.Magic.Size()
	}

	var inner layoutInfo
	if f.ReadMode == schema.ReadNormal {
		count, ok := fieldCount(s, f)
		if !ok {
			return layoutInfo{}
		}
		inner = c.typeSize(s, f.Type, count)
		if !inner.Static {
			return layoutInfo{}
		}
	}

	body := inner.Size
	if f.Magic != nil {
		body += f.Magic.Size()
	}
	if f.PadSizeTo != nil {
		target, ok := constUint(f.PadSizeTo)
		if !ok {
			return layoutInfo{}
		}
		size += abi.SizePadding(body, target)
	}
	return layoutInfo{Size: size + inner.Size, Static: true}
}

func (c *layoutCache) record(s *schema.Schema, r *schema.RecordSpec) layoutInfo {
	var size uint64
	if r.Magic != nil {
		size = r.Magic.Size()
	}
	for _, f := range r.Fields {
		info := c.field(s, f)
		if !info.Static {
			return layoutInfo{}
		}
		var ok bool
		if size, ok = abi.SafeAdd(size, info.Size); !ok {
			return layoutInfo{}
		}
	}
	return layoutInfo{Size: size, Static: true}
}

// union is static only when every variant encodes to the same size.
func (c *layoutCache) union(s *schema.Schema, u *schema.UnionSpec) layoutInfo {
	var head uint64
	if u.Magic != nil {
		head = u.Magic.Size()
	}
	if u.Kind == schema.UnionCStyle {
		n, _ := u.Repr.FixedSize()
		head += n
	}

	var size uint64
	for i, v := range u.Variants {
		var vs uint64
		if v.Magic != nil {
			vs = v.Magic.Size()
		}
		if v.Record != nil {
			info := c.record(s, v.Record)
			if !info.Static {
				return layoutInfo{}
			}
			vs += info.Size
		}
		if i > 0 && vs != size {
			return layoutInfo{}
		}
		size = vs
	}
	return layoutInfo{Size: head + size, Static: true}
}

// staticSize reports the fixed encoded size of t, when it has one.
func (cl *call) staticSize(t *schema.Type) (uint64, bool) {
	cl.layout.mu.Lock()
	defer cl.layout.mu.Unlock()
	info := cl.layout.typeSize(cl.schema, t, nil)
	return info.Size, info.Static
}

// SizeOf returns the encoded size of a record or union whose layout does not
// depend on the data.
func (e *Engine) SizeOf(name string) (uint64, error) {
	if !e.schema.Has(name) {
		return 0, errors.NotFound(errors.PhaseValidate, "type", name)
	}
	e.layout.mu.Lock()
	info := e.layout.named(e.schema, name)
	e.layout.mu.Unlock()
	if !info.Static {
		return 0, errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Type(name).
			Detail("size depends on the data").
			Build()
	}
	return info.Size, nil
}
