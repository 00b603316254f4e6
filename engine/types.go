package engine

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"strconv"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// intValue converts raw bits to the Go type of an integer kind.
func intValue(k schema.Kind, raw uint64) any {
	switch k {
	case schema.KindU8:
		return uint8(raw)
	case schema.KindI8:
		return int8(raw)
	case schema.KindU16:
		return uint16(raw)
	case schema.KindI16:
		return int16(raw)
	case schema.KindU32:
		return uint32(raw)
	case schema.KindI32:
		return int32(raw)
	case schema.KindI64, schema.KindSLEB128:
		return int64(raw)
	}
	return raw
}

// zeroValue is the value substituted for skipped, ignored and try fields.
func zeroValue(t *schema.Type) any {
	switch t.Kind {
	case schema.KindBool:
		return false
	case schema.KindF32:
		return float32(0)
	case schema.KindF64:
		return float64(0)
	case schema.KindBytes:
		return []byte{}
	case schema.KindString, schema.KindCString:
		return ""
	case schema.KindArray:
		return []any{}
	case schema.KindUnit, schema.KindNamed, schema.KindPointer:
		return nil
	}
	return intValue(t.Kind, 0)
}

// coerce converts an expression result to the Go type of t where the
// conversion is exact; anything else is returned unchanged.
func coerce(t *schema.Type, v any) any {
	if v == nil {
		return zeroValue(t)
	}
	switch {
	case t.Kind.IsInteger():
		size := 8
		if n, ok := t.Kind.FixedSize(); ok {
			size = int(n)
		}
		if t.Kind.IsSigned() {
			if i, ok := abi.CoerceToInt64(v); ok && abi.FitsSigned(i, size) {
				return intValue(t.Kind, uint64(i))
			}
		} else if u, ok := abi.CoerceToUint64(v); ok && abi.FitsUnsigned(u, size) {
			return intValue(t.Kind, u)
		}
	case t.Kind == schema.KindF32:
		if f, ok := abi.CoerceToFloat64(v); ok {
			return float32(f)
		}
	case t.Kind == schema.KindF64:
		if f, ok := abi.CoerceToFloat64(v); ok {
			return f
		}
	case t.Kind == schema.KindBool:
		if b, err := expr.ToBool(v); err == nil {
			return b
		}
	case t.Kind == schema.KindBytes:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	case t.Kind == schema.KindString || t.Kind == schema.KindCString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

func (cl *call) countArg(t *schema.Type, args value.Args) (uint64, error) {
	raw, ok := args.Get(schema.ParamCount)
	if !ok {
		return 0, errors.New(cl.phase, errors.KindInvalidArgs).
			Type(t.String()).
			Detail("missing count").
			Build()
	}
	n, err := expr.ToUint64(raw)
	if err != nil {
		return 0, err
	}
	if n > cl.maxCount {
		return 0, errors.New(cl.phase, errors.KindOverflow).
			At(cl.pos()).
			Type(t.String()).
			Detail("count %d exceeds limit %d", n, cl.maxCount).
			Build()
	}
	return n, nil
}

// preflight fails before allocating when n elements of elemSize bytes cannot
// fit in what is left of the input.
func (cl *call) preflight(n, elemSize uint64) error {
	rem, ok := cl.remaining()
	if !ok || elemSize == 0 {
		return nil
	}
	total, ok := abi.SafeMul(n, elemSize)
	if !ok || total > rem {
		return cl.ioErr(cl.pos(), io.ErrUnexpectedEOF)
	}
	return nil
}

func (cl *call) readType(t *schema.Type, order binary.ByteOrder, args value.Args, fr *frame) (any, error) {
	pos := cl.pos()
	switch t.Kind {
	case schema.KindUnit:
		return nil, nil

	case schema.KindBool:
		b, err := cursor.ReadUint(cl.c, 1, order)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return b != 0, nil

	case schema.KindU8, schema.KindI8, schema.KindU16, schema.KindI16,
		schema.KindU32, schema.KindI32, schema.KindU64, schema.KindI64:
		size, _ := t.Kind.FixedSize()
		raw, err := cursor.ReadUint(cl.c, int(size), order)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return intValue(t.Kind, raw), nil

	case schema.KindF32:
		f, err := cursor.ReadFloat32(cl.c, order)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return f, nil

	case schema.KindF64:
		f, err := cursor.ReadFloat64(cl.c, order)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return f, nil

	case schema.KindULEB128:
		v, err := cursor.ReadULEB128(cl.c)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return v, nil

	case schema.KindSLEB128:
		v, err := cursor.ReadSLEB128(cl.c)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return v, nil

	case schema.KindCString:
		s, err := cursor.ReadCString(cl.c)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		return s, nil

	case schema.KindBytes, schema.KindString:
		n, err := cl.countArg(t, args)
		if err != nil {
			return nil, err
		}
		if err := cl.preflight(n, 1); err != nil {
			return nil, err
		}
		b, err := cursor.ReadN(cl.c, n)
		if err != nil {
			return nil, cl.ioErr(pos, err)
		}
		if t.Kind == schema.KindString {
			return string(b), nil
		}
		return b, nil

	case schema.KindArray:
		return cl.readArray(t, order, args, fr)

	case schema.KindNamed:
		return cl.readNamed(t.Name, order, args)

	case schema.KindPointer:
		return cl.readPointer(t, order, args, fr)
	}
	return nil, errors.Unsupported(cl.phase, "kind "+t.Kind.String())
}

// readNamed reads a record or union, keeping a nil interface on failure.
func (cl *call) readNamed(name string, order binary.ByteOrder, args value.Args) (any, error) {
	if r, ok := cl.schema.Record(name); ok {
		rec, err := cl.readRecord(r, order, args)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	if u, ok := cl.schema.Union(name); ok {
		vr, err := cl.readUnion(u, order, args)
		if err != nil {
			return nil, err
		}
		return vr, nil
	}
	return nil, errors.NotFound(cl.phase, "type", name)
}

func (cl *call) readArray(t *schema.Type, order binary.ByteOrder, args value.Args, fr *frame) (any, error) {
	n, err := cl.countArg(t, args)
	if err != nil {
		return nil, err
	}
	if size, ok := cl.staticSize(t.Elem); ok {
		if err := cl.preflight(n, size); err != nil {
			return nil, err
		}
	}

	elemArgs := args.Without(schema.ParamCount)
	out := make([]any, 0, min(n, 4096))
	for i := uint64(0); i < n; i++ {
		v, err := cl.readType(t.Elem, order, elemArgs, fr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (cl *call) writeInt(k schema.Kind, order binary.ByteOrder, v any) error {
	pos := cl.pos()
	size, fixed := k.FixedSize()
	if k.IsSigned() {
		i, ok := abi.CoerceToInt64(v)
		if !ok {
			return errors.TypeMismatch(cl.phase, nil, k.String(), v)
		}
		if fixed && !abi.FitsSigned(i, int(size)) {
			return errors.Overflow(cl.phase, nil, v, k.String())
		}
		if k == schema.KindSLEB128 {
			return cl.ioErr(pos, cursor.WriteSLEB128(cl.c, i))
		}
		return cl.ioErr(pos, cursor.WriteUint(cl.c, int(size), order, uint64(i)))
	}
	u, ok := abi.CoerceToUint64(v)
	if !ok {
		if _, signed := abi.CoerceToInt64(v); signed {
			return errors.Overflow(cl.phase, nil, v, k.String())
		}
		return errors.TypeMismatch(cl.phase, nil, k.String(), v)
	}
	if fixed && !abi.FitsUnsigned(u, int(size)) {
		return errors.Overflow(cl.phase, nil, v, k.String())
	}
	if k == schema.KindULEB128 {
		return cl.ioErr(pos, cursor.WriteULEB128(cl.c, u))
	}
	return cl.ioErr(pos, cursor.WriteUint(cl.c, int(size), order, u))
}

func (cl *call) writeType(t *schema.Type, order binary.ByteOrder, v any, args value.Args, fr *frame) error {
	pos := cl.pos()
	switch t.Kind {
	case schema.KindUnit:
		return nil

	case schema.KindBool:
		b, err := expr.ToBool(v)
		if err != nil {
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		var u uint64
		if b {
			u = 1
		}
		return cl.ioErr(pos, cursor.WriteUint(cl.c, 1, order, u))

	case schema.KindU8, schema.KindI8, schema.KindU16, schema.KindI16,
		schema.KindU32, schema.KindI32, schema.KindU64, schema.KindI64,
		schema.KindULEB128, schema.KindSLEB128:
		return cl.writeInt(t.Kind, order, v)

	case schema.KindF32:
		f, ok := abi.CoerceToFloat64(v)
		if !ok {
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return errors.Overflow(cl.phase, nil, v, t.String())
		}
		return cl.ioErr(pos, cursor.WriteFloat32(cl.c, order, float32(f)))

	case schema.KindF64:
		f, ok := abi.CoerceToFloat64(v)
		if !ok {
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		return cl.ioErr(pos, cursor.WriteFloat64(cl.c, order, f))

	case schema.KindCString:
		s, ok := v.(string)
		if !ok {
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		return cl.ioErr(pos, cursor.WriteCString(cl.c, s))

	case schema.KindBytes, schema.KindString:
		var b []byte
		switch x := v.(type) {
		case []byte:
			b = x
		case string:
			b = []byte(x)
		default:
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		_, err := cl.c.Write(b)
		return cl.ioErr(pos, err)

	case schema.KindArray:
		items, ok := toSlice(v)
		if !ok {
			return errors.TypeMismatch(cl.phase, nil, t.String(), v)
		}
		elemArgs := args.Without(schema.ParamCount)
		for i, item := range items {
			if err := cl.writeType(t.Elem, order, item, elemArgs, fr); err != nil {
				return errors.WithFrame(err, errors.Frame{Message: "While writing element " + strconv.Itoa(i)})
			}
		}
		return nil

	case schema.KindNamed:
		if r, ok := cl.schema.Record(t.Name); ok {
			rec, err := asRecord(v, r.Name)
			if err != nil {
				return err
			}
			return cl.writeRecord(r, order, rec, args)
		}
		if u, ok := cl.schema.Union(t.Name); ok {
			vr, ok := v.(*value.Variant)
			if !ok {
				return errors.TypeMismatch(cl.phase, nil, t.Name, v)
			}
			return cl.writeUnion(u, order, vr, args)
		}
		return errors.NotFound(cl.phase, "type", t.Name)

	case schema.KindPointer:
		return cl.writePointer(t, order, v, args, fr)
	}
	return errors.Unsupported(cl.phase, "kind "+t.Kind.String())
}

func asRecord(v any, name string) (*value.Record, error) {
	switch r := v.(type) {
	case *value.Record:
		return r, nil
	case map[string]any:
		rec := value.NewRecord(name)
		for k, x := range r {
			rec.Set(k, x)
		}
		return rec, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseWrite, []string{name}, name, v)
}

// toSlice accepts []any and any other slice or array kind via reflection.
func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
