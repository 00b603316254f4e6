package engine

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// fieldArgs resolves a field's positional, named or raw arguments plus the
// count and offset shorthands into one argument set.
func (cl *call) fieldArgs(rs *recState, f *schema.FieldSpec) (value.Args, error) {
	var args value.Args
	switch f.Args.Mode {
	case schema.ArgsRaw:
		raw, err := f.Args.Raw.Eval(rs)
		if err != nil {
			return args, err
		}
		switch a := raw.(type) {
		case value.Args:
			args = a.Clone()
		case map[string]any:
			args = value.FromMap(a)
		case nil:
		default:
			return args, errors.New(cl.phase, errors.KindInvalidArgs).
				Path(rs.spec.Name, f.Name).
				Detail("raw args evaluated to %s", abi.TypeName(raw)).
				Build()
		}

	case schema.ArgsPositional:
		params := cl.schema.Params(f.Type)
		for i, e := range f.Args.Positional {
			if i >= len(params) {
				break
			}
			v, err := e.Eval(rs)
			if err != nil {
				return args, err
			}
			args.Set(params[i].Name, v)
		}

	case schema.ArgsNamed:
		for _, a := range f.Args.Named {
			v, err := a.Value.Eval(rs)
			if err != nil {
				return args, err
			}
			args.Set(a.Name, v)
		}
	}

	if f.Count != nil {
		v, err := f.Count.Eval(rs)
		if err != nil {
			return args, err
		}
		args.Set(schema.ParamCount, v)
	}
	if f.Offset != nil {
		v, err := f.Offset.Eval(rs)
		if err != nil {
			return args, err
		}
		args.Set(schema.ParamOffset, v)
	}
	return args, nil
}

func (cl *call) seekBefore(s *schema.Seek, rs *recState) error {
	off, err := expr.EvalInt(s.Offset, rs)
	if err != nil {
		return err
	}
	pos := cl.pos()
	if _, err := cl.c.Seek(off, s.Whence); err != nil {
		return cl.ioErr(pos, err)
	}
	return nil
}

// padAlign applies a literal pad followed by an alignment.
func (cl *call) padAlign(pad, align expr.Expr, rs *recState) error {
	if pad != nil {
		n, err := expr.EvalUint(pad, rs)
		if err != nil {
			return err
		}
		if err := cl.skip(n); err != nil {
			return err
		}
	}
	if align != nil {
		a, err := expr.EvalUint(align, rs)
		if err != nil {
			return err
		}
		if err := cl.skip(abi.AlignPadding(cl.pos(), a)); err != nil {
			return err
		}
	}
	return nil
}

func (cl *call) padSizeTo(f *schema.FieldSpec, rs *recState, baseline uint64) error {
	if f.PadSizeTo == nil {
		return nil
	}
	target, err := expr.EvalUint(f.PadSizeTo, rs)
	if err != nil {
		return err
	}
	var used uint64
	if pos := cl.pos(); pos > baseline {
		used = pos - baseline
	}
	return cl.skip(abi.SizePadding(used, target))
}

func (cl *call) condition(f *schema.FieldSpec, rs *recState) (bool, error) {
	if f.If == nil {
		return true, nil
	}
	return expr.EvalBool(f.If, rs)
}

// readField runs one field's directives in their fixed order and returns the
// value stored under the field's name.
func (cl *call) readField(rs *recState, f *schema.FieldSpec) (any, error) {
	order, err := cl.fieldOrder(f, rs)
	if err != nil {
		return nil, err
	}
	start := cl.pos()

	if f.SeekBefore != nil {
		if err := cl.seekBefore(f.SeekBefore, rs); err != nil {
			return nil, err
		}
	}
	if err := cl.padAlign(f.PadBefore, f.AlignBefore, rs); err != nil {
		return nil, err
	}
	baseline := cl.pos()

	if err := cl.checkMagic(f.Magic, order); err != nil {
		return nil, err
	}

	ok, err := cl.condition(f, rs)
	if err != nil {
		return nil, err
	}
	valuePos := cl.pos()

	var v any
	if !ok {
		v = zeroValue(f.Type)
		if f.Else != nil {
			alt, err := f.Else.Eval(rs)
			if err != nil {
				return nil, err
			}
			v = coerce(f.Type, alt)
		}
	} else {
		n := len(rs.fr.pending)
		v, err = cl.readValue(rs, f, order, n)
		switch {
		case err != nil && f.Try:
			cl.log.Debug("try field failed",
				zap.String("record", rs.spec.Name),
				zap.String("field", f.Name),
				zap.Error(err))
			cl.rewind(valuePos)
			rs.fr.pending = rs.fr.pending[:n]
			v = zeroValue(f.Type)
		case err != nil:
			return nil, err
		case f.Map != "":
			m, _ := cl.registry.Mapper(f.Map)
			v, err = m.Decode(v)
			if err != nil {
				return nil, cl.userErr(valuePos, err)
			}
		}
	}

	rs.values.Set(f.Name, v)
	if err := cl.evalAsserts(f.Asserts, rs, valuePos); err != nil {
		return nil, err
	}
	if err := cl.padSizeTo(f, rs, baseline); err != nil {
		return nil, err
	}
	if err := cl.padAlign(f.PadAfter, f.AlignAfter, rs); err != nil {
		return nil, err
	}
	if f.Restore {
		if err := cl.seek(start); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readValue produces the field value by read mode. Pointers created by the
// field are tagged with it and, for immediate deref, resolved here.
func (cl *call) readValue(rs *recState, f *schema.FieldSpec, order binary.ByteOrder, n int) (any, error) {
	switch f.ReadMode {
	case schema.ReadCalc:
		v, err := f.Calc.Eval(rs)
		if err != nil {
			return nil, err
		}
		return coerce(f.Type, v), nil

	case schema.ReadDefault:
		if f.Calc == nil {
			return zeroValue(f.Type), nil
		}
		v, err := f.Calc.Eval(rs)
		if err != nil {
			return nil, err
		}
		return coerce(f.Type, v), nil

	case schema.ReadIgnore:
		return zeroValue(f.Type), nil
	}

	args, err := cl.fieldArgs(rs, f)
	if err != nil {
		return nil, err
	}

	var v any
	if f.ReadMode == schema.ReadCustom {
		pos := cl.pos()
		codec, _ := cl.registry.Codec(f.Codec)
		v, err = codec.ReadValue(cl.c, order, args)
		if err != nil {
			return nil, cl.userErr(pos, err)
		}
	} else {
		v, err = cl.readType(f.Type, order, args, rs.fr)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range rs.fr.pending[n:] {
		if p.field == nil {
			p.field = f
		}
	}
	if f.Deref == schema.DerefImmediate {
		if err := cl.resolvePending(rs.fr, n, rs); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// writeField mirrors readField: zero bytes for padding and alignment, the
// mapper runs in the encode direction.
func (cl *call) writeField(rs *recState, f *schema.FieldSpec) error {
	order, err := cl.fieldOrder(f, rs)
	if err != nil {
		return err
	}
	start := cl.pos()

	if f.SeekBefore != nil {
		if err := cl.seekBefore(f.SeekBefore, rs); err != nil {
			return err
		}
	}
	if err := cl.padAlign(f.PadBefore, f.AlignBefore, rs); err != nil {
		return err
	}
	baseline := cl.pos()

	if err := cl.writeMagic(f.Magic, order); err != nil {
		return err
	}

	ok, err := cl.condition(f, rs)
	if err != nil {
		return err
	}
	valuePos := cl.pos()

	if ok {
		if err := cl.writeValue(rs, f, order, valuePos); err != nil {
			return err
		}
	}

	if err := cl.evalAsserts(f.Asserts, rs, valuePos); err != nil {
		return err
	}
	if err := cl.padSizeTo(f, rs, baseline); err != nil {
		return err
	}
	if err := cl.padAlign(f.PadAfter, f.AlignAfter, rs); err != nil {
		return err
	}
	if f.Restore {
		return cl.seek(start)
	}
	return nil
}

func (cl *call) writeValue(rs *recState, f *schema.FieldSpec, order binary.ByteOrder, pos uint64) error {
	switch {
	case f.ReadMode == schema.ReadCalc || f.ReadMode == schema.ReadDefault:
		// Computed on read; the scope still sees the computed value.
		if _, ok := rs.values.Get(f.Name); !ok {
			v := zeroValue(f.Type)
			if f.Calc != nil {
				x, err := f.Calc.Eval(rs)
				if err != nil {
					return err
				}
				v = coerce(f.Type, x)
			}
			rs.values.Set(f.Name, v)
		}
		return nil
	case f.ReadMode == schema.ReadIgnore || f.WriteIgnore:
		return nil
	}

	var v any
	if f.WriteCalc != nil {
		x, err := f.WriteCalc.Eval(rs)
		if err != nil {
			return err
		}
		v = x
		if f.Map == "" {
			v = coerce(f.Type, x)
		}
		rs.values.Set(f.Name, v)
	} else {
		x, ok := rs.values.Get(f.Name)
		if !ok {
			return errors.FieldMissing(cl.phase, []string{rs.spec.Name}, f.Name)
		}
		v = x
	}

	if f.Map != "" {
		m, _ := cl.registry.Mapper(f.Map)
		enc, err := m.Encode(v)
		if err != nil {
			return cl.userErr(pos, err)
		}
		v = enc
	}

	args, err := cl.fieldArgs(rs, f)
	if err != nil {
		return err
	}

	if f.ReadMode == schema.ReadCustom {
		codec, _ := cl.registry.Codec(f.Codec)
		if err := codec.WriteValue(cl.c, order, v, args); err != nil {
			return cl.userErr(pos, err)
		}
		return nil
	}

	n := len(rs.fr.pending)
	if err := cl.writeType(f.Type, order, v, args, rs.fr); err != nil {
		return err
	}
	for _, p := range rs.fr.pending[n:] {
		if p.field == nil {
			p.field = f
		}
	}
	if f.Deref == schema.DerefImmediate {
		return cl.resolvePending(rs.fr, n, rs)
	}
	return nil
}
