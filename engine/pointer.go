package engine

import (
	"encoding/binary"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// pending is a pointer whose target has not been read (or written) yet.
// It is consumed exactly once, either right after the field or in the
// record's deferred pass.
type pending struct {
	ptr    *value.Pointer
	target *schema.Type
	order  binary.ByteOrder
	args   value.Args
	field  *schema.FieldSpec
	value  any // target value, on write
	base   uint64
	write  bool
	done   bool
}

// pointerBase returns the explicit offset argument, or the record start.
func (cl *call) pointerBase(args value.Args, fr *frame) (uint64, error) {
	raw, ok := args.Get(schema.ParamOffset)
	if !ok {
		return fr.start, nil
	}
	return expr.ToUint64(raw)
}

func (cl *call) readPointer(t *schema.Type, order binary.ByteOrder, args value.Args, fr *frame) (any, error) {
	raw, err := cl.readType(schema.Prim(t.Offset), order, value.Args{}, fr)
	if err != nil {
		return nil, err
	}
	var off uint64
	if t.Offset.IsSigned() {
		i, _ := abi.CoerceToInt64(raw)
		off = uint64(i)
	} else {
		off, _ = abi.CoerceToUint64(raw)
	}

	base, err := cl.pointerBase(args, fr)
	if err != nil {
		return nil, err
	}
	p := value.NewPointer(off)
	fr.pending = append(fr.pending, &pending{
		ptr:    p,
		target: t.Elem,
		order:  order,
		args:   args.Without(schema.ParamOffset),
		base:   base,
	})
	return p, nil
}

func (cl *call) writePointer(t *schema.Type, order binary.ByteOrder, v any, args value.Args, fr *frame) error {
	p, ok := v.(*value.Pointer)
	if !ok {
		return errors.TypeMismatch(cl.phase, nil, t.String(), v)
	}
	target, err := p.Value()
	if err != nil {
		return errors.New(cl.phase, errors.KindUnresolvedPointer).
			At(cl.pos()).
			Type(t.String()).
			Cause(err).
			Build()
	}

	var raw any = p.Offset
	if t.Offset.IsSigned() {
		raw = int64(p.Offset)
	}
	if err := cl.writeInt(t.Offset, order, raw); err != nil {
		return err
	}

	base, err := cl.pointerBase(args, fr)
	if err != nil {
		return err
	}
	fr.pending = append(fr.pending, &pending{
		ptr:    p,
		target: t.Elem,
		order:  order,
		args:   args.Without(schema.ParamOffset),
		base:   base,
		value:  target,
		write:  true,
	})
	return nil
}

// resolvePending consumes every pointer from index from onward that is not
// done yet, including pointers created while resolving. rs, when set,
// supplies the scope for offset_after and the frame for errors.
func (cl *call) resolvePending(fr *frame, from int, rs *recState) error {
	for i := from; i < len(fr.pending); i++ {
		p := fr.pending[i]
		if p.done {
			continue
		}
		if err := cl.resolveOne(fr, p, rs); err != nil {
			if rs != nil && p.field != nil {
				return errors.WithFrame(err, cl.fieldFrame(rs, p.field))
			}
			return err
		}
	}
	return nil
}

func (cl *call) resolveOne(fr *frame, p *pending, rs *recState) error {
	p.done = true

	base := p.base
	if rs != nil && p.field != nil && p.field.OffsetAfter != nil {
		b, err := expr.EvalUint(p.field.OffsetAfter, rs)
		if err != nil {
			return err
		}
		base = b
	}

	ret := cl.pos()
	at := base + p.ptr.Offset
	if err := cl.seek(at); err != nil {
		return err
	}

	var err error
	if p.write {
		err = cl.writeType(p.target, p.order, p.value, p.args, fr)
	} else {
		var v any
		v, err = cl.readType(p.target, p.order, p.args, fr)
		if err == nil {
			p.ptr.Resolve(base, v)
		}
	}
	if err != nil {
		cl.rewind(ret)
		return err
	}
	cl.log.Debug("pointer resolved",
		zap.Uint64("base", base),
		zap.Uint64("offset", p.ptr.Offset),
		zap.Uint64("at", at),
		zap.Bool("write", p.write))
	return cl.seek(ret)
}

// IsUnresolved reports whether err stems from dereferencing a pointer whose
// target has not been read.
func IsUnresolved(err error) bool {
	return errors.HasKind(err, errors.KindUnresolvedPointer) ||
		stderrors.Is(err, value.ErrUnresolvedPointer)
}
