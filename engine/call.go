package engine

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout"
	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// call is the state of one Read or Write: the engine and the cursor it owns
// for the duration.
type call struct {
	*Engine
	c     binlayout.Cursor
	phase errors.Phase
}

func (cl *call) pos() uint64 {
	return cl.c.Position()
}

func (cl *call) seek(pos uint64) error {
	if err := cursor.SeekTo(cl.c, pos); err != nil {
		return cl.ioErr(pos, err)
	}
	return nil
}

// rewind restores pos after a failure. A failed rewind is logged; the
// original error is what the caller reports.
func (cl *call) rewind(pos uint64) {
	if err := cursor.SeekTo(cl.c, pos); err != nil {
		cl.log.Warn("rewind failed", zap.Uint64("pos", pos), zap.Error(err))
	}
}

func (cl *call) ioErr(pos uint64, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.IO(cl.phase, pos, err)
}

// userErr wraps an error from a codec or mapper as a custom error at pos,
// passing structured errors through.
func (cl *call) userErr(pos uint64, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	var bt *errors.Backtrace
	if stderrors.As(err, &bt) {
		return err
	}
	return errors.Custom(cl.phase, pos, err)
}

func (cl *call) skip(n uint64) error {
	if n == 0 {
		return nil
	}
	pos := cl.pos()
	if cl.phase == errors.PhaseWrite {
		return cl.ioErr(pos, cursor.WriteZeros(cl.c, n))
	}
	return cl.ioErr(pos, cursor.Skip(cl.c, n))
}

// remaining reports how many bytes are left, when the cursor knows its size.
func (cl *call) remaining() (uint64, bool) {
	s, ok := cl.c.(binlayout.Sizer)
	if !ok {
		return 0, false
	}
	size, known := s.Size()
	if !known {
		return 0, false
	}
	pos := cl.pos()
	if pos >= size {
		return 0, true
	}
	return size - pos, true
}

// frame collects pointers created while reading or writing one record.
type frame struct {
	pending []*pending
	start   uint64
}

// recState is the state of one record in progress.
type recState struct {
	spec   *schema.RecordSpec
	values *value.Record // every field so far, temp fields included
	fr     *frame
	order  binary.ByteOrder
	args   value.Args
	start  uint64
}

// Lookup resolves fields first, then bound arguments.
func (rs *recState) Lookup(name string) (any, bool) {
	if name == "args" {
		return rs.args, true
	}
	if v, ok := rs.values.Get(name); ok {
		return v, true
	}
	return rs.args.Get(name)
}

// argsScope exposes only arguments, for union and import-default expressions.
type argsScope struct {
	args value.Args
}

func (s argsScope) Lookup(name string) (any, bool) {
	if name == "args" {
		return s.args, true
	}
	return s.args.Get(name)
}

func (cl *call) byteOrder(e schema.Endian, parent binary.ByteOrder) binary.ByteOrder {
	if o := e.Order(); o != nil {
		return o
	}
	if parent != nil {
		return parent
	}
	return cl.order
}

func (cl *call) fieldOrder(f *schema.FieldSpec, rs *recState) (binary.ByteOrder, error) {
	if f.EndianIf != nil {
		ok, err := expr.EvalBool(f.EndianIf.Cond, rs)
		if err != nil {
			return nil, err
		}
		if ok {
			return cl.byteOrder(f.EndianIf.Then, rs.order), nil
		}
		return cl.byteOrder(f.EndianIf.Else, rs.order), nil
	}
	return cl.byteOrder(f.Endian, rs.order), nil
}

// bindImports assembles a record or union's arguments: supplied values
// first, then defaults in declaration order. With no imports the incoming
// arguments pass through unchanged.
func (cl *call) bindImports(path string, imports []schema.Import, in value.Args) (value.Args, error) {
	if len(imports) == 0 {
		return in, nil
	}
	var out value.Args
	for _, imp := range imports {
		if v, ok := in.Get(imp.Name); ok {
			out.Set(imp.Name, v)
			continue
		}
		if imp.Default == nil {
			return value.Args{}, errors.New(cl.phase, errors.KindInvalidArgs).
				Path(path).
				Detail("missing required argument %q", imp.Name).
				Build()
		}
		v, err := imp.Default.Eval(argsWithFallback{bound: out, in: in})
		if err != nil {
			return value.Args{}, err
		}
		out.Set(imp.Name, v)
	}
	return out, nil
}

type argsWithFallback struct {
	bound value.Args
	in    value.Args
}

func (s argsWithFallback) Lookup(name string) (any, bool) {
	if name == "args" {
		return s.in, true
	}
	if v, ok := s.bound.Get(name); ok {
		return v, true
	}
	return s.in.Get(name)
}

func (cl *call) evalAsserts(asserts []schema.Assert, scope expr.Scope, pos uint64) error {
	for _, a := range asserts {
		ok, err := expr.EvalBool(a.Cond, scope)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if a.Err != nil {
			payload, err := a.Err.Eval(scope)
			if err != nil {
				return err
			}
			return errors.Custom(cl.phase, pos, payload)
		}
		msg := a.Message
		if msg == "" {
			msg = fmt.Sprintf("assertion failed: %s", a.Cond)
		}
		return errors.AssertionFailed(cl.phase, pos, msg)
	}
	return nil
}

func (cl *call) checkMagic(m *schema.Magic, order binary.ByteOrder) error {
	if m == nil {
		return nil
	}
	pos := cl.pos()
	if m.IsBytes() {
		found, err := cursor.ReadN(cl.c, uint64(len(m.Bytes)))
		if err != nil {
			return cl.ioErr(pos, err)
		}
		if string(found) != string(m.Bytes) {
			return errors.MagicMismatch(pos, found)
		}
		return nil
	}
	size, _ := m.Kind.FixedSize()
	raw, err := cursor.ReadUint(cl.c, int(size), order)
	if err != nil {
		return cl.ioErr(pos, err)
	}
	if raw != truncate(m.Value, int(size)) {
		return errors.MagicMismatch(pos, intValue(m.Kind, raw))
	}
	return nil
}

func (cl *call) writeMagic(m *schema.Magic, order binary.ByteOrder) error {
	if m == nil {
		return nil
	}
	pos := cl.pos()
	if m.IsBytes() {
		_, err := cl.c.Write(m.Bytes)
		return cl.ioErr(pos, err)
	}
	size, _ := m.Kind.FixedSize()
	return cl.ioErr(pos, cursor.WriteUint(cl.c, int(size), order, m.Value))
}

func truncate(v uint64, size int) uint64 {
	if size >= 8 {
		return v
	}
	return v & (1<<(uint(size)*8) - 1)
}

// fieldFrame describes the field a propagating error passed through, or
// carries the field's error-context payload.
func (cl *call) fieldFrame(rs *recState, f *schema.FieldSpec) errors.Frame {
	if f.ErrContext != nil {
		if payload, err := f.ErrContext.Eval(rs); err == nil {
			return errors.Frame{Payload: payload}
		}
	}
	verb := "parsing"
	if cl.phase == errors.PhaseWrite {
		verb = "writing"
	}
	return errors.Frame{
		Message: fmt.Sprintf("While %s field '%s' in %s", verb, f.Name, rs.spec.Name),
		Location: errors.Location{
			Record: rs.spec.Name,
			Field:  f.Name,
			File:   f.Loc.File,
			Line:   f.Loc.Line,
		},
	}
}

func recordFrame(r *schema.RecordSpec, what string) errors.Frame {
	return errors.Frame{
		Message:  fmt.Sprintf("While checking %s of %s", what, r.Name),
		Location: errors.Location{Record: r.Name, File: r.Loc.File, Line: r.Loc.Line},
	}
}
