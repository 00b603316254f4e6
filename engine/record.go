package engine

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

func (cl *call) readRecord(r *schema.RecordSpec, order binary.ByteOrder, args value.Args) (*value.Record, error) {
	bound, err := cl.bindImports(r.Name, r.Imports, args)
	if err != nil {
		return nil, err
	}
	return cl.readBound(r, order, bound)
}

// readBound reads a record whose arguments are already bound. Any failure
// leaves the cursor at the record start.
func (cl *call) readBound(r *schema.RecordSpec, order binary.ByteOrder, args value.Args) (*value.Record, error) {
	start := cl.pos()
	rs := &recState{
		spec:   r,
		values: value.NewRecord(r.Name),
		fr:     &frame{start: start},
		order:  cl.byteOrder(r.Endian, order),
		args:   args,
		start:  start,
	}

	fail := func(err error) (*value.Record, error) {
		cl.log.Debug("record rewind",
			zap.String("record", r.Name),
			zap.Uint64("start", start),
			zap.Uint64("at", cl.pos()),
			zap.Error(err))
		cl.rewind(start)
		return nil, err
	}

	if err := cl.evalAsserts(r.PreAsserts, argsScope{args: args}, start); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "pre-assertions")))
	}
	if err := cl.checkMagic(r.Magic, rs.order); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "magic")))
	}

	for _, f := range r.Fields {
		if _, err := cl.readField(rs, f); err != nil {
			return fail(errors.WithFrame(err, cl.fieldFrame(rs, f)))
		}
	}

	if err := cl.resolvePending(rs.fr, 0, rs); err != nil {
		return fail(err)
	}
	if err := cl.evalAsserts(r.Asserts, rs, cl.pos()); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "assertions")))
	}

	out := value.NewRecord(r.Name)
	for _, f := range r.Fields {
		if f.Temp {
			continue
		}
		v, _ := rs.values.Get(f.Name)
		out.Set(f.Name, v)
	}
	return out, nil
}

func (cl *call) writeRecord(r *schema.RecordSpec, order binary.ByteOrder, rec *value.Record, args value.Args) error {
	bound, err := cl.bindImports(r.Name, r.Imports, args)
	if err != nil {
		return err
	}
	return cl.writeBound(r, order, rec, bound)
}

// writeBound writes rec. Field expressions see every input field from the
// start, with computed values replacing them as fields are written.
func (cl *call) writeBound(r *schema.RecordSpec, order binary.ByteOrder, rec *value.Record, args value.Args) error {
	start := cl.pos()
	values := value.NewRecord(r.Name)
	if rec != nil {
		values.Fields = append(values.Fields, rec.Fields...)
	}
	rs := &recState{
		spec:   r,
		values: values,
		fr:     &frame{start: start},
		order:  cl.byteOrder(r.Endian, order),
		args:   args,
		start:  start,
	}

	fail := func(err error) error {
		cl.log.Debug("record rewind",
			zap.String("record", r.Name),
			zap.Uint64("start", start),
			zap.Error(err))
		cl.rewind(start)
		return err
	}

	if err := cl.evalAsserts(r.PreAsserts, argsScope{args: args}, start); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "pre-assertions")))
	}
	if err := cl.writeMagic(r.Magic, rs.order); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "magic")))
	}
	for _, f := range r.Fields {
		if err := cl.writeField(rs, f); err != nil {
			return fail(errors.WithFrame(err, cl.fieldFrame(rs, f)))
		}
	}
	if err := cl.resolvePending(rs.fr, 0, rs); err != nil {
		return fail(err)
	}
	if err := cl.evalAsserts(r.Asserts, rs, cl.pos()); err != nil {
		return fail(errors.WithFrame(err, recordFrame(r, "assertions")))
	}
	return nil
}
