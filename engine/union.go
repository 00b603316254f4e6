package engine

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

func unionFrame(u *schema.UnionSpec, msg string) errors.Frame {
	return errors.Frame{
		Message:  fmt.Sprintf("While %s of %s", msg, u.Name),
		Location: errors.Location{Record: u.Name, File: u.Loc.File, Line: u.Loc.Line},
	}
}

// variantArgs binds a variant record's own imports and keeps the union's
// arguments visible alongside them.
func (cl *call) variantArgs(v *schema.Variant, unionArgs value.Args) (value.Args, error) {
	if len(v.Record.Imports) == 0 {
		return unionArgs, nil
	}
	bound, err := cl.bindImports(v.Record.Name, v.Record.Imports, unionArgs)
	if err != nil {
		return value.Args{}, err
	}
	for _, name := range unionArgs.Names() {
		if !bound.Has(name) {
			x, _ := unionArgs.Get(name)
			bound.Set(name, x)
		}
	}
	return bound, nil
}

func (cl *call) errorPolicy(u *schema.UnionSpec) schema.Policy {
	if cl.policy != nil {
		return *cl.policy
	}
	return u.Policy
}

// discriminant reinterprets a repr value as int64; u64 values above
// MaxInt64 keep their bit pattern.
func discriminant(v any) int64 {
	if i, ok := abi.CoerceToInt64(v); ok {
		return i
	}
	u, _ := abi.CoerceToUint64(v)
	return int64(u)
}

func (cl *call) readUnion(u *schema.UnionSpec, order binary.ByteOrder, args value.Args) (*value.Variant, error) {
	start := cl.pos()
	order = cl.byteOrder(u.Endian, order)

	bound, err := cl.bindImports(u.Name, u.Imports, args)
	if err != nil {
		return nil, err
	}
	if err := cl.checkMagic(u.Magic, order); err != nil {
		cl.rewind(start)
		return nil, errors.WithFrame(err, unionFrame(u, "checking magic"))
	}

	if u.Kind == schema.UnionCStyle {
		return cl.readCStyle(u, order, bound, start)
	}
	return cl.tryVariants(u, order, bound, start)
}

// readCStyle dispatches on one stored discriminant. The first variant whose
// discriminant and pre-assertions match wins.
func (cl *call) readCStyle(u *schema.UnionSpec, order binary.ByteOrder, args value.Args, start uint64) (*value.Variant, error) {
	discPos := cl.pos()
	raw, err := cl.readType(schema.Prim(u.Repr), order, value.Args{}, &frame{start: start})
	if err != nil {
		cl.rewind(start)
		return nil, errors.WithFrame(err, unionFrame(u, "reading discriminant"))
	}
	d := discriminant(raw)

	scope := argsScope{args: args}
	for _, v := range u.Variants {
		if v.Discriminant != d {
			continue
		}
		if err := cl.evalAsserts(v.PreAsserts, scope, discPos); err != nil {
			if errors.HasKind(err, errors.KindAssertion) || errors.HasKind(err, errors.KindCustom) {
				continue
			}
			cl.rewind(start)
			return nil, err
		}

		out := &value.Variant{Union: u.Name, Name: v.Name, Discriminant: d}
		if v.Record != nil {
			vargs, err := cl.variantArgs(v, args)
			if err != nil {
				cl.rewind(start)
				return nil, err
			}
			rec, err := cl.readBound(v.Record, order, vargs)
			if err != nil {
				cl.rewind(start)
				return nil, errors.WithFrame(err, unionFrame(u, "reading variant "+v.Name))
			}
			out.Value = rec
		}
		return out, nil
	}

	cl.rewind(start)
	e := errors.NoVariantMatch(discPos)
	e.Value = raw
	e.Type = u.Name
	return nil, e
}

// tryVariants runs each variant in declaration order, rewinding between
// attempts. The first success wins.
func (cl *call) tryVariants(u *schema.UnionSpec, order binary.ByteOrder, args value.Args, start uint64) (*value.Variant, error) {
	policy := cl.errorPolicy(u)
	var failures []errors.VariantError

	for _, v := range u.Variants {
		pos := cl.pos()
		out, err := cl.tryVariant(u, v, order, args, pos)
		if err == nil {
			return out, nil
		}
		cl.log.Debug("variant failed",
			zap.String("union", u.Name),
			zap.String("variant", v.Name),
			zap.Uint64("pos", pos),
			zap.Error(err))
		cl.rewind(pos)
		if policy == schema.PolicyAggregate {
			failures = append(failures, errors.VariantError{Name: v.Name, Err: err})
		}
	}

	cl.rewind(start)
	if policy == schema.PolicyDiscard {
		e := errors.NoVariantMatch(start)
		e.Type = u.Name
		return nil, e
	}
	e := errors.AllVariantsFailed(start, failures)
	e.Type = u.Name
	return nil, e
}

func (cl *call) tryVariant(u *schema.UnionSpec, v *schema.Variant, order binary.ByteOrder, args value.Args, pos uint64) (*value.Variant, error) {
	if err := cl.evalAsserts(v.PreAsserts, argsScope{args: args}, pos); err != nil {
		return nil, err
	}
	if err := cl.checkMagic(v.Magic, order); err != nil {
		return nil, err
	}
	out := &value.Variant{Union: u.Name, Name: v.Name, Discriminant: v.Discriminant}
	if v.Record == nil {
		return out, nil
	}
	vargs, err := cl.variantArgs(v, args)
	if err != nil {
		return nil, err
	}
	rec, err := cl.readBound(v.Record, order, vargs)
	if err != nil {
		return nil, err
	}
	out.Value = rec
	return out, nil
}

func (cl *call) writeUnion(u *schema.UnionSpec, order binary.ByteOrder, vr *value.Variant, args value.Args) error {
	start := cl.pos()
	order = cl.byteOrder(u.Endian, order)

	var v *schema.Variant
	for _, cand := range u.Variants {
		if cand.Name == vr.Name {
			v = cand
			break
		}
	}
	if v == nil {
		return errors.NotFound(cl.phase, "variant", u.Name+"::"+vr.Name)
	}

	bound, err := cl.bindImports(u.Name, u.Imports, args)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		cl.rewind(start)
		return errors.WithFrame(err, unionFrame(u, "writing variant "+v.Name))
	}

	if err := cl.writeMagic(u.Magic, order); err != nil {
		return fail(err)
	}
	if err := cl.evalAsserts(v.PreAsserts, argsScope{args: bound}, cl.pos()); err != nil {
		return fail(err)
	}
	if u.Kind == schema.UnionCStyle {
		var d any = v.Discriminant
		if !u.Repr.IsSigned() {
			d = uint64(v.Discriminant)
		}
		if err := cl.writeInt(u.Repr, order, d); err != nil {
			return fail(err)
		}
	} else if err := cl.writeMagic(v.Magic, order); err != nil {
		return fail(err)
	}

	if v.Record == nil {
		return nil
	}
	vargs, err := cl.variantArgs(v, bound)
	if err != nil {
		return fail(err)
	}
	rec := vr.Value
	if rec == nil {
		rec = value.NewRecord(v.Record.Name)
	}
	if err := cl.writeBound(v.Record, order, rec, vargs); err != nil {
		return fail(err)
	}
	return nil
}
