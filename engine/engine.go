package engine

import (
	"encoding/binary"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/binlayout"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// Engine interprets a schema against cursors. It holds no per-call state
// and may be shared by goroutines reading independent cursors.
type Engine struct {
	schema   *schema.Schema
	registry *Registry
	log      *zap.Logger
	order    binary.ByteOrder
	policy   *schema.Policy
	layout   *layoutCache
	maxCount uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithEndian sets the caller default byte order, used by records and fields
// that do not set their own. EndianInherit leaves the schema default.
func WithEndian(e schema.Endian) Option {
	return func(eng *Engine) {
		if o := e.Order(); o != nil {
			eng.order = o
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(eng *Engine) {
		if l != nil {
			eng.log = l
		}
	}
}

// WithRegistry supplies the codecs and mappers named by the schema.
func WithRegistry(r *Registry) Option {
	return func(eng *Engine) {
		if r != nil {
			eng.registry = r
		}
	}
}

// WithErrorPolicy overrides the all-variants-failed policy of every union.
func WithErrorPolicy(p schema.Policy) Option {
	return func(eng *Engine) {
		eng.policy = &p
	}
}

// WithMaxCount bounds the element count of arrays, bytes and strings.
func WithMaxCount(n uint64) Option {
	return func(eng *Engine) {
		eng.maxCount = n
	}
}

// New validates s and builds an engine for it. Codecs and mappers named by
// the schema must be present in the registry.
func New(s *schema.Schema, opts ...Option) (*Engine, error) {
	eng := &Engine{
		schema:   s,
		registry: NewRegistry(),
		log:      Logger(),
		order:    s.Endian.Order(),
		maxCount: abi.MaxListLength,
		layout:   newLayoutCache(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.order == nil {
		eng.order = binary.NativeEndian
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := eng.checkRegistry(); err != nil {
		return nil, err
	}
	return eng, nil
}

func (e *Engine) checkRegistry() error {
	var errs []error
	check := func(path []string, fields []*schema.FieldSpec) {
		for _, f := range fields {
			if f.ReadMode == schema.ReadCustom {
				if _, ok := e.registry.Codec(f.Codec); !ok {
					errs = append(errs, errors.New(errors.PhaseValidate, errors.KindNotFound).
						Path(append(path, f.Name)...).
						Detail("codec %q not registered", f.Codec).
						Build())
				}
			}
			if f.Map != "" {
				if _, ok := e.registry.Mapper(f.Map); !ok {
					errs = append(errs, errors.New(errors.PhaseValidate, errors.KindNotFound).
						Path(append(path, f.Name)...).
						Detail("mapper %q not registered", f.Map).
						Build())
				}
			}
		}
	}
	for _, name := range e.schema.Names() {
		if r, ok := e.schema.Record(name); ok {
			check([]string{name}, r.Fields)
			continue
		}
		u, _ := e.schema.Union(name)
		for _, v := range u.Variants {
			if v.Record != nil {
				check([]string{name, v.Name}, v.Record.Fields)
			}
		}
	}
	return stderrors.Join(errs...)
}

// Schema returns the schema the engine interprets.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// ByteOrder returns the caller default byte order.
func (e *Engine) ByteOrder() binary.ByteOrder {
	return e.order
}

// Read reads the named record or union at the cursor position. Records
// yield *value.Record and unions *value.Variant. On failure the cursor is
// back where the call started.
func (e *Engine) Read(c binlayout.Cursor, name string, args value.Args) (any, error) {
	cl := &call{Engine: e, c: c, phase: errors.PhaseRead}
	return cl.readNamed(name, e.order, args)
}

// ReadRecord reads a named record.
func (e *Engine) ReadRecord(c binlayout.Cursor, name string, args value.Args) (*value.Record, error) {
	r, ok := e.schema.Record(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRead, "record", name)
	}
	cl := &call{Engine: e, c: c, phase: errors.PhaseRead}
	return cl.readRecord(r, e.order, args)
}

// ReadType reads a single value of an arbitrary type tag.
func (e *Engine) ReadType(c binlayout.Cursor, t *schema.Type, args value.Args) (any, error) {
	cl := &call{Engine: e, c: c, phase: errors.PhaseRead}
	fr := &frame{start: c.Position()}
	v, err := cl.readType(t, e.order, args, fr)
	if err != nil {
		return nil, err
	}
	if err := cl.resolvePending(fr, 0, nil); err != nil {
		return nil, err
	}
	return v, nil
}

// Write writes v as the named record or union at the cursor position.
func (e *Engine) Write(c binlayout.Cursor, name string, v any, args value.Args) error {
	cl := &call{Engine: e, c: c, phase: errors.PhaseWrite}
	if r, ok := e.schema.Record(name); ok {
		rec, err := asRecord(v, r.Name)
		if err != nil {
			return err
		}
		return cl.writeRecord(r, e.order, rec, args)
	}
	if u, ok := e.schema.Union(name); ok {
		vr, ok := v.(*value.Variant)
		if !ok {
			return errors.TypeMismatch(errors.PhaseWrite, []string{name}, name, v)
		}
		return cl.writeUnion(u, e.order, vr, args)
	}
	return errors.NotFound(errors.PhaseWrite, "type", name)
}
