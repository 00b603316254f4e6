package expr

import (
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
	"github.com/google/cel-go/interpreter"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/value"
)

// Env compiles CEL directive expressions over a fixed set of names. Every
// name is declared dynamically typed; values are resolved from the Scope at
// evaluation time.
type Env struct {
	env   *cel.Env
	names []string
	cache sync.Map // source -> *celExpr
}

// NewEnv creates an environment declaring the given names.
func NewEnv(names ...string) (*Env, error) {
	opts := []cel.EnvOption{ext.Strings(), ext.Encoders()}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, errors.LoadFailed("cannot create expression environment", err)
	}
	return &Env{env: env, names: slices.Sorted(maps.Keys(seen))}, nil
}

// Names returns the declared names in sorted order.
func (e *Env) Names() []string {
	return append([]string(nil), e.names...)
}

// Compile parses and checks src, returning a cached expression.
func (e *Env) Compile(src string) (Expr, error) {
	if cached, ok := e.cache.Load(src); ok {
		return cached.(*celExpr), nil
	}

	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindExpression).
			Detail("compile %q", src).
			Cause(iss.Err()).
			Build()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindExpression).
			Detail("plan %q", src).
			Cause(err).
			Build()
	}

	ce := &celExpr{src: src, prg: prg}
	e.cache.Store(src, ce)
	return ce, nil
}

// Compile is a convenience for a one-off environment over names.
func Compile(src string, names ...string) (Expr, error) {
	env, err := NewEnv(names...)
	if err != nil {
		return nil, err
	}
	return env.Compile(src)
}

type celExpr struct {
	prg cel.Program
	src string
}

func (c *celExpr) String() string { return c.src }

func (c *celExpr) Eval(s Scope) (any, error) {
	act := &activation{scope: s}
	out, _, err := c.prg.Eval(act)
	if err == nil && types.IsError(out) {
		err = errors.New(errors.PhaseRead, errors.KindExpression).Detail("%v", out).Build()
	}
	if err != nil {
		// An unresolved pointer reaches CEL as an error value.
		if p := act.unresolved; p != nil {
			return nil, errors.New(errors.PhaseRead, errors.KindUnresolvedPointer).
				Detail("evaluate %q: pointer at offset %#x read before resolution", c.src, p.Offset).
				Cause(value.ErrUnresolvedPointer).
				Build()
		}
		return nil, errors.New(errors.PhaseRead, errors.KindExpression).
			Detail("evaluate %q", c.src).
			Cause(err).
			Build()
	}
	return fromCEL(out)
}

type activation struct {
	scope      Scope
	unresolved *value.Pointer
}

func (a *activation) ResolveName(name string) (any, bool) {
	v, ok := a.scope.Lookup(name)
	if !ok {
		return nil, false
	}
	return a.toCEL(v), true
}

func (a *activation) Parent() interpreter.Activation {
	return nil
}

// toCEL normalizes engine values to types CEL operates on: all integers
// widen to int64 (uint64 only when out of range), records become maps.
// The first unresolved pointer met is remembered on a.
func (a *activation) toCEL(v any) any {
	switch x := v.(type) {
	case nil:
		return types.NullValue
	case bool, string, []byte, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return a.toCEL(uint64(x))
	case uint64:
		if x <= 1<<63-1 {
			return int64(x)
		}
		return x
	case float32:
		return float64(x)
	case *value.Record:
		m := make(map[string]any, x.Len())
		if x != nil {
			for _, f := range x.Fields {
				m[f.Name] = a.toCEL(f.Value)
			}
		}
		return m
	case *value.Variant:
		m := map[string]any{
			"variant":      x.Name,
			"discriminant": x.Discriminant,
		}
		if x.Value != nil {
			m["value"] = a.toCEL(x.Value)
			for _, f := range x.Value.Fields {
				if _, clash := m[f.Name]; !clash {
					m[f.Name] = a.toCEL(f.Value)
				}
			}
		}
		return m
	case *value.Pointer:
		t, err := x.Value()
		if err != nil {
			if a.unresolved == nil {
				a.unresolved = x
			}
			return types.NewErr("pointer at offset %#x read before resolution", x.Offset)
		}
		return a.toCEL(t)
	case value.Args:
		m := make(map[string]any, x.Len())
		for _, n := range x.Names() {
			v, _ := x.Get(n)
			m[n] = a.toCEL(v)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = a.toCEL(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = a.toCEL(e)
		}
		return out
	}
	return v
}

var (
	anySliceType = reflect.TypeOf([]any{})
	anyMapType   = reflect.TypeOf(map[string]any{})
)

func fromCEL(out ref.Val) (any, error) {
	if types.IsError(out) {
		return nil, errors.New(errors.PhaseRead, errors.KindExpression).
			Detail("%v", out).
			Build()
	}
	switch out.(type) {
	case traits.Lister:
		return out.ConvertToNative(anySliceType)
	case traits.Mapper:
		return out.ConvertToNative(anyMapType)
	}
	if out == types.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}
