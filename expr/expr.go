package expr

import (
	"fmt"
	"strings"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/value"
)

// Scope resolves names visible to a directive expression: earlier fields of
// the enclosing record, its imported arguments and "args" itself.
type Scope interface {
	Lookup(name string) (any, bool)
}

// Vars is a map-backed Scope.
type Vars map[string]any

// Lookup implements Scope.
func (v Vars) Lookup(name string) (any, bool) {
	x, ok := v[name]
	return x, ok
}

// Expr is a directive expression evaluated against a Scope.
type Expr interface {
	Eval(s Scope) (any, error)
	String() string
}

// Constant is implemented by expressions whose value needs no scope.
// Static layout uses it to fold counts.
type Constant interface {
	ConstValue() any
}

type funcExpr struct {
	fn  func(Scope) (any, error)
	src string
}

// Func wraps a Go function as an expression. src is used for diagnostics.
func Func(src string, fn func(Scope) (any, error)) Expr {
	return &funcExpr{src: src, fn: fn}
}

func (f *funcExpr) Eval(s Scope) (any, error) { return f.fn(s) }
func (f *funcExpr) String() string             { return f.src }

type constExpr struct {
	v any
}

// Const returns an expression that always yields v.
func Const(v any) Expr {
	return constExpr{v: v}
}

func (c constExpr) Eval(Scope) (any, error) { return c.v, nil }
func (c constExpr) ConstValue() any         { return c.v }
func (c constExpr) String() string          { return fmt.Sprint(c.v) }

type refExpr struct {
	path []string
}

// Ref returns an expression that looks up a name, following dots through
// records, variants, args, maps and resolved pointers.
func Ref(name string) Expr {
	return refExpr{path: strings.Split(name, ".")}
}

func (r refExpr) String() string { return strings.Join(r.path, ".") }

func (r refExpr) Eval(s Scope) (any, error) {
	cur, ok := s.Lookup(r.path[0])
	if !ok {
		return nil, undefined(r.path[0])
	}
	for _, name := range r.path[1:] {
		target, err := unwrapPointer(cur)
		if err != nil {
			return nil, err
		}
		cur, ok = member(target, name)
		if !ok {
			return nil, undefined(r.String())
		}
	}
	return cur, nil
}

func member(v any, name string) (any, bool) {
	switch x := v.(type) {
	case *value.Record:
		return x.Get(name)
	case *value.Variant:
		switch name {
		case "variant":
			return x.Name, true
		case "discriminant":
			return x.Discriminant, true
		}
		return x.Value.Get(name)
	case value.Args:
		return x.Get(name)
	case map[string]any:
		m, ok := x[name]
		return m, ok
	}
	return nil, false
}

func undefined(name string) error {
	return errors.New(errors.PhaseRead, errors.KindExpression).
		Detail("undefined name %q", name).
		Build()
}

// Eval evaluates e, tolerating a nil expression by returning nil.
func Eval(e Expr, s Scope) (any, error) {
	if e == nil {
		return nil, nil
	}
	return e.Eval(s)
}

// ConstValue reports the value of a constant expression.
func ConstValue(e Expr) (any, bool) {
	if c, ok := e.(Constant); ok {
		return c.ConstValue(), true
	}
	return nil, false
}
