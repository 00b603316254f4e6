package expr

import (
	"fmt"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/internal/abi"
	"github.com/wippyai/binlayout/value"
)

func unwrapPointer(v any) (any, error) {
	if p, ok := v.(*value.Pointer); ok {
		t, err := p.Value()
		if err != nil {
			return nil, errors.New(errors.PhaseRead, errors.KindUnresolvedPointer).
				Detail("pointer at offset %#x read before resolution", p.Offset).
				Cause(err).
				Build()
		}
		return t, nil
	}
	return v, nil
}

// ToInt64 converts an expression result to a signed integer.
func ToInt64(v any) (int64, error) {
	v, err := unwrapPointer(v)
	if err != nil {
		return 0, err
	}
	if i, ok := abi.CoerceToInt64(v); ok {
		return i, nil
	}
	return 0, errors.New(errors.PhaseRead, errors.KindExpression).
		Detail("expected integer, got %s", abi.TypeName(v)).
		Build()
}

// ToUint64 converts an expression result to an unsigned integer.
func ToUint64(v any) (uint64, error) {
	v, err := unwrapPointer(v)
	if err != nil {
		return 0, err
	}
	if u, ok := abi.CoerceToUint64(v); ok {
		return u, nil
	}
	return 0, errors.New(errors.PhaseRead, errors.KindExpression).
		Detail("expected non-negative integer, got %v (%s)", v, abi.TypeName(v)).
		Build()
}

// ToBool converts an expression result to a boolean. Integers are true when
// non-zero.
func ToBool(v any) (bool, error) {
	v, err := unwrapPointer(v)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	}
	if i, ok := abi.CoerceToInt64(v); ok {
		return i != 0, nil
	}
	return false, errors.New(errors.PhaseRead, errors.KindExpression).
		Detail("expected bool, got %s", abi.TypeName(v)).
		Build()
}

// ToString formats a value for assertion messages.
func ToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// EvalInt evaluates e as an integer.
func EvalInt(e Expr, s Scope) (int64, error) {
	v, err := e.Eval(s)
	if err != nil {
		return 0, err
	}
	return ToInt64(v)
}

// EvalUint evaluates e as an unsigned integer.
func EvalUint(e Expr, s Scope) (uint64, error) {
	v, err := e.Eval(s)
	if err != nil {
		return 0, err
	}
	return ToUint64(v)
}

// EvalBool evaluates e as a boolean.
func EvalBool(e Expr, s Scope) (bool, error) {
	v, err := e.Eval(s)
	if err != nil {
		return false, err
	}
	return ToBool(v)
}
