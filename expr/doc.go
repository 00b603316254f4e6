// Package expr evaluates directive expressions: counts, conditions, offsets,
// byte-order selectors, computed values and assertions.
//
// Expressions see a Scope holding the earlier fields of the enclosing record,
// its imported arguments and "args". Three forms exist: Go functions (Func),
// constants (Const) and name references (Ref) for schemas built in Go, and
// CEL programs compiled through an Env for schema documents:
//
//	env, _ := expr.NewEnv("count", "flags", "args")
//	cond, _ := env.Compile("flags & 1 == 1 && count > 0")
//	ok, err := expr.EvalBool(cond, scope)
//
// Integers of every width reach CEL as int; records, variants and argument
// sets reach it as maps. Reading an unresolved pointer is an error.
package expr
