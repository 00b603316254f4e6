// Package errors provides structured error types for the binlayout module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Structural failures carry the stream position they refer to:
//
//	[read] magic_mismatch @0x10 (found 89504e47)
//	[read] assertion_failed @0x24: version must be 2
//	[read] all_variants_failed @0x0 [Circle: ...; Square: ...]
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRead, errors.KindAssertion).
//		Path("Header", "version").
//		At(pos).
//		Detail("version must be 2").
//		Build()
//
// Or use convenience constructors for the common taxonomy:
//
//	err := errors.MagicMismatch(pos, found)
//	err := errors.AllVariantsFailed(pos, failures)
//
// A Backtrace wraps an error with the frames it bubbled through. WithFrame is
// idempotent on the wrapper: attaching to an existing Backtrace appends to its
// frame list rather than nesting.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
