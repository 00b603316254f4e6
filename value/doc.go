// Package value holds the values the engine produces and consumes.
//
// A record reads as *Record with fields in declaration order, a tagged union
// as *Variant, an offset-indirection field as *Pointer. Args carries the
// named arguments passed into a record, union, array or pointer read.
package value
