package abi

import (
	"math"
	"reflect"
)

const (
	MaxStringSize = 1 << 30 // 1 GB max string/bytes size
	MaxListLength = 1 << 27 // 128M max elements
	MaxAlloc      = 1 << 30 // 1 GB max single allocation
)

func SafeMul(a, b uint64) (uint64, bool) {
	if b != 0 && a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

func SafeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// AlignTo rounds offset up to the next multiple of align. Alignments need not
// be powers of two; zero and one are no-ops.
func AlignTo(offset, align uint64) uint64 {
	if align <= 1 {
		return offset
	}
	if align&(align-1) == 0 {
		return (offset + align - 1) &^ (align - 1)
	}
	if r := offset % align; r != 0 {
		return offset + align - r
	}
	return offset
}

// AlignPadding returns the bytes needed to move offset to the next multiple of align.
func AlignPadding(offset, align uint64) uint64 {
	return AlignTo(offset, align) - offset
}

// SizePadding returns how many bytes must follow a region of length used so
// that it spans at least target bytes. It never truncates.
func SizePadding(used, target uint64) uint64 {
	if used >= target {
		return 0
	}
	return target - used
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}
