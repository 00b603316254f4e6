package abi

import (
	"encoding/json"
	"math"
)

// CoerceToInt64 handles JSON/YAML decoded numbers and every Go integer type.
func CoerceToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float64:
		if v >= math.MinInt64 && v < math.MaxInt64 && v == math.Trunc(v) {
			return int64(v), true
		}
	case float32:
		f := float64(v)
		if f >= math.MinInt64 && f < math.MaxInt64 && f == math.Trunc(f) {
			return int64(f), true
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// CoerceToUint64 is CoerceToInt64 for unsigned targets; negative values fail.
func CoerceToUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case float64:
		if v >= 0 && v < math.MaxUint64 && v == math.Trunc(v) {
			return uint64(v), true
		}
	}
	i, ok := CoerceToInt64(value)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

// CoerceToFloat64 converts any numeric value.
func CoerceToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	i, ok := CoerceToInt64(value)
	return float64(i), ok
}

// FitsSigned reports whether v fits in a two's complement integer of size bytes.
func FitsSigned(v int64, size int) bool {
	if size >= 8 {
		return true
	}
	bits := uint(size * 8)
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	return v >= lo && v <= hi
}

// FitsUnsigned reports whether v fits in an unsigned integer of size bytes.
func FitsUnsigned(v uint64, size int) bool {
	if size >= 8 {
		return true
	}
	return v < uint64(1)<<(uint(size)*8)
}
