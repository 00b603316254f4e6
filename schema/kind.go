package schema

type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
	KindULEB128
	KindSLEB128
	KindBytes
	KindString
	KindCString
	KindArray
	KindNamed
	KindPointer
)

var kindNames = [...]string{
	KindUnit:    "unit",
	KindBool:    "bool",
	KindU8:      "u8",
	KindI8:      "i8",
	KindU16:     "u16",
	KindI16:     "i16",
	KindU32:     "u32",
	KindI32:     "i32",
	KindU64:     "u64",
	KindI64:     "i64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindULEB128: "uleb128",
	KindSLEB128: "sleb128",
	KindBytes:   "bytes",
	KindString:  "string",
	KindCString: "cstring",
	KindArray:   "array",
	KindNamed:   "named",
	KindPointer: "pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a primitive type name to its Kind. Composite kinds
// (array, named, pointer) are not accepted.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "s8":
		return KindI8, true
	case "s16":
		return KindI16, true
	case "s32":
		return KindI32, true
	case "s64":
		return KindI64, true
	case "()":
		return KindUnit, true
	}
	for k := KindUnit; k < KindArray; k++ {
		if kindNames[k] == s {
			return k, true
		}
	}
	return 0, false
}

func (k Kind) IsInteger() bool {
	return k >= KindU8 && k <= KindI64 || k == KindULEB128 || k == KindSLEB128
}

func (k Kind) IsSigned() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindSLEB128:
		return true
	}
	return false
}

func (k Kind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// IsCounted reports whether the kind needs a count argument.
func (k Kind) IsCounted() bool {
	return k == KindBytes || k == KindString || k == KindArray
}

// FixedSize returns the encoded size for fixed-width kinds.
func (k Kind) FixedSize() (uint64, bool) {
	switch k {
	case KindUnit:
		return 0, true
	case KindBool, KindU8, KindI8:
		return 1, true
	case KindU16, KindI16:
		return 2, true
	case KindU32, KindI32, KindF32:
		return 4, true
	case KindU64, KindI64, KindF64:
		return 8, true
	}
	return 0, false
}
