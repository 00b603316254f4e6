package schema

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wippyai/binlayout/expr"
)

// Endian selects a byte order. EndianInherit defers to the enclosing scope.
type Endian uint8

const (
	EndianInherit Endian = iota
	EndianBig
	EndianLittle
	EndianNative
)

func (e Endian) String() string {
	switch e {
	case EndianBig:
		return "big"
	case EndianLittle:
		return "little"
	case EndianNative:
		return "native"
	}
	return "inherit"
}

// ParseEndian accepts big/be, little/le, native and inherit (or empty).
func ParseEndian(s string) (Endian, error) {
	switch s {
	case "", "inherit":
		return EndianInherit, nil
	case "big", "be":
		return EndianBig, nil
	case "little", "le":
		return EndianLittle, nil
	case "native", "ne":
		return EndianNative, nil
	}
	return 0, fmt.Errorf("unknown byte order %q", s)
}

// Order returns the concrete byte order, or nil for EndianInherit.
func (e Endian) Order() binary.ByteOrder {
	switch e {
	case EndianBig:
		return binary.BigEndian
	case EndianLittle:
		return binary.LittleEndian
	case EndianNative:
		return binary.NativeEndian
	}
	return nil
}

// EndianIf picks Then when Cond holds and Else otherwise.
type EndianIf struct {
	Cond expr.Expr
	Then Endian
	Else Endian
}

// Magic is a fixed pattern expected before a field, record or variant:
// either raw bytes or an integer of a fixed-width kind written in the
// effective byte order.
type Magic struct {
	Bytes []byte
	Value uint64
	Kind  Kind
}

// MagicBytes returns a byte-string magic.
func MagicBytes(b []byte) *Magic {
	return &Magic{Bytes: b}
}

// MagicInt returns an integer magic of kind k.
func MagicInt(k Kind, v uint64) *Magic {
	return &Magic{Kind: k, Value: v}
}

// IsBytes reports whether the magic is a byte string.
func (m *Magic) IsBytes() bool {
	return m.Kind == KindUnit
}

// Size returns the number of bytes the magic occupies.
func (m *Magic) Size() uint64 {
	if m.IsBytes() {
		return uint64(len(m.Bytes))
	}
	n, _ := m.Kind.FixedSize()
	return n
}

func (m *Magic) String() string {
	if m.IsBytes() {
		return fmt.Sprintf("%x", m.Bytes)
	}
	return fmt.Sprintf("%s:%#x", m.Kind, m.Value)
}

// ArgsMode is the argument-passing convention of a field.
type ArgsMode uint8

const (
	ArgsNone ArgsMode = iota
	ArgsPositional
	ArgsNamed
	ArgsRaw
)

func (m ArgsMode) String() string {
	switch m {
	case ArgsPositional:
		return "positional"
	case ArgsNamed:
		return "named"
	case ArgsRaw:
		return "raw"
	}
	return "none"
}

// NamedArg binds one named argument.
type NamedArg struct {
	Value expr.Expr
	Name  string
}

// ArgsSpec describes the arguments passed to a field's type.
type ArgsSpec struct {
	Raw        expr.Expr
	Positional []expr.Expr
	Named      []NamedArg
	Mode       ArgsMode
}

// ReadMode selects how a field's value is produced on read.
type ReadMode uint8

const (
	ReadNormal  ReadMode = iota
	ReadCalc             // evaluate Calc, consume no bytes
	ReadDefault          // Calc if set, else the zero value; consume no bytes
	ReadIgnore           // zero value; consume no bytes, write nothing
	ReadCustom           // registered codec named by Codec
)

func (m ReadMode) String() string {
	switch m {
	case ReadCalc:
		return "calc"
	case ReadDefault:
		return "default"
	case ReadIgnore:
		return "ignore"
	case ReadCustom:
		return "custom"
	}
	return "normal"
}

// Deref is the timing of pointer resolution.
type Deref uint8

const (
	DerefDeferred Deref = iota
	DerefImmediate
)

// Seek is an absolute (or relative) reposition before a field.
type Seek struct {
	Offset expr.Expr
	Whence int // io.SeekStart, io.SeekCurrent or io.SeekEnd
}

// SeekTo returns an absolute seek.
func SeekTo(offset expr.Expr) *Seek {
	return &Seek{Offset: offset, Whence: io.SeekStart}
}

// Assert is a condition with an optional error payload expression.
type Assert struct {
	Cond    expr.Expr
	Err     expr.Expr
	Message string
}

// Loc is the position of a declaration in a schema document.
type Loc struct {
	File string
	Line int
}

// FieldSpec is one field's complete directive set.
type FieldSpec struct {
	Type        *Type
	EndianIf    *EndianIf
	Magic       *Magic
	SeekBefore  *Seek
	Count       expr.Expr
	Offset      expr.Expr
	Calc        expr.Expr
	If          expr.Expr
	Else        expr.Expr
	PadBefore   expr.Expr
	AlignBefore expr.Expr
	PadAfter    expr.Expr
	AlignAfter  expr.Expr
	PadSizeTo   expr.Expr
	OffsetAfter expr.Expr
	WriteCalc   expr.Expr
	ErrContext  expr.Expr
	Name        string
	Codec       string
	Map         string
	Loc         Loc
	Args        ArgsSpec
	Asserts     []Assert
	Endian      Endian
	ReadMode    ReadMode
	Deref       Deref
	Try         bool
	Restore     bool
	Temp        bool
	WriteIgnore bool
}

// Import declares an argument a record or union accepts. An import without
// a default is required.
type Import struct {
	Default expr.Expr
	Name    string
}

// RecordSpec is an ordered field sequence with record-level directives.
type RecordSpec struct {
	Magic      *Magic
	Name       string
	Imports    []Import
	Fields     []*FieldSpec
	Asserts    []Assert
	PreAsserts []Assert
	Loc        Loc
	Endian     Endian
}

// Field returns the named field spec.
func (r *RecordSpec) Field(name string) *FieldSpec {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// UnionKind selects the dispatch strategy of a union.
type UnionKind uint8

const (
	UnionData   UnionKind = iota // each variant is a record tried in order
	UnionCStyle                  // stored discriminant of Repr type
	UnionMagic                   // unit variants selected by magic
)

func (k UnionKind) String() string {
	switch k {
	case UnionCStyle:
		return "cstyle"
	case UnionMagic:
		return "magic"
	}
	return "data"
}

// Policy decides what a union reports when every variant failed.
type Policy uint8

const (
	PolicyAggregate Policy = iota // every (variant, error) pair in declaration order
	PolicyDiscard                 // a single no-variant-match error
)

func (p Policy) String() string {
	if p == PolicyDiscard {
		return "discard"
	}
	return "aggregate"
}

// ParsePolicy accepts "aggregate" (or empty) and "discard".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "aggregate", "all":
		return PolicyAggregate, nil
	case "discard", "first":
		return PolicyDiscard, nil
	}
	return 0, fmt.Errorf("unknown error policy %q", s)
}

// Variant is one alternative of a union.
type Variant struct {
	Magic        *Magic
	Record       *RecordSpec
	Name         string
	PreAsserts   []Assert
	Loc          Loc
	Discriminant int64
}

// UnionSpec is a tagged union.
type UnionSpec struct {
	Magic    *Magic
	Name     string
	Imports  []Import
	Variants []*Variant
	Loc      Loc
	Kind     UnionKind
	Repr     Kind
	Endian   Endian
	Policy   Policy
}
