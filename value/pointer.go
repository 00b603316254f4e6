package value

import (
	"errors"
	"fmt"
)

// ErrUnresolvedPointer is returned when a pointer is dereferenced before its
// target was read.
var ErrUnresolvedPointer = errors.New("value: pointer not resolved")

// Pointer is an offset-indirection field: the raw offset stored inline and,
// once resolved, the value found at base+offset.
type Pointer struct {
	target   any
	Offset   uint64
	Base     uint64
	resolved bool
}

// NewPointer creates an unresolved pointer.
func NewPointer(offset uint64) *Pointer {
	return &Pointer{Offset: offset}
}

// Resolved creates a pointer with its target already set.
func Resolved(offset uint64, target any) *Pointer {
	return &Pointer{Offset: offset, target: target, resolved: true}
}

// Resolve stores the target value read at base+Offset.
func (p *Pointer) Resolve(base uint64, v any) {
	p.Base = base
	p.target = v
	p.resolved = true
}

// IsResolved reports whether the target has been read.
func (p *Pointer) IsResolved() bool {
	return p != nil && p.resolved
}

// Value returns the pointed-to value or ErrUnresolvedPointer.
func (p *Pointer) Value() (any, error) {
	if !p.IsResolved() {
		return nil, ErrUnresolvedPointer
	}
	return p.target, nil
}

// MustValue is Value that panics on an unresolved pointer.
func (p *Pointer) MustValue() any {
	v, err := p.Value()
	if err != nil {
		panic(err)
	}
	return v
}

func (p *Pointer) String() string {
	if !p.IsResolved() {
		return fmt.Sprintf("*0x%x(unresolved)", p.Offset)
	}
	return fmt.Sprintf("*0x%x(%v)", p.Offset, p.target)
}
