package schema

import (
	"fmt"
	"strings"
)

// Type is a field's value type tag.
type Type struct {
	Elem   *Type  // array element or pointer target
	Name   string // named record or union
	Kind   Kind
	Offset Kind // pointer offset width, an integer kind
}

// Prim returns a primitive type.
func Prim(k Kind) *Type {
	return &Type{Kind: k}
}

// ArrayOf returns a counted array of elem.
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem}
}

// Named refers to a record or union by name.
func Named(name string) *Type {
	return &Type{Kind: KindNamed, Name: name}
}

// PointerTo returns a pointer with a u32 offset.
func PointerTo(target *Type) *Type {
	return &Type{Kind: KindPointer, Offset: KindU32, Elem: target}
}

// PointerWith returns a pointer with the given offset width.
func PointerWith(offset Kind, target *Type) *Type {
	return &Type{Kind: KindPointer, Offset: offset, Elem: target}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindArray:
		return "[]" + t.Elem.String()
	case KindNamed:
		return t.Name
	case KindPointer:
		if t.Offset != KindU32 {
			return "*" + t.Offset.String() + ":" + t.Elem.String()
		}
		return "*" + t.Elem.String()
	}
	return t.Kind.String()
}

// ParseType parses the type grammar used by schema documents:
//
//	u8 | i32 | f64 | bytes | string | cstring | ...   primitives
//	[]T                                               counted array
//	*T | *u16:T                                       pointer (u32 offset by default)
//	Name                                              record or union
func ParseType(s string) (*Type, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty type")
	case strings.HasPrefix(s, "[]"):
		elem, err := ParseType(s[2:])
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case strings.HasPrefix(s, "*"):
		rest := s[1:]
		off := KindU32
		if i := strings.IndexByte(rest, ':'); i > 0 {
			k, ok := ParseKind(rest[:i])
			if !ok || !k.IsInteger() {
				return nil, fmt.Errorf("invalid pointer offset type %q", rest[:i])
			}
			off = k
			rest = rest[i+1:]
		}
		target, err := ParseType(rest)
		if err != nil {
			return nil, err
		}
		return PointerWith(off, target), nil
	}
	if k, ok := ParseKind(s); ok {
		return Prim(k), nil
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return nil, fmt.Errorf("invalid type name %q", s)
		}
	}
	return Named(s), nil
}
