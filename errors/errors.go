package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate Phase = "validate" // schema validation
	PhaseLoad     Phase = "load"     // schema document loading
	PhaseRead     Phase = "read"     // bytes to values
	PhaseWrite    Phase = "write"    // values to bytes
	PhaseResolve  Phase = "resolve"  // pointer resolution
)

// Kind categorizes the error
type Kind string

const (
	KindIO                Kind = "io"
	KindMagicMismatch     Kind = "magic_mismatch"
	KindAssertion         Kind = "assertion_failed"
	KindCustom            Kind = "custom"
	KindNoVariantMatch    Kind = "no_variant_match"
	KindAllVariantsFailed Kind = "all_variants_failed"
	KindInvalidSchema     Kind = "invalid_schema"
	KindInvalidArgs       Kind = "invalid_args"
	KindTypeMismatch      Kind = "type_mismatch"
	KindFieldMissing      Kind = "field_missing"
	KindUnresolvedPointer Kind = "unresolved_pointer"
	KindExpression        Kind = "expression"
	KindOverflow          Kind = "overflow"
	KindNotFound          Kind = "not_found"
	KindUnsupported       Kind = "unsupported"
	KindInvalidData       Kind = "invalid_data"
)

// VariantError pairs a union variant with the error its trial produced.
type VariantError struct {
	Err  error
	Name string
}

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Type     string
	Detail   string
	Path     []string
	Variants []VariantError
	Pos      uint64
	HasPos   bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.HasPos {
		b.WriteString(" @0x")
		b.WriteString(strconv.FormatUint(e.Pos, 16))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Kind == KindMagicMismatch && e.Value != nil {
		fmt.Fprintf(&b, " (found %s)", formatFound(e.Value))
	}

	if len(e.Variants) > 0 {
		b.WriteString(" [")
		for i, v := range e.Variants {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(v.Name)
			b.WriteString(": ")
			if v.Err != nil {
				b.WriteString(firstLine(v.Err.Error()))
			}
		}
		b.WriteByte(']')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func formatFound(v any) string {
	if bs, ok := v.([]byte); ok {
		return fmt.Sprintf("%x", bs)
	}
	return fmt.Sprintf("%#x", v)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// At sets the stream position the error refers to
func (b *Builder) At(pos uint64) *Builder {
	b.err.Pos = pos
	b.err.HasPos = true
	return b
}

// Type sets the schema type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value or custom payload
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Variants sets the per-variant failures of a union
func (b *Builder) Variants(v []VariantError) *Builder {
	b.err.Variants = v
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the codec error taxonomy

// IO wraps a cursor failure.
func IO(phase Phase, pos uint64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Pos:    pos,
		HasPos: true,
		Cause:  cause,
	}
}

// MagicMismatch reports an unexpected magic value found at pos.
func MagicMismatch(pos uint64, found any) *Error {
	return &Error{
		Phase:  PhaseRead,
		Kind:   KindMagicMismatch,
		Pos:    pos,
		HasPos: true,
		Value:  found,
	}
}

// AssertionFailed reports a failed assertion at pos.
func AssertionFailed(phase Phase, pos uint64, message string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAssertion,
		Pos:    pos,
		HasPos: true,
		Detail: message,
	}
}

// Custom carries a user-defined payload raised at pos.
func Custom(phase Phase, pos uint64, payload any) *Error {
	e := &Error{
		Phase:  phase,
		Kind:   KindCustom,
		Pos:    pos,
		HasPos: true,
		Value:  payload,
	}
	if err, ok := payload.(error); ok {
		e.Cause = err
	} else if payload != nil {
		e.Detail = fmt.Sprint(payload)
	}
	return e
}

// NoVariantMatch reports that no union variant matched at pos.
func NoVariantMatch(pos uint64) *Error {
	return &Error{
		Phase:  PhaseRead,
		Kind:   KindNoVariantMatch,
		Pos:    pos,
		HasPos: true,
	}
}

// AllVariantsFailed reports every failed variant trial in declaration order.
func AllVariantsFailed(pos uint64, variants []VariantError) *Error {
	return &Error{
		Phase:    PhaseRead,
		Kind:     KindAllVariantsFailed,
		Pos:      pos,
		HasPos:   true,
		Variants: variants,
	}
}

// InvalidSchema creates a schema validation error
func InvalidSchema(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidSchema,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, typeName string, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   typeName,
		Detail: fmt.Sprintf("cannot use %T", got),
		Value:  got,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Type:   targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// LoadFailed creates a schema document loading error
func LoadFailed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidSchema,
		Detail: detail,
		Cause:  cause,
	}
}

// Inspection helpers

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err's tree contains an *Error of kind k.
// Joined errors are searched in the same order as errors.As.
func HasKind(err error, k Kind) bool {
	return find(err, func(e *Error) bool { return e.Kind == k }) != nil
}

// PositionOf returns the stream position of the first positioned *Error in err's tree.
func PositionOf(err error) (uint64, bool) {
	if e := find(err, func(e *Error) bool { return e.HasPos }); e != nil {
		return e.Pos, true
	}
	return 0, false
}

// find walks err depth-first, following both Unwrap() error and
// Unwrap() []error, and returns the first *Error accepted by match.
func find(err error, match func(*Error) bool) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok && match(e) {
			return e
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if e := find(inner, match); e != nil {
					return e
				}
			}
			return nil
		default:
			return nil
		}
	}
	return nil
}
