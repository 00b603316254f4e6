package schema

import (
	stderrors "errors"
	"slices"

	"github.com/wippyai/binlayout/errors"
)

// Param names an argument a type accepts.
type Param struct {
	Name     string
	Required bool
}

const (
	ParamCount  = "count"
	ParamOffset = "offset"
)

// Schema is a registry of named records and unions.
type Schema struct {
	records map[string]*RecordSpec
	unions  map[string]*UnionSpec
	order   []string
	// Endian is the document-level default byte order.
	Endian Endian
}

// New creates an empty schema.
func New() *Schema {
	return &Schema{
		records: make(map[string]*RecordSpec),
		unions:  make(map[string]*UnionSpec),
	}
}

func (s *Schema) checkName(name string) error {
	if name == "" {
		return errors.InvalidSchema(nil, "type name is empty")
	}
	if _, ok := s.records[name]; ok {
		return errors.InvalidSchema([]string{name}, "duplicate type name")
	}
	if _, ok := s.unions[name]; ok {
		return errors.InvalidSchema([]string{name}, "duplicate type name")
	}
	return nil
}

// AddRecord registers a record.
func (s *Schema) AddRecord(r *RecordSpec) error {
	if err := s.checkName(r.Name); err != nil {
		return err
	}
	s.records[r.Name] = r
	s.order = append(s.order, r.Name)
	return nil
}

// AddUnion registers a union.
func (s *Schema) AddUnion(u *UnionSpec) error {
	if err := s.checkName(u.Name); err != nil {
		return err
	}
	s.unions[u.Name] = u
	s.order = append(s.order, u.Name)
	return nil
}

// Record returns the named record.
func (s *Schema) Record(name string) (*RecordSpec, bool) {
	r, ok := s.records[name]
	return r, ok
}

// Union returns the named union.
func (s *Schema) Union(name string) (*UnionSpec, bool) {
	u, ok := s.unions[name]
	return u, ok
}

// Has reports whether a record or union of that name exists.
func (s *Schema) Has(name string) bool {
	_, r := s.records[name]
	_, u := s.unions[name]
	return r || u
}

// Names returns type names in registration order.
func (s *Schema) Names() []string {
	return slices.Clone(s.order)
}

func importParams(imports []Import) []Param {
	params := make([]Param, len(imports))
	for i, imp := range imports {
		params[i] = Param{Name: imp.Name, Required: imp.Default == nil}
	}
	return params
}

// Params lists the arguments a type accepts, in positional order.
// Arrays take count then their element's parameters; pointers take offset
// then their target's parameters.
func (s *Schema) Params(t *Type) []Param {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindNamed:
		if r, ok := s.records[t.Name]; ok {
			return importParams(r.Imports)
		}
		if u, ok := s.unions[t.Name]; ok {
			return importParams(u.Imports)
		}
	case KindBytes, KindString:
		return []Param{{Name: ParamCount, Required: true}}
	case KindArray:
		return append([]Param{{Name: ParamCount, Required: true}}, s.Params(t.Elem)...)
	case KindPointer:
		return append([]Param{{Name: ParamOffset}}, s.Params(t.Elem)...)
	}
	return nil
}

func hasParam(params []Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Validate checks every record and union, returning all violations joined.
func (s *Schema) Validate() error {
	var errs []error
	for _, name := range s.order {
		if r, ok := s.records[name]; ok {
			errs = append(errs, s.validateRecord([]string{name}, r)...)
			continue
		}
		errs = append(errs, s.validateUnion(s.unions[name])...)
	}
	return stderrors.Join(errs...)
}

func (s *Schema) validateType(path []string, t *Type) []error {
	if t == nil {
		return []error{errors.InvalidSchema(path, "missing type")}
	}
	switch t.Kind {
	case KindNamed:
		if !s.Has(t.Name) {
			return []error{errors.InvalidSchema(path, "unknown type %q", t.Name)}
		}
	case KindArray:
		if t.Elem == nil {
			return []error{errors.InvalidSchema(path, "array without element type")}
		}
		return s.validateType(path, t.Elem)
	case KindPointer:
		if !t.Offset.IsInteger() {
			return []error{errors.InvalidSchema(path, "pointer offset type %s is not an integer", t.Offset)}
		}
		if t.Elem == nil {
			return []error{errors.InvalidSchema(path, "pointer without target type")}
		}
		return s.validateType(path, t.Elem)
	default:
		if t.Kind > KindPointer {
			return []error{errors.InvalidSchema(path, "unknown kind %d", t.Kind)}
		}
	}
	return nil
}

func validateMagic(path []string, m *Magic) []error {
	if m == nil {
		return nil
	}
	if m.IsBytes() {
		if len(m.Bytes) == 0 {
			return []error{errors.InvalidSchema(path, "empty magic")}
		}
		return nil
	}
	if _, ok := m.Kind.FixedSize(); !ok || !m.Kind.IsInteger() {
		return []error{errors.InvalidSchema(path, "magic kind %s is not a fixed-width integer", m.Kind)}
	}
	return nil
}

func (s *Schema) validateRecord(path []string, r *RecordSpec) []error {
	var errs []error
	errs = append(errs, validateMagic(path, r.Magic)...)

	seen := make(map[string]bool)
	for _, imp := range r.Imports {
		if imp.Name == "" {
			errs = append(errs, errors.InvalidSchema(path, "import without name"))
		}
		if seen[imp.Name] {
			errs = append(errs, errors.InvalidSchema(path, "duplicate import %q", imp.Name))
		}
		seen[imp.Name] = true
	}

	fields := make(map[string]bool)
	for _, f := range r.Fields {
		fpath := append(slices.Clone(path), f.Name)
		if f.Name == "" {
			errs = append(errs, errors.InvalidSchema(path, "field without name"))
		} else if fields[f.Name] {
			errs = append(errs, errors.InvalidSchema(fpath, "duplicate field"))
		}
		fields[f.Name] = true
		errs = append(errs, s.validateField(fpath, f)...)
	}
	return errs
}

func (s *Schema) validateField(path []string, f *FieldSpec) []error {
	errs := s.validateType(path, f.Type)
	if len(errs) > 0 {
		return errs
	}
	errs = append(errs, validateMagic(path, f.Magic)...)

	switch f.ReadMode {
	case ReadCalc, ReadDefault, ReadIgnore:
		if f.If != nil {
			errs = append(errs, errors.InvalidSchema(path, "read mode %s cannot be combined with a condition", f.ReadMode))
		}
		if f.ReadMode == ReadCalc && f.Calc == nil {
			errs = append(errs, errors.InvalidSchema(path, "calc field without expression"))
		}
	case ReadCustom:
		if f.Codec == "" {
			errs = append(errs, errors.InvalidSchema(path, "custom field without codec name"))
		}
	}
	if f.Else != nil && f.If == nil {
		errs = append(errs, errors.InvalidSchema(path, "alternate value without condition"))
	}

	shorthand := f.Count != nil || f.Offset != nil
	if shorthand && (f.Args.Mode == ArgsPositional || f.Args.Mode == ArgsRaw) {
		errs = append(errs, errors.InvalidSchema(path, "count/offset cannot be combined with %s args", f.Args.Mode))
	}

	isPointer := f.Type.Kind == KindPointer
	if f.Deref == DerefImmediate && !isPointer {
		errs = append(errs, errors.InvalidSchema(path, "deref timing on non-pointer type %s", f.Type))
	}
	if f.OffsetAfter != nil {
		if !isPointer {
			errs = append(errs, errors.InvalidSchema(path, "offset_after on non-pointer type %s", f.Type))
		}
		if f.Deref == DerefImmediate {
			errs = append(errs, errors.InvalidSchema(path, "offset_after cannot be resolved immediately"))
		}
		if f.Offset != nil {
			errs = append(errs, errors.InvalidSchema(path, "offset and offset_after are exclusive"))
		}
	}

	params := s.Params(f.Type)
	if f.Count != nil && !hasParam(params, ParamCount) {
		errs = append(errs, errors.InvalidSchema(path, "count on type %s", f.Type))
	}
	if f.Offset != nil && !hasParam(params, ParamOffset) {
		errs = append(errs, errors.InvalidSchema(path, "offset on type %s", f.Type))
	}

	// Fields producing no bytes on read do not need arguments.
	needsArgs := f.ReadMode == ReadNormal

	supplied := make(map[string]bool)
	if f.Count != nil {
		supplied[ParamCount] = true
	}
	if f.Offset != nil || f.OffsetAfter != nil {
		supplied[ParamOffset] = true
	}

	switch f.Args.Mode {
	case ArgsNamed:
		for _, a := range f.Args.Named {
			if !hasParam(params, a.Name) {
				errs = append(errs, errors.InvalidSchema(path, "type %s has no parameter %q", f.Type, a.Name))
			}
			if supplied[a.Name] {
				errs = append(errs, errors.InvalidSchema(path, "argument %q given twice", a.Name))
			}
			supplied[a.Name] = true
		}
	case ArgsPositional:
		if len(f.Args.Positional) > len(params) {
			errs = append(errs, errors.InvalidSchema(path, "%d positional args for %d parameters of %s",
				len(f.Args.Positional), len(params), f.Type))
		}
		for i := range min(len(f.Args.Positional), len(params)) {
			supplied[params[i].Name] = true
		}
	case ArgsRaw:
		if f.Args.Raw == nil {
			errs = append(errs, errors.InvalidSchema(path, "raw args without expression"))
		}
		needsArgs = false
	}

	if needsArgs {
		for _, p := range params {
			if p.Required && !supplied[p.Name] {
				errs = append(errs, errors.InvalidSchema(path, "missing required argument %q for %s", p.Name, f.Type))
			}
		}
	}
	return errs
}

func (s *Schema) validateUnion(u *UnionSpec) []error {
	path := []string{u.Name}
	var errs []error
	errs = append(errs, validateMagic(path, u.Magic)...)

	switch u.Kind {
	case UnionCStyle:
		if !u.Repr.IsInteger() {
			errs = append(errs, errors.InvalidSchema(path, "cstyle union repr %s is not an integer", u.Repr))
		}
	case UnionMagic, UnionData:
		if u.Repr != KindUnit {
			errs = append(errs, errors.InvalidSchema(path, "repr is only valid on cstyle unions"))
		}
	default:
		errs = append(errs, errors.InvalidSchema(path, "unknown union kind %d", u.Kind))
	}
	if len(u.Variants) == 0 {
		errs = append(errs, errors.InvalidSchema(path, "union without variants"))
	}

	names := make(map[string]bool)
	for _, v := range u.Variants {
		vpath := []string{u.Name, v.Name}
		if v.Name == "" {
			errs = append(errs, errors.InvalidSchema(path, "variant without name"))
		} else if names[v.Name] {
			errs = append(errs, errors.InvalidSchema(vpath, "duplicate variant"))
		}
		names[v.Name] = true

		if v.Magic != nil && u.Kind == UnionCStyle {
			errs = append(errs, errors.InvalidSchema(vpath, "magic and repr dispatch are exclusive"))
		}
		errs = append(errs, validateMagic(vpath, v.Magic)...)
		if v.Record != nil {
			errs = append(errs, s.validateRecord(vpath, v.Record)...)
		}
	}
	return errs
}
