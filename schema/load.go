package schema

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"gopkg.in/yaml.v3"
)

// Load reads a schema document from path. Files ending in .json or .jsonc
// are read as JSON with comments; everything else as YAML.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LoadFailed("read schema "+path, err)
	}
	return Parse(data, path)
}

// Parse decodes a schema document and validates it. name is recorded in
// declaration locations and selects JSONC handling by extension.
func Parse(data []byte, name string) (*Schema, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.LoadFailed("decode schema "+name, err)
	}

	l := &loader{file: name, schema: New()}
	if err := l.build(&doc); err != nil {
		return nil, err
	}
	if err := l.schema.Validate(); err != nil {
		return nil, err
	}
	return l.schema, nil
}

type document struct {
	Endian string   `yaml:"endian"`
	Types  typeList `yaml:"types"`
}

type namedType struct {
	doc  *typeDoc
	name string
}

// typeList keeps the declaration order of the types mapping.
type typeList []namedType

func (t *typeList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: types must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var td typeDoc
		if err := n.Content[i+1].Decode(&td); err != nil {
			return err
		}
		*t = append(*t, namedType{name: n.Content[i].Value, doc: &td})
	}
	return nil
}

type typeDoc struct {
	Magic      *magicDoc    `yaml:"magic"`
	Endian     string       `yaml:"endian"`
	Union      string       `yaml:"union"`
	Repr       string       `yaml:"repr"`
	Policy     string       `yaml:"policy"`
	Imports    []importDoc  `yaml:"imports"`
	Fields     []fieldDoc   `yaml:"fields"`
	Asserts    []assertDoc  `yaml:"asserts"`
	PreAsserts []assertDoc  `yaml:"pre_asserts"`
	Variants   []variantDoc `yaml:"variants"`
	line       int
}

func (t *typeDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain typeDoc
	if err := n.Decode((*plain)(t)); err != nil {
		return err
	}
	t.line = n.Line
	return nil
}

type variantDoc struct {
	Magic        *magicDoc   `yaml:"magic"`
	Discriminant *int64      `yaml:"discriminant"`
	Name         string      `yaml:"name"`
	Endian       string      `yaml:"endian"`
	Imports      []importDoc `yaml:"imports"`
	Fields       []fieldDoc  `yaml:"fields"`
	Asserts      []assertDoc `yaml:"asserts"`
	PreAsserts   []assertDoc `yaml:"pre_asserts"`
	line         int
}

func (v *variantDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain variantDoc
	if err := n.Decode((*plain)(v)); err != nil {
		return err
	}
	v.line = n.Line
	return nil
}

type importDoc struct {
	Default *exprDoc `yaml:"default"`
	Name    string   `yaml:"name"`
}

func (i *importDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		i.Name = n.Value
		return nil
	}
	type plain importDoc
	return n.Decode((*plain)(i))
}

type fieldDoc struct {
	Magic       *magicDoc    `yaml:"magic"`
	EndianIf    *endianIfDoc `yaml:"endian_if"`
	SeekBefore  *seekDoc     `yaml:"seek_before"`
	Args        *argsDoc     `yaml:"args"`
	Count       *exprDoc     `yaml:"count"`
	Offset      *exprDoc     `yaml:"offset"`
	OffsetAfter *exprDoc     `yaml:"offset_after"`
	Calc        *exprDoc     `yaml:"calc"`
	Default     *exprDoc     `yaml:"default"`
	If          *exprDoc     `yaml:"if"`
	Else        *exprDoc     `yaml:"else"`
	PadBefore   *exprDoc     `yaml:"pad_before"`
	AlignBefore *exprDoc     `yaml:"align_before"`
	PadAfter    *exprDoc     `yaml:"pad_after"`
	AlignAfter  *exprDoc     `yaml:"align_after"`
	PadSizeTo   *exprDoc     `yaml:"pad_size_to"`
	WriteCalc   *exprDoc     `yaml:"write_calc"`
	ErrContext  *exprDoc     `yaml:"err_context"`
	Name        string       `yaml:"name"`
	Type        string       `yaml:"type"`
	Endian      string       `yaml:"endian"`
	Mode        string       `yaml:"mode"`
	Codec       string       `yaml:"codec"`
	Map         string       `yaml:"map"`
	Deref       string       `yaml:"deref"`
	Asserts     []assertDoc  `yaml:"asserts"`
	Ignore      bool         `yaml:"ignore"`
	Try         bool         `yaml:"try"`
	Restore     bool         `yaml:"restore"`
	Temp        bool         `yaml:"temp"`
	WriteIgnore bool         `yaml:"write_ignore"`
	line        int
}

func (f *fieldDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain fieldDoc
	if err := n.Decode((*plain)(f)); err != nil {
		return err
	}
	f.line = n.Line
	return nil
}

// exprDoc is a scalar: integers, floats and booleans are constants, strings
// are CEL source.
type exprDoc struct {
	value   any
	src     string
	line    int
	isConst bool
}

func (e *exprDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expression must be a scalar", n.Line)
	}
	e.line = n.Line
	switch n.ShortTag() {
	case "!!int":
		e.isConst = true
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			e.value = i
			return nil
		}
		u, err := strconv.ParseUint(n.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		e.value = u
	case "!!float":
		e.isConst = true
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		e.value = f
	case "!!bool":
		e.isConst = true
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		e.value = b
	case "!!null":
		e.isConst = true
	default:
		e.src = n.Value
	}
	return nil
}

type argsDoc struct {
	raw        *exprDoc
	positional []exprDoc
	named      []struct {
		name string
		expr exprDoc
	}
	mode ArgsMode
}

func (a *argsDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		a.mode = ArgsRaw
		a.raw = &exprDoc{}
		return a.raw.UnmarshalYAML(n)
	case yaml.SequenceNode:
		a.mode = ArgsPositional
		a.positional = make([]exprDoc, len(n.Content))
		for i, c := range n.Content {
			if err := a.positional[i].UnmarshalYAML(c); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		a.mode = ArgsNamed
		for i := 0; i+1 < len(n.Content); i += 2 {
			var e exprDoc
			if err := e.UnmarshalYAML(n.Content[i+1]); err != nil {
				return err
			}
			a.named = append(a.named, struct {
				name string
				expr exprDoc
			}{n.Content[i].Value, e})
		}
	default:
		return fmt.Errorf("line %d: args must be a scalar, list or mapping", n.Line)
	}
	return nil
}

// magicDoc accepts "text", {hex: "89504e47"} or {u32: 0xcafebabe}.
type magicDoc struct {
	magic *Magic
}

func (m *magicDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		m.magic = MagicBytes([]byte(n.Value))
		return nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("line %d: magic mapping needs exactly one key", n.Line)
		}
		key, val := n.Content[0].Value, n.Content[1].Value
		if key == "hex" {
			b, err := hex.DecodeString(strings.ReplaceAll(val, " ", ""))
			if err != nil {
				return fmt.Errorf("line %d: magic: %w", n.Line, err)
			}
			m.magic = MagicBytes(b)
			return nil
		}
		k, ok := ParseKind(key)
		if !ok {
			return fmt.Errorf("line %d: unknown magic kind %q", n.Line, key)
		}
		v, err := strconv.ParseUint(val, 0, 64)
		if err != nil {
			i, ierr := strconv.ParseInt(val, 0, 64)
			if ierr != nil {
				return fmt.Errorf("line %d: magic: %w", n.Line, err)
			}
			v = uint64(i)
		}
		m.magic = MagicInt(k, v)
		return nil
	}
	return fmt.Errorf("line %d: invalid magic", n.Line)
}

type endianIfDoc struct {
	Cond exprDoc `yaml:"cond"`
	Then string  `yaml:"then"`
	Else string  `yaml:"else"`
}

type seekDoc struct {
	offset exprDoc
	whence int
}

func (s *seekDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		s.whence = io.SeekStart
		return s.offset.UnmarshalYAML(n)
	}
	var d struct {
		Offset exprDoc `yaml:"offset"`
		Whence string  `yaml:"whence"`
	}
	if err := n.Decode(&d); err != nil {
		return err
	}
	s.offset = d.Offset
	switch d.Whence {
	case "", "start":
		s.whence = io.SeekStart
	case "current":
		s.whence = io.SeekCurrent
	case "end":
		s.whence = io.SeekEnd
	default:
		return fmt.Errorf("line %d: unknown whence %q", n.Line, d.Whence)
	}
	return nil
}

type assertDoc struct {
	Error   *exprDoc `yaml:"error"`
	Cond    exprDoc  `yaml:"cond"`
	Message string   `yaml:"message"`
}

func (a *assertDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return a.Cond.UnmarshalYAML(n)
	}
	type plain assertDoc
	return n.Decode((*plain)(a))
}

type loader struct {
	schema *Schema
	file   string
}

func (l *loader) fail(line int, format string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidSchema).
		Detail("%s:%d: %s", l.file, line, fmt.Sprintf(format, args...)).
		Build()
}

func (l *loader) build(doc *document) error {
	e, err := ParseEndian(doc.Endian)
	if err != nil {
		return l.fail(0, "%v", err)
	}
	l.schema.Endian = e

	for _, nt := range doc.Types {
		td := nt.doc
		if td.Union != "" {
			u, err := l.buildUnion(nt.name, td)
			if err != nil {
				return err
			}
			if err := l.schema.AddUnion(u); err != nil {
				return err
			}
			continue
		}
		rd := recordDoc{
			magic: td.Magic, endian: td.Endian, imports: td.Imports, fields: td.Fields,
			asserts: td.Asserts, preAsserts: td.PreAsserts, line: td.line,
		}
		r, err := l.buildRecord(nt.name, rd, nil)
		if err != nil {
			return err
		}
		if err := l.schema.AddRecord(r); err != nil {
			return err
		}
	}
	return nil
}

type recordDoc struct {
	magic      *magicDoc
	endian     string
	imports    []importDoc
	fields     []fieldDoc
	asserts    []assertDoc
	preAsserts []assertDoc
	line       int
}

// recordNames lists every name a record's expressions may reference.
func recordNames(rd recordDoc, outer []string) []string {
	names := []string{"args"}
	names = append(names, outer...)
	for _, imp := range rd.imports {
		names = append(names, imp.Name)
	}
	for _, f := range rd.fields {
		names = append(names, f.Name)
	}
	return names
}

func (l *loader) compile(env *expr.Env, d *exprDoc) (expr.Expr, error) {
	if d == nil {
		return nil, nil
	}
	if d.isConst {
		if d.value == nil {
			return nil, nil
		}
		return expr.Const(d.value), nil
	}
	e, err := env.Compile(d.src)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindExpression).
			Detail("%s:%d", l.file, d.line).
			Cause(err).
			Build()
	}
	return e, nil
}

func (l *loader) buildAsserts(env *expr.Env, docs []assertDoc) ([]Assert, error) {
	var out []Assert
	for i := range docs {
		cond, err := l.compile(env, &docs[i].Cond)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			return nil, l.fail(docs[i].Cond.line, "assertion without condition")
		}
		errExpr, err := l.compile(env, docs[i].Error)
		if err != nil {
			return nil, err
		}
		msg := docs[i].Message
		if msg == "" && errExpr == nil {
			msg = "assertion failed: " + cond.String()
		}
		out = append(out, Assert{Cond: cond, Err: errExpr, Message: msg})
	}
	return out, nil
}

func (l *loader) buildImports(env *expr.Env, docs []importDoc) ([]Import, error) {
	imports := make([]Import, len(docs))
	for i, d := range docs {
		def, err := l.compile(env, d.Default)
		if err != nil {
			return nil, err
		}
		imports[i] = Import{Name: d.Name, Default: def}
	}
	return imports, nil
}

func (l *loader) buildRecord(name string, rd recordDoc, outer []string) (*RecordSpec, error) {
	env, err := expr.NewEnv(recordNames(rd, outer)...)
	if err != nil {
		return nil, err
	}

	r := &RecordSpec{Name: name, Loc: Loc{File: l.file, Line: rd.line}}
	if r.Endian, err = ParseEndian(rd.endian); err != nil {
		return nil, l.fail(rd.line, "%v", err)
	}
	if rd.magic != nil {
		r.Magic = rd.magic.magic
	}
	if r.Imports, err = l.buildImports(env, rd.imports); err != nil {
		return nil, err
	}
	for i := range rd.fields {
		f, err := l.buildField(env, &rd.fields[i])
		if err != nil {
			return nil, err
		}
		r.Fields = append(r.Fields, f)
	}
	if r.Asserts, err = l.buildAsserts(env, rd.asserts); err != nil {
		return nil, err
	}
	if r.PreAsserts, err = l.buildAsserts(env, rd.preAsserts); err != nil {
		return nil, err
	}
	return r, nil
}

func (l *loader) buildField(env *expr.Env, fd *fieldDoc) (*FieldSpec, error) {
	f := &FieldSpec{
		Name:        fd.Name,
		Codec:       fd.Codec,
		Map:         fd.Map,
		Try:         fd.Try,
		Restore:     fd.Restore,
		Temp:        fd.Temp,
		WriteIgnore: fd.WriteIgnore,
		Loc:         Loc{File: l.file, Line: fd.line},
	}

	t, err := ParseType(fd.Type)
	if err != nil {
		return nil, l.fail(fd.line, "field %q: %v", fd.Name, err)
	}
	f.Type = t

	if f.Endian, err = ParseEndian(fd.Endian); err != nil {
		return nil, l.fail(fd.line, "field %q: %v", fd.Name, err)
	}
	if fd.EndianIf != nil {
		cond, err := l.compile(env, &fd.EndianIf.Cond)
		if err != nil {
			return nil, err
		}
		then, err := ParseEndian(fd.EndianIf.Then)
		if err != nil {
			return nil, l.fail(fd.line, "%v", err)
		}
		els, err := ParseEndian(fd.EndianIf.Else)
		if err != nil {
			return nil, l.fail(fd.line, "%v", err)
		}
		f.EndianIf = &EndianIf{Cond: cond, Then: then, Else: els}
	}
	if fd.Magic != nil {
		f.Magic = fd.Magic.magic
	}

	exprs := []struct {
		dst **exprDoc
		out *expr.Expr
	}{
		{&fd.Count, &f.Count},
		{&fd.Offset, &f.Offset},
		{&fd.OffsetAfter, &f.OffsetAfter},
		{&fd.Calc, &f.Calc},
		{&fd.If, &f.If},
		{&fd.Else, &f.Else},
		{&fd.PadBefore, &f.PadBefore},
		{&fd.AlignBefore, &f.AlignBefore},
		{&fd.PadAfter, &f.PadAfter},
		{&fd.AlignAfter, &f.AlignAfter},
		{&fd.PadSizeTo, &f.PadSizeTo},
		{&fd.WriteCalc, &f.WriteCalc},
		{&fd.ErrContext, &f.ErrContext},
	}
	for _, e := range exprs {
		if *e.out, err = l.compile(env, *e.dst); err != nil {
			return nil, err
		}
	}

	switch {
	case fd.Mode != "":
		if f.ReadMode, err = parseReadMode(fd.Mode); err != nil {
			return nil, l.fail(fd.line, "field %q: %v", fd.Name, err)
		}
	case fd.Calc != nil:
		f.ReadMode = ReadCalc
	case fd.Default != nil:
		f.ReadMode = ReadDefault
	case fd.Ignore:
		f.ReadMode = ReadIgnore
	case fd.Codec != "":
		f.ReadMode = ReadCustom
	}
	if fd.Default != nil {
		if f.Calc, err = l.compile(env, fd.Default); err != nil {
			return nil, err
		}
	}

	switch fd.Deref {
	case "", "deferred":
	case "immediate", "now":
		f.Deref = DerefImmediate
	default:
		return nil, l.fail(fd.line, "field %q: unknown deref timing %q", fd.Name, fd.Deref)
	}

	if fd.SeekBefore != nil {
		off, err := l.compile(env, &fd.SeekBefore.offset)
		if err != nil {
			return nil, err
		}
		f.SeekBefore = &Seek{Offset: off, Whence: fd.SeekBefore.whence}
	}

	if fd.Args != nil {
		f.Args.Mode = fd.Args.mode
		if f.Args.Raw, err = l.compile(env, fd.Args.raw); err != nil {
			return nil, err
		}
		for i := range fd.Args.positional {
			e, err := l.compile(env, &fd.Args.positional[i])
			if err != nil {
				return nil, err
			}
			f.Args.Positional = append(f.Args.Positional, e)
		}
		for i := range fd.Args.named {
			e, err := l.compile(env, &fd.Args.named[i].expr)
			if err != nil {
				return nil, err
			}
			f.Args.Named = append(f.Args.Named, NamedArg{Name: fd.Args.named[i].name, Value: e})
		}
	}

	if f.Asserts, err = l.buildAsserts(env, fd.Asserts); err != nil {
		return nil, err
	}
	return f, nil
}

func parseReadMode(s string) (ReadMode, error) {
	for m := ReadNormal; m <= ReadCustom; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown read mode %q", s)
}

func parseUnionKind(s string) (UnionKind, error) {
	for k := UnionData; k <= UnionMagic; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown union kind %q", s)
}

func (l *loader) buildUnion(name string, td *typeDoc) (*UnionSpec, error) {
	u := &UnionSpec{Name: name, Loc: Loc{File: l.file, Line: td.line}}

	var err error
	if u.Kind, err = parseUnionKind(td.Union); err != nil {
		return nil, l.fail(td.line, "%v", err)
	}
	if u.Endian, err = ParseEndian(td.Endian); err != nil {
		return nil, l.fail(td.line, "%v", err)
	}
	if u.Policy, err = ParsePolicy(td.Policy); err != nil {
		return nil, l.fail(td.line, "%v", err)
	}
	if td.Repr != "" {
		k, ok := ParseKind(td.Repr)
		if !ok {
			return nil, l.fail(td.line, "unknown repr %q", td.Repr)
		}
		u.Repr = k
	}
	if td.Magic != nil {
		u.Magic = td.Magic.magic
	}

	unionNames := []string{"args"}
	for _, imp := range td.Imports {
		unionNames = append(unionNames, imp.Name)
	}
	env, err := expr.NewEnv(unionNames...)
	if err != nil {
		return nil, err
	}
	if u.Imports, err = l.buildImports(env, td.Imports); err != nil {
		return nil, err
	}

	for i := range td.Variants {
		vd := &td.Variants[i]
		v := &Variant{Name: vd.Name, Loc: Loc{File: l.file, Line: vd.line}}
		if vd.Discriminant != nil {
			v.Discriminant = *vd.Discriminant
		} else if u.Kind == UnionCStyle {
			v.Discriminant = int64(i)
			if i > 0 {
				v.Discriminant = u.Variants[i-1].Discriminant + 1
			}
		}
		if vd.Magic != nil {
			v.Magic = vd.Magic.magic
		}
		if v.PreAsserts, err = l.buildAsserts(env, vd.PreAsserts); err != nil {
			return nil, err
		}
		if len(vd.Fields) > 0 || len(vd.Imports) > 0 || len(vd.Asserts) > 0 {
			rd := recordDoc{
				endian: vd.Endian, imports: vd.Imports, fields: vd.Fields,
				asserts: vd.Asserts, line: vd.line,
			}
			outer := slices.Clone(unionNames[1:])
			if v.Record, err = l.buildRecord(name+"::"+vd.Name, rd, outer); err != nil {
				return nil, err
			}
		}
		u.Variants = append(u.Variants, v)
	}
	return u, nil
}
