package schema

import (
	"strings"
	"testing"

	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		kind    Kind
		wantErr bool
	}{
		{in: "u8", want: "u8", kind: KindU8},
		{in: "s32", want: "i32", kind: KindI32},
		{in: "[]u16", want: "[]u16", kind: KindArray},
		{in: "*Body", want: "*Body", kind: KindPointer},
		{in: "*u64:[]u8", want: "*u64:[]u8", kind: KindPointer},
		{in: "Header", want: "Header", kind: KindNamed},
		{in: "*f32:Body", wantErr: true},
		{in: "bad name", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want || got.Kind != tt.kind {
				t.Errorf("got %s (%s), want %s (%s)", got, got.Kind, tt.want, tt.kind)
			}
		})
	}
}

func TestKindFixedSize(t *testing.T) {
	for k, want := range map[Kind]uint64{KindU8: 1, KindI16: 2, KindF32: 4, KindU64: 8, KindUnit: 0} {
		if got, ok := k.FixedSize(); !ok || got != want {
			t.Errorf("%s.FixedSize() = %d, %v", k, got, ok)
		}
	}
	if _, ok := KindULEB128.FixedSize(); ok {
		t.Error("uleb128 is variable width")
	}
}

func addRecord(t *testing.T, s *Schema, r *RecordSpec) {
	t.Helper()
	if err := s.AddRecord(r); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Schema {
		s := New()
		addRecord(t, s, &RecordSpec{
			Name:    "Child",
			Imports: []Import{{Name: "n"}, {Name: "scale", Default: expr.Const(1)}},
			Fields:  []*FieldSpec{{Name: "x", Type: Prim(KindU8)}},
		})
		return s
	}

	tests := []struct {
		name    string
		field   *FieldSpec
		wantErr string
	}{
		{
			name:  "valid named args",
			field: &FieldSpec{Name: "c", Type: Named("Child"), Args: ArgsSpec{Mode: ArgsNamed, Named: []NamedArg{{Name: "n", Value: expr.Const(1)}}}},
		},
		{
			name:  "valid positional args",
			field: &FieldSpec{Name: "c", Type: Named("Child"), Args: ArgsSpec{Mode: ArgsPositional, Positional: []expr.Expr{expr.Const(1)}}},
		},
		{
			name:  "valid counted array of records",
			field: &FieldSpec{Name: "c", Type: ArrayOf(Named("Child")), Count: expr.Const(2), Args: ArgsSpec{Mode: ArgsNamed, Named: []NamedArg{{Name: "n", Value: expr.Const(1)}}}},
		},
		{
			name:    "calc with condition",
			field:   &FieldSpec{Name: "f", Type: Prim(KindU8), ReadMode: ReadCalc, Calc: expr.Const(1), If: expr.Const(true)},
			wantErr: "cannot be combined with a condition",
		},
		{
			name:    "calc without expression",
			field:   &FieldSpec{Name: "f", Type: Prim(KindU8), ReadMode: ReadCalc},
			wantErr: "calc field without expression",
		},
		{
			name:    "custom without codec",
			field:   &FieldSpec{Name: "f", Type: Prim(KindU8), ReadMode: ReadCustom},
			wantErr: "without codec",
		},
		{
			name:    "count with positional args",
			field:   &FieldSpec{Name: "f", Type: ArrayOf(Prim(KindU8)), Count: expr.Const(1), Args: ArgsSpec{Mode: ArgsPositional, Positional: []expr.Expr{expr.Const(1)}}},
			wantErr: "cannot be combined with positional args",
		},
		{
			name:    "offset with raw args",
			field:   &FieldSpec{Name: "f", Type: PointerTo(Prim(KindU8)), Offset: expr.Const(1), Args: ArgsSpec{Mode: ArgsRaw, Raw: expr.Ref("args")}},
			wantErr: "cannot be combined with raw args",
		},
		{
			name:    "offset_after with immediate deref",
			field:   &FieldSpec{Name: "f", Type: PointerTo(Prim(KindU8)), OffsetAfter: expr.Const(0), Deref: DerefImmediate},
			wantErr: "cannot be resolved immediately",
		},
		{
			name:    "deref on non-pointer",
			field:   &FieldSpec{Name: "f", Type: Prim(KindU8), Deref: DerefImmediate},
			wantErr: "non-pointer",
		},
		{
			name:    "unknown named arg",
			field:   &FieldSpec{Name: "c", Type: Named("Child"), Args: ArgsSpec{Mode: ArgsNamed, Named: []NamedArg{{Name: "n", Value: expr.Const(1)}, {Name: "zzz", Value: expr.Const(1)}}}},
			wantErr: `no parameter "zzz"`,
		},
		{
			name:    "missing required import",
			field:   &FieldSpec{Name: "c", Type: Named("Child")},
			wantErr: `missing required argument "n"`,
		},
		{
			name:    "too many positional",
			field:   &FieldSpec{Name: "c", Type: Named("Child"), Args: ArgsSpec{Mode: ArgsPositional, Positional: []expr.Expr{expr.Const(1), expr.Const(2), expr.Const(3)}}},
			wantErr: "3 positional args for 2 parameters",
		},
		{
			name:    "array without count",
			field:   &FieldSpec{Name: "f", Type: ArrayOf(Prim(KindU8))},
			wantErr: `missing required argument "count"`,
		},
		{
			name:    "count on scalar",
			field:   &FieldSpec{Name: "f", Type: Prim(KindU32), Count: expr.Const(1)},
			wantErr: "count on type u32",
		},
		{
			name:    "unknown type",
			field:   &FieldSpec{Name: "f", Type: Named("Nope")},
			wantErr: `unknown type "Nope"`,
		},
		{
			name:    "pointer with float offset",
			field:   &FieldSpec{Name: "f", Type: PointerWith(KindF32, Prim(KindU8))},
			wantErr: "not an integer",
		},
		{
			name:  "calc field needs no args",
			field: &FieldSpec{Name: "f", Type: ArrayOf(Prim(KindU8)), ReadMode: ReadCalc, Calc: expr.Const(nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			addRecord(t, s, &RecordSpec{Name: "Parent", Fields: []*FieldSpec{tt.field}})
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
			if errors.KindOf(err) != errors.KindInvalidSchema {
				t.Errorf("KindOf = %q", errors.KindOf(err))
			}
		})
	}
}

func TestValidateUnion(t *testing.T) {
	tests := []struct {
		name    string
		union   *UnionSpec
		wantErr string
	}{
		{
			name: "cstyle ok",
			union: &UnionSpec{Name: "U", Kind: UnionCStyle, Repr: KindU8, Variants: []*Variant{
				{Name: "A", Discriminant: 0}, {Name: "B", Discriminant: 1},
			}},
		},
		{
			name: "cstyle with magic variant",
			union: &UnionSpec{Name: "U", Kind: UnionCStyle, Repr: KindU8, Variants: []*Variant{
				{Name: "A", Magic: MagicBytes([]byte("A"))},
			}},
			wantErr: "magic and repr dispatch are exclusive",
		},
		{
			name: "magic union with repr",
			union: &UnionSpec{Name: "U", Kind: UnionMagic, Repr: KindU8, Variants: []*Variant{
				{Name: "A", Magic: MagicBytes([]byte("A"))},
			}},
			wantErr: "repr is only valid on cstyle",
		},
		{
			name:    "no variants",
			union:   &UnionSpec{Name: "U", Kind: UnionData},
			wantErr: "without variants",
		},
		{
			name: "duplicate variants",
			union: &UnionSpec{Name: "U", Kind: UnionData, Variants: []*Variant{
				{Name: "A"}, {Name: "A"},
			}},
			wantErr: "duplicate variant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if err := s.AddUnion(tt.union); err != nil {
				t.Fatal(err)
			}
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %v does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuplicateTypeName(t *testing.T) {
	s := New()
	addRecord(t, s, &RecordSpec{Name: "A"})
	if err := s.AddUnion(&UnionSpec{Name: "A"}); err == nil {
		t.Error("duplicate name should fail")
	}
}

func TestParams(t *testing.T) {
	s := New()
	addRecord(t, s, &RecordSpec{Name: "R", Imports: []Import{{Name: "a"}, {Name: "b", Default: expr.Const(0)}}})

	params := s.Params(PointerTo(ArrayOf(Named("R"))))
	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "offset,count,a,b" {
		t.Errorf("params = %s", got)
	}
	if params[0].Required || !params[1].Required || !params[2].Required || params[3].Required {
		t.Errorf("required flags wrong: %+v", params)
	}
}

const testDoc = `
endian: big
types:
  Header:
    magic: "HD"
    imports:
      - limit
      - name: scale
        default: 2
    fields:
      - name: count
        type: u8
        asserts:
          - cond: count < limit
            message: too many items
      - name: items
        type: "[]u16"
        count: count
        endian: little
      - name: flags
        type: u8
        align_before: 4
      - name: extra
        type: u32
        if: flags % 2 == 1
        else: 0
      - name: doubled
        type: u32
        calc: count * scale
      - name: body
        type: "*Body"
        deref: immediate
    asserts:
      - count > 0
  Body:
    magic: {u16: 0xbeef}
    fields:
      - {name: v, type: cstring}
  Shape:
    union: cstyle
    repr: u8
    policy: discard
    variants:
      - name: Circle
        fields:
          - {name: r, type: u16}
      - name: Square
        discriminant: 5
        fields:
          - {name: side, type: u16}
      - name: Empty
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(testDoc), "test.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if s.Endian != EndianBig {
		t.Errorf("Endian = %s", s.Endian)
	}
	if got := strings.Join(s.Names(), ","); got != "Header,Body,Shape" {
		t.Errorf("Names = %s", got)
	}

	h, ok := s.Record("Header")
	if !ok {
		t.Fatal("Header missing")
	}
	if string(h.Magic.Bytes) != "HD" {
		t.Errorf("magic = %v", h.Magic)
	}
	if len(h.Imports) != 2 || h.Imports[0].Default != nil || h.Imports[1].Default == nil {
		t.Errorf("imports = %+v", h.Imports)
	}
	if h.Loc.File != "test.yaml" || h.Loc.Line == 0 {
		t.Errorf("loc = %+v", h.Loc)
	}

	items := h.Field("items")
	if items.Type.Kind != KindArray || items.Count == nil || items.Endian != EndianLittle {
		t.Errorf("items = %+v", items)
	}
	if h.Field("extra").If == nil || h.Field("extra").Else == nil {
		t.Error("extra should be conditional")
	}
	if h.Field("doubled").ReadMode != ReadCalc {
		t.Error("doubled should be calc")
	}
	if h.Field("body").Deref != DerefImmediate {
		t.Error("body should deref immediately")
	}
	if len(h.Field("count").Asserts) != 1 || h.Field("count").Asserts[0].Message != "too many items" {
		t.Error("count assert missing")
	}
	if len(h.Asserts) != 1 {
		t.Error("record assert missing")
	}

	b, _ := s.Record("Body")
	if b.Magic.Kind != KindU16 || b.Magic.Value != 0xbeef {
		t.Errorf("Body magic = %v", b.Magic)
	}

	u, ok := s.Union("Shape")
	if !ok {
		t.Fatal("Shape missing")
	}
	if u.Kind != UnionCStyle || u.Repr != KindU8 || u.Policy != PolicyDiscard {
		t.Errorf("union = %+v", u)
	}
	discs := []int64{u.Variants[0].Discriminant, u.Variants[1].Discriminant, u.Variants[2].Discriminant}
	if discs[0] != 0 || discs[1] != 5 || discs[2] != 6 {
		t.Errorf("discriminants = %v", discs)
	}
	if u.Variants[2].Record != nil {
		t.Error("Empty should be a unit variant")
	}
}

func TestParseJSONC(t *testing.T) {
	doc := `{
    // comments are allowed
    "types": {
      "P": {
        "fields": [
          {"name": "n", "type": "u32"},
          {"name": "data", "type": "bytes", "count": "n"}, // trailing comma
        ],
      },
    },
  }`
	s, err := Parse([]byte(doc), "p.jsonc")
	if err != nil {
		t.Fatal(err)
	}
	r, ok := s.Record("P")
	if !ok || len(r.Fields) != 2 {
		t.Fatalf("record = %+v", r)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want errors.Kind
	}{
		{"bad expression", "types:\n  A:\n    fields:\n      - {name: a, type: u8, if: 'nope +'}\n", errors.KindExpression},
		{"undeclared name", "types:\n  A:\n    fields:\n      - {name: a, type: u8, if: 'zz == 1'}\n", errors.KindExpression},
		{"bad type", "types:\n  A:\n    fields:\n      - {name: a, type: '[]'}\n", errors.KindInvalidSchema},
		{"invalid combination", "types:\n  A:\n    fields:\n      - {name: a, type: u8, calc: 1, if: 'true'}\n", errors.KindInvalidSchema},
		{"bad yaml", "types: [", errors.KindInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "x.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasKind(err, tt.want) {
				t.Errorf("error %v is not %s", err, tt.want)
			}
		})
	}
}
