package engine

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

func argEquals(name string, want int64) expr.Expr {
	return expr.Func(name+"==", func(sc expr.Scope) (any, error) {
		v, err := expr.Eval(expr.Ref(name), sc)
		if err != nil {
			return nil, err
		}
		got, err := expr.ToInt64(v)
		return got == want, err
	})
}

func messageSchema(t *testing.T) *schema.Schema {
	return newSchema(t,
		&schema.RecordSpec{
			Name: "Msg",
			Fields: []*schema.FieldSpec{
				{Name: "x", Type: prim(schema.KindU8)},
				{Name: "body", Type: schema.Named("Body"), Args: schema.ArgsSpec{
					Mode:  schema.ArgsNamed,
					Named: []schema.NamedArg{{Name: "x", Value: expr.Ref("x")}},
				}},
			},
		},
		&schema.UnionSpec{
			Name:    "Body",
			Kind:    schema.UnionData,
			Imports: []schema.Import{{Name: "x"}},
			Variants: []*schema.Variant{
				{
					Name:       "A",
					PreAsserts: []schema.Assert{{Cond: argEquals("x", 0), Message: "not A"}},
					Record: &schema.RecordSpec{
						Name:   "Body::A",
						Fields: []*schema.FieldSpec{{Name: "a", Type: prim(schema.KindU16)}},
					},
				},
				{
					Name:       "B",
					PreAsserts: []schema.Assert{{Cond: argEquals("x", 1), Message: "not B"}},
					Record: &schema.RecordSpec{
						Name:   "Body::B",
						Fields: []*schema.FieldSpec{{Name: "b", Type: prim(schema.KindU8)}},
					},
				},
			},
		},
	)
}

func TestUnionBacktracking(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	eng := newEngine(t, messageSchema(t), WithLogger(zap.New(core)))

	c := cursor.NewBuffer([]byte{1, 7})
	rec, err := eng.ReadRecord(c, "Msg", value.Args{})
	if err != nil {
		t.Fatal(err)
	}
	body := field(t, rec, "body").(*value.Variant)
	if body.Name != "B" || body.Union != "Body" {
		t.Fatalf("body = %+v", body)
	}
	if got := field(t, body.Value, "b"); got != uint8(7) {
		t.Errorf("b = %v", got)
	}
	if c.Position() != 2 {
		t.Errorf("position = %d, want 2", c.Position())
	}

	tried := logs.FilterMessage("variant failed").All()
	if len(tried) != 1 || tried[0].ContextMap()["variant"] != "A" {
		t.Errorf("variant trials = %v", tried)
	}
}

func magicUnion(policy schema.Policy) *schema.UnionSpec {
	variant := func(name string) *schema.Variant {
		return &schema.Variant{
			Name: name,
			Record: &schema.RecordSpec{
				Name:   "U::" + name,
				Magic:  schema.MagicBytes([]byte(name)),
				Fields: []*schema.FieldSpec{{Name: "v", Type: prim(schema.KindU8)}},
			},
		}
	}
	return &schema.UnionSpec{
		Name:     "U",
		Kind:     schema.UnionData,
		Policy:   policy,
		Variants: []*schema.Variant{variant("A"), variant("B"), variant("C")},
	}
}

func TestUnionAllVariantsFailed(t *testing.T) {
	eng := newEngine(t, newSchema(t, magicUnion(schema.PolicyAggregate)))
	c := cursor.NewBuffer([]byte{0, 'Z', 1})
	if _, err := c.Seek(1, 0); err != nil {
		t.Fatal(err)
	}

	_, err := eng.Read(c, "U", value.Args{})
	e, ok := errors.As(err)
	if !ok || e.Kind != errors.KindAllVariantsFailed {
		t.Fatalf("err = %v, want all variants failed", err)
	}
	if len(e.Variants) != 3 {
		t.Fatalf("variants = %v", e.Variants)
	}
	for i, name := range []string{"A", "B", "C"} {
		if e.Variants[i].Name != name {
			t.Errorf("variant %d = %s, want %s", i, e.Variants[i].Name, name)
		}
		if !errors.HasKind(e.Variants[i].Err, errors.KindMagicMismatch) {
			t.Errorf("variant %s err = %v", name, e.Variants[i].Err)
		}
	}
	if e.Pos != 1 || c.Position() != 1 {
		t.Errorf("pos = %d, cursor = %d, want 1", e.Pos, c.Position())
	}
}

func TestUnionDiscardPolicy(t *testing.T) {
	tests := []struct {
		name string
		u    *schema.UnionSpec
		opts []Option
	}{
		{"per union", magicUnion(schema.PolicyDiscard), nil},
		{"engine override", magicUnion(schema.PolicyAggregate), []Option{WithErrorPolicy(schema.PolicyDiscard)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newEngine(t, newSchema(t, tt.u), tt.opts...)
			c := cursor.NewBuffer([]byte{'Z', 1})
			_, err := eng.Read(c, "U", value.Args{})
			e, ok := errors.As(err)
			if !ok || e.Kind != errors.KindNoVariantMatch {
				t.Fatalf("err = %v, want no variant match", err)
			}
			if len(e.Variants) != 0 {
				t.Errorf("discard kept %d variant errors", len(e.Variants))
			}
			if c.Position() != 0 {
				t.Errorf("cursor = %d", c.Position())
			}
		})
	}
}

func TestUnionFirstMatchWins(t *testing.T) {
	u := magicUnion(schema.PolicyAggregate)
	u.Variants = append(u.Variants, &schema.Variant{Name: "Any"})
	eng := newEngine(t, newSchema(t, u))

	tests := []struct {
		data []byte
		want string
	}{
		{[]byte{'B', 9}, "B"},
		{[]byte{'C', 9}, "C"},
		{[]byte{'Q'}, "Any"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			v, err := eng.Read(cursor.NewBuffer(tt.data), "U", value.Args{})
			if err != nil {
				t.Fatal(err)
			}
			if got := v.(*value.Variant).Name; got != tt.want {
				t.Errorf("variant = %s, want %s", got, tt.want)
			}
		})
	}
}

func colorSchema(t *testing.T) *schema.Schema {
	return newSchema(t, &schema.UnionSpec{
		Name: "Color",
		Kind: schema.UnionCStyle,
		Repr: schema.KindU8,
		Variants: []*schema.Variant{
			{Name: "Red", Discriminant: 0},
			{Name: "Green", Discriminant: 1},
			{Name: "Blue", Discriminant: 5},
			{Name: "Rgb", Discriminant: 9, Record: &schema.RecordSpec{
				Name: "Color::Rgb",
				Fields: []*schema.FieldSpec{
					{Name: "rgb", Type: prim(schema.KindBytes), Count: expr.Const(3)},
				},
			}},
		},
	})
}

func TestCStyleUnion(t *testing.T) {
	eng := newEngine(t, colorSchema(t))

	v, err := eng.Read(cursor.NewBuffer([]byte{5}), "Color", value.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if vr := v.(*value.Variant); vr.Name != "Blue" || vr.Discriminant != 5 || vr.Value != nil {
		t.Errorf("variant = %+v", vr)
	}

	c := cursor.NewBuffer([]byte{0xff, 3})
	if _, err := c.Seek(1, 0); err != nil {
		t.Fatal(err)
	}
	_, err = eng.Read(c, "Color", value.Args{})
	if !errors.HasKind(err, errors.KindNoVariantMatch) {
		t.Fatalf("err = %v", err)
	}
	if pos, _ := errors.PositionOf(err); pos != 1 {
		t.Errorf("error position = %d, want 1", pos)
	}
	if c.Position() != 1 {
		t.Errorf("cursor = %d, want 1", c.Position())
	}
}

func TestUnionWrite(t *testing.T) {
	eng := newEngine(t, colorSchema(t))
	rec := value.NewRecord("Color::Rgb")
	rec.Set("rgb", []byte{1, 2, 3})

	tests := []struct {
		name string
		v    *value.Variant
		want []byte
	}{
		{"unit", &value.Variant{Name: "Blue"}, []byte{5}},
		{"data", &value.Variant{Name: "Rgb", Value: rec}, []byte{9, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := cursor.NewBuffer(nil)
			if err := eng.Write(out, "Color", tt.v, value.Args{}); err != nil {
				t.Fatal(err)
			}
			if string(out.Bytes()) != string(tt.want) {
				t.Errorf("got %x, want %x", out.Bytes(), tt.want)
			}
		})
	}

	err := eng.Write(cursor.NewBuffer(nil), "Color", &value.Variant{Name: "Pink"}, value.Args{})
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestUnionMagicRoundTrip(t *testing.T) {
	eng := newEngine(t, newSchema(t, magicUnion(schema.PolicyAggregate)))
	data := []byte{'C', 0x42}
	v, err := eng.Read(cursor.NewBuffer(data), "U", value.Args{})
	if err != nil {
		t.Fatal(err)
	}
	out := cursor.NewBuffer(nil)
	if err := eng.Write(out, "U", v, value.Args{}); err != nil {
		t.Fatal(err)
	}
	if string(out.Bytes()) != string(data) {
		t.Errorf("got %x, want %x", out.Bytes(), data)
	}
}
