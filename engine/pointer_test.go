package engine

import (
	"bytes"
	"testing"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

func pointerSchema(t *testing.T, deref schema.Deref, check expr.Expr) *schema.Schema {
	return newSchema(t, &schema.RecordSpec{
		Name:   "Table",
		Endian: schema.EndianBig,
		Fields: []*schema.FieldSpec{
			{Name: "ptr", Type: schema.PointerTo(prim(schema.KindU16)), Deref: deref},
			{Name: "check", Type: prim(schema.KindU16), ReadMode: schema.ReadCalc, Calc: check},
			{Name: "tail", Type: prim(schema.KindU16)},
		},
	})
}

// ptr = 6, tail = 0x1111, target 0xbeef at 6
var tableBytes = []byte{0, 0, 0, 6, 0x11, 0x11, 0xbe, 0xef}

func TestDeferredPointer(t *testing.T) {
	check := expr.Func("resolved(ptr)", func(sc expr.Scope) (any, error) {
		v, _ := sc.Lookup("ptr")
		if v.(*value.Pointer).IsResolved() {
			return 1, nil
		}
		return 0, nil
	})
	eng := newEngine(t, pointerSchema(t, schema.DerefDeferred, check))
	c := cursor.NewBuffer(tableBytes)
	rec, err := eng.ReadRecord(c, "Table", value.Args{})
	if err != nil {
		t.Fatal(err)
	}

	if got := field(t, rec, "check"); got != uint16(0) {
		t.Errorf("pointer resolved during primary pass")
	}
	p := field(t, rec, "ptr").(*value.Pointer)
	target, err := p.Value()
	if err != nil {
		t.Fatal(err)
	}
	if target != uint16(0xbeef) || p.Offset != 6 || p.Base != 0 {
		t.Errorf("pointer = %v (base %d)", p, p.Base)
	}
	if c.Position() != 6 {
		t.Errorf("position = %d, want 6", c.Position())
	}
}

func TestPointerReadThrough(t *testing.T) {
	through := expr.Func("*ptr", func(sc expr.Scope) (any, error) {
		v, _ := sc.Lookup("ptr")
		return expr.ToUint64(v)
	})

	t.Run("immediate", func(t *testing.T) {
		eng := newEngine(t, pointerSchema(t, schema.DerefImmediate, through))
		rec := readRecord(t, eng, "Table", tableBytes)
		if got := field(t, rec, "check"); got != uint16(0xbeef) {
			t.Errorf("check = %#x, want 0xbeef", got)
		}
	})

	t.Run("deferred", func(t *testing.T) {
		eng := newEngine(t, pointerSchema(t, schema.DerefDeferred, through))
		c := cursor.NewBuffer(tableBytes)
		_, err := eng.Read(c, "Table", value.Args{})
		if !IsUnresolved(err) {
			t.Fatalf("err = %v, want unresolved pointer", err)
		}
		if c.Position() != 0 {
			t.Errorf("position = %d", c.Position())
		}
	})
}

func TestOffsetOverrides(t *testing.T) {
	tests := []struct {
		name  string
		field *schema.FieldSpec
	}{
		{"offset", &schema.FieldSpec{
			Name:   "ptr",
			Type:   schema.PointerWith(schema.KindU8, prim(schema.KindU8)),
			Offset: expr.Const(1),
		}},
		{"offset_after", &schema.FieldSpec{
			Name:        "ptr",
			Type:        schema.PointerWith(schema.KindU8, prim(schema.KindU8)),
			OffsetAfter: expr.Ref("base"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSchema(t, &schema.RecordSpec{
				Name:   "R",
				Fields: []*schema.FieldSpec{tt.field, {Name: "base", Type: prim(schema.KindU8)}},
			})
			eng := newEngine(t, s)
			rec := readRecord(t, eng, "R", []byte{2, 1, 0xaa, 0x55})
			p := field(t, rec, "ptr").(*value.Pointer)
			if got := p.MustValue(); got != uint8(0x55) {
				t.Errorf("target = %#x, want 0x55", got)
			}
		})
	}
}

func TestPointerTargetFailureRewinds(t *testing.T) {
	eng := newEngine(t, pointerSchema(t, schema.DerefDeferred, expr.Const(0)))
	c := cursor.NewBuffer([]byte{0, 0, 0, 0x40, 0x11, 0x11})
	_, err := eng.Read(c, "Table", value.Args{})
	if !errors.HasKind(err, errors.KindIO) {
		t.Fatalf("err = %v", err)
	}
	if c.Position() != 0 {
		t.Errorf("position = %d", c.Position())
	}
	frames := errors.FramesOf(err)
	if len(frames) == 0 || frames[0].Location.Field != "ptr" {
		t.Errorf("frames = %v", frames)
	}
}

func TestPointerWrite(t *testing.T) {
	eng := newEngine(t, pointerSchema(t, schema.DerefDeferred, expr.Const(0)))
	rec := value.NewRecord("Table")
	rec.Set("ptr", value.Resolved(6, uint16(0xbeef)))
	rec.Set("tail", uint16(0x1111))

	out := cursor.NewBuffer(nil)
	if err := eng.Write(out, "Table", rec, value.Args{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), tableBytes) {
		t.Errorf("got %x, want %x", out.Bytes(), tableBytes)
	}
	if out.Position() != 6 {
		t.Errorf("position = %d, want 6", out.Position())
	}

	rec.Set("ptr", value.NewPointer(6))
	err := eng.Write(cursor.NewBuffer(nil), "Table", rec, value.Args{})
	if !IsUnresolved(err) {
		t.Errorf("err = %v, want unresolved", err)
	}
}

func TestUnresolvedInExpressions(t *testing.T) {
	mustCEL := func(src string) expr.Expr {
		e, err := expr.Compile(src, "ptr")
		if err != nil {
			t.Fatal(err)
		}
		return e
	}

	tests := []struct {
		name string
		cond expr.Expr
	}{
		{"cel arithmetic", mustCEL("ptr + 0 == 0")},
		{"cel bare", mustCEL("ptr")},
		{"cel member", mustCEL("ptr.x == 1")},
		{"ref member", expr.Ref("ptr.x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSchema(t,
				&schema.RecordSpec{
					Name:   "Point",
					Fields: []*schema.FieldSpec{{Name: "x", Type: prim(schema.KindU8)}},
				},
				&schema.RecordSpec{
					Name: "Table",
					Fields: []*schema.FieldSpec{
						{Name: "ptr", Type: schema.PointerWith(schema.KindU8, schema.Named("Point"))},
						{Name: "flag", Type: prim(schema.KindU8), If: tt.cond},
					},
				},
			)
			eng := newEngine(t, s)
			c := cursor.NewBuffer([]byte{2, 0, 1})
			_, err := eng.Read(c, "Table", value.Args{})
			if !IsUnresolved(err) {
				t.Fatalf("err = %v, want unresolved pointer", err)
			}
			if !errors.HasKind(err, errors.KindUnresolvedPointer) {
				t.Errorf("kind = %q", errors.KindOf(err))
			}
			if c.Position() != 0 {
				t.Errorf("position = %d", c.Position())
			}
		})
	}
}

func TestCELAfterResolution(t *testing.T) {
	cond, err := expr.Compile("ptr.x == 1", "ptr")
	if err != nil {
		t.Fatal(err)
	}
	s := newSchema(t,
		&schema.RecordSpec{
			Name:   "Point",
			Fields: []*schema.FieldSpec{{Name: "x", Type: prim(schema.KindU8)}},
		},
		&schema.RecordSpec{
			Name: "Table",
			Fields: []*schema.FieldSpec{
				{Name: "ptr", Type: schema.PointerWith(schema.KindU8, schema.Named("Point")), Deref: schema.DerefImmediate},
				{Name: "flag", Type: prim(schema.KindU8), If: cond},
			},
		},
	)
	eng := newEngine(t, s)
	rec := readRecord(t, eng, "Table", []byte{2, 7, 1})
	if got := field(t, rec, "flag"); got != uint8(7) {
		t.Errorf("flag = %v, want 7", got)
	}
}
