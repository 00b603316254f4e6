package wasmmap

import (
	"context"
	"testing"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

// (func $double (param i64) (result i64) local.get 0 local.get 0 i64.add)
// (func $half (param i64) (result i64) local.get 0 i64.const 2 i64.div_s)
var scaleWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7e, 0x01, 0x7e,
	// func
	0x03, 0x03, 0x02, 0x00, 0x00,
	// export
	0x07, 0x11, 0x02,
	0x06, 'd', 'o', 'u', 'b', 'l', 'e', 0x00, 0x00,
	0x04, 'h', 'a', 'l', 'f', 0x00, 0x01,
	// code
	0x0a, 0x11, 0x02,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x00, 0x7c, 0x0b,
	0x07, 0x00, 0x20, 0x00, 0x42, 0x02, 0x7f, 0x0b,
}

func loadScale(t *testing.T) (context.Context, *Module) {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := rt.Load(ctx, scaleWasm)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return ctx, mod
}

func TestMapper(t *testing.T) {
	ctx, mod := loadScale(t)

	m, err := mod.Mapper(ctx, "double", "half")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   any
		want int64
	}{
		{uint8(21), 42},
		{int16(-4), -8},
		{int64(1 << 40), 1 << 41},
	}
	for _, tc := range tests {
		got, err := m.Decode(tc.in)
		if err != nil {
			t.Fatalf("Decode(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Decode(%v) = %v, want %d", tc.in, got, tc.want)
		}
		back, err := m.Encode(got)
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := back.(int64); n*2 != tc.want {
			t.Errorf("Encode(%v) = %v", got, back)
		}
	}

	if _, err := m.Decode("x"); !errors.HasKind(err, errors.KindTypeMismatch) {
		t.Errorf("Decode(string) err = %v", err)
	}
}

func TestMapperWithoutEncode(t *testing.T) {
	ctx, mod := loadScale(t)
	m, err := mod.Mapper(ctx, "double", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Encode(uint8(3))
	if err != nil || got != uint8(3) {
		t.Errorf("Encode = %v, %v", got, err)
	}
}

func TestMissingExport(t *testing.T) {
	ctx, mod := loadScale(t)
	if _, err := mod.Mapper(ctx, "triple", ""); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if _, err := mod.Mapper(ctx, "double", "third"); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if n := len(mod.Exports()); n != 2 {
		t.Errorf("exports = %d, want 2", n)
	}
}

func TestLoadInvalid(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	if _, err := rt.Load(ctx, []byte("not wasm")); !errors.HasKind(err, errors.KindInvalidData) {
		t.Errorf("err = %v, want invalid data", err)
	}
}

func TestEngineField(t *testing.T) {
	ctx, mod := loadScale(t)
	m, err := mod.Mapper(ctx, "double", "half")
	if err != nil {
		t.Fatal(err)
	}
	reg := engine.NewRegistry()
	reg.RegisterMapper("scale", m)

	s := schema.New()
	err = s.AddRecord(&schema.RecordSpec{
		Name:   "R",
		Fields: []*schema.FieldSpec{{Name: "v", Type: schema.Prim(schema.KindU8), Map: "scale"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(s, engine.WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}

	rec, err := eng.ReadRecord(cursor.NewBuffer([]byte{50}), "R", value.Args{})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := rec.Get("v"); v != int64(100) {
		t.Errorf("v = %v (%T), want 100", v, v)
	}

	out := cursor.NewBuffer(nil)
	if err := eng.Write(out, "R", rec, value.Args{}); err != nil {
		t.Fatal(err)
	}
	if got := out.Bytes(); len(got) != 1 || got[0] != 50 {
		t.Errorf("written %x, want 32", got)
	}
}
