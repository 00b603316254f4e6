package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/expr"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
)

func sample() *value.Record {
	inner := value.NewRecord("Shape::Circle")
	inner.Set("r", uint8(9))

	rec := value.NewRecord("Doc")
	rec.Set("zeta", uint16(258))
	rec.Set("alpha", []byte{0xca, 0xfe})
	rec.Set("shape", &value.Variant{Union: "Shape", Name: "Circle", Discriminant: 1, Value: inner})
	rec.Set("color", &value.Variant{Union: "Shape", Name: "None"})
	rec.Set("ptr", value.Resolved(12, uint8(5)))
	rec.Set("list", []any{int8(-1), int8(2)})
	rec.Set("name", "abc")
	return rec
}

func TestPlain(t *testing.T) {
	m, ok := Plain(sample()).(Map)
	if !ok {
		t.Fatalf("Plain returned %T", Plain(sample()))
	}
	var keys []string
	for _, e := range m {
		keys = append(keys, e.Key)
	}
	if got := strings.Join(keys, ","); got != "zeta,alpha,shape,color,ptr,list,name" {
		t.Errorf("key order = %s", got)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"alpha", `"0xcafe"`},
		{"shape", `{"$variant":"Circle","r":9}`},
		{"color", `"None"`},
		{"ptr", `{"$offset":12,"$value":5}`},
		{"list", `[-1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, _ := m.Get(tt.key)
			b, err := json.Marshal(v)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
		})
	}

	unresolved, _ := Plain(value.NewPointer(4)).(Map)
	if _, ok := unresolved.Get(engine.PlainValue); ok {
		t.Error("unresolved pointer rendered a value")
	}
}

func TestPlainFeedsFromPlain(t *testing.T) {
	s := schema.New()
	err := s.AddRecord(&schema.RecordSpec{
		Name:   "R",
		Endian: schema.EndianLittle,
		Fields: []*schema.FieldSpec{
			{Name: "n", Type: schema.Prim(schema.KindU16)},
			{Name: "b", Type: schema.Prim(schema.KindBytes), Count: expr.Const(2)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := value.NewRecord("R")
	rec.Set("n", uint16(7))
	rec.Set("b", []byte{1, 2})

	var buf bytes.Buffer
	if err := Write(&buf, JSON, rec); err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(s)
	if err != nil {
		t.Fatal(err)
	}
	back, err := eng.FromPlain("R", decoded)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := back.(*value.Record).Get("b"); !bytes.Equal(got.([]byte), []byte{1, 2}) {
		t.Errorf("b = %v", got)
	}
}

func TestWriteFormats(t *testing.T) {
	rec := sample()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, JSON, rec); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "{\n  \"zeta\": 258,") {
			t.Errorf("json = %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, YAML, rec); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "zeta: 258\nalpha: \"0xcafe\"\n") && !strings.HasPrefix(out, "zeta: 258\nalpha: 0xcafe\n") {
			t.Errorf("yaml = %s", out)
		}
		var back map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatal(err)
		}
		if back["color"] != "None" {
			t.Errorf("color = %v", back["color"])
		}
	})

	t.Run("cbor", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, CBOR, rec); err != nil {
			t.Fatal(err)
		}
		var back map[string]any
		if err := cbor.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatal(err)
		}
		if b, ok := back["alpha"].([]byte); !ok || !bytes.Equal(b, []byte{0xca, 0xfe}) {
			t.Errorf("alpha = %#v", back["alpha"])
		}
		var again bytes.Buffer
		if err := Write(&again, CBOR, rec); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf.Bytes(), again.Bytes()) {
			t.Error("cbor output is not deterministic")
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, Text, rec); err != nil {
			t.Fatal(err)
		}
		want := []string{
			"Doc",
			"  zeta: 258",
			"  alpha: [2 bytes] cafe",
			"  shape: Shape::Circle",
			"    r: 9",
			"  color: Shape::None",
			"  ptr: -> 0xc",
			"    5",
			"  list: [2]",
			"    [0]: -1",
			"  name: \"abc\"",
		}
		for _, line := range want {
			if !strings.Contains(buf.String(), line+"\n") {
				t.Errorf("missing line %q in\n%s", line, buf.String())
			}
		}
	})
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"json", "yaml", "cbor", "text"} {
		if _, err := ParseFormat(name); err != nil {
			t.Errorf("ParseFormat(%q): %v", name, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
	if !CBOR.Binary() || JSON.Binary() {
		t.Error("Binary mismatch")
	}
}

func TestReport(t *testing.T) {
	s := schema.New()
	err := s.AddRecord(&schema.RecordSpec{
		Name:   "Header",
		Magic:  schema.MagicBytes([]byte("HD")),
		Fields: []*schema.FieldSpec{{Name: "v", Type: schema.Prim(schema.KindU8)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(s)
	if err != nil {
		t.Fatal(err)
	}
	_, readErr := eng.Read(cursor.NewBuffer([]byte("XX\x01")), "Header", value.Args{})
	if !errors.HasKind(readErr, errors.KindMagicMismatch) {
		t.Fatalf("err = %v", readErr)
	}

	var buf bytes.Buffer
	r := &Report{Err: readErr, Op: "read Header", Input: "in.bin", Digest: "abcd"}
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"error read Header", "magic_mismatch", "1. ", "input in.bin blake3:abcd"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colors emitted with Color false")
	}
}

func TestReportVariants(t *testing.T) {
	err := errors.AllVariantsFailed(0, []errors.VariantError{
		{Name: "A", Err: errors.WithFrame(errors.AssertionFailed(errors.PhaseRead, 0, "kind == 0"),
			errors.Frame{Message: "While reading field", Location: errors.Location{Record: "A", Field: "kind"}})},
		{Name: "B", Err: errors.IO(errors.PhaseRead, 1, nil)},
	})
	var buf bytes.Buffer
	r := &Report{Err: err}
	if _, werr := r.WriteTo(&buf); werr != nil {
		t.Fatal(werr)
	}
	out := buf.String()
	if !strings.Contains(out, "variants tried:") || !strings.Contains(out, "    A: ") || !strings.Contains(out, "      1. While reading field at A.kind") {
		t.Errorf("report:\n%s", out)
	}
	if strings.Index(out, "    A: ") > strings.Index(out, "    B: ") {
		t.Error("variants out of order")
	}
}
