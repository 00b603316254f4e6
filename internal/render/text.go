package render

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/binlayout/value"
)

const textIndent = "  "

type textWriter struct {
	w   *bufio.Writer
	err error
}

func (t *textWriter) line(depth int, format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, "%s%s\n", strings.Repeat(textIndent, depth), fmt.Sprintf(format, args...))
}

// writeText renders v as an indented tree, one value per line.
func writeText(w io.Writer, v any) error {
	t := &textWriter{w: bufio.NewWriter(w)}
	t.value(0, "", v)
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

func (t *textWriter) value(depth int, label string, v any) {
	prefix := label
	if prefix != "" {
		prefix += ": "
	}
	switch x := v.(type) {
	case *value.Record:
		t.line(depth, "%s%s", prefix, x.Type)
		t.fields(depth+1, x.Fields)
	case *value.Variant:
		name := x.Name
		if x.Union != "" {
			name = x.Union + "::" + x.Name
		}
		t.line(depth, "%s%s", prefix, name)
		if x.Value != nil {
			t.fields(depth+1, x.Value.Fields)
		}
	case *value.Pointer:
		target, err := x.Value()
		if err != nil {
			t.line(depth, "%s-> %#x (unresolved)", prefix, x.Offset)
			return
		}
		t.line(depth, "%s-> %#x", prefix, x.Base+x.Offset)
		t.value(depth+1, "", target)
	case []byte:
		t.line(depth, "%s[%d bytes] %s", prefix, len(x), hexPreview(x))
	case []any:
		t.line(depth, "%s[%d]", prefix, len(x))
		for i, e := range x {
			t.value(depth+1, fmt.Sprintf("[%d]", i), e)
		}
	case string:
		t.line(depth, "%s%q", prefix, x)
	case nil:
		t.line(depth, "%s()", prefix)
	default:
		t.line(depth, "%s%v", prefix, x)
	}
}

func (t *textWriter) fields(depth int, fields []value.Field) {
	for _, f := range fields {
		t.value(depth, f.Name, f.Value)
	}
}

func hexPreview(b []byte) string {
	const limit = 32
	if len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:limit]) + "..."
}
