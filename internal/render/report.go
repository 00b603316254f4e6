package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/binlayout/errors"
)

var (
	headStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C0392B")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	variantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F5B041"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// ColorEnabled reports whether f is a terminal that should get colors.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Report describes a failed operation.
type Report struct {
	Err error
	// Op is the failed operation, such as "read File".
	Op string
	// Input and Digest identify the data, when known.
	Input  string
	Digest string
	Color  bool
}

func (r *Report) paint(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

// WriteTo renders the error, its backtrace and any variant failures.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	b.WriteString(r.paint(headStyle, "error"))
	if r.Op != "" {
		b.WriteString(" " + r.Op)
	}
	b.WriteByte('\n')

	root := errors.Root(r.Err)
	b.WriteString("  " + r.paint(errorStyle, firstLine(root)) + "\n")

	r.frames(&b, errors.FramesOf(r.Err), "  ")

	if e, ok := errors.As(root); ok && len(e.Variants) > 0 {
		b.WriteString("  variants tried:\n")
		for _, v := range e.Variants {
			b.WriteString("    " + r.paint(variantStyle, v.Name) + ": ")
			b.WriteString(firstLine(errors.Root(v.Err)) + "\n")
			r.frames(&b, errors.FramesOf(v.Err), "      ")
		}
	}

	if r.Input != "" {
		in := "  input " + r.Input
		if r.Digest != "" {
			in += " blake3:" + r.Digest
		}
		b.WriteString(r.paint(dimStyle, in) + "\n")
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (r *Report) frames(b *strings.Builder, frames []errors.Frame, indent string) {
	for i, f := range frames {
		fmt.Fprintf(b, "%s%s %s\n", indent, r.paint(dimStyle, fmt.Sprintf("%d.", i+1)), r.paint(frameStyle, f.String()))
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
