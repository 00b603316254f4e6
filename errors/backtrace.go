package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Location names the schema element a frame was produced for.
type Location struct {
	Record string
	Field  string
	File   string
	Line   int
}

func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.Record)
	if l.Field != "" {
		b.WriteByte('.')
		b.WriteString(l.Field)
	}
	if l.File != "" || l.Line > 0 {
		b.WriteString(" (")
		if l.File != "" {
			b.WriteString(l.File)
		}
		if l.Line > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(l.Line))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Frame is one entry of a backtrace: either a message with a location, or a
// user-supplied payload.
type Frame struct {
	Payload  any
	Message  string
	Location Location
}

// IsCustom reports whether the frame carries a user payload.
func (f Frame) IsCustom() bool {
	return f.Payload != nil
}

func (f Frame) String() string {
	if f.IsCustom() {
		return fmt.Sprint(f.Payload)
	}
	if f.Location.Record == "" {
		return f.Message
	}
	return f.Message + " at " + f.Location.String()
}

// Backtrace wraps an error with the frames it passed through, innermost first.
type Backtrace struct {
	Err    error
	Frames []Frame
}

func (b *Backtrace) Error() string {
	var sb strings.Builder
	if b.Err != nil {
		sb.WriteString(b.Err.Error())
	}
	for _, f := range b.Frames {
		sb.WriteString("\n ╰─ ")
		sb.WriteString(f.String())
	}
	return sb.String()
}

// Unwrap returns the wrapped error
func (b *Backtrace) Unwrap() error {
	return b.Err
}

// WithFrame attaches a frame to err. An error that is already a Backtrace
// gets the frame appended to its list instead of a second wrapper.
func WithFrame(err error, f Frame) error {
	if err == nil {
		return nil
	}
	if bt, ok := err.(*Backtrace); ok {
		bt.Frames = append(bt.Frames, f)
		return bt
	}
	return &Backtrace{Err: err, Frames: []Frame{f}}
}

// FramesOf returns the frames of the first Backtrace in err's chain.
func FramesOf(err error) []Frame {
	var bt *Backtrace
	if errors.As(err, &bt) {
		return bt.Frames
	}
	return nil
}

// Root strips a Backtrace wrapper, returning the error it carries.
func Root(err error) error {
	if bt, ok := err.(*Backtrace); ok {
		return bt.Err
	}
	return err
}
