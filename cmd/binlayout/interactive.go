package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/internal/render"
	"github.com/wippyai/binlayout/internal/source"
	"github.com/wippyai/binlayout/schema"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	paramStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	s        *session
	in       *source.Input
	types    []typeInfo
	inputs   []textinput.Model
	view     viewport.Model
	selected int
	focusIdx int
	state    modelState
	failed   bool
	width    int
	height   int
}

type typeInfo struct {
	name   string
	kind   string
	params []schema.Param
}

type modelState int

const (
	stateSelectType modelState = iota
	stateInputArgs
	stateShowResult
)

type decodedMsg struct {
	body   string
	failed bool
}

func newInteractiveModel(s *session, in *source.Input) *interactiveModel {
	sch := s.eng.Schema()
	m := &interactiveModel{s: s, in: in, state: stateSelectType, view: viewport.New(80, 20)}
	for _, name := range sch.Names() {
		ti := typeInfo{name: name, kind: "record", params: sch.Params(schema.Named(name))}
		if u, ok := sch.Union(name); ok {
			ti.kind = u.Kind.String() + " union"
		}
		if name == s.typeName {
			m.selected = len(m.types)
		}
		m.types = append(m.types, ti)
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-6, 3)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectType && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectType && m.selected < len(m.types)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectType:
				if len(m.types) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.decode
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.decode

			case stateShowResult:
				m.state = stateSelectType
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectType
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectType
			}
		}

	case decodedMsg:
		m.failed = msg.failed
		m.view.SetContent(msg.body)
		m.view.GotoTop()
		m.state = stateShowResult
		return m, nil
	}

	switch m.state {
	case stateInputArgs:
		cmds := make([]tea.Cmd, 0, len(m.inputs))
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case stateShowResult:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	t := m.types[m.selected]
	m.inputs = make([]textinput.Model, len(t.params))
	for i, p := range t.params {
		ti := textinput.New()
		ti.Prompt = p.Name + ": "
		ti.Placeholder = "optional"
		if p.Required {
			ti.Placeholder = "required"
		}
		if v, ok := m.s.args.Get(p.Name); ok {
			ti.SetValue(fmt.Sprint(v))
		}
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// decode reads the selected type from the start of the input.
func (m *interactiveModel) decode() tea.Msg {
	t := m.types[m.selected]
	args := m.s.args.Clone()
	for i, input := range m.inputs {
		text := strings.TrimSpace(input.Value())
		if text == "" {
			continue
		}
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return decodedMsg{body: fmt.Sprintf("argument %s: %v", t.params[i].Name, err), failed: true}
		}
		args.Set(t.params[i].Name, v)
	}

	c := cursor.NewBuffer(m.in.Data)
	v, err := m.s.eng.Read(c, t.name, args)

	var buf bytes.Buffer
	if err != nil {
		m.s.log.Debug("interactive read failed", zap.String("type", t.name), zap.Error(err))
		r := &render.Report{Err: err, Op: "read " + t.name, Input: m.in.Name, Digest: m.in.DigestHex()}
		r.WriteTo(&buf) //nolint:errcheck
		return decodedMsg{body: buf.String(), failed: true}
	}
	if werr := render.Write(&buf, render.Text, v); werr != nil {
		return decodedMsg{body: werr.Error(), failed: true}
	}
	fmt.Fprintf(&buf, "\n%d of %d bytes consumed\n", c.Position(), len(m.in.Data))
	return decodedMsg{body: buf.String()}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("binlayout"))
	b.WriteString(" ")
	b.WriteString(m.in.Name)
	fmt.Fprintf(&b, " (%d bytes, %s)\n\n", len(m.in.Data), m.in.Compression)

	switch m.state {
	case stateSelectType:
		if len(m.types) == 0 {
			b.WriteString(errorStyle.Render("Schema declares no types.\n\nPress q to quit."))
			return b.String()
		}
		b.WriteString("Select a type to decode:\n\n")
		for i, t := range m.types {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatType(t)))
			} else {
				b.WriteString("  " + m.formatType(t))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter decode • q quit"))

	case stateInputArgs:
		t := m.types[m.selected]
		fmt.Fprintf(&b, "Arguments for %s\n\n", typeStyle.Render(t.name))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter decode • esc back"))

	case stateShowResult:
		t := m.types[m.selected]
		if m.failed {
			fmt.Fprintf(&b, "%s %s\n\n", errorStyle.Render("Failed to decode"), typeStyle.Render(t.name))
		} else {
			fmt.Fprintf(&b, "Decoded %s\n\n", typeStyle.Render(t.name))
		}
		b.WriteString(m.view.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • enter back • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatType(t typeInfo) string {
	var params []string
	for _, p := range t.params {
		name := p.Name
		if !p.Required {
			name += "?"
		}
		params = append(params, paramStyle.Render(name))
	}
	sig := typeStyle.Render(t.name)
	if len(params) > 0 {
		sig += "(" + strings.Join(params, ", ") + ")"
	}
	return sig + " " + helpStyle.Render(t.kind)
}

func runInteractive(s *session, in *source.Input) error {
	p := tea.NewProgram(newInteractiveModel(s, in), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
