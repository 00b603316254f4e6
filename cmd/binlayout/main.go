// Command binlayout reads and writes binary data described by a schema.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binlayout/cursor"
	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/internal/config"
	"github.com/wippyai/binlayout/internal/render"
	"github.com/wippyai/binlayout/internal/source"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/value"
	"github.com/wippyai/binlayout/wasmmap"
)

// errReported marks a failure whose report was already written.
var errReported = stderrors.New("reported")

type command struct {
	run       func(*session) error
	name      string
	usage     string
	needsType bool
}

var commands = []command{
	{name: "read", usage: "read -s schema.yaml -t Type [-i input] [-f json|yaml|cbor|text] [--interactive]", needsType: true, run: (*session).read},
	{name: "write", usage: "write -s schema.yaml -t Type -v value.yaml [-o output]", needsType: true, run: (*session).write},
	{name: "check", usage: "check -s schema.yaml", run: (*session).check},
	{name: "sizeof", usage: "sizeof -s schema.yaml -t Type", needsType: true, run: (*session).sizeof},
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: binlayout <command> [flags]")
	for _, c := range commands {
		fmt.Fprintln(w, "       binlayout "+c.usage)
	}
	fmt.Fprintln(w, "Common flags: -c config.{yaml,toml}, -a name=value (repeatable), --endian, --policy, --compression")
}

type session struct {
	ctx    context.Context
	cfg    *config.Config
	log    *zap.Logger
	eng    *engine.Engine
	stdout io.Writer
	stderr io.Writer

	schemaPath  string
	typeName    string
	input       string
	output      string
	valuePath   string
	rawArgs     []string
	args        value.Args
	interactive bool
	color       bool
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(stderr)
		if len(argv) == 0 {
			return 1
		}
		return 0
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == argv[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", argv[0])
		usage(stderr)
		return 1
	}

	s, err := newSession(ctx, cmd, argv[1:], stdout, stderr)
	if err == pflag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer s.log.Sync() //nolint:errcheck

	rt, err := wasmmap.New(ctx, s.log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.Close(ctx)

	if err := s.open(rt); err != nil {
		if !stderrors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	if err := cmd.run(s); err != nil {
		if !stderrors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// configPath finds -c/--config ahead of full parsing so file values can
// serve as flag defaults.
func configPath(argv []string) string {
	for i, arg := range argv {
		switch {
		case arg == "--":
			return ""
		case arg == "-c" || arg == "--config":
			if i+1 < len(argv) {
				return argv[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-c") && len(arg) > 2:
			return strings.TrimPrefix(strings.TrimPrefix(arg, "-c"), "=")
		}
	}
	return ""
}

func newSession(ctx context.Context, cmd *command, argv []string, stdout, stderr io.Writer) (*session, error) {
	cfg := config.Default()
	if path := configPath(argv); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	s := &session{ctx: ctx, cfg: cfg, stdout: stdout, stderr: stderr}
	fs := pflag.NewFlagSet("binlayout "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: binlayout "+cmd.usage)
		fs.PrintDefaults()
	}
	fs.StringP("config", "c", "", "configuration file (YAML or TOML)")
	fs.StringVarP(&s.schemaPath, "schema", "s", "", "schema document (YAML, JSON or JSONC)")
	fs.StringVarP(&s.typeName, "type", "t", "", "top-level type name")
	fs.StringArrayVarP(&s.rawArgs, "arg", "a", nil, "argument for the top-level type as name=value")
	cfg.BindFlags(fs)
	switch cmd.name {
	case "read":
		fs.StringVarP(&s.input, "input", "i", "-", "input file, - for stdin")
		fs.BoolVar(&s.interactive, "interactive", false, "browse the decoded value in a TUI")
	case "write":
		fs.StringVarP(&s.valuePath, "value", "v", "-", "plain value document (YAML or JSON), - for stdin")
		fs.StringVarP(&s.output, "output", "o", "-", "output file, - for stdout")
	}

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if s.schemaPath == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	if cmd.needsType && s.typeName == "" && !s.interactive {
		return nil, fmt.Errorf("--type is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	args, err := parseArgs(s.rawArgs)
	if err != nil {
		return nil, err
	}
	s.args = args

	if s.log, err = cfg.Logger(); err != nil {
		return nil, err
	}
	if f, ok := stderr.(*os.File); ok {
		s.color = render.ColorEnabled(f)
	}
	return s, nil
}

// parseArgs decodes name=value pairs. Values are YAML scalars, so numbers
// and booleans arrive typed.
func parseArgs(raw []string) (value.Args, error) {
	var args value.Args
	for _, kv := range raw {
		name, text, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return args, fmt.Errorf("argument %q: want name=value", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return args, fmt.Errorf("argument %s: %w", name, err)
		}
		args.Set(name, v)
	}
	return args, nil
}

func (s *session) open(rt *wasmmap.Runtime) error {
	reg := engine.NewRegistry()
	if err := s.cfg.LoadPlugins(s.ctx, rt, reg); err != nil {
		return err
	}
	sch, err := schema.Load(s.schemaPath)
	if err != nil {
		return s.fail("load "+s.schemaPath, err, nil)
	}
	opts, err := s.cfg.EngineOptions(s.log, reg)
	if err != nil {
		return err
	}
	if s.eng, err = engine.New(sch, opts...); err != nil {
		return s.fail("load "+s.schemaPath, err, nil)
	}
	return nil
}

// fail writes a styled report for a codec error.
func (s *session) fail(op string, err error, in *source.Input) error {
	r := &render.Report{Err: err, Op: op, Color: s.color}
	if in != nil {
		r.Input, r.Digest = in.Name, in.DigestHex()
	}
	if _, werr := r.WriteTo(s.stderr); werr != nil {
		return err
	}
	return errReported
}

func (s *session) read() error {
	in, err := source.Read(s.input, s.cfg.CompressionMode())
	if err != nil {
		return err
	}
	s.log.Debug("input loaded",
		zap.String("input", in.Name),
		zap.Stringer("compression", in.Compression),
		zap.Int("bytes", len(in.Data)),
		zap.String("blake3", in.DigestHex()))

	if s.interactive {
		return runInteractive(s, in)
	}

	c := cursor.NewBuffer(in.Data)
	v, err := s.eng.Read(c, s.typeName, s.args)
	if err != nil {
		return s.fail("read "+s.typeName, err, in)
	}
	if rest := c.Len() - c.Position(); rest > 0 {
		s.log.Warn("trailing bytes after value",
			zap.Uint64("position", c.Position()),
			zap.Uint64("bytes", rest))
	}

	format, err := render.ParseFormat(s.cfg.Format)
	if err != nil {
		return err
	}
	return render.Write(s.stdout, format, v)
}

func (s *session) readValue() (any, error) {
	var (
		raw []byte
		err error
	)
	if s.valuePath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(s.valuePath)
	}
	if err != nil {
		return nil, fmt.Errorf("read value: %w", err)
	}
	if strings.EqualFold(filepath.Ext(s.valuePath), ".jsonc") {
		raw = jsonc.ToJSON(raw)
	}
	var plain any
	if err := yaml.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("decode value %s: %w", s.valuePath, err)
	}
	return plain, nil
}

func (s *session) write() error {
	plain, err := s.readValue()
	if err != nil {
		return err
	}
	v, err := s.eng.FromPlain(s.typeName, plain)
	if err != nil {
		return s.fail("convert "+s.valuePath, err, nil)
	}
	out := cursor.NewBuffer(nil)
	if err := s.eng.Write(out, s.typeName, v, s.args); err != nil {
		return s.fail("write "+s.typeName, err, nil)
	}
	s.log.Debug("value encoded", zap.String("type", s.typeName), zap.Int("bytes", len(out.Bytes())))
	return source.Write(s.output, out.Bytes(), s.cfg.CompressionMode())
}

func (s *session) check() error {
	sch := s.eng.Schema()
	t := table.New().Headers("TYPE", "KIND", "SIZE")
	for _, name := range sch.Names() {
		kind := "record"
		if u, ok := sch.Union(name); ok {
			kind = u.Kind.String() + " union"
		}
		size := "dynamic"
		if n, err := s.eng.SizeOf(name); err == nil {
			size = fmt.Sprintf("%d", n)
		} else if !errors.HasKind(err, errors.KindUnsupported) {
			return s.fail("size "+name, err, nil)
		}
		t.Row(name, kind, size)
	}
	_, err := fmt.Fprintln(s.stdout, t.Render())
	return err
}

func (s *session) sizeof() error {
	n, err := s.eng.SizeOf(s.typeName)
	if err != nil {
		return s.fail("size "+s.typeName, err, nil)
	}
	_, err = fmt.Fprintln(s.stdout, n)
	return err
}
