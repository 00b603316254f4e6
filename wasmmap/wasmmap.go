package wasmmap

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/errors"
	"github.com/wippyai/binlayout/internal/abi"
)

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages caps each plugin's memory in 64KB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32
}

// Runtime compiles and instantiates mapper plugins.
type Runtime struct {
	runtime wazero.Runtime
	log     *zap.Logger
	mu      sync.Mutex
	seq     int
}

// New creates a runtime with default configuration.
func New(ctx context.Context, log *zap.Logger) (*Runtime, error) {
	return NewWithConfig(ctx, log, nil)
}

// NewWithConfig creates a runtime with custom configuration.
func NewWithConfig(ctx context.Context, log *zap.Logger, cfg *Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     log,
	}, nil
}

// Close releases every module loaded by the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Load compiles and instantiates a core wasm module. Plugins take no
// imports; their exports are plain numeric functions.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile plugin")
	}

	r.mu.Lock()
	r.seq++
	name := fmt.Sprintf("plugin-%d", r.seq)
	r.mu.Unlock()

	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "instantiate plugin")
	}
	r.log.Debug("plugin loaded", zap.String("module", name), zap.Int("bytes", len(wasm)))
	return &Module{mod: mod, log: r.log}, nil
}

// Module is an instantiated plugin.
type Module struct {
	mod api.Module
	log *zap.Logger
	// wasm calls into one instance are serialized
	mu sync.Mutex
}

// Close releases the module instance.
func (m *Module) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

// Exports lists the module's exported function names.
func (m *Module) Exports() []string {
	defs := m.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// Mapper binds two exports as an engine.Mapper. Each export must take one
// numeric parameter and return one numeric result. An empty encode name
// writes values unchanged.
func (m *Module) Mapper(ctx context.Context, decode, encode string) (engine.Mapper, error) {
	dec, err := m.function(decode)
	if err != nil {
		return nil, err
	}
	wm := &mapper{mod: m, ctx: ctx, decode: dec}
	if encode != "" {
		if wm.encode, err = m.function(encode); err != nil {
			return nil, err
		}
	}
	return wm, nil
}

func (m *Module) function(name string) (*function, error) {
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "plugin export", name)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || len(results) != 1 {
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Type(name).
			Detail("export must take one value and return one, has %d params and %d results", len(params), len(results)).
			Build()
	}
	return &function{name: name, fn: fn, param: params[0], result: results[0]}, nil
}

type function struct {
	fn     api.Function
	name   string
	param  api.ValueType
	result api.ValueType
}

type mapper struct {
	ctx    context.Context
	mod    *Module
	decode *function
	encode *function
}

func (w *mapper) Decode(v any) (any, error) {
	return w.mod.call(w.ctx, w.decode, v)
}

func (w *mapper) Encode(v any) (any, error) {
	if w.encode == nil {
		return v, nil
	}
	return w.mod.call(w.ctx, w.encode, v)
}

func (m *Module) call(ctx context.Context, f *function, v any) (any, error) {
	arg, err := encodeParam(f.param, v)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	res, err := f.fn.Call(ctx, arg)
	m.mu.Unlock()
	if err != nil {
		m.log.Debug("plugin call failed", zap.String("export", f.name), zap.Error(err))
		return nil, fmt.Errorf("call %s: %w", f.name, err)
	}
	return decodeResult(f.result, res[0]), nil
}

func encodeParam(t api.ValueType, v any) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		n, ok := abi.CoerceToInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxUint32 {
			return 0, errors.TypeMismatch(errors.PhaseRead, nil, "i32", v)
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, ok := abi.CoerceToInt64(v)
		if !ok {
			u, uok := abi.CoerceToUint64(v)
			if !uok {
				return 0, errors.TypeMismatch(errors.PhaseRead, nil, "i64", v)
			}
			n = int64(u)
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, ok := abi.CoerceToFloat64(v)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseRead, nil, "f32", v)
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, ok := abi.CoerceToFloat64(v)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseRead, nil, "f64", v)
		}
		return api.EncodeF64(f), nil
	default:
		return 0, errors.Unsupported(errors.PhaseRead, "plugin value type "+api.ValueTypeName(t))
	}
}

func decodeResult(t api.ValueType, raw uint64) any {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(raw))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	default:
		return int64(raw)
	}
}
