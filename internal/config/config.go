// Package config loads binlayout CLI configuration.
//
// Configuration comes from a single optional file, YAML or TOML by
// extension, with command-line flags applied on top. Plugin paths are
// resolved relative to the file.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binlayout/engine"
	"github.com/wippyai/binlayout/internal/source"
	"github.com/wippyai/binlayout/schema"
	"github.com/wippyai/binlayout/wasmmap"
)

// Config is the CLI configuration.
type Config struct {
	// Endian is the default byte order for types that set none.
	Endian string `yaml:"endian" toml:"endian"`

	// Policy overrides every union's all-variants-failed policy when set.
	Policy string `yaml:"policy" toml:"policy"`

	// Format selects the read output: json, yaml, cbor or text.
	Format string `yaml:"format" toml:"format"`

	// Compression applies to inputs (auto detects) and outputs.
	Compression string `yaml:"compression" toml:"compression"`

	// MaxCount bounds array, bytes and string lengths. 0 keeps the engine
	// default limit.
	MaxCount uint64 `yaml:"max_count" toml:"max_count"`

	Log     LogConfig `yaml:"log" toml:"log"`
	Plugins []Plugin  `yaml:"plugins" toml:"plugins"`

	dir string
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Encoding is console or json.
	Encoding string `yaml:"encoding" toml:"encoding"`
}

// Plugin is a wasm module providing mappers.
type Plugin struct {
	File string      `yaml:"file" toml:"file"`
	Maps []PluginMap `yaml:"maps" toml:"maps"`
}

// PluginMap registers a mapper under Name backed by the module's exports.
type PluginMap struct {
	Name   string `yaml:"name" toml:"name"`
	Decode string `yaml:"decode" toml:"decode"`
	Encode string `yaml:"encode" toml:"encode"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Format:      "json",
		Compression: "auto",
		Log: LogConfig{
			Level:    "warn",
			Encoding: "console",
		},
	}
}

// LoadFile reads path over the defaults. Files ending in .toml are TOML;
// everything else is YAML.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// BindFlags registers command-line overrides for the scalar settings.
// Flags write straight into c, so parse after loading the file.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Endian, "endian", c.Endian, "default byte order (big, little, native)")
	fs.StringVar(&c.Policy, "policy", c.Policy, "union failure policy override (aggregate, discard)")
	fs.StringVarP(&c.Format, "format", "f", c.Format, "output format (json, yaml, cbor, text)")
	fs.StringVar(&c.Compression, "compression", c.Compression, "compression (auto, none, zstd, lz4)")
	fs.Uint64Var(&c.MaxCount, "max-count", c.MaxCount, "maximum element count, 0 for the engine default")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level")
}

// Validate checks every enumerated setting.
func (c *Config) Validate() error {
	if _, err := schema.ParseEndian(c.Endian); err != nil {
		return fmt.Errorf("endian: %w", err)
	}
	if c.Policy != "" {
		if _, err := schema.ParsePolicy(c.Policy); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	switch c.Format {
	case "json", "yaml", "cbor", "text":
	default:
		return fmt.Errorf("format: unknown format %q", c.Format)
	}
	if _, err := source.ParseCompression(c.Compression); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("log.encoding: unknown encoding %q", c.Log.Encoding)
	}
	for i, p := range c.Plugins {
		if p.File == "" {
			return fmt.Errorf("plugins[%d]: file is required", i)
		}
		for j, m := range p.Maps {
			if m.Name == "" || m.Decode == "" {
				return fmt.Errorf("plugins[%d].maps[%d]: name and decode are required", i, j)
			}
		}
	}
	return nil
}

// CompressionMode returns the parsed compression setting.
func (c *Config) CompressionMode() source.Compression {
	mode, _ := source.ParseCompression(c.Compression)
	return mode
}

// Logger builds the zap logger. Logs go to stderr so they never mix with
// rendered output.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.Encoding = c.Log.Encoding
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}

// EngineOptions converts the settings into engine options.
func (c *Config) EngineOptions(log *zap.Logger, reg *engine.Registry) ([]engine.Option, error) {
	endian, err := schema.ParseEndian(c.Endian)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithEndian(endian),
		engine.WithLogger(log),
		engine.WithRegistry(reg),
	}
	if c.Policy != "" {
		p, err := schema.ParsePolicy(c.Policy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithErrorPolicy(p))
	}
	if c.MaxCount > 0 {
		opts = append(opts, engine.WithMaxCount(c.MaxCount))
	}
	return opts, nil
}

// LoadPlugins instantiates every plugin in rt and registers its mappers.
func (c *Config) LoadPlugins(ctx context.Context, rt *wasmmap.Runtime, reg *engine.Registry) error {
	for _, p := range c.Plugins {
		path := p.File
		if !filepath.IsAbs(path) && c.dir != "" {
			path = filepath.Join(c.dir, path)
		}
		wasm, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("plugin: %w", err)
		}
		mod, err := rt.Load(ctx, wasm)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.File, err)
		}
		for _, m := range p.Maps {
			mapper, err := mod.Mapper(ctx, m.Decode, m.Encode)
			if err != nil {
				return fmt.Errorf("plugin %s map %s: %w", p.File, m.Name, err)
			}
			reg.RegisterMapper(m.Name, mapper)
		}
	}
	return nil
}
