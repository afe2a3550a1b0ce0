package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vogtb/go-spreadsheet/packages/recalc"
)

// Config is the optional YAML configuration of the CLI. flags given on
// the command line win over the file.
//
//	max_rows: 10000
//	log_level: debug
//	functions:
//	  DOUBLE: "Num(args[0]) * 2"
//	  TOTAL: "sum(values)"
type Config struct {
	MaxRows   int               `yaml:"max_rows"`
	LogLevel  string            `yaml:"log_level"`
	Functions map[string]string `yaml:"functions"`
}

// DefaultConfig returns the configuration used without a config file
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Functions: map[string]string{},
	}
}

// LoadConfig reads a YAML config file. an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML into cfg, keeping the values the document
// does not set
func ParseConfig(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxRows < 0 {
		return fmt.Errorf("parse config: max_rows must not be negative, got %d", cfg.MaxRows)
	}
	return nil
}

// Registry returns the built-in functions plus the configured expression
// functions. a configured name shadows a built-in of the same name.
func (c *Config) Registry() (*recalc.FunctionRegistry, error) {
	registry := recalc.DefaultRegistry.Clone()

	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		fn, err := recalc.CompileExprFunction(c.Functions[name])
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		if err := registry.Register(name, fn); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Logger builds a human readable logger at the configured level
func (c *Config) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// Engine builds the recomputation engine the commands share
func (c *Config) Engine(logger zerolog.Logger) (*recalc.Engine, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	return recalc.NewEngine(
		recalc.WithRegistry(registry),
		recalc.WithMaxRows(c.MaxRows),
		recalc.WithLogger(logger),
	), nil
}
