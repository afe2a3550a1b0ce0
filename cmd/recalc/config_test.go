package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/recalc"
)

func TestParseConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ParseConfig([]byte(`
max_rows: 10000
functions:
  DOUBLE: "Num(args[0]) * 2"
  TOTAL: "sum(values)"
`), cfg))

	assert.Equal(t, 10000, cfg.MaxRows)
	assert.Equal(t, "info", cfg.LogLevel, "unset keys keep their default")
	assert.Len(t, cfg.Functions, 2)

	t.Run("negative max_rows", func(t *testing.T) {
		err := ParseConfig([]byte("max_rows: -1"), DefaultConfig())
		assert.ErrorContains(t, err, "max_rows")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		err := ParseConfig([]byte("functions: [unclosed"), DefaultConfig())
		assert.ErrorContains(t, err, "parse config")
	})
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "recalc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestConfigRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Functions["DOUBLE"] = "Num(args[0]) * 2"
	cfg.Functions["SUM"] = "42"

	registry, err := cfg.Registry()
	require.NoError(t, err)

	value, err := registry.Call("DOUBLE", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, value)

	value, err = registry.Call("SUM", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, value, "configured functions shadow built-ins")

	value, err = recalc.CallFunction("SUM", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, value, "the default registry is untouched")

	cfg.Functions["BROKEN"] = "1 +"
	_, err = cfg.Registry()
	assert.ErrorContains(t, err, "function BROKEN")
}

func TestConfigLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "WARN"
	logger, err := cfg.Logger(&bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	cfg.LogLevel = "loud"
	_, err = cfg.Logger(&bytes.Buffer{})
	assert.ErrorContains(t, err, "log level")
}

func TestCalcFile(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", 21))
	require.NoError(t, f.SetCellFormula("Sheet1", "B1", "DOUBLE(A1)"))
	require.NoError(t, f.SetCellFormula("Sheet1", "B2", "1/0>1"))
	require.NoError(t, f.SetSheetDimension("Sheet1", "A1:B2"))
	path := filepath.Join(t.TempDir(), "model.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cfg := DefaultConfig()
	cfg.Functions["DOUBLE"] = "Num(args[0]) * 2"
	engine, err := cfg.Engine(zerolog.Nop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, calcFile(&out, engine, path))
	assert.Equal(t, "Sheet1!B1\tnumber\t42\nSheet1!B2\tboolean\tTRUE\n", out.String())

	outPath = filepath.Join(t.TempDir(), "values.xlsx")
	defer func() { outPath = "" }()
	out.Reset()
	require.NoError(t, calcFile(&out, engine, path))
	assert.Contains(t, out.String(), "saved 2 value(s)")
	_, err = os.Stat(outPath)
	assert.NoError(t, err)
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "#N/A", display(&recalc.Cell{Value: 42.0, Display: "#N/A"}))
	assert.Equal(t, "1.5", display(&recalc.Cell{Value: 1.5}))
	assert.Equal(t, "FALSE", display(&recalc.Cell{Value: false}))
	assert.Equal(t, "text", display(&recalc.Cell{Value: "text"}))
	assert.Equal(t, "", display(&recalc.Cell{}))
}

func TestRelevantEvents(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "model.xlsx")

	assert.True(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Write}, target))
	assert.True(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Create}, target))
	assert.True(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Rename}, target))
	assert.False(t, relevant(fsnotify.Event{Name: target, Op: fsnotify.Chmod}, target))
	assert.False(t, relevant(fsnotify.Event{Name: filepath.Join(dir, "other.xlsx"), Op: fsnotify.Write}, target))
}

func TestDepsCommand(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", 2))
	require.NoError(t, f.SetCellFormula("Sheet1", "B1", "A1*2"))
	require.NoError(t, f.SetCellFormula("Sheet1", "C1", "B1+A1"))
	require.NoError(t, f.SetSheetDimension("Sheet1", "A1:C1"))
	path := filepath.Join(t.TempDir(), "model.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	t.Cleanup(func() {
		quiet = false
		rootCmd.SetArgs(nil)
	})
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("deps", "-q", path)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!B1: Sheet1!A1\nSheet1!C1: Sheet1!A1, Sheet1!B1\n", out)

	out, err = run("deps", "-q", path, "Sheet1!A1")
	require.NoError(t, err)
	assert.Contains(t, out, "Sheet1!A1 is read by: Sheet1!B1, Sheet1!C1")

	_, err = run("deps", "-q", path, "Sheet1!Z9")
	assert.ErrorContains(t, err, "Sheet1!Z9 is not in the recorded dependencies")
}
