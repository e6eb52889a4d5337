package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, RegisterFlags(cmd))
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := newCommand(t, "--raw-dir", "/data/raw", "--output-dir", "/data/out", "--dictionary", "bad.txt")

	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/data/raw", cfg.RawDir)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, filepath.Join("/data/out", "state"), cfg.StateDir)
	assert.Equal(t, 30*24*time.Hour, cfg.SubjectWindow)
	assert.Equal(t, SinkJSONL, cfg.Sink)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Positive(t, cfg.Workers)
	assert.NotEmpty(t, cfg.TmpDir)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing raw dir", args: []string{"--output-dir", "o", "--dictionary", "d"}},
		{name: "missing output dir", args: []string{"--raw-dir", "r", "--dictionary", "d"}},
		{name: "missing dictionary", args: []string{"--raw-dir", "r", "--output-dir", "o"}},
		{name: "bad sink", args: []string{"--raw-dir", "r", "--output-dir", "o", "--dictionary", "d", "--sink", "parquet"}},
		{name: "bad workers", args: []string{"--raw-dir", "r", "--output-dir", "o", "--dictionary", "d", "--workers", "0"}},
		{name: "bad level", args: []string{"--raw-dir", "r", "--output-dir", "o", "--dictionary", "d", "--log-level", "trace"}},
		{name: "negative window", args: []string{"--raw-dir", "r", "--output-dir", "o", "--dictionary", "d", "--subject-window", "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(newCommand(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_WarningAlias(t *testing.T) {
	cmd := newCommand(t, "--raw-dir", "r", "--output-dir", "o", "--dictionary", "d", "--log-level", "WARNING")
	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curator.toml")
	content := `
raw_dir = "/archive/raw"
output_dir = "/archive/out"
dictionary = "/archive/bad_strings.txt"
subject_window = "168h"
workers = 3
sink = "sqlite"
html_fallback = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cmd := newCommand(t, "--config", path, "--workers", "8")
	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/archive/raw", cfg.RawDir)
	assert.Equal(t, 7*24*time.Hour, cfg.SubjectWindow)
	assert.Equal(t, 8, cfg.Workers, "command line wins over the file")
	assert.Equal(t, SinkSQLite, cfg.Sink)
	assert.True(t, cfg.HTMLFallback)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curator.yaml")
	content := "raw_dir: /archive/raw\noutput_dir: /archive/out\ndictionary: bad.txt\nresume: true\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(newCommand(t, "--config", path))
	require.NoError(t, err)
	assert.True(t, cfg.Resume)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "bad.txt", cfg.Dictionary)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte(`unknown_key = "x"`), 0o644))
	_, err = LoadFile(unknown)
	assert.Error(t, err)

	ini := filepath.Join(dir, "curator.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.Error(t, err)
}
