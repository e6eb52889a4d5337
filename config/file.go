package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// File mirrors the command-line flags for use in a TOML or YAML file.
// Absent keys stay nil and leave the flag default untouched.
type File struct {
	RawDir        *string `toml:"raw_dir" yaml:"raw_dir"`
	OutputDir     *string `toml:"output_dir" yaml:"output_dir"`
	TmpDir        *string `toml:"tmp_dir" yaml:"tmp_dir"`
	Dictionary    *string `toml:"dictionary" yaml:"dictionary"`
	SubjectWindow *string `toml:"subject_window" yaml:"subject_window"`
	Workers       *int    `toml:"workers" yaml:"workers"`
	Sink          *string `toml:"sink" yaml:"sink"`
	HTMLFallback  *bool   `toml:"html_fallback" yaml:"html_fallback"`
	StateDir      *string `toml:"state_dir" yaml:"state_dir"`
	Resume        *bool   `toml:"resume" yaml:"resume"`
	MetricsFile   *string `toml:"metrics_file" yaml:"metrics_file"`
	LogLevel      *string `toml:"log_level" yaml:"log_level"`
	LogDir        *string `toml:"log_dir" yaml:"log_dir"`
	NoProgress    *bool   `toml:"no_progress" yaml:"no_progress"`
}

// LoadFile decodes a config file; the format is chosen by extension.
func LoadFile(path string) (File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(content), &file)
		if err != nil {
			return File{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return File{}, fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &file); err != nil {
			return File{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	default:
		return File{}, fmt.Errorf("unsupported config file extension: %s", path)
	}
	return file, nil
}

func (f File) values() map[string]string {
	values := make(map[string]string)
	setString := func(name string, v *string) {
		if v != nil {
			values[name] = *v
		}
	}
	setBool := func(name string, v *bool) {
		if v != nil {
			values[name] = strconv.FormatBool(*v)
		}
	}

	setString("raw-dir", f.RawDir)
	setString("output-dir", f.OutputDir)
	setString("tmp-dir", f.TmpDir)
	setString("dictionary", f.Dictionary)
	setString("subject-window", f.SubjectWindow)
	if f.Workers != nil {
		values["workers"] = strconv.Itoa(*f.Workers)
	}
	setString("sink", f.Sink)
	setBool("html-fallback", f.HTMLFallback)
	setString("state-dir", f.StateDir)
	setBool("resume", f.Resume)
	setString("metrics-file", f.MetricsFile)
	setString("log-level", f.LogLevel)
	setString("log-dir", f.LogDir)
	setBool("no-progress", f.NoProgress)
	return values
}

// apply copies file values into every flag not set on the command line.
func (f File) apply(cmd *cobra.Command) error {
	flags := cmd.Flags()
	for name, value := range f.values() {
		if flags.Changed(name) {
			continue
		}
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("config file value for %s: %w", name, err)
		}
	}
	return nil
}
