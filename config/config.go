package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-curator/thread"
)

const (
	SinkJSONL  = "jsonl"
	SinkSQLite = "sqlite"
)

// Config captures all options required to curate a raw archive directory.
type Config struct {
	RawDir        string
	OutputDir     string
	TmpDir        string
	Dictionary    string
	SubjectWindow time.Duration
	Workers       int
	Sink          string
	HTMLFallback  bool
	StateDir      string
	Resume        bool
	MetricsFile   string
	LogLevel      string
	LogDir        string
	NoProgress    bool
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("config", "", "Optional TOML or YAML file with default option values")
	flags.String("raw-dir", "", "Directory with one sub-directory of .mbox.gz files per group")
	flags.String("output-dir", "", "Directory for exported threads and the run report")
	flags.String("tmp-dir", "", "Parent directory for per-worker scratch space (defaults to the system temp dir)")
	flags.String("dictionary", "", "Newline-delimited list of disallowed substrings")
	flags.Duration("subject-window", thread.DefaultSubjectWindow, "Largest gap for grouping replies by subject alone (0 disables)")
	flags.Int("workers", runtime.NumCPU(), "Number of archive files processed concurrently")
	flags.String("sink", SinkJSONL, "Output format: jsonl or sqlite")
	flags.Bool("html-fallback", false, "Convert text/html parts when a message has no text/plain part")
	flags.String("state-dir", "", "Directory for the resume state file (defaults to <output-dir>/state)")
	flags.Bool("resume", false, "Skip archive files completed by a previous run and append to existing output")
	flags.String("metrics-file", "", "Write Prometheus metrics in text format to this file when the run ends")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.Bool("no-progress", false, "Disable the progress bar")
	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
// Values from --config fill every flag that was not set explicitly.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if configPath != "" {
		file, err := LoadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		if err := file.apply(cmd); err != nil {
			return Config{}, err
		}
	}

	rawDir, err := flags.GetString("raw-dir")
	if err != nil {
		return Config{}, err
	}
	outputDir, err := flags.GetString("output-dir")
	if err != nil {
		return Config{}, err
	}
	tmpDir, err := flags.GetString("tmp-dir")
	if err != nil {
		return Config{}, err
	}
	dictionary, err := flags.GetString("dictionary")
	if err != nil {
		return Config{}, err
	}
	subjectWindow, err := flags.GetDuration("subject-window")
	if err != nil {
		return Config{}, err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return Config{}, err
	}
	sink, err := flags.GetString("sink")
	if err != nil {
		return Config{}, err
	}
	htmlFallback, err := flags.GetBool("html-fallback")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	resume, err := flags.GetBool("resume")
	if err != nil {
		return Config{}, err
	}
	metricsFile, err := flags.GetString("metrics-file")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	noProgress, err := flags.GetBool("no-progress")
	if err != nil {
		return Config{}, err
	}

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if stateDir == "" && outputDir != "" {
		stateDir = filepath.Join(outputDir, "state")
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		RawDir:        filepath.Clean(rawDir),
		OutputDir:     filepath.Clean(outputDir),
		TmpDir:        filepath.Clean(tmpDir),
		Dictionary:    dictionary,
		SubjectWindow: subjectWindow,
		Workers:       workers,
		Sink:          strings.ToLower(sink),
		HTMLFallback:  htmlFallback,
		StateDir:      filepath.Clean(stateDir),
		Resume:        resume,
		MetricsFile:   metricsFile,
		LogLevel:      logLevel,
		LogDir:        logDir,
		NoProgress:    noProgress,
	}

	if err := validateConfig(cfg, rawDir, outputDir); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config, rawDir, outputDir string) error {
	if rawDir == "" {
		return fmt.Errorf("--raw-dir is required")
	}
	if outputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	if cfg.Dictionary == "" {
		return fmt.Errorf("--dictionary is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}
	if cfg.SubjectWindow < 0 {
		return fmt.Errorf("--subject-window must not be negative")
	}

	switch cfg.Sink {
	case SinkJSONL, SinkSQLite:
	default:
		return fmt.Errorf("invalid --sink: %s", cfg.Sink)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
