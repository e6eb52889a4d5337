package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-curator/archive"
	"github.com/dhcgn/mbox-curator/cmd"
	"github.com/dhcgn/mbox-curator/config"
	"github.com/dhcgn/mbox-curator/filter"
	"github.com/dhcgn/mbox-curator/mbox"
	"github.com/dhcgn/mbox-curator/metrics"
	"github.com/dhcgn/mbox-curator/progress"
	"github.com/dhcgn/mbox-curator/report"
	"github.com/dhcgn/mbox-curator/runner"
	"github.com/dhcgn/mbox-curator/sink"
	"github.com/dhcgn/mbox-curator/state"
	"github.com/dhcgn/mbox-curator/stats"
	"github.com/dhcgn/mbox-curator/thread"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbox-curator",
		Short: "Rebuild discussion threads from mbox archives and export them filtered",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mbox-curator", "raw", cfg.RawDir, "output", cfg.OutputDir, "workers", cfg.Workers, "sink", cfg.Sink, "resume", cfg.Resume)

			return run(cfg, logger)
		},
	}
	rootCmd.SilenceUsage = true

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewMboxStatsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) (err error) {
	// A bad dictionary stops the run before any archive is touched.
	automaton, err := filter.NewAutomatonFromFile(cfg.Dictionary)
	if err != nil {
		return err
	}
	logger.Info("dictionary loaded", "path", cfg.Dictionary, "patterns", automaton.Len())

	jobs, err := archive.Discover(cfg.RawDir)
	if err != nil {
		return err
	}
	logger.Info("archives discovered", "count", len(jobs))

	processor, err := archive.NewProcessor(automaton, archive.Options{
		Parser:    mbox.Options{HTMLFallback: cfg.HTMLFallback},
		Assembler: thread.Options{SubjectWindow: cfg.SubjectWindow},
	}, logger)
	if err != nil {
		return fmt.Errorf("archive.NewProcessor: %w", err)
	}

	writer, err := sink.Open(cfg.Sink, cfg.OutputDir, cfg.Resume)
	if err != nil {
		return fmt.Errorf("sink.Open: %w", err)
	}
	defer closeInto(&err, "sink", writer.Close)

	rep, err := report.Create(cfg.OutputDir, time.Now())
	if err != nil {
		return err
	}
	defer closeInto(&err, "report", rep.Close)
	logger.Info("writing report", "path", rep.Path())

	tracker, err := state.NewFileTracker(cfg.StateDir, cfg.Resume)
	if err != nil {
		return fmt.Errorf("state tracker: %w", err)
	}
	defer closeInto(&err, "state", tracker.Close)

	r, err := runner.New(cfg, processor, writer, rep, tracker, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)
	r.SubscribeStats("metrics", metrics.Subscriber)
	if !cfg.NoProgress && cfg.LogLevel == "info" {
		bar := progress.New(len(jobs), true)
		r.SubscribeStats("progress-bar", bar.Subscriber(time.Now()))
	}

	runErr := r.Start(jobs)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
			logger.Warn("metrics export failed", "path", cfg.MetricsFile, "err", err)
		}
	}
	return runErr
}

func closeInto(dst *error, name string, fn func() error) {
	if err := fn(); err != nil && *dst == nil {
		*dst = fmt.Errorf("close %s: %w", name, err)
	}
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mbox-curator-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
