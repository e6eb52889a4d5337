package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-curator/archive"
	"github.com/dhcgn/mbox-curator/filter"
	"github.com/dhcgn/mbox-curator/mbox"
	"github.com/dhcgn/mbox-curator/model"
	"github.com/dhcgn/mbox-curator/stats"
	"github.com/dhcgn/mbox-curator/thread"
)

var categories = []string{"Author", "Subject", "Year"}

type statsOptions struct {
	reportDir     string
	topN          int
	dictionary    string
	htmlFallback  bool
	subjectWindow time.Duration
}

// NewMboxStatsCommand returns the mbox-stats subcommand, which curates a
// single archive in memory and prints what a full run would produce.
func NewMboxStatsCommand() *cobra.Command {
	opts := &statsOptions{}
	cmd := &cobra.Command{
		Use:   "mbox-stats [mbox file]",
		Short: "Analyse one mbox archive and show thread statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.reportDir, "output", "o", ".", "Output directory for CSV reports")
	cmd.Flags().IntVarP(&opts.topN, "top", "t", 10, "Number of top items to display in statistics")
	cmd.Flags().StringVar(&opts.dictionary, "dictionary", "", "Optional disallowed-string list to preview filtering")
	cmd.Flags().BoolVar(&opts.htmlFallback, "html-fallback", false, "Convert text/html parts when a message has no text/plain part")
	cmd.Flags().DurationVar(&opts.subjectWindow, "subject-window", thread.DefaultSubjectWindow, "Largest gap for grouping replies by subject alone (0 disables)")
	return cmd
}

func runStats(out io.Writer, path string, opts *statsOptions) error {
	var (
		automaton *filter.Automaton
		err       error
	)
	if opts.dictionary != "" {
		automaton, err = filter.NewAutomatonFromFile(opts.dictionary)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Analyzing mbox file:", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintln(out, "Size:", humanize.Bytes(uint64(info.Size())))
	}

	scratch, err := archive.NewScratch(os.TempDir(), nil)
	if err != nil {
		return err
	}
	defer scratch.Close()

	plain, err := scratch.Decompress(path)
	if err != nil {
		return err
	}
	parser, err := mbox.Open(plain, mbox.Options{HTMLFallback: opts.htmlFallback}, nil)
	if err != nil {
		return err
	}
	defer parser.Close()

	counter := make(map[string]map[string]int)
	for _, c := range categories {
		counter[c] = make(map[string]int)
	}

	var records []model.MailRecord
	malformed := 0
	for {
		env, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading mbox file: %w", err)
		}
		if env.Err != nil {
			malformed++
			continue
		}
		rec := env.Record
		records = append(records, rec)
		if rec.Author != "" {
			counter["Author"][rec.Author]++
		}
		if rec.NormalizedSubject != "" {
			counter["Subject"][rec.NormalizedSubject]++
		}
		if rec.HasTimestamp() {
			counter["Year"][strconv.Itoa(rec.Timestamp.UTC().Year())]++
		}
	}

	res := thread.NewAssembler(thread.Options{SubjectWindow: opts.subjectWindow}, nil).Assemble(filepath.Base(path), records)
	orphans, largest := 0, 0
	dropped, fullyFiltered := 0, 0
	for _, t := range res.Threads {
		if t.Orphan {
			orphans++
		}
		if len(t.Records) > largest {
			largest = len(t.Records)
		}
		if automaton == nil {
			continue
		}
		ft := filter.Apply(t, automaton)
		dropped += ft.DroppedCount()
		if ft.AllDropped() {
			fullyFiltered++
		}
	}

	fmt.Fprintf(out, "Records: %d (malformed %d, duplicate ids %d)\n", len(records), malformed, res.Duplicates)
	fmt.Fprintf(out, "Threads: %d (orphans %d, largest %d records)\n", len(res.Threads), orphans, largest)
	if automaton != nil {
		fmt.Fprintf(out, "Filter: %d patterns, %d records dropped, %d threads fully filtered\n", automaton.Len(), dropped, fullyFiltered)
	}
	fmt.Fprintln(out)

	for _, c := range categories {
		fmt.Fprintf(out, "Top %d %s:\n", opts.topN, c)
		stats.PrettyPrintTop(out, counter[c], opts.topN)
		fmt.Fprintln(out)
	}

	if err := saveCSVReports(counter, categories, opts.reportDir, 1000); err != nil {
		return fmt.Errorf("error saving CSV reports: %w", err)
	}
	fmt.Fprintf(out, "Reports saved to directory: %s\n", opts.reportDir)
	return nil
}

func saveCSVReports(counter map[string]map[string]int, names []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range names {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeName(name)))
		if err := writeCSV(filePath, stats.Top(counter[name], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}
