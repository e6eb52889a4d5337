package progress

import (
	"context"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-curator/stats"
)

// Bar tracks archive files through the run.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar over total archive files. It stays silent
// unless enabled, so debug logging is never interleaved with the bar.
func New(total int, enabled bool) *Bar {
	bar := &Bar{total: total, enabled: enabled && total > 0}
	if !bar.enabled {
		return bar
	}

	pterm.Info.Printf("Archive files: %d\n", total)
	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Curating archives").
		Start()
	if err != nil {
		bar.enabled = false
		return bar
	}
	bar.pb = pb
	return bar
}

// Update advances the bar once per file that reached a final state.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeCurated:
		b.pb.UpdateTitle("Curated: " + shorten(evt.File, 40))
	case stats.EventTypeWritten, stats.EventTypeSkipped:
		b.pb.Increment()
	case stats.EventTypeError:
		if evt.Stage == stats.StageArchive {
			b.pb.Increment()
		}
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", evt.File, evt.Err)
		}
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-(n-3):]
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
}

// Subscriber feeds run events into the bar and prints a summary at the end.
func (b *Bar) Subscriber(started time.Time) func(context.Context, <-chan stats.Event) error {
	collector := stats.NewCollector()
	return func(ctx context.Context, events <-chan stats.Event) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-events:
				if !ok {
					b.Stop()
					b.printSummary(collector.Snapshot(), time.Since(started))
					return nil
				}
				collector.Apply(evt)
				b.Update(evt)
			}
		}
	}
}

func (b *Bar) printSummary(s stats.Summary, duration time.Duration) {
	if !b.enabled {
		return
	}
	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
	pterm.Info.Printf("Archives written: %d, skipped: %d, failed: %d\n", s.Written, s.Skipped, s.Failed)
	pterm.Info.Printf("Records: %d (malformed %d, duplicate %d, dropped %d)\n", s.Records, s.ParseErrors, s.Duplicates, s.Dropped)
	pterm.Info.Printf("Threads: %d (orphan %d, exported %d, fully filtered %d)\n", s.Threads, s.Orphans, s.Exported, s.FullyFiltered)
	if s.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", s.LastError)
	}
}
