// Package metrics exposes run counters in Prometheus form.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dhcgn/mbox-curator/stats"
)

var (
	ArchivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbox_curator_archives_total",
			Help: "Archive files by outcome.",
		},
		[]string{"outcome"}, // outcome: "queued", "skipped", "curated", "written", "failed"
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbox_curator_records_total",
			Help: "Mail records by outcome.",
		},
		[]string{"outcome"}, // outcome: "parsed", "malformed", "duplicate", "dropped"
	)

	ThreadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbox_curator_threads_total",
			Help: "Assembled threads by outcome.",
		},
		[]string{"outcome"}, // outcome: "assembled", "orphan", "exported", "filtered"
	)
)

// Observe adds one event to the counters.
func Observe(evt stats.Event) {
	switch evt.Type {
	case stats.EventTypeQueued:
		ArchivesTotal.WithLabelValues("queued").Inc()
	case stats.EventTypeSkipped:
		ArchivesTotal.WithLabelValues("skipped").Inc()
	case stats.EventTypeWritten:
		ArchivesTotal.WithLabelValues("written").Inc()
	case stats.EventTypeError:
		ArchivesTotal.WithLabelValues("failed").Inc()
	case stats.EventTypeCurated:
		ArchivesTotal.WithLabelValues("curated").Inc()
		c := evt.Counts
		RecordsTotal.WithLabelValues("parsed").Add(float64(c.Records))
		RecordsTotal.WithLabelValues("malformed").Add(float64(c.ParseErrors))
		RecordsTotal.WithLabelValues("duplicate").Add(float64(c.Duplicates))
		RecordsTotal.WithLabelValues("dropped").Add(float64(c.Dropped))
		ThreadsTotal.WithLabelValues("assembled").Add(float64(c.Threads))
		ThreadsTotal.WithLabelValues("orphan").Add(float64(c.Orphans))
		ThreadsTotal.WithLabelValues("exported").Add(float64(c.Exported))
		ThreadsTotal.WithLabelValues("filtered").Add(float64(c.FullyFiltered))
	}
}

// Subscriber feeds the run's events into the counters.
func Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			Observe(evt)
		}
	}
}

// WriteFile dumps the default registry in text exposition format.
func WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
