package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageArchive Stage = "archive"
	StageSink    Stage = "sink"
)

type EventType string

const (
	EventTypeQueued  EventType = "queued"
	EventTypeSkipped EventType = "skipped"
	EventTypeCurated EventType = "curated"
	EventTypeWritten EventType = "written"
	EventTypeError   EventType = "error"
)

// Counts carries the per-file numbers of a curated archive.
type Counts struct {
	Records       int
	ParseErrors   int
	Duplicates    int
	Threads       int
	Orphans       int
	Dropped       int
	FullyFiltered int
	Exported      int
}

func (c *Counts) add(o Counts) {
	c.Records += o.Records
	c.ParseErrors += o.ParseErrors
	c.Duplicates += o.Duplicates
	c.Threads += o.Threads
	c.Orphans += o.Orphans
	c.Dropped += o.Dropped
	c.FullyFiltered += o.FullyFiltered
	c.Exported += o.Exported
}

type Event struct {
	Stage  Stage
	Type   EventType
	File   string
	Group  string
	Counts Counts
	Err    error
}

type Summary struct {
	Queued  int
	Skipped int
	Curated int
	Written int
	Failed  int
	Counts
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"queued", s.Queued,
		"skipped", s.Skipped,
		"curated", s.Curated,
		"written", s.Written,
		"failed", s.Failed,
		"records", s.Records,
		"parseErrors", s.ParseErrors,
		"duplicates", s.Duplicates,
		"threads", s.Threads,
		"orphans", s.Orphans,
		"droppedRecords", s.Dropped,
		"fullyFiltered", s.FullyFiltered,
		"exported", s.Exported,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeQueued:
		c.summary.Queued++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeCurated:
		c.summary.Curated++
		c.summary.Counts.add(evt.Counts)
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeError:
		c.summary.Failed++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Top returns the limit most frequent keys of m, highest count first and
// ties in key order.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}
	return pairs
}

type Pair struct {
	Key   string
	Value int
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
