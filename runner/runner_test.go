package runner

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-curator/archive"
	"github.com/dhcgn/mbox-curator/config"
	"github.com/dhcgn/mbox-curator/model"
	"github.com/dhcgn/mbox-curator/report"
	"github.com/dhcgn/mbox-curator/state"
	"github.com/dhcgn/mbox-curator/stats"
)

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	panics map[string]bool
}

func (f *fakeProcessor) Process(job archive.Job, scratch *archive.Scratch) (archive.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job.Key())
	f.mu.Unlock()

	if scratch == nil || scratch.Dir() == "" {
		return archive.Result{}, errors.New("missing scratch")
	}
	if f.panics[job.Key()] {
		panic("boom")
	}
	if err := f.fail[job.Key()]; err != nil {
		return archive.Result{}, err
	}
	return archive.Result{
		Job:     job,
		Records: 2,
		Threads: 1,
		Exports: []model.Export{{Content: job.Key(), Metadata: model.Metadata{RootID: job.Key()}}},
	}, nil
}

type memorySink struct {
	mu     sync.Mutex
	groups map[string][]model.Export
	err    error
}

func (m *memorySink) Write(group string, exports []model.Export) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups == nil {
		m.groups = make(map[string][]model.Export)
	}
	m.groups[group] = append(m.groups[group], exports...)
	return nil
}

func (m *memorySink) Close() error { return nil }

func jobs(keys ...string) []archive.Job {
	var out []archive.Job
	for _, k := range keys {
		group, file, _ := strings.Cut(k, "/")
		out = append(out, archive.Job{Group: group, Path: "/raw/" + group + "/" + file})
	}
	return out
}

func reportLines(buf *bytes.Buffer) []string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	sort.Strings(lines)
	return lines
}

func newRunner(t *testing.T, cfg config.Config, p Processor, s *memorySink, buf *bytes.Buffer, tracker state.Tracker) *Runner {
	t.Helper()
	if cfg.TmpDir == "" {
		cfg.TmpDir = t.TempDir()
	}
	r, err := New(cfg, p, s, report.New(buf), tracker, nil)
	require.NoError(t, err)
	return r
}

func TestRunner_FailedFileDoesNotStopRun(t *testing.T) {
	p := &fakeProcessor{fail: map[string]error{"comp.lang.c/b.mbox.gz": errors.New("gzip: invalid header")}}
	s := &memorySink{}
	var buf bytes.Buffer
	tracker := state.NewMemoryTracker()

	r := newRunner(t, config.Config{Workers: 3}, p, s, &buf, tracker)
	reporter := stats.NewReporter(r, nil)

	err := r.Start(jobs("comp.lang.c/a.mbox.gz", "comp.lang.c/b.mbox.gz", "alt.folklore/c.mbox.gz"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Error comp.lang.c/b.mbox.gz: gzip: invalid header",
		"Success alt.folklore/c.mbox.gz: includes 1",
		"Success comp.lang.c/a.mbox.gz: includes 1",
	}, reportLines(&buf))

	assert.Len(t, s.groups["comp.lang.c"], 1)
	assert.Len(t, s.groups["alt.folklore"], 1)
	assert.True(t, tracker.AlreadyProcessed("comp.lang.c/a.mbox.gz"))
	assert.False(t, tracker.AlreadyProcessed("comp.lang.c/b.mbox.gz"))

	summary := reporter.Summary()
	assert.Equal(t, 3, summary.Queued)
	assert.Equal(t, 2, summary.Curated)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Records)
}

func TestRunner_PanicIsIsolated(t *testing.T) {
	p := &fakeProcessor{panics: map[string]bool{"g/bad.mbox.gz": true}}
	var buf bytes.Buffer

	r := newRunner(t, config.Config{Workers: 2}, p, &memorySink{}, &buf, state.NewMemoryTracker())
	require.NoError(t, r.Start(jobs("g/bad.mbox.gz", "g/good.mbox.gz")))

	assert.Equal(t, []string{
		"Error g/bad.mbox.gz: panic: boom",
		"Success g/good.mbox.gz: includes 1",
	}, reportLines(&buf))
}

func TestRunner_SinkFailureIsFatal(t *testing.T) {
	p := &fakeProcessor{}
	s := &memorySink{err: errors.New("disk full")}
	var buf bytes.Buffer
	tracker := state.NewMemoryTracker()

	r := newRunner(t, config.Config{Workers: 2}, p, s, &buf, tracker)
	err := r.Start(jobs("g/a.mbox.gz", "g/b.mbox.gz", "g/c.mbox.gz"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, tracker.Snapshot().Processed)
}

func TestRunner_ResumeSkipsCompleted(t *testing.T) {
	p := &fakeProcessor{}
	tracker := state.NewMemoryTracker()
	require.NoError(t, tracker.MarkProcessed("g/a.mbox.gz", 1))
	var buf bytes.Buffer

	r := newRunner(t, config.Config{Workers: 1, Resume: true}, p, &memorySink{}, &buf, tracker)
	reporter := stats.NewReporter(r, nil)
	require.NoError(t, r.Start(jobs("g/a.mbox.gz", "g/b.mbox.gz")))

	assert.Equal(t, []string{"g/b.mbox.gz"}, p.calls)
	assert.Equal(t, 1, reporter.Summary().Skipped)
	assert.Equal(t, []string{"Success g/b.mbox.gz: includes 1"}, reportLines(&buf))
}

func TestRunner_EverySubscriberSeesEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	r := newRunner(t, config.Config{Workers: 2}, &fakeProcessor{}, &memorySink{}, &buf, state.NewMemoryTracker())

	var mu sync.Mutex
	counts := make(map[string]int)
	for _, name := range []string{"one", "two"} {
		name := name
		r.SubscribeStats(name, func(ctx context.Context, events <-chan stats.Event) error {
			for range events {
				mu.Lock()
				counts[name]++
				mu.Unlock()
			}
			return nil
		})
	}

	require.NoError(t, r.Start(jobs("g/a.mbox.gz", "g/b.mbox.gz")))
	// queued, curated and written per file
	assert.Equal(t, map[string]int{"one": 6, "two": 6}, counts)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(config.Config{}, nil, &memorySink{}, report.New(&bytes.Buffer{}), state.NewMemoryTracker(), nil)
	assert.Error(t, err)
}
