package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mbox-curator/archive"
	"github.com/dhcgn/mbox-curator/config"
	"github.com/dhcgn/mbox-curator/sink"
	"github.com/dhcgn/mbox-curator/state"
	"github.com/dhcgn/mbox-curator/stats"
)

type StageFunc func(context.Context) error

// Processor curates one archive file.
type Processor interface {
	Process(job archive.Job, scratch *archive.Scratch) (archive.Result, error)
}

// Report records the outcome of every archive file of the run.
type Report interface {
	Success(file string, threads int) error
	Error(file string, err error) error
}

type outcome struct {
	job    archive.Job
	result archive.Result
	err    error
}

// Runner fans archive files out to a pool of workers and funnels their
// exports through a single sink stage. A failing archive file is reported
// and skipped; only sink, report and state failures stop the run.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	processor Processor
	sink      sink.Writer
	report    Report
	tracker   state.Tracker

	jobs    chan archive.Job
	results chan outcome

	subMu       sync.Mutex
	subscribers []chan stats.Event

	workWG   sync.WaitGroup
	workerWG sync.WaitGroup
	statsWG  sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeResultsOnce sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

func New(cfg config.Config, processor Processor, w sink.Writer, rep Report, tracker state.Tracker, logger *slog.Logger) (*Runner, error) {
	if processor == nil || w == nil || rep == nil || tracker == nil {
		return nil, errors.New("runner: processor, sink, report and tracker are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	cfg.Workers = workers

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		processor: processor,
		sink:      w,
		report:    rep,
		tracker:   tracker,
		jobs:      make(chan archive.Job),
		results:   make(chan outcome, workers),
	}, nil
}

// EmitEvent delivers evt to every subscriber.
func (r *Runner) EmitEvent(evt stats.Event) {
	r.subMu.Lock()
	subs := r.subscribers
	r.subMu.Unlock()
	for _, ch := range subs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// SubscribeStats registers fn to receive every event of the run on its own
// channel. Subscribe before calling Start.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 128)
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start curates jobs and blocks until every file is written or reported,
// or a fatal error stops the run.
func (r *Runner) Start(jobs []archive.Job) error {
	r.since = time.Now()

	r.AddStage("feed", func(ctx context.Context) error { return r.feed(ctx, jobs) })
	for i := 0; i < r.cfg.Workers; i++ {
		r.workerWG.Add(1)
		name := fmt.Sprintf("worker-%d", i)
		r.AddStage(name, func(ctx context.Context) error {
			defer r.workerWG.Done()
			return r.work(ctx, name)
		})
	}
	r.AddStage("results", func(context.Context) error {
		r.workerWG.Wait()
		r.closeResults()
		return nil
	})
	r.AddStage("sink", r.drain)

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

func (r *Runner) feed(ctx context.Context, jobs []archive.Job) error {
	defer close(r.jobs)
	for _, job := range jobs {
		if r.cfg.Resume && r.tracker.AlreadyProcessed(job.Key()) {
			r.logger.Debug("skipping completed archive", "file", job.Key())
			r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeSkipped, File: job.Key(), Group: job.Group})
			continue
		}
		r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeQueued, File: job.Key(), Group: job.Group})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r.jobs <- job:
		}
	}
	return nil
}

func (r *Runner) work(ctx context.Context, name string) error {
	scratch, err := archive.NewScratch(r.cfg.TmpDir, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			r.logger.Warn("scratch removal failed", "worker", name, "dir", scratch.Dir(), "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-r.jobs:
			if !ok {
				return nil
			}
			r.logger.Debug("processing archive", "worker", name, "file", job.Key())
			res, err := r.process(job, scratch)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.results <- outcome{job: job, result: res, err: err}:
			}
		}
	}
}

// process isolates a single file: a panic while curating it becomes that
// file's error.
func (r *Runner) process(job archive.Job, scratch *archive.Scratch) (res archive.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.processor.Process(job, scratch)
}

func (r *Runner) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-r.results:
			if !ok {
				return nil
			}
			if err := r.handle(out); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) handle(out outcome) error {
	key := out.job.Key()
	if out.err != nil {
		r.logger.Warn("archive failed", "file", key, "err", out.err)
		r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, File: key, Group: out.job.Group, Err: out.err})
		if err := r.report.Error(key, out.err); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		return nil
	}

	res := out.result
	r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeCurated, File: key, Group: out.job.Group, Counts: countsOf(res)})

	if len(res.Exports) > 0 {
		if err := r.sink.Write(out.job.Group, res.Exports); err != nil {
			r.EmitEvent(stats.Event{Stage: stats.StageSink, Type: stats.EventTypeError, File: key, Group: out.job.Group, Err: err})
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	if err := r.report.Success(key, len(res.Exports)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := r.tracker.MarkProcessed(key, len(res.Exports)); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	r.logger.Info("archive written", "file", key, "threads", len(res.Exports), "parseErrors", res.ParseErrors)
	r.EmitEvent(stats.Event{Stage: stats.StageSink, Type: stats.EventTypeWritten, File: key, Group: out.job.Group})
	return nil
}

func countsOf(res archive.Result) stats.Counts {
	return stats.Counts{
		Records:       res.Records,
		ParseErrors:   res.ParseErrors,
		Duplicates:    res.Duplicates,
		Threads:       res.Threads,
		Orphans:       res.Orphans,
		Dropped:       res.Dropped,
		FullyFiltered: res.FullyFiltered,
		Exported:      len(res.Exports),
	}
}

func (r *Runner) closeResults() {
	r.closeResultsOnce.Do(func() {
		close(r.results)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		for _, ch := range r.subscribers {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
