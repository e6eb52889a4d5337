package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dhcgn/mbox-curator/export"
	"github.com/dhcgn/mbox-curator/filter"
	"github.com/dhcgn/mbox-curator/mbox"
	"github.com/dhcgn/mbox-curator/model"
	"github.com/dhcgn/mbox-curator/thread"
)

var errNilAutomaton = errors.New("automaton must not be nil")

type Options struct {
	Parser    mbox.Options
	Assembler thread.Options
}

// Result is the outcome of one successfully curated archive file.
type Result struct {
	Job
	Exports       []model.Export
	Records       int
	ParseErrors   int
	Duplicates    int
	Threads       int
	Orphans       int
	Dropped       int
	FullyFiltered int
}

// Processor runs parse, assemble, filter and export for one archive file at
// a time. A Processor holds no per-file state and may be shared by workers.
type Processor struct {
	automaton *filter.Automaton
	assembler *thread.Assembler
	opts      Options
	logger    *slog.Logger
}

func NewProcessor(a *filter.Automaton, opts Options, logger *slog.Logger) (*Processor, error) {
	if a == nil {
		return nil, errNilAutomaton
	}
	return &Processor{
		automaton: a,
		assembler: thread.NewAssembler(opts.Assembler, logger),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Process curates job using scratch for decompression. On error no part of
// the result may be used.
func (p *Processor) Process(job Job, scratch *Scratch) (Result, error) {
	path, err := scratch.Decompress(job.Path)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := scratch.Release(path); err != nil && p.logger != nil {
			p.logger.Warn("scratch cleanup failed", "path", path, "err", err)
		}
	}()

	parser, err := mbox.Open(path, p.opts.Parser, p.logger)
	if err != nil {
		return Result{}, err
	}
	defer parser.Close()

	return p.Curate(job, parser)
}

// Curate reads every record from parser and turns them into exports.
func (p *Processor) Curate(job Job, parser *mbox.Parser) (Result, error) {
	res := Result{Job: job}

	var records []model.MailRecord
	for {
		env, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("parse: %w", err)
		}
		if env.Err != nil {
			res.ParseErrors++
			continue
		}
		records = append(records, env.Record)
	}
	res.Records = len(records)

	assembled := p.assembler.Assemble(job.Key(), records)
	res.Duplicates = assembled.Duplicates
	res.Threads = len(assembled.Threads)

	forum := job.Forum()
	for _, t := range assembled.Threads {
		if t.Orphan {
			res.Orphans++
		}
		ft := filter.Apply(t, p.automaton)
		res.Dropped += ft.DroppedCount()

		exp, ok := export.Thread(ft, forum)
		if !ok {
			res.FullyFiltered++
			continue
		}
		res.Exports = append(res.Exports, exp)
	}

	if p.logger != nil {
		p.logger.Debug("archive curated", "path", job.Path,
			"records", res.Records, "parseErrors", res.ParseErrors, "duplicates", res.Duplicates,
			"threads", res.Threads, "exported", len(res.Exports), "fullyFiltered", res.FullyFiltered)
	}
	return res, nil
}
