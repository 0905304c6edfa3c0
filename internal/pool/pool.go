// Package pool runs the execution engine: a bounded set of worker
// slots, each looping through admission, claiming, building, running
// and finalizing until the input is exhausted or shutdown is
// requested. Per-job failures stay inside their JobResult; only input
// read errors, job-log write errors and cancellation end the run
// early.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlcmd/parl/internal/admit"
	"github.com/parlcmd/parl/internal/collect"
	"github.com/parlcmd/parl/internal/command"
	"github.com/parlcmd/parl/internal/input"
	"github.com/parlcmd/parl/internal/joblog"
	"github.com/parlcmd/parl/internal/model"
	"github.com/parlcmd/parl/internal/run"
)

// Pool owns the worker slots of one run.
type Pool struct {
	cfg       model.Config
	source    *input.Source
	builder   command.Builder
	admission *admit.Controller
	sup       *run.Supervisor
	collector *collect.Collector
	log       *joblog.Writer // nil when no job log is configured

	delayMx     sync.Mutex
	nextAllowed time.Time
}

// New wires a pool from the validated configuration. log may be nil.
func New(cfg model.Config, source *input.Source, collector *collect.Collector, log *joblog.Writer) (*Pool, error) {
	p := &Pool{
		cfg:       cfg,
		source:    source,
		admission: admit.New(cfg),
		sup:       run.NewSupervisor(cfg),
		collector: collector,
		log:       log,
	}
	if cfg.ExecMode == model.ExecModeTemplate {
		builder, err := command.New(cfg.Command, cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		p.builder = builder
	}
	return p, nil
}

// WithAdmission swaps the admission controller. For tests.
func (p *Pool) WithAdmission(c *admit.Controller) *Pool {
	p.admission = c
	return p
}

// Run executes until exhaustion or cancellation. The aggregate job
// status lives in the collector; Run's error reports only run-fatal
// conditions.
func (p *Pool) Run(ctx context.Context) error {
	if p.cfg.ETA {
		stop := p.goETA(ctx)
		defer stop()
	}
	if p.cfg.ExecMode == model.ExecModePipe {
		return p.runPipe(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.cfg.Jobs {
		g.Go(func() error {
			return p.runSlot(gctx, i)
		})
	}
	return g.Wait()
}

// runSlot is one worker slot's state machine:
// Idle → Admitting → Claiming → Building → Running → Finalizing → Idle.
// The slot retires on exhaustion in Claiming or when shutdown is
// requested at any blocking point.
func (p *Pool) runSlot(ctx context.Context, slot int) error {
	for {
		// Admitting
		if err := p.admission.Acquire(ctx); err != nil {
			return nil // shutdown requested while waiting
		}

		// Claiming
		recs, index, err := p.source.NextBatch(p.cfg.GroupSize)
		if err != nil {
			p.admission.Release()
			return fmt.Errorf("claiming input: %w", err)
		}
		if len(recs) == 0 {
			p.admission.Release()
			slog.DebugContext(ctx, "input exhausted, slot retiring", "slot", slot)
			return nil
		}

		if err := p.finishJob(ctx, p.runJob(ctx, index, recs)); err != nil {
			p.admission.Release()
			return err
		}
		p.admission.Release()

		if ctx.Err() != nil {
			return nil
		}
	}
}

// runJob covers the Building and Running states.
func (p *Pool) runJob(ctx context.Context, index int, recs []model.Record) model.JobResult {
	spec, err := p.builder.Build(recs)
	if err != nil {
		// invalid before spawning, not an execution attempt
		now := time.Now().UTC()
		return model.JobResult{
			Index:   index,
			Seq:     recs[0].Seq,
			Seqs:    seqsOf(recs),
			Status:  model.StatusInvalid,
			Started: now,
			Stopped: now,
			Err:     err,
		}
	}
	spec.Index = index

	if err := p.delayGate(ctx); err != nil {
		now := time.Now().UTC()
		return model.JobResult{
			Index:   spec.Index,
			Seq:     spec.Seq,
			Seqs:    spec.RecordSeqs(),
			Command: spec.Command(),
			Status:  model.StatusAborted,
			Started: now,
			Stopped: now,
		}
	}

	if p.cfg.DryRun {
		now := time.Now().UTC()
		return model.JobResult{
			Index:   spec.Index,
			Seq:     spec.Seq,
			Seqs:    spec.RecordSeqs(),
			Command: spec.Command(),
			Status:  model.StatusSuccess,
			Started: now,
			Stopped: now,
			Stdout:  []byte(spec.Command() + "\n"),
		}
	}

	return p.sup.Run(ctx, spec)
}

// finishJob is the Finalizing state: append to the job log first, then
// report, so a crash never loses a result the user believes succeeded.
// Dry runs never touch the log.
func (p *Pool) finishJob(ctx context.Context, res model.JobResult) error {
	if p.log != nil && !p.cfg.DryRun {
		if err := p.log.Append(res); err != nil {
			return fmt.Errorf("appending job log: %w", err)
		}
	}
	p.collector.Report(res)
	slog.DebugContext(ctx, "job finished",
		"seq", res.Seq, "status", res.Status.String(), "runtime", res.Runtime())
	return nil
}

// delayGate spaces successive job starts at least cfg.Delay apart.
func (p *Pool) delayGate(ctx context.Context) error {
	if p.cfg.Delay == 0 {
		return nil
	}
	p.delayMx.Lock()
	now := time.Now()
	start := p.nextAllowed
	if start.Before(now) {
		start = now
	}
	p.nextAllowed = start.Add(p.cfg.Delay)
	p.delayMx.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// runPipe feeds every claimed group to one long-lived child instead of
// spawning per job. The whole run collapses into a single JobResult.
// Timeout and shutdown are watched by the pipe itself from the moment
// the child starts, so a feeder blocked on the child's full stdin
// buffer is unblocked by the group kill.
func (p *Pool) runPipe(ctx context.Context) error {
	pipe, err := run.StartPipe(ctx, p.cfg, p.collector.Stdout(), p.collector.Stderr())
	if err != nil {
		return fmt.Errorf("starting pipe command: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for range p.cfg.Jobs {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				recs, _, err := p.source.NextBatch(p.cfg.GroupSize)
				if err != nil {
					return fmt.Errorf("claiming input: %w", err)
				}
				if len(recs) == 0 {
					return nil
				}
				if err := pipe.Feed(recs); err != nil {
					// the child is gone or stopped reading; the collapsed
					// result carries the outcome
					slog.DebugContext(gctx, "feeding stopped", "error", err)
					return nil
				}
			}
		})
	}
	feedErr := g.Wait()

	res := pipe.Finish()
	if err := p.finishJob(ctx, res); err != nil {
		return err
	}
	return feedErr
}

func (p *Pool) goETA(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				eta := p.source.ETA()
				if eta.Known {
					slog.InfoContext(ctx, "progress",
						"claimed", eta.Claimed, "total", eta.Total,
						"elapsed", eta.Elapsed.Round(time.Second),
						"remaining", eta.Remaining.Round(time.Second))
				} else {
					slog.InfoContext(ctx, "progress",
						"claimed", eta.Claimed,
						"elapsed", eta.Elapsed.Round(time.Second))
				}
			}
		}
	}()
	return func() { close(done) }
}

func seqsOf(recs []model.Record) []int {
	seqs := make([]int, len(recs))
	for i, r := range recs {
		seqs[i] = r.Seq
	}
	return seqs
}
