// Package run owns child processes. The supervisor starts one child
// per job in its own process group, captures its output in full,
// enforces the optional wall-clock timeout and classifies the final
// status. Timeout and shutdown share one kill mechanism: TERM to the
// process group, a grace interval, then KILL.
package run

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/parlcmd/parl/internal/model"
)

// Supervisor runs JobSpecs as supervised child processes.
type Supervisor struct {
	timeout time.Duration
	grace   time.Duration
}

func NewSupervisor(cfg model.Config) *Supervisor {
	return &Supervisor{
		timeout: cfg.Timeout,
		grace:   cfg.Grace,
	}
}

// Run spawns and supervises one job. Per-job failures of any kind are
// folded into the returned JobResult, never propagated as errors; only
// the caller's ctx can end a job early.
func (s *Supervisor) Run(ctx context.Context, spec model.JobSpec) model.JobResult {
	res := model.JobResult{
		Index:   spec.Index,
		Seq:     spec.Seq,
		Seqs:    spec.RecordSeqs(),
		Command: spec.Command(),
		Started: time.Now().UTC(),
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		res.Status = model.StatusSpawnError
		res.Err = err
		return res
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
		res.Status, res.ExitCode, res.Signal = classify(waitErr)
	case <-timeoutCh:
		slog.DebugContext(ctx, "job timed out, killing process group",
			"seq", spec.Seq, "timeout", s.timeout)
		s.kill(cmd, waitCh)
		res.Status = model.StatusTimedOut
	case <-ctx.Done():
		slog.DebugContext(ctx, "shutdown, killing process group", "seq", spec.Seq)
		s.kill(cmd, waitCh)
		res.Status = model.StatusAborted
	}

	res.Stopped = time.Now().UTC()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Err = waitErr
	return res
}

// kill terminates the whole process group: TERM, wait out the grace
// interval, then KILL. It always reaps the child before returning.
func (s *Supervisor) kill(cmd *exec.Cmd, waitCh <-chan error) {
	terminateGroup(cmd)
	select {
	case <-waitCh:
		return
	case <-time.After(s.grace):
	}
	killGroup(cmd)
	<-waitCh
}

// classify maps a Wait error onto the status taxonomy.
func classify(err error) (model.Status, int, string) {
	if err == nil {
		return model.StatusSuccess, 0, ""
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if sig, ok := exitSignal(exitErr); ok {
			return model.StatusSignaled, -1, sig
		}
		return model.StatusFailure, exitErr.ExitCode(), ""
	}
	// I/O fault while collecting output: job failure with whatever
	// partial output was captured
	return model.StatusFailure, -1, ""
}
