package run

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/parlcmd/parl/internal/model"
)

// Pipe is the pipe-mode executor: one long-lived child whose stdin is
// fed raw record bytes by many workers. No placeholder substitution
// happens; grouping only defines how many records are written between
// flush boundaries. The child's output streams pass through to the
// given writers unbuffered.
//
// A watcher goroutine owns the timeout and shutdown kill paths from the
// moment the child starts. Feeders can sit blocked in a stdin write
// when the child stops reading; killing the group breaks the pipe and
// fails those writes, so the run can always come down.
type Pipe struct {
	mx    sync.Mutex
	stdin io.WriteCloser

	cmd     *exec.Cmd
	command string
	started time.Time
	grace   time.Duration

	exited  chan struct{} // closed once the child is reaped
	waitErr error         // valid after exited is closed

	killMx   sync.Mutex
	killed   bool
	killedAs model.Status
}

// StartPipe spawns the shared child with stdout/stderr attached to the
// run's output streams and begins supervising it. A start failure is a
// setup error: pipe mode has no sibling jobs to keep alive.
func StartPipe(ctx context.Context, cfg model.Config, stdout, stderr io.Writer) (*Pipe, error) {
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Pipe{
		cmd:     cmd,
		stdin:   stdin,
		command: model.JobSpec{Args: cfg.Command}.Command(),
		started: time.Now().UTC(),
		grace:   cfg.Grace,
		exited:  make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	go p.watch(ctx, cfg.Timeout)
	return p, nil
}

// watch enforces the wall-clock timeout and ctx cancellation for the
// child's whole lifetime, independent of the feeders. It returns once
// the child is reaped.
func (p *Pipe) watch(ctx context.Context, timeout time.Duration) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-p.exited:
	case <-timeoutCh:
		p.kill(model.StatusTimedOut)
	case <-ctx.Done():
		p.kill(model.StatusAborted)
	}
}

// kill terminates the process group: TERM, wait out the grace
// interval, then KILL. The recorded status wins over the child's own
// exit classification.
func (p *Pipe) kill(as model.Status) {
	p.killMx.Lock()
	p.killed, p.killedAs = true, as
	p.killMx.Unlock()

	terminateGroup(p.cmd)
	select {
	case <-p.exited:
		return
	case <-time.After(p.grace):
	}
	killGroup(p.cmd)
	<-p.exited
}

// Feed writes one claimed group to the child's stdin. Groups from
// concurrent workers never interleave: the write of a whole group is
// one critical section ending at the flush boundary. A write failure
// means the child is gone or stopped reading; feeding cannot continue.
func (p *Pipe) Feed(recs []model.Record) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	for _, r := range recs {
		if _, err := io.WriteString(p.stdin, r.Text+"\n"); err != nil {
			return &model.FileError{Op: model.FileWrite, Path: p.command, Err: err}
		}
	}
	return nil
}

// Finish closes stdin and waits for the child to be reaped. The whole
// pipe run collapses into a single JobResult; when the watcher killed
// the child, its status takes precedence.
func (p *Pipe) Finish() model.JobResult {
	p.mx.Lock()
	_ = p.stdin.Close()
	p.mx.Unlock()

	<-p.exited

	res := model.JobResult{
		Seq:     1,
		Command: p.command,
		Started: p.started,
		Stopped: time.Now().UTC(),
	}

	p.killMx.Lock()
	killed, as := p.killed, p.killedAs
	p.killMx.Unlock()
	if killed {
		res.Status = as
		return res
	}

	res.Status, res.ExitCode, res.Signal = classify(p.waitErr)
	res.Err = p.waitErr
	return res
}
