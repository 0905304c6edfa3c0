// Package collect gathers per-job outcomes and flushes their captured
// output to the run's shared streams. Two ordering modes exist:
// as-completed writes each result the moment it arrives, input-order
// buffers results by claim index and writes them strictly in order, so
// the emitted bytes equal a serial run. Either way a single job's
// output bytes stay contiguous.
package collect

import (
	"io"
	"sync"

	"github.com/parlcmd/parl/internal/model"
)

// Collector owns the synchronization of the shared output streams. The
// input-order reordering buffer is naturally bounded by the number of
// in-flight jobs: claim indexes are dense and each worker holds at
// most one unreported result.
type Collector struct {
	mx      sync.Mutex
	out     io.Writer
	errW    io.Writer
	ordered bool

	next    int // next claim index to flush, input-order mode only
	pending map[int]model.JobResult

	reported int
	failed   int
}

func New(cfg model.Config, out, errW io.Writer) *Collector {
	return &Collector{
		out:     out,
		errW:    errW,
		ordered: cfg.Ordering == model.OrderingInput,
		pending: make(map[int]model.JobResult),
	}
}

// Report hands one finished job to the collector. Safe for concurrent
// use; the caller must have written the job log entry already
// (write-then-report).
func (c *Collector) Report(res model.JobResult) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.reported++
	if !res.Succeeded() {
		c.failed++
	}

	if !c.ordered {
		c.flush(res)
		return
	}

	c.pending[res.Index] = res
	for {
		next, ok := c.pending[c.next]
		if !ok {
			return
		}
		delete(c.pending, c.next)
		c.next++
		c.flush(next)
	}
}

func (c *Collector) flush(res model.JobResult) {
	if len(res.Stdout) > 0 {
		_, _ = c.out.Write(res.Stdout)
	}
	if len(res.Stderr) > 0 {
		_, _ = c.errW.Write(res.Stderr)
	}
}

// Stdout exposes the shared standard-output stream for pass-through
// executors (pipe mode).
func (c *Collector) Stdout() io.Writer { return c.out }

// Stderr exposes the shared standard-error stream.
func (c *Collector) Stderr() io.Writer { return c.errW }

// Reported is the number of results received so far.
func (c *Collector) Reported() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.reported
}

// Failed is the number of results that did not succeed.
func (c *Collector) Failed() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.failed
}

// ExitCode is the aggregate run status: zero only when every job
// succeeded.
func (c *Collector) ExitCode() int {
	if c.Failed() > 0 {
		return 1
	}
	return 0
}
