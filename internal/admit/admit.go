// Package admit gates job starts. Two policies compose: a weighted
// semaphore enforces the worker-count ceiling, and an optional
// free-memory floor denies admission while the sampled available
// memory is below it. Memory pressure only throttles via backoff; it
// never fails a job and never kills a running one.
package admit

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/semaphore"

	"github.com/parlcmd/parl/internal/model"
)

// MemoryFunc samples currently available memory in bytes. Swappable so
// tests can simulate pressure without touching the host.
type MemoryFunc func(ctx context.Context) (uint64, error)

func systemMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Controller decides whether a new job may start now.
type Controller struct {
	sem    *semaphore.Weighted
	floor  uint64
	memory MemoryFunc
}

func New(cfg model.Config) *Controller {
	return &Controller{
		sem:    semaphore.NewWeighted(int64(cfg.Jobs)),
		floor:  cfg.MemFree,
		memory: systemMemory,
	}
}

// WithMemoryFunc replaces the memory sampler. For tests.
func (c *Controller) WithMemoryFunc(f MemoryFunc) *Controller {
	c.memory = f
	return c
}

// TryAdmit reports whether a job could start right now without
// blocking. On true the caller holds a slot and must Release it.
func (c *Controller) TryAdmit(ctx context.Context) bool {
	if !c.sem.TryAcquire(1) {
		return false
	}
	if !c.memoryOK(ctx) {
		c.sem.Release(1)
		return false
	}
	return true
}

// Acquire blocks until both policies pass or ctx is done. Waiting on
// the memory floor uses bounded exponential backoff, never a busy
// spin. On nil the caller holds a slot and must Release it.
func (c *Controller) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if c.floor == 0 {
		return nil
	}

	bo := newBackOff()
	for {
		if c.memoryOK(ctx) {
			return nil
		}
		wait := bo.NextBackOff()
		slog.DebugContext(ctx, "free memory below floor, delaying admission",
			"floor", c.floor, "wait", wait)
		select {
		case <-ctx.Done():
			c.sem.Release(1)
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Release frees one admission slot.
func (c *Controller) Release() {
	c.sem.Release(1)
}

func (c *Controller) memoryOK(ctx context.Context) bool {
	if c.floor == 0 {
		return true
	}
	avail, err := c.memory(ctx)
	if err != nil {
		// sampling trouble must not wedge the run
		slog.DebugContext(ctx, "memory sampling failed, admitting anyway", "error", err)
		return true
	}
	return avail >= c.floor
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // wait as long as the pressure lasts
	return bo
}
