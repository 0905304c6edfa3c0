package run_test

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlcmd/parl/internal/model"
	"github.com/parlcmd/parl/internal/run"
)

func needsBinary(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("skipped, binary %s not available: %v", name, err)
	}
	return path
}

func spec(seq int, args ...string) model.JobSpec {
	return model.JobSpec{
		Index:   seq - 1,
		Seq:     seq,
		Args:    args,
		Records: []model.Record{{Seq: seq, Text: args[len(args)-1]}},
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	sup := run.NewSupervisor(model.Config{Grace: time.Second})
	res := sup.Run(t.Context(), spec(1, sh, "-c", "echo out; echo err 1>&2"))

	require.Equal(t, model.StatusSuccess, res.Status)
	require.True(t, res.Succeeded())
	require.Equal(t, "out\n", string(res.Stdout))
	require.Equal(t, "err\n", string(res.Stderr))
	require.Equal(t, []int{1}, res.Seqs)
	require.NotZero(t, res.Started)
	require.GreaterOrEqual(t, res.Runtime(), time.Duration(0))
}

func TestRunFailure(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	sup := run.NewSupervisor(model.Config{Grace: time.Second})
	res := sup.Run(t.Context(), spec(1, sh, "-c", "echo partial; exit 3"))

	require.Equal(t, model.StatusFailure, res.Status)
	require.Equal(t, 3, res.ExitCode)
	// partial output is preserved
	require.Equal(t, "partial\n", string(res.Stdout))
}

func TestRunSignaled(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	sup := run.NewSupervisor(model.Config{Grace: time.Second})
	res := sup.Run(t.Context(), spec(1, sh, "-c", "kill -USR1 $$"))

	require.Equal(t, model.StatusSignaled, res.Status)
	require.NotEmpty(t, res.Signal)
}

func TestRunSpawnError(t *testing.T) {
	t.Parallel()

	sup := run.NewSupervisor(model.Config{Grace: time.Second})
	res := sup.Run(t.Context(), spec(1, "/definitely/not/here"))

	require.Equal(t, model.StatusSpawnError, res.Status)
	require.Error(t, res.Err)
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	needsBinary(t, "sleep")

	sup := run.NewSupervisor(model.Config{
		Timeout: 200 * time.Millisecond,
		Grace:   200 * time.Millisecond,
	})

	start := time.Now()
	res := sup.Run(t.Context(), spec(1, "sleep", "10"))
	elapsed := time.Since(start)

	require.Equal(t, model.StatusTimedOut, res.Status)
	// killed within a small bounded margin of the timeout, never run to completion
	require.Less(t, elapsed, 3*time.Second)
	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestRunKillsProcessGroup(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	sup := run.NewSupervisor(model.Config{
		Timeout: 200 * time.Millisecond,
		Grace:   100 * time.Millisecond,
	})

	// the child spawns its own child; the group kill must reach both
	start := time.Now()
	res := sup.Run(t.Context(), spec(1, sh, "-c", "sleep 10 & wait"))
	require.Equal(t, model.StatusTimedOut, res.Status)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestRunShutdown(t *testing.T) {
	t.Parallel()
	needsBinary(t, "sleep")

	sup := run.NewSupervisor(model.Config{Grace: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := sup.Run(ctx, spec(1, "sleep", "10"))
	require.Equal(t, model.StatusAborted, res.Status)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestPipe(t *testing.T) {
	t.Parallel()
	needsBinary(t, "wc")

	var out, errW safeBuffer
	p, err := run.StartPipe(t.Context(), model.Config{
		Command: []string{"wc", "-l"},
		Grace:   time.Second,
	}, &out, &errW)
	require.NoError(t, err)

	require.NoError(t, p.Feed([]model.Record{{Seq: 1, Text: "a"}, {Seq: 2, Text: "b"}}))
	require.NoError(t, p.Feed([]model.Record{{Seq: 3, Text: "c"}}))

	res := p.Finish()
	require.Equal(t, model.StatusSuccess, res.Status)
	require.Equal(t, "3", strings.TrimSpace(out.String()))
}

func TestPipeTimeoutWithStalledChild(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	var out, errW safeBuffer
	p, err := run.StartPipe(t.Context(), model.Config{
		Command: []string{sh, "-c", "sleep 10"}, // never reads stdin
		Timeout: 300 * time.Millisecond,
		Grace:   200 * time.Millisecond,
	}, &out, &errW)
	require.NoError(t, err)

	// a record far beyond the OS pipe buffer; the write blocks until the
	// group kill breaks the pipe
	big := []model.Record{{Seq: 1, Text: strings.Repeat("x", 1<<20)}}
	fed := make(chan error, 1)
	go func() { fed <- p.Feed(big) }()

	start := time.Now()
	res := p.Finish()
	require.Equal(t, model.StatusTimedOut, res.Status)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Error(t, <-fed)
}

func TestPipeShutdownWithStalledChild(t *testing.T) {
	t.Parallel()
	sh := needsBinary(t, "sh")

	ctx, cancel := context.WithCancel(t.Context())
	var out, errW safeBuffer
	p, err := run.StartPipe(ctx, model.Config{
		Command: []string{sh, "-c", "sleep 10"},
		Grace:   200 * time.Millisecond,
	}, &out, &errW)
	require.NoError(t, err)

	big := []model.Record{{Seq: 1, Text: strings.Repeat("x", 1<<20)}}
	fed := make(chan error, 1)
	go func() { fed <- p.Feed(big) }()

	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := p.Finish()
	require.Equal(t, model.StatusAborted, res.Status)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Error(t, <-fed)
}

func TestPipeStartError(t *testing.T) {
	t.Parallel()

	var out, errW safeBuffer
	_, err := run.StartPipe(t.Context(), model.Config{
		Command: []string{"/definitely/not/here"},
		Grace:   time.Second,
	}, &out, &errW)
	require.Error(t, err)
}

// safeBuffer guards a bytes.Buffer against the writes exec performs
// from its own goroutines.
type safeBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

