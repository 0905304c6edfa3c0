package model

import (
	"time"
)

// Enum helpers.
const (
	// Ordering of job output on the shared stdout/stderr.
	OrderingCompletion = "completion" // flush each job as it finishes
	OrderingInput      = "input"      // flush strictly in claim order

	// Execution strategy selected once at configuration time.
	ExecModeTemplate = "template" // one child process per claimed group
	ExecModePipe     = "pipe"     // one shared child fed on stdin
)

// Config is the fully validated run configuration. It is built once by
// the args collaborator and the CLI layer and never mutated afterwards;
// the engine only ever reads it.
type Config struct {
	// Jobs is the worker-count ceiling. Always >= 1 after validation.
	Jobs int

	// MemFree is the free-memory floor in bytes. Zero disables the
	// memory admission policy.
	MemFree uint64

	// Timeout is the per-job wall clock limit. Zero disables it.
	Timeout time.Duration

	// Grace is the interval between the group TERM and the force KILL,
	// shared by timeout and shutdown handling.
	Grace time.Duration

	// Delay is the minimum pause between successive job starts.
	Delay time.Duration

	// Ordering is OrderingCompletion or OrderingInput.
	Ordering string

	// ExecMode is ExecModeTemplate or ExecModePipe.
	ExecMode string

	// GroupSize is how many records one job consumes. Always >= 1.
	GroupSize int

	// Command is the tokenized command template: executable first,
	// then argument tokens which may carry placeholders.
	Command []string

	// WorkDir is the working directory for spawned jobs; empty means
	// inherit the parent's.
	WorkDir string

	// DryRun prints substituted commands instead of executing them.
	DryRun bool

	// JobLog is the path of the append-only job log; empty disables it.
	JobLog string

	// Resume skips records whose sequence numbers are recorded as
	// successful in JobLog.
	Resume bool

	// ETA enables claim-rate progress logging.
	ETA bool

	// ArgFile is the unprocessed-input file; empty means stdin unless
	// literal Inputs were given.
	ArgFile string

	// Inputs are literal input records given after the ::: separator.
	Inputs []string

	Verbose bool
	LogFile string
}
