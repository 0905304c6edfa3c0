package model

import (
	"strconv"
	"strings"
	"time"
)

// Status is the final classification of one job.
type Status int

const (
	// StatusSuccess is a clean zero exit.
	StatusSuccess Status = iota
	// StatusFailure is a non-zero exit chosen by the child itself.
	StatusFailure
	// StatusSignaled means the child died on a signal it did not ask for.
	StatusSignaled
	// StatusTimedOut means the supervisor killed the process group after
	// the configured wall-clock limit.
	StatusTimedOut
	// StatusSpawnError means the executable never started (not found,
	// permission denied). Fatal to the job, never to the run.
	StatusSpawnError
	// StatusInvalid means the command could not even be built from the
	// record (for example a group index out of bounds). The job fails
	// before spawning and does not count as an execution attempt.
	StatusInvalid
	// StatusAborted means shutdown terminated the job before it finished.
	StatusAborted
)

var statusNames = map[Status]string{
	StatusSuccess:    "success",
	StatusFailure:    "failure",
	StatusSignaled:   "signaled",
	StatusTimedOut:   "timeout",
	StatusSpawnError: "spawn-error",
	StatusInvalid:    "invalid",
	StatusAborted:    "aborted",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// ParseStatus is the inverse of Status.String, used when reading the
// job log back for resume.
func ParseStatus(s string) (Status, bool) {
	for st, n := range statusNames {
		if n == s {
			return st, true
		}
	}
	return 0, false
}

// Record is one claimed unit of input work. Ownership transfers
// exclusively to the claiming worker.
type Record struct {
	// Seq is the 1-based sequence number, equal to the record's
	// position in the input.
	Seq  int
	Text string
}

// JobSpec is one fully built command invocation: the substituted
// argument vector plus claim-order bookkeeping. Worker local;
// immutable once built.
type JobSpec struct {
	// Index is the dense claim index of the job (0, 1, 2, …), assigned
	// under the input lock; the collector's input-order mode flushes by
	// it. With resume, record sequence numbers may be sparse while
	// Index never is.
	Index int

	// Seq is the sequence number of the first claimed record.
	Seq int

	// Args is the literal argument vector, executable first.
	Args []string

	// Records are the claimed input records the command was built from.
	Records []Record

	// Dir is the working directory, empty to inherit.
	Dir string
}

// RecordSeqs lists the input positions consumed by the job, the unit
// the job log and resume operate on.
func (s JobSpec) RecordSeqs() []int {
	seqs := make([]int, len(s.Records))
	for i, r := range s.Records {
		seqs[i] = r.Seq
	}
	return seqs
}

// Command renders the argument vector as a single display string, the
// form written to the job log and by dry runs.
func (s JobSpec) Command() string {
	return strings.Join(s.Args, " ")
}

// JobResult is the outcome of running (or failing to run) one JobSpec.
// Created by the supervisor, immutable afterwards, consumed by the
// collector and the job log.
type JobResult struct {
	Index    int
	Seq      int
	Seqs     []int // input positions consumed, for the job log
	Command  string
	Status   Status
	ExitCode int    // meaningful for StatusFailure
	Signal   string // meaningful for StatusSignaled
	Started  time.Time
	Stopped  time.Time
	Stdout   []byte
	Stderr   []byte
	Err      error // spawn/build/capture error detail, if any
}

// Runtime is the wall clock spent on the job.
func (r JobResult) Runtime() time.Duration {
	return r.Stopped.Sub(r.Started)
}

// Succeeded reports whether the job counts towards a zero aggregate
// exit code.
func (r JobResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
