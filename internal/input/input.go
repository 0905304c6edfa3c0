// Package input provides the shared record source many workers claim
// from concurrently. A single mutex guards the cursor, so every record
// is observed by exactly one worker, sequence numbers are assigned
// atomically at claim time and are strictly increasing, and no record
// is lost or duplicated.
package input

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"github.com/parlcmd/parl/internal/model"
)

// Source is the lazily produced, possibly infinite record stream. Safe
// for concurrent use by any number of claimers.
type Source struct {
	mx      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	path    string

	seq     int
	index   int // dense claim index handed to the next non-empty batch
	claimed int
	total   int // -1 when unknown (streaming stdin)
	skip    map[int]bool
	started time.Time
	err     error // sticky, fatal for the whole run
	done    bool
}

// maxRecordSize caps one input record. The default bufio.Scanner limit
// of 64KB is far below what legitimate single-line records (long paths,
// serialized payloads) can reach.
const maxRecordSize = 64 << 20

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxRecordSize)
	return sc
}

// NewReader streams records from r, one per line. The total is unknown,
// so no ETA is available. path tags read errors; use "stdin" or alike
// for non-file readers.
func NewReader(r io.Reader, path string) *Source {
	return &Source{
		scanner: newScanner(r),
		path:    path,
		total:   -1,
		started: time.Now(),
	}
}

// NewFile opens the unprocessed-input file. With countTotal the file is
// pre-scanned once so the ETA has a denominator.
func NewFile(path string, countTotal bool) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.FileError{Op: model.FileOpen, Path: path, Err: err}
	}
	total := -1
	if countTotal {
		total, err = countLines(f)
		if err != nil {
			_ = f.Close()
			return nil, &model.FileError{Op: model.FileRead, Path: path, Err: err}
		}
	}
	s := NewReader(f, path)
	s.closer = f
	s.total = total
	return s, nil
}

// NewLiteral serves records from an in-memory list, as given after the
// ::: separator. The total is always known.
func NewLiteral(records []string) *Source {
	var buf bytes.Buffer
	for _, r := range records {
		buf.WriteString(r)
		buf.WriteByte('\n')
	}
	s := NewReader(&buf, "arguments")
	s.total = len(records)
	return s
}

// WithSkip marks input positions to drop at claim time without handing
// them to any worker, used by resume. Skipped records still consume
// their sequence numbers so the numbering stays aligned with the input.
func (s *Source) WithSkip(skip map[int]bool) *Source {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.skip = skip
	return s
}

// NextBatch atomically claims up to n records, returning them together
// with the dense claim index of the batch. An empty batch with a nil
// error signals exhaustion. A read failure is returned as a
// *model.FileError and is sticky: every later call fails the same way.
func (s *Source) NextBatch(n int) ([]model.Record, int, error) {
	if n < 1 {
		n = 1
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.err != nil {
		return nil, 0, s.err
	}
	if s.done {
		return nil, 0, nil
	}

	recs := make([]model.Record, 0, n)
	for len(recs) < n {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				s.err = &model.FileError{Op: model.FileRead, Path: s.path, Err: err}
				return nil, 0, s.err
			}
			s.done = true
			s.close()
			break
		}
		s.seq++
		if s.skip[s.seq] {
			continue
		}
		recs = append(recs, model.Record{Seq: s.seq, Text: s.scanner.Text()})
		s.claimed++
	}
	if len(recs) == 0 {
		return nil, 0, nil
	}
	index := s.index
	s.index++
	return recs, index, nil
}

// Close releases the underlying file. Claiming past exhaustion already
// closes it; Close exists for early-abort paths.
func (s *Source) Close() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.close()
}

func (s *Source) close() {
	if s.closer != nil {
		_ = s.closer.Close()
		s.closer = nil
	}
}

// ETA is a point-in-time consumption estimate.
type ETA struct {
	Claimed   int
	Total     int // -1 when unknown
	Elapsed   time.Duration
	Remaining time.Duration
	Known     bool
}

// ETA derives the estimate from the claim rate so far. When the total
// is unknown (streaming stdin) Known is false and Remaining is zero.
func (s *Source) ETA() ETA {
	s.mx.Lock()
	defer s.mx.Unlock()

	eta := ETA{
		Claimed: s.claimed,
		Total:   s.total,
		Elapsed: time.Since(s.started),
	}
	if s.total < 0 || s.claimed == 0 {
		return eta
	}
	eta.Known = true
	perRecord := eta.Elapsed / time.Duration(s.claimed)
	left := s.total - s.claimed
	if left < 0 {
		left = 0
	}
	eta.Remaining = perRecord * time.Duration(left)
	return eta
}

func countLines(f *os.File) (int, error) {
	total := 0
	sc := newScanner(f)
	for sc.Scan() {
		total++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return total, nil
}
