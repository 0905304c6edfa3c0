// Package joblog persists one line per finished job in a stable,
// tab-separated format: the input positions consumed, start time,
// runtime, status, exit code, signal and the literal command. Entries
// are appended and synced before the job is reported complete, so a
// crash never loses a result the user already saw. The reader turns a
// prior log back into the set of successfully completed input
// positions for resume.
package joblog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parlcmd/parl/internal/model"
)

const fieldCount = 7

// Writer appends entries to the job log. A single writer lock
// suffices: log writes are short.
type Writer struct {
	mx sync.Mutex
	f  *os.File
}

// NewWriter opens (or creates) the log for appending and records a run
// header with the given run id.
func NewWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &model.FileError{Op: model.FileOpen, Path: path, Err: err}
	}
	header := fmt.Sprintf("# parl run=%s started=%s\n", runID, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return nil, &model.FileError{Op: model.FileWrite, Path: path, Err: err}
	}
	return &Writer{f: f}, nil
}

// Append durably records one finished job.
func (w *Writer) Append(res model.JobResult) error {
	seqs := res.Seqs
	if len(seqs) == 0 {
		seqs = []int{res.Seq}
	}
	fields := []string{
		joinSeqs(seqs),
		res.Started.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(res.Runtime().Seconds(), 'f', 3, 64),
		res.Status.String(),
		strconv.Itoa(res.ExitCode),
		emptyDash(res.Signal),
		res.Command,
	}
	line := strings.Join(fields, "\t") + "\n"

	w.mx.Lock()
	defer w.mx.Unlock()
	if _, err := w.f.WriteString(line); err != nil {
		return &model.FileError{Op: model.FileWrite, Path: w.f.Name(), Err: err}
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.f.Close()
}

// Entry is one parsed job log line.
type Entry struct {
	Seqs    []int
	Started time.Time
	Runtime time.Duration
	Status  model.Status
	Exit    int
	Signal  string
	Command string
}

// Read parses every entry of a job log. Header and malformed lines are
// skipped: a partial trailing line from a crashed run must not poison
// the resume.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.FileError{Op: model.FileOpen, Path: path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, ok := parseLine(line)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, &model.FileError{Op: model.FileRead, Path: path, Err: err}
	}
	return entries, nil
}

// Completed returns the set of input positions recorded as successful,
// the positions resume must skip. A missing log simply means nothing
// completed yet.
func Completed(path string) (map[int]bool, error) {
	entries, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int]bool{}, nil
		}
		return nil, err
	}
	done := make(map[int]bool)
	for _, e := range entries {
		if e.Status != model.StatusSuccess {
			continue
		}
		for _, seq := range e.Seqs {
			done[seq] = true
		}
	}
	return done, nil
}

func parseLine(line string) (Entry, bool) {
	fields := strings.SplitN(line, "\t", fieldCount)
	if len(fields) != fieldCount {
		return Entry{}, false
	}
	seqs, err := parseSeqs(fields[0])
	if err != nil {
		return Entry{}, false
	}
	started, err := time.Parse(time.RFC3339Nano, fields[1])
	if err != nil {
		return Entry{}, false
	}
	secs, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Entry{}, false
	}
	status, ok := model.ParseStatus(fields[3])
	if !ok {
		return Entry{}, false
	}
	exit, err := strconv.Atoi(fields[4])
	if err != nil {
		return Entry{}, false
	}
	signal := fields[5]
	if signal == "-" {
		signal = ""
	}
	return Entry{
		Seqs:    seqs,
		Started: started,
		Runtime: time.Duration(secs * float64(time.Second)),
		Status:  status,
		Exit:    exit,
		Signal:  signal,
		Command: fields[6],
	}, true
}

func joinSeqs(seqs []int) string {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

func parseSeqs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	seqs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, n)
	}
	return seqs, nil
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
