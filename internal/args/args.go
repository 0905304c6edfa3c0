// Package args turns raw, user-supplied parameter values into a fully
// validated model.Config. Every distinct validation failure maps to a
// tagged model.ParseError so the CLI layer can render a precise message
// and exit; a bad configuration is never partially applied.
package args

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/parlcmd/parl/internal/model"
)

// InputSeparator splits command tokens from literal input records on
// the command line: parl CMD ::: a b c
const InputSeparator = ":::"

// Raw carries the uninterpreted flag values exactly as the CLI layer
// received them. Empty strings mean the flag was not given.
type Raw struct {
	Jobs    string
	MemFree string
	Timeout string
	Delay   string
	Grace   string
	MaxArgs string

	Ordered bool
	Pipe    bool
	Quote   bool
	DryRun  bool
	Resume  bool
	ETA     bool
	Verbose bool

	WorkDir string
	JobLog  string
	LogFile string
	ArgFile string

	// Argv are the positional arguments: the command template,
	// optionally followed by ::: and literal inputs.
	Argv []string
}

// Parse validates raw into an immutable Config. All errors are
// *model.ParseError.
func Parse(raw Raw) (model.Config, error) {
	var cfg model.Config
	var err error

	cfg.Jobs, err = parseJobs(raw.Jobs)
	if err != nil {
		return model.Config{}, err
	}
	cfg.GroupSize, err = parseMaxArgs(raw.MaxArgs)
	if err != nil {
		return model.Config{}, err
	}
	cfg.MemFree, err = parseMemory(raw.MemFree)
	if err != nil {
		return model.Config{}, err
	}
	cfg.Timeout, err = parseDuration(raw.Timeout, model.ParseTimeoutNaN)
	if err != nil {
		return model.Config{}, err
	}
	cfg.Delay, err = parseDuration(raw.Delay, model.ParseDelayNaN)
	if err != nil {
		return model.Config{}, err
	}
	cfg.Grace, err = parseDuration(raw.Grace, model.ParseGraceNaN)
	if err != nil {
		return model.Config{}, err
	}
	if cfg.Grace == 0 {
		cfg.Grace = 5 * time.Second
	}

	command, inputs, sawSeparator := splitArgv(raw.Argv)
	if raw.Quote && len(command) > 0 {
		command, err = SplitQuoted(strings.Join(command, " "))
		if err != nil {
			return model.Config{}, err
		}
	}
	if len(command) == 0 {
		return model.Config{}, &model.ParseError{Kind: model.ParseNoArguments}
	}
	if sawSeparator && len(inputs) == 0 {
		return model.Config{}, &model.ParseError{Kind: model.ParseNoInput}
	}

	if raw.ArgFile != "" {
		info, statErr := os.Stat(raw.ArgFile)
		if statErr != nil || info.IsDir() {
			if statErr == nil {
				statErr = &os.PathError{Op: "open", Path: raw.ArgFile, Err: os.ErrInvalid}
			}
			return model.Config{}, &model.ParseError{
				Kind: model.ParseFile,
				Err:  &model.FileError{Op: model.FileOpen, Path: raw.ArgFile, Err: statErr},
			}
		}
	}

	cfg.Command = command
	cfg.Inputs = inputs
	cfg.ArgFile = raw.ArgFile
	cfg.WorkDir = raw.WorkDir
	cfg.JobLog = raw.JobLog
	cfg.LogFile = raw.LogFile
	cfg.Resume = raw.Resume
	cfg.DryRun = raw.DryRun
	cfg.ETA = raw.ETA
	cfg.Verbose = raw.Verbose

	cfg.Ordering = model.OrderingCompletion
	if raw.Ordered {
		cfg.Ordering = model.OrderingInput
	}
	cfg.ExecMode = model.ExecModeTemplate
	if raw.Pipe {
		cfg.ExecMode = model.ExecModePipe
	}
	return cfg, nil
}

func splitArgv(argv []string) (command, inputs []string, sawSeparator bool) {
	for i, a := range argv {
		if a == InputSeparator {
			return argv[:i], argv[i+1:], true
		}
	}
	return argv, nil, false
}

func parseJobs(s string) (int, error) {
	if s == "" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &model.ParseError{Kind: model.ParseJobsNaN, Value: s}
	}
	return n, nil
}

func parseMaxArgs(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &model.ParseError{Kind: model.ParseMaxArgsNaN, Value: s}
	}
	return n, nil
}

// parseDuration accepts Go duration syntax ("500ms", "2m") and, for
// compatibility with the classic flag surface, bare numbers meaning
// seconds.
func parseDuration(s string, kind model.ParseKind) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, &model.ParseError{Kind: kind, Value: s}
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, &model.ParseError{Kind: kind, Value: s}
	}
	return d, nil
}

// parseMemory reads a memory floor such as "512M", "4G" or a plain
// byte count. Suffixes K, M, G, T are powers of 1024.
func parseMemory(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	mult := uint64(1)
	num := s
	switch suffix := s[len(s)-1]; suffix {
	case 'K', 'k':
		mult, num = 1<<10, s[:len(s)-1]
	case 'M', 'm':
		mult, num = 1<<20, s[:len(s)-1]
	case 'G', 'g':
		mult, num = 1<<30, s[:len(s)-1]
	case 'T', 't':
		mult, num = 1<<40, s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, &model.ParseError{Kind: model.ParseMemInvalid, Value: s}
	}
	return uint64(n * float64(mult)), nil
}

// SplitQuoted splits a raw command string into tokens, honoring single
// quotes, double quotes and backslash escapes. An unterminated quote is
// the NonTerminated configuration error carrying the offending command.
func SplitQuoted(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var inToken bool
	const (
		plain = iota
		single
		double
	)
	state := plain
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && state != single:
			escaped = true
			inToken = true
		case state == single:
			if r == '\'' {
				state = plain
			} else {
				cur.WriteRune(r)
			}
		case state == double:
			if r == '"' {
				state = plain
			} else {
				cur.WriteRune(r)
			}
		case r == '\'':
			state = single
			inToken = true
		case r == '"':
			state = double
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if state != plain || escaped {
		return nil, &model.ParseError{Kind: model.ParseNonTerminated, Value: s}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
