package model

import (
	"fmt"
)

// FileOp tags which filesystem operation on the unprocessed-input or
// job-log file failed.
type FileOp string

const (
	FileOpen  FileOp = "open"
	FileRead  FileOp = "read"
	FileWrite FileOp = "write"
)

// FileError wraps an I/O failure with the operation and the path it
// happened on. Any FileError during setup or input reading is fatal to
// the whole run.
type FileError struct {
	Op   FileOp
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("unable to %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ParseKind enumerates every distinct configuration validation failure.
type ParseKind int

const (
	// ParseDelayNaN means the delay parameter is not a duration.
	ParseDelayNaN ParseKind = iota
	// ParseJobsNaN means the jobs parameter is not a number.
	ParseJobsNaN
	// ParseTimeoutNaN means the timeout parameter is not a duration.
	ParseTimeoutNaN
	// ParseGraceNaN means the grace parameter is not a duration.
	ParseGraceNaN
	// ParseMaxArgsNaN means the group-size parameter is not a number.
	ParseMaxArgsNaN
	// ParseMemInvalid means the memfree parameter has a bad value or suffix.
	ParseMemInvalid
	// ParseNoValue means a flag that requires a value got none.
	ParseNoValue
	// ParseNoArguments means no command was given, so nothing can run.
	ParseNoArguments
	// ParseNoInput means no input source (file, stdin, literals) exists.
	ParseNoInput
	// ParseNonTerminated means the quoted command string never closes.
	ParseNonTerminated
	// ParseFile wraps a FileError hit while applying the configuration.
	ParseFile
)

// ParseError is one tagged configuration failure carrying just enough
// context (the offending flag or value) to render a precise message.
// The process must exit with code 1 after rendering it; a bad
// configuration is never partially applied.
type ParseError struct {
	Kind  ParseKind
	Flag  string // flag name, for ParseNoValue
	Value string // offending value or command string
	Err   error  // underlying error, for ParseFile
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ParseDelayNaN:
		return fmt.Sprintf("delay parameter, '%s', is not a duration", e.Value)
	case ParseJobsNaN:
		return fmt.Sprintf("jobs parameter, '%s', is not a number", e.Value)
	case ParseTimeoutNaN:
		return fmt.Sprintf("timeout parameter, '%s', is not a duration", e.Value)
	case ParseGraceNaN:
		return fmt.Sprintf("grace parameter, '%s', is not a duration", e.Value)
	case ParseMaxArgsNaN:
		return fmt.Sprintf("max-args parameter, '%s', is not a number", e.Value)
	case ParseMemInvalid:
		return fmt.Sprintf("invalid memory value: %s", e.Value)
	case ParseNoValue:
		return fmt.Sprintf("no %s parameter was defined", e.Flag)
	case ParseNoArguments:
		return "no command was given"
	case ParseNoInput:
		return "no input arguments were given"
	case ParseNonTerminated:
		return fmt.Sprintf("command is not properly terminated:\n  $ %s\nTip: use the --quote parameter to escape your command", e.Value)
	case ParseFile:
		return e.Err.Error()
	default:
		return "unknown configuration error"
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
