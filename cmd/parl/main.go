package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parlcmd/parl/internal/args"
	"github.com/parlcmd/parl/internal/model"
)

var (
	raw             args.Raw
	flagProfilePath string
)

func main() {
	flags := rootCmd.Flags()
	flags.SetInterspersed(false) // the first positional starts the command template

	flags.StringVarP(&raw.Jobs, "jobs", "j", "", "max concurrent jobs (default: number of CPUs)")
	flags.StringVar(&raw.MemFree, "memfree", "", "free memory floor required to start a job, e.g. 512M, 4G")
	flags.StringVar(&raw.Timeout, "timeout", "", "per-job wall clock limit, e.g. 30 or 1m30s")
	flags.StringVar(&raw.Delay, "delay", "", "pause between successive job starts")
	flags.StringVar(&raw.Grace, "grace", "", "interval between TERM and KILL (default 5s)")
	flags.StringVarP(&raw.MaxArgs, "max-args", "n", "", "records consumed per job (default 1)")
	flags.BoolVarP(&raw.Ordered, "keep-order", "k", false, "emit job output in input order")
	flags.BoolVar(&raw.Pipe, "pipe", false, "feed records to a single command on stdin instead of spawning per job")
	flags.BoolVarP(&raw.Quote, "quote", "q", false, "treat the command as one quoted string and re-split it")
	flags.BoolVar(&raw.DryRun, "dry-run", false, "print the commands that would run, without running them")
	flags.StringVar(&raw.WorkDir, "workdir", "", "working directory for spawned jobs")
	flags.StringVar(&raw.JobLog, "joblog", "", "append one line per finished job to this file")
	flags.BoolVar(&raw.Resume, "resume", false, "skip records recorded as successful in the job log")
	flags.BoolVar(&raw.ETA, "eta", false, "log progress and an estimated time of completion")
	flags.StringVarP(&raw.ArgFile, "arg-file", "a", "", "read input records from this file instead of stdin")
	flags.BoolVarP(&raw.Verbose, "verbose", "v", false, "verbose logging")
	flags.StringVar(&raw.LogFile, "log-file", "", "fan diagnostics out to this file as JSON")
	flags.StringVar(&flagProfilePath, "profile", "", "flag defaults file - default is parl.yaml in the current directory")

	// errors are rendered here, not by cobra
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(rootCmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exit(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "parl [flags] command [arguments] [::: inputs]",
	Short: "Run a stream of command invocations concurrently",
	Long: `parl claims input records (lines from a file, stdin or literal
arguments after :::), substitutes them into a command template and runs
the resulting jobs concurrently, bounded by a worker count and an
optional free-memory floor. Output ordering, per-job timeouts and a
resumable job log are supported.`,
	SilenceUsage: true,
	RunE:         doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version prints build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("parl: version info not available")
			return
		}
		fmt.Printf("parl: %s\n", info.Main.Version)
		fmt.Printf("go:   %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			}
		}
	},
}

// exit renders the failure and terminates with a non-zero status.
// Configuration errors get the precise tagged message plus a usage
// hint; job failures and run-fatal errors are logged as-is.
func exit(err error) {
	var parseErr *model.ParseError
	var fileErr *model.FileError
	switch {
	case errors.As(err, &parseErr):
		fmt.Fprintf(os.Stderr, "parl: configuration error: %s\n", parseErr.Error())
		fmt.Fprintln(os.Stderr, "For help on command-line usage, run `parl --help`")
	case errors.As(err, &fileErr):
		fmt.Fprintf(os.Stderr, "parl: %s\n", fileErr.Error())
	case errors.Is(err, errJobsFailed):
		// already accounted in the aggregate exit code; keep stderr quiet
	default:
		slog.Error("parl failed", "error", err)
	}
	os.Exit(1)
}
