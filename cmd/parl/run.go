package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parlcmd/parl/internal/args"
	"github.com/parlcmd/parl/internal/collect"
	"github.com/parlcmd/parl/internal/input"
	"github.com/parlcmd/parl/internal/joblog"
	"github.com/parlcmd/parl/internal/log"
	"github.com/parlcmd/parl/internal/model"
	"github.com/parlcmd/parl/internal/pool"
)

// errJobsFailed marks runs where the engine itself worked but at least
// one job did not succeed; the process still exits non-zero.
var errJobsFailed = errors.New("jobs failed")

func doRun(cmd *cobra.Command, argv []string) error {
	raw.Argv = argv
	if err := applyProfile(&raw); err != nil {
		return err
	}
	cfg, err := args.Parse(raw)
	if err != nil {
		return err
	}

	logger, closeLog, err := log.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()
	slog.SetDefault(logger)

	runID := uuid.NewString()
	ctx := log.ContextAttrs(cmd.Context(),
		slog.Group("parl",
			slog.String("run", runID),
			slog.Int("pid", os.Getpid()),
		))
	slog.DebugContext(ctx, "starting run",
		"jobs", cfg.Jobs, "ordering", cfg.Ordering, "mode", cfg.ExecMode)

	source, err := newSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	if cfg.Resume && cfg.JobLog != "" {
		done, err := joblog.Completed(cfg.JobLog)
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "resuming", "completed", len(done))
		source.WithSkip(done)
	}

	var logw *joblog.Writer
	if cfg.JobLog != "" && !cfg.DryRun {
		logw, err = joblog.NewWriter(cfg.JobLog, runID)
		if err != nil {
			return err
		}
		defer func() {
			_ = logw.Close()
		}()
	}

	collector := collect.New(cfg, os.Stdout, os.Stderr)
	engine, err := pool.New(cfg, source, collector, logw)
	if err != nil {
		return err
	}
	if err := engine.Run(ctx); err != nil {
		return err
	}

	if failed := collector.Failed(); failed > 0 {
		slog.InfoContext(ctx, "run finished with failures",
			"failed", failed, "total", collector.Reported())
		return errJobsFailed
	}
	slog.DebugContext(ctx, "run finished", "total", collector.Reported())
	return nil
}

func newSource(cfg model.Config) (*input.Source, error) {
	switch {
	case len(cfg.Inputs) > 0:
		return input.NewLiteral(cfg.Inputs), nil
	case cfg.ArgFile != "":
		return input.NewFile(cfg.ArgFile, cfg.ETA)
	default:
		return input.NewReader(os.Stdin, "stdin"), nil
	}
}

// applyProfile fills flag values the user left unset from the optional
// profile file, --profile or ./parl.yaml.
func applyProfile(raw *args.Raw) error {
	path := flagProfilePath
	if path == "" {
		if _, err := os.Stat("parl.yaml"); err != nil {
			return nil
		}
		path = "parl.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		return &model.ParseError{
			Kind: model.ParseFile,
			Err:  &model.FileError{Op: model.FileOpen, Path: path, Err: err},
		}
	}
	defer func() {
		_ = f.Close()
	}()
	profile, err := args.LoadProfile(f)
	if err != nil {
		return fmt.Errorf("parsing profile %s: %w", path, err)
	}
	profile.Apply(raw)
	return nil
}
