package log

import (
	"context"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/parlcmd/parl/internal/model"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds attributes stored in the context to every record,
// so per-run and per-job attrs travel with the ctx instead of being
// repeated at each call site.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New builds the process logger: text to stderr, and when cfg.LogFile
// is set a JSON copy fanned out to the file. Job stdout/stderr never
// goes through the logger, only diagnostics do. The returned close
// function closes the log file.
func New(cfg model.Config) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})

	if cfg.LogFile == "" {
		return slog.New(NewContextHandler(stderrHandler)), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, &model.FileError{Op: model.FileOpen, Path: cfg.LogFile, Err: err}
	}
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})

	handler := NewContextHandler(slogmulti.Fanout(stderrHandler, fileHandler))
	return slog.New(handler), f.Close, nil
}
