package app

import (
	"context"
	"fmt"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/cli"
	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/dump"
	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/output"
	"github.com/rbright/trace/internal/payload"
	"github.com/rbright/trace/internal/report"
	"github.com/rbright/trace/internal/session"
)

// view is the resolved presentation for one command.
type view struct {
	render report.Options
	copy   bool
}

// viewOptions layers command flags over the report config. A bad --format is a usage error.
func viewOptions(cfg config.ReportConfig, flags cli.RenderOptions) (view, error) {
	raw := cfg.Format
	if flags.Format != "" {
		raw = flags.Format
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		if flags.Format != "" {
			return view{}, cli.UsageError{Err: err}
		}
		return view{}, err
	}
	return view{
		render: report.Options{
			Format:       format,
			Color:        cfg.Color && !flags.NoColor,
			ShowFindings: cfg.ShowFindings,
		},
		copy: cfg.CopySummary || flags.Copy,
	}, nil
}

// Analyze screens one audio file and renders its report.
func (r Runner) Analyze(ctx context.Context, g cli.Globals, opts cli.AnalyzeOptions) error {
	e, err := r.setup(g, "analyze")
	if err != nil {
		return err
	}
	defer e.close()

	v, err := viewOptions(e.loaded.Config.Report, opts.RenderOptions)
	if err != nil {
		return err
	}

	p, err := payload.Open(opts.Path, e.loaded.Config.Upload.MaxBytes)
	if err != nil {
		return r.renderFailure(e, v, err)
	}

	dumps := dump.New(e.loaded.Config.Debug, e.logger)
	analyzer, _ := r.analyzer(e, dumps)
	ctrl := session.NewController(session.Options{Logger: e.logger, Analyzer: analyzer})
	defer ctrl.Close()

	return r.runSession(ctx, e, v, ctrl, p)
}

// runSession selects p on ctrl, analyzes it, and renders the settled state.
func (r Runner) runSession(ctx context.Context, e env, v view, ctrl *session.Controller, p *payload.Payload) error {
	if err := ctrl.Select(p); err != nil {
		p.Release()
		return r.renderFailure(e, v, err)
	}
	if _, err := ctrl.Analyze(ctx); err != nil {
		return r.renderFailure(e, v, err)
	}

	state, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}

	switch s := state.(type) {
	case session.Reported:
		return r.renderReport(ctx, e, v, s.Report)
	case session.Failed:
		return r.renderFailure(e, v, fault.New(s.Kind, "%s", s.Message))
	default:
		return fmt.Errorf("analysis settled in unexpected state %s", state.Phase())
	}
}

func (r Runner) renderReport(ctx context.Context, e env, v view, rep analysis.Report) error {
	if err := report.Render(r.Stdout, rep, v.render); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if v.copy {
		if err := output.NewClipboard(e.loaded.Config.Clipboard, e.logger).CopySummary(ctx, rep); err != nil {
			fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		}
	}
	return nil
}

// renderFailure writes text failures to stderr and structured ones to stdout.
func (r Runner) renderFailure(e env, v view, cause error) error {
	failure := report.FailureOf(cause)
	e.logger.Error("analysis failed", "kind", failure.Kind, "error", cause.Error())

	w := r.Stdout
	if v.render.Format == report.FormatText {
		w = r.Stderr
	}
	if err := report.RenderFailure(w, cause, v.render); err != nil {
		return fmt.Errorf("render failure: %w", err)
	}
	return errReported
}
