package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rbright/trace/internal/audio"
	"github.com/rbright/trace/internal/cli"
	"github.com/rbright/trace/internal/dump"
	"github.com/rbright/trace/internal/indicator"
	"github.com/rbright/trace/internal/ipc"
	"github.com/rbright/trace/internal/report"
	"github.com/rbright/trace/internal/session"
)

const stateRecording = "recording"

// Record captures the microphone until stop, cancel, the duration limit, or
// ctx, then analyzes the clip. The process owns the IPC socket meanwhile.
func (r Runner) Record(ctx context.Context, g cli.Globals, opts cli.RecordOptions) error {
	e, err := r.setup(g, "record")
	if err != nil {
		return err
	}
	defer e.close()

	v, err := viewOptions(e.loaded.Config.Report, opts.RenderOptions)
	if err != nil {
		return err
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	cfg := e.loaded.Config
	dumps := dump.New(cfg.Debug, e.logger)
	analyzer, _ := r.analyzer(e, dumps)
	notifier := indicator.NewDesktop(cfg.Indicator, e.logger)
	ctrl := session.NewController(session.Options{Logger: e.logger, Analyzer: analyzer, Indicator: notifier})
	defer ctrl.Close()

	opener := r.Opener
	if opener == nil {
		opener = audio.PulseOpener{
			Input:      cfg.Audio.Input,
			Fallback:   cfg.Audio.Fallback,
			SampleRate: cfg.Audio.SampleRate,
			Logger:     e.logger,
		}
	}
	recorder := audio.NewRecorder(opener, cfg.Audio.SampleRate)

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()
	if err := recorder.Start(captureCtx); err != nil {
		notifier.ShowError(ctx, report.FailureOf(err).Title)
		return r.renderFailure(e, v, err)
	}
	notifier.ShowRecording(ctx)
	if device, ok := recorder.Device(); ok {
		e.logger.Info("recording started", "device", device.ID, "description", device.Description)
	}

	owner := &recordOwner{ctrl: ctrl, recorder: recorder, signals: make(chan string, 1)}
	serverCtx, serverCancel := context.WithCancel(ctx)
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, owner)
	}()
	defer func() {
		serverCancel()
		if serverErr := <-serverErrCh; serverErr != nil {
			e.logger.Error("ipc server failed", "error", serverErr.Error())
		}
	}()

	var limit <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		limit = timer.C
	}

	command := ipc.CommandStop
	select {
	case command = <-owner.signals:
	case <-limit:
		e.logger.Info("recording duration reached", "duration", opts.Duration.String())
	case <-ctx.Done():
		command = ipc.CommandCancel
	}

	if command == ipc.CommandCancel {
		if err := recorder.Cancel(); err != nil && !errors.Is(err, audio.ErrNotRecording) {
			e.logger.Warn("release input device failed", "error", err.Error())
		}
		notifier.Hide(ctx)
		e.logger.Info("recording cancelled")
		fmt.Fprintln(r.Stdout, "cancelled")
		return nil
	}

	p, err := recorder.Stop()
	if err != nil {
		notifier.ShowError(ctx, report.FailureOf(err).Title)
		return r.renderFailure(e, v, err)
	}
	dumps.Audio(p)
	e.logger.Info("recording stopped", "name", p.Name(), "bytes", p.SizeBytes())

	return r.runSession(ctx, e, v, ctrl, p)
}

// recordOwner answers IPC commands for a running `trace record`. Stop and
// cancel are only meaningful while the microphone is held; afterwards the
// session controller answers.
type recordOwner struct {
	ctrl     *session.Controller
	recorder *audio.Recorder
	signals  chan string
}

func (o *recordOwner) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStop, ipc.CommandCancel:
		if !o.recorder.Recording() {
			return ipc.Response{OK: false, State: string(o.ctrl.State().Phase()), Error: "not recording"}
		}
		select {
		case o.signals <- req.Command:
		default:
			return ipc.Response{OK: false, State: stateRecording, Error: "stop already requested"}
		}
		message := "stopping"
		if req.Command == ipc.CommandCancel {
			message = "cancelling"
		}
		return ipc.Response{OK: true, State: stateRecording, Message: message}
	case ipc.CommandStatus:
		if device, ok := o.recorder.Device(); ok {
			return ipc.Response{OK: true, State: stateRecording, Message: fmt.Sprintf("capturing from %s", device.ID)}
		}
		return o.ctrl.Handle(ctx, req)
	default:
		return o.ctrl.Handle(ctx, req)
	}
}
