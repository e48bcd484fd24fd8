// Package session coordinates the select → analyze → report lifecycle for one user.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/fsm"
	"github.com/rbright/trace/internal/ipc"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/payload"
)

var (
	// ErrBusy indicates a user action arrived while an analysis is in flight.
	ErrBusy = errors.New("analysis in progress")
	// ErrClosed indicates the controller has been shut down.
	ErrClosed = errors.New("session closed")
	// ErrNoClip indicates there is no pending or in-flight clip.
	ErrNoClip = errors.New("no audio clip selected")
)

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowAnalyzing(context.Context, string)
	ShowReport(context.Context, analysis.Report)
	ShowError(context.Context, string)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowAnalyzing(context.Context, string)       {}
func (noopIndicator) ShowReport(context.Context, analysis.Report) {}
func (noopIndicator) ShowError(context.Context, string)           {}

// Options wires a controller's collaborators. Only Analyzer is required.
type Options struct {
	Logger    *slog.Logger
	Analyzer  analysis.Analyzer
	Indicator Indicator
	Metrics   *metrics.Metrics
}

// Controller owns one session's state. Transitions are serialized; the
// analyzer runs on its own goroutine without holding the lock.
type Controller struct {
	logger    *slog.Logger
	analyzer  analysis.Analyzer
	indicator Indicator
	metrics   *metrics.Metrics

	mu       sync.Mutex
	state    State
	version  uint64
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	watchers map[chan Snapshot]struct{}
}

// NewController constructs a controller in Idle with no clip selected.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.AnalyzerFunc(func(context.Context, *payload.Payload) (analysis.Report, error) {
			return analysis.Report{}, fault.New(fault.Configuration, "no analyzer configured")
		})
	}
	if opts.Indicator == nil {
		opts.Indicator = noopIndicator{}
	}
	return &Controller{
		logger:    opts.Logger,
		analyzer:  opts.Analyzer,
		indicator: opts.Indicator,
		metrics:   opts.Metrics,
		state:     Idle{},
		watchers:  make(map[chan Snapshot]struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the serializable view of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotOf(c.state, c.version)
}

// Select makes p the pending clip, discarding any previous clip, report, or
// error. On error the caller keeps ownership of p.
func (c *Controller) Select(p *payload.Payload) error {
	if p == nil {
		return fault.New(fault.InvalidInput, "no audio clip selected")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(fsm.EventSelect); err != nil {
		return err
	}
	payloadOf(c.state).Release()
	c.setLocked(Idle{Payload: p})
	c.logger.Debug("clip selected", "name", p.Name(), "mime_type", p.MIMEType(), "bytes", p.SizeBytes())
	return nil
}

// Analyze submits the pending clip. It reports false without changing state
// when there is nothing to analyze, and ErrBusy while an analysis is running.
// The analysis outlives ctx's cancellation; Close stops it.
func (c *Controller) Analyze(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.state.Phase().Busy() {
		c.mu.Unlock()
		return false, ErrBusy
	}
	idle, ok := c.state.(Idle)
	if !ok || idle.Payload == nil {
		c.mu.Unlock()
		return false, nil
	}
	if _, err := fsm.Transition(c.state.Phase(), fsm.EventAnalyze); err != nil {
		c.mu.Unlock()
		return false, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.setLocked(Analyzing{Payload: idle.Payload})
	c.mu.Unlock()

	c.indicator.ShowAnalyzing(runCtx, idle.Payload.Name())
	go c.run(runCtx, idle.Payload, done)
	return true, nil
}

func (c *Controller) run(ctx context.Context, p *payload.Payload, done chan struct{}) {
	defer close(done)

	report, err := c.analyzer.Analyze(ctx, p)
	p.Release()

	notify := c.settle(p, report, err)
	notify(context.WithoutCancel(ctx))
}

// settle installs the analysis outcome and returns the matching indicator call.
func (c *Controller) settle(p *payload.Payload, report analysis.Report, err error) func(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.closed {
		c.state = Idle{}
		return func(context.Context) {}
	}

	event := fsm.EventSucceed
	if err != nil {
		event = fsm.EventFail
	}
	if _, terr := fsm.Transition(c.state.Phase(), event); terr != nil {
		c.logger.Error("analysis outcome dropped", "clip", p.Name(), "error", terr.Error())
		return func(context.Context) {}
	}

	if err != nil {
		kind, ok := fault.KindOf(err)
		if !ok {
			kind = fault.Upstream
		}
		c.setLocked(Failed{Kind: kind, Message: err.Error()})
		c.logger.Warn("analysis failed", "clip", p.Name(), "kind", string(kind), "error", err.Error())
		return func(ctx context.Context) { c.indicator.ShowError(ctx, kind.Title()) }
	}

	c.setLocked(Reported{Report: report})
	c.logger.Info("analysis reported",
		"clip", p.Name(),
		"decision", string(report.Decision),
		"confidence", report.Scores.Confidence,
		"findings", report.Findings.Count(),
	)
	return func(ctx context.Context) { c.indicator.ShowReport(ctx, report) }
}

// Reset discards everything and returns to Idle with no clip.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(fsm.EventReset); err != nil {
		return err
	}
	payloadOf(c.state).Release()
	c.setLocked(Idle{})
	return nil
}

// Preview returns a playable file holding the pending or in-flight clip and
// its MIME type. The file is removed when the clip is discarded.
func (c *Controller) Preview() (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", "", ErrClosed
	}
	p := payloadOf(c.state)
	if p == nil || p.Released() {
		return "", "", ErrNoClip
	}
	path, err := p.Preview()
	if err != nil {
		if p.Released() {
			return "", "", ErrNoClip
		}
		return "", "", err
	}
	return path, p.MIMEType(), nil
}

// Wait blocks until no analysis is in flight and returns the settled state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		state, done, closed := c.state, c.done, c.closed
		c.mu.Unlock()

		if closed {
			return state, ErrClosed
		}
		if !state.Phase().Busy() {
			return state, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Watch streams snapshots, starting with the current one, until ctx is done
// or the controller closes. Slow receivers only see the newest snapshot.
func (c *Controller) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- snapshotOf(c.state, c.version)
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[ch]; ok {
			delete(c.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// Close cancels any in-flight analysis, releases the held clip, and ends all watches.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	payloadOf(c.state).Release()
	if !c.state.Phase().Busy() {
		c.state = Idle{}
	}
	for ch := range c.watchers {
		delete(c.watchers, ch)
		close(ch)
	}
}

// Handle serves IPC commands addressed to this session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		state := c.State()
		resp := ipc.Response{OK: true, State: string(state.Phase()), Message: Describe(state)}
		if reported, ok := state.(Reported); ok {
			resp.Decision = string(reported.Report.Decision)
		}
		return resp
	case ipc.CommandReset:
		if err := c.Reset(); err != nil {
			return ipc.Response{OK: false, State: string(c.State().Phase()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(fsm.StateIdle), Message: "reset"}
	default:
		return ipc.Unknown(string(c.State().Phase()), req.Command)
	}
}

// Describe renders a one-line status for a state.
func Describe(state State) string {
	switch s := state.(type) {
	case Idle:
		if s.Payload == nil {
			return "waiting for audio"
		}
		return fmt.Sprintf("ready: %s (%d bytes)", s.Payload.Name(), s.Payload.SizeBytes())
	case Analyzing:
		return fmt.Sprintf("analyzing %s", s.Payload.Name())
	case Reported:
		return fmt.Sprintf("%s (confidence %.0f%%)", s.Report.Decision, s.Report.Scores.Confidence*100)
	case Failed:
		return fmt.Sprintf("%s: %s", s.Kind.Title(), s.Message)
	default:
		return "unknown"
	}
}

// guardLocked rejects user events while closed or busy.
func (c *Controller) guardLocked(event fsm.Event) error {
	if c.closed {
		return ErrClosed
	}
	if c.state.Phase().Busy() {
		return ErrBusy
	}
	_, err := fsm.Transition(c.state.Phase(), event)
	return err
}

// setLocked installs next, bumps the version, and notifies watchers.
func (c *Controller) setLocked(next State) {
	from := c.state.Phase()
	c.state = next
	c.version++
	c.metrics.RecordTransition(context.Background(), string(from), string(next.Phase()))

	snap := snapshotOf(c.state, c.version)
	for ch := range c.watchers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
