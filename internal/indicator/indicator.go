// Package indicator surfaces recording and analysis progress as desktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/config"
)

const (
	persistentTimeoutMS = 300000
	reportTimeoutMS     = 10000
	dispatchTimeout     = 400 * time.Millisecond
)

// Desktop routes indicator state through freedesktop notifications. A single
// notification is replaced in place as the session advances.
type Desktop struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
}

// NewDesktop creates an indicator from config.
func NewDesktop(cfg config.IndicatorConfig, logger *slog.Logger) *Desktop {
	return &Desktop{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowRecording signals microphone capture start.
func (d *Desktop) ShowRecording(ctx context.Context) {
	d.show(ctx, notification{summary: d.messages.recording, timeoutMS: persistentTimeoutMS})
}

// ShowAnalyzing signals that a clip was submitted.
func (d *Desktop) ShowAnalyzing(ctx context.Context, name string) {
	d.show(ctx, notification{summary: d.messages.analyzingText(name), timeoutMS: persistentTimeoutMS})
}

// ShowReport displays the verdict with the model's summary as body. Spoof
// verdicts are raised as critical.
func (d *Desktop) ShowReport(ctx context.Context, report analysis.Report) {
	urgency := urgencyNormal
	if report.Decision == analysis.Spoof {
		urgency = urgencyCritical
	}
	d.show(ctx, notification{
		summary:   verdictText(report),
		body:      report.Summary,
		timeoutMS: reportTimeoutMS,
		urgency:   urgency,
	})
}

// ShowError displays an error-state message.
func (d *Desktop) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.show(ctx, notification{summary: text, timeoutMS: timeout, urgency: urgencyCritical})
}

// Hide dismisses the active notification.
func (d *Desktop) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

func (d *Desktop) show(ctx context.Context, n notification) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, n)
	})
}

// notify sends n, replacing the previous notification, and stores the new id.
func (d *Desktop) notify(ctx context.Context, n notification) error {
	d.mu.Lock()
	n.replaceID = d.notificationID
	d.mu.Unlock()

	n.app = strings.TrimSpace(d.cfg.DesktopAppName)
	if n.app == "" {
		n.app = "trace"
	}

	id, err := desktopNotify(ctx, n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notificationID = id
	d.mu.Unlock()
	return nil
}

// dismiss closes the current notification ID when present.
func (d *Desktop) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout. The parent
// context may already be done when a session is torn down.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

func (d *Desktop) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
