// Package analysis submits audio clips to the hosted inference model and
// validates its untrusted reply into a Report.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/payload"
	"google.golang.org/genai"
)

const (
	DefaultModel      = "gemini-2.0-flash-exp"
	DefaultAPIVersion = "v1beta"
	DefaultTimeout    = 45 * time.Second
	DefaultAPIKeyEnv  = "GEMINI_API_KEY"
)

// Analyzer produces a forensic report for one clip.
type Analyzer interface {
	Analyze(ctx context.Context, p *payload.Payload) (Report, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, p *payload.Payload) (Report, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, p *payload.Payload) (Report, error) {
	return f(ctx, p)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	// APIKeyEnv names the environment variable APIKey was read from.
	APIKeyEnv  string
	Model      string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration

	// Generator overrides the genai-backed generator.
	Generator Generator
	Logger    *slog.Logger
	// OnReply receives every raw model reply before validation.
	OnReply func(text string)
}

// Client is the production Analyzer. It makes exactly one call per Analyze.
type Client struct {
	opts Options

	genOnce sync.Once
	gen     Generator
	genErr  error
}

var _ Analyzer = (*Client)(nil)

// New constructs a client. A missing API key is not an error here; it
// surfaces as a Configuration fault on the first Analyze.
func New(opts Options) *Client {
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if strings.TrimSpace(opts.APIVersion) == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.APIKeyEnv) == "" {
		opts.APIKeyEnv = DefaultAPIKeyEnv
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{opts: opts, gen: opts.Generator}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.opts.APIKey) != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.opts.Model
}

func (c *Client) Analyze(ctx context.Context, p *payload.Payload) (Report, error) {
	if !c.Configured() {
		return Report{}, fault.New(fault.Configuration, "no API key configured; set the %s environment variable", c.opts.APIKeyEnv)
	}
	if p == nil || p.SizeBytes() == 0 {
		return Report{}, fault.New(fault.InvalidInput, "audio clip is empty")
	}

	gen, err := c.generator(ctx)
	if err != nil {
		return Report{}, fault.Wrap(fault.Configuration, err, "initialize inference client")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	started := time.Now()
	resp, err := gen.Generate(callCtx, Request{
		Model:    c.opts.Model,
		MIMEType: p.MIMEType(),
		Audio:    p.Data(),
		Prompt:   Prompt,
	})
	elapsed := time.Since(started)
	if err != nil {
		classified := c.classify(callCtx, err)
		c.opts.Logger.Warn("analysis call failed",
			"model", c.opts.Model,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", classified.Error(),
		)
		return Report{}, classified
	}

	if c.opts.OnReply != nil {
		c.opts.OnReply(resp.Text)
	}

	if err := checkResponse(resp); err != nil {
		return Report{}, err
	}

	report, err := parseReply(resp.Text)
	if err != nil {
		c.opts.Logger.Warn("analysis reply rejected",
			"model", c.opts.Model,
			"reply_chars", len(resp.Text),
			"error", err.Error(),
		)
		return Report{}, err
	}

	c.opts.Logger.Info("analysis complete",
		"model", c.opts.Model,
		"elapsed_ms", elapsed.Milliseconds(),
		"bytes", p.SizeBytes(),
		"decision", string(report.Decision),
		"confidence", report.Scores.Confidence,
	)
	return report, nil
}

func (c *Client) generator(ctx context.Context) (Generator, error) {
	c.genOnce.Do(func() {
		if c.gen != nil {
			return
		}
		c.gen, c.genErr = NewGeminiGenerator(ctx, GeminiConfig{
			APIKey:     c.opts.APIKey,
			BaseURL:    c.opts.BaseURL,
			APIVersion: c.opts.APIVersion,
		})
	})
	return c.gen, c.genErr
}

func (c *Client) classify(callCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fault.Wrap(fault.Transport, err, "analysis timed out after %s", c.opts.Timeout)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Transport, err, "analysis cancelled")
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstreamError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return upstreamError(*apiErrPtr, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fault.Wrap(fault.Transport, err, "reach inference service")
	}
	return fault.Wrap(fault.Upstream, err, "inference call failed")
}

func upstreamError(apiErr genai.APIError, err error) error {
	if apiErr.Code == 401 || apiErr.Code == 403 {
		return fault.Wrap(fault.Configuration, err, "inference service rejected the API key")
	}
	return fault.Wrap(fault.Upstream, err, "inference service returned %d %s", apiErr.Code, apiErr.Status)
}

// checkResponse rejects replies that carry no usable verdict text.
func checkResponse(resp Response) error {
	if resp.BlockReason != "" {
		return fault.New(fault.Upstream, "request was blocked by the model (%s)", resp.BlockReason)
	}
	if resp.Candidates == 0 {
		return fault.New(fault.Upstream, "model returned no candidates")
	}
	switch genai.FinishReason(resp.FinishReason) {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return fault.New(fault.Upstream, "model stopped for safety (%s)", resp.FinishReason)
	}
	if strings.TrimSpace(resp.Text) == "" {
		if resp.FinishReason != "" && genai.FinishReason(resp.FinishReason) != genai.FinishReasonStop {
			return fault.New(fault.Upstream, "model returned no text (finish reason %s)", resp.FinishReason)
		}
		return fault.New(fault.Upstream, "model returned an empty reply")
	}
	return nil
}
