package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/payload"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	calls   atomic.Int32
	last    Request
	respond func(ctx context.Context, req Request) (Response, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	g.calls.Add(1)
	g.last = req
	return g.respond(ctx, req)
}

func replyWith(text string) *fakeGenerator {
	return &fakeGenerator{respond: func(context.Context, Request) (Response, error) {
		return Response{Text: text, Candidates: 1, FinishReason: string(genai.FinishReasonStop)}, nil
	}}
}

func testClip(t *testing.T) *payload.Payload {
	t.Helper()
	p, err := payload.New("clip.wav", "audio/wav", make([]byte, 24000))
	require.NoError(t, err)
	return p
}

func TestAnalyzeWithoutAPIKeyNeverCallsGenerator(t *testing.T) {
	gen := replyWith(spoofReply)
	client := New(Options{Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Configuration))
	require.Contains(t, err.Error(), "GEMINI_API_KEY")
	require.Equal(t, int32(0), gen.calls.Load())
	require.False(t, client.Configured())
}

func TestMissingAPIKeyNamesConfiguredVariable(t *testing.T) {
	gen := replyWith(spoofReply)
	client := New(Options{APIKeyEnv: "TRACE_KEY", Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Configuration))
	require.Contains(t, err.Error(), "set the TRACE_KEY environment variable")
	require.NotContains(t, err.Error(), "GEMINI_API_KEY")
}

func TestAnalyzeSendsAudioAndPrompt(t *testing.T) {
	gen := replyWith(spoofReply)
	client := New(Options{APIKey: "k", Generator: gen})

	report, err := client.Analyze(context.Background(), testClip(t))
	require.NoError(t, err)
	require.Equal(t, Spoof, report.Decision)
	require.InDelta(t, 0.91, report.Scores.Confidence, 1e-9)

	require.Equal(t, int32(1), gen.calls.Load())
	require.Equal(t, DefaultModel, gen.last.Model)
	require.Equal(t, "audio/wav", gen.last.MIMEType)
	require.Len(t, gen.last.Audio, 24000)
	require.Equal(t, Prompt, gen.last.Prompt)
}

func TestAnalyzeEmptyClipIsInvalidInput(t *testing.T) {
	gen := replyWith(spoofReply)
	client := New(Options{APIKey: "k", Generator: gen})

	empty, err := payload.New("recording.wav", "audio/wav", nil)
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), empty)
	require.True(t, fault.Is(err, fault.InvalidInput))
	require.Equal(t, int32(0), gen.calls.Load())
}

func TestAnalyzeTimeoutIsTransport(t *testing.T) {
	gen := &fakeGenerator{respond: func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}}
	client := New(Options{APIKey: "k", Generator: gen, Timeout: 20 * time.Millisecond})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Transport))
	require.Contains(t, err.Error(), "timed out")
}

func TestAnalyzeNetworkErrorIsTransport(t *testing.T) {
	gen := &fakeGenerator{respond: func(context.Context, Request) (Response, error) {
		return Response{}, &netTimeout{}
	}}
	client := New(Options{APIKey: "k", Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Transport))
}

type netTimeout struct{}

func (*netTimeout) Error() string   { return "dial tcp: i/o timeout" }
func (*netTimeout) Timeout() bool   { return true }
func (*netTimeout) Temporary() bool { return true }

func TestAnalyzeAPIErrorIsUpstream(t *testing.T) {
	gen := &fakeGenerator{respond: func(context.Context, Request) (Response, error) {
		return Response{}, genai.APIError{Code: 500, Status: "INTERNAL", Message: "backend exploded"}
	}}
	client := New(Options{APIKey: "k", Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Upstream))
	require.Contains(t, err.Error(), "500")
}

func TestAnalyzeRejectedKeyIsConfiguration(t *testing.T) {
	gen := &fakeGenerator{respond: func(context.Context, Request) (Response, error) {
		return Response{}, genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "API key not valid"}
	}}
	client := New(Options{APIKey: "bad", Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Configuration))
}

func TestAnalyzeUnclassifiedErrorIsUpstream(t *testing.T) {
	gen := &fakeGenerator{respond: func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("unexpected response shape")
	}}
	client := New(Options{APIKey: "k", Generator: gen})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Upstream))
}

func TestAnalyzeResponseChecks(t *testing.T) {
	cases := []struct {
		name string
		resp Response
	}{
		{"blocked", Response{BlockReason: "SAFETY"}},
		{"no candidates", Response{}},
		{"safety stop", Response{Candidates: 1, FinishReason: string(genai.FinishReasonSafety), Text: spoofReply}},
		{"empty text", Response{Candidates: 1, FinishReason: string(genai.FinishReasonStop)}},
		{"max tokens without text", Response{Candidates: 1, FinishReason: string(genai.FinishReasonMaxTokens)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{respond: func(context.Context, Request) (Response, error) { return tc.resp, nil }}
			_, err := New(Options{APIKey: "k", Generator: gen}).Analyze(context.Background(), testClip(t))
			require.True(t, fault.Is(err, fault.Upstream), "got %v", err)
		})
	}
}

func TestAnalyzeMalformedReply(t *testing.T) {
	gen := replyWith(`{"summary":"no verdict here","explanation":"x","scores":{"authenticity_score":0.5,"confidence":0.5}}`)
	var seen string
	client := New(Options{APIKey: "k", Generator: gen, OnReply: func(text string) { seen = text }})

	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.MalformedResponse))
	require.Contains(t, seen, "no verdict here")
}

func TestGeminiGeneratorAgainstFakeEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		reply, _ := json.Marshal(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": spoofReply}}},
				"finishReason": "STOP",
			}},
		})
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	client := New(Options{APIKey: "secret", BaseURL: srv.URL + "/"})
	report, err := client.Analyze(context.Background(), testClip(t))
	require.NoError(t, err)
	require.Equal(t, Spoof, report.Decision)

	require.True(t, strings.HasSuffix(gotPath, "models/"+DefaultModel+":generateContent"), gotPath)
	require.Contains(t, gotBody, "contents")
}

func TestGeminiGeneratorUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Unsupported MIME type","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	client := New(Options{APIKey: "secret", BaseURL: srv.URL + "/"})
	_, err := client.Analyze(context.Background(), testClip(t))
	require.True(t, fault.Is(err, fault.Upstream), "got %v", err)
}

func TestWithMetricsRecordsOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := metrics.New(mp)
	require.NoError(t, err)

	ok := WithMetrics(New(Options{APIKey: "k", Generator: replyWith(spoofReply)}), m)
	_, err = ok.Analyze(context.Background(), testClip(t))
	require.NoError(t, err)

	unconfigured := WithMetrics(New(Options{}), m)
	_, err = unconfigured.Analyze(context.Background(), testClip(t))
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "trace.analysis.requests" {
				continue
			}
			sum := metric.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	require.Equal(t, int64(2), total)
}

func TestWithMetricsNilPassthrough(t *testing.T) {
	inner := New(Options{})
	require.Same(t, Analyzer(inner), WithMetrics(inner, nil))
}
