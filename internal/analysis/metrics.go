package analysis

import (
	"context"
	"time"

	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/payload"
)

type meteredAnalyzer struct {
	next    Analyzer
	metrics *metrics.Metrics
}

// WithMetrics records outcome, latency, and clip size for every Analyze call.
func WithMetrics(next Analyzer, m *metrics.Metrics) Analyzer {
	if m == nil {
		return next
	}
	return &meteredAnalyzer{next: next, metrics: m}
}

func (a *meteredAnalyzer) Analyze(ctx context.Context, p *payload.Payload) (Report, error) {
	started := time.Now()
	report, err := a.next.Analyze(ctx, p)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := fault.KindOf(err); ok {
			outcome = string(kind)
		}
	}
	var size int64
	if p != nil {
		size = p.SizeBytes()
	}
	a.metrics.RecordAnalysis(ctx, outcome, string(report.Decision), time.Since(started).Seconds(), size)
	return report, err
}
