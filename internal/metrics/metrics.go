// Package metrics owns the OpenTelemetry instruments recorded by trace and the
// Prometheus bridge that exposes them on /metrics.
//
// Tests should build instruments with [New] over an isolated
// [metric.MeterProvider] (usually an sdkmetric ManualReader) instead of the
// process-wide provider.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/trace"

// Metrics holds every instrument recorded by the service.
type Metrics struct {
	// AnalysisDuration tracks inference round-trip latency. Attributes: outcome.
	AnalysisDuration metric.Float64Histogram

	// AnalysisRequests counts analysis attempts. Attributes: outcome, decision.
	AnalysisRequests metric.Int64Counter

	// PayloadBytes tracks submitted clip sizes.
	PayloadBytes metric.Int64Histogram

	// SessionTransitions counts lifecycle transitions. Attributes: from, to.
	SessionTransitions metric.Int64Counter

	// ActiveSessions tracks sessions held by the HTTP registry.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60,
}

var sizeBuckets = []float64{
	16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 10 << 20, 20 << 20,
}

// New creates all instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("trace.analysis.duration",
		metric.WithDescription("Latency of one inference round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisRequests, err = m.Int64Counter("trace.analysis.requests",
		metric.WithDescription("Total analysis attempts by outcome and decision."),
	); err != nil {
		return nil, err
	}
	if met.PayloadBytes, err = m.Int64Histogram("trace.payload.size",
		metric.WithDescription("Size of submitted audio clips."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("trace.session.transitions",
		metric.WithDescription("Total session lifecycle transitions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("trace.sessions.active",
		metric.WithDescription("Number of sessions held by the HTTP registry."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("trace.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordAnalysis records one completed analysis attempt.
func (m *Metrics) RecordAnalysis(ctx context.Context, outcome string, decision string, seconds float64, sizeBytes int64) {
	if m == nil {
		return
	}
	m.AnalysisRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("decision", decision),
	))
	m.AnalysisDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.PayloadBytes.Record(ctx, sizeBytes)
}

// RecordTransition records one session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from string, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// SessionOpened and SessionClosed adjust the active session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(ctx context.Context, method string, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
