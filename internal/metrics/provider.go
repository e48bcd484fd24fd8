package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the metrics SDK.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
}

// Provider bundles the SDK meter provider, the instruments created on it, and
// the Prometheus scrape handler.
type Provider struct {
	Metrics *Metrics
	Handler http.Handler

	meterProvider *sdkmetric.MeterProvider
}

// NewProvider builds a meter provider exporting to a private Prometheus
// registry. The global OTel provider is left untouched. Service attributes are
// schemaless so they merge with whatever schema the SDK default resource uses.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "trace"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	met, err := New(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(context.Background()))
	}

	return &Provider{
		Metrics:       met,
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		meterProvider: mp,
	}, nil
}

// Shutdown flushes and closes the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
