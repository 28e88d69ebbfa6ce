// Package otel sets up OpenTelemetry metrics exported in Prometheus format.
package otel

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/valter-silva-au/agentjobs"

// Provider owns a MeterProvider backed by a private Prometheus registry.
type Provider struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// NewProvider builds a Provider for serviceName. The provider is not
// installed globally; callers pass Meter() to the components they build.
func NewProvider(ctx context.Context, serviceName string) (*Provider, error) {
	if serviceName == "" {
		serviceName = "agentjobs"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return &Provider{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}, nil
}

// Meter returns the agentjobs meter.
func (p *Provider) Meter() metric.Meter {
	return p.provider.Meter(meterName)
}

// Handler serves /metrics.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// Common attribute keys for metrics.
var (
	AttrEvent   = attribute.Key("event")
	AttrOutcome = attribute.Key("outcome")
	AttrStatus  = attribute.Key("status")
	AttrReason  = attribute.Key("reason")
)

// TaskCountFunc returns the number of tasks per status.
type TaskCountFunc func(ctx context.Context) (map[string]int64, error)

// RegisterTaskGauge reports agentjobs_tasks by status, sampled from counts
// at every collection.
func RegisterTaskGauge(meter metric.Meter, counts TaskCountFunc) error {
	gauge, err := meter.Int64ObservableGauge("agentjobs_tasks", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		byStatus, err := counts(ctx)
		if err != nil {
			return err
		}
		for status, n := range byStatus {
			o.ObserveInt64(gauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, gauge)
	return err
}
