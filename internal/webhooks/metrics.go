package webhooks

import (
	"context"
	"time"

	"github.com/valter-silva-au/agentjobs/internal/otel"
	"github.com/valter-silva-au/agentjobs/pkg/models"
	"go.opentelemetry.io/otel/metric"
)

// Delivery outcomes recorded on agentjobs_webhook_deliveries_total.
const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

// DeliveryMetrics records webhook delivery counters. A nil *DeliveryMetrics
// records nothing.
type DeliveryMetrics struct {
	deliveries metric.Int64Counter
	dropped    metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewDeliveryMetrics creates the delivery instruments on meter.
func NewDeliveryMetrics(meter metric.Meter) (*DeliveryMetrics, error) {
	deliveries, err := meter.Int64Counter("agentjobs_webhook_deliveries_total",
		metric.WithDescription("Webhook delivery attempts by event and outcome"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("agentjobs_webhook_dropped_total",
		metric.WithDescription("Webhook deliveries dropped before an attempt was made"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("agentjobs_webhook_delivery_duration_seconds",
		metric.WithDescription("Webhook delivery duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &DeliveryMetrics{deliveries: deliveries, dropped: dropped, duration: duration}, nil
}

func (m *DeliveryMetrics) recordAttempt(ctx context.Context, event models.EventType, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(otel.AttrEvent.String(string(event)), otel.AttrOutcome.String(outcome))
	m.deliveries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}

func (m *DeliveryMetrics) recordDrop(ctx context.Context, event models.EventType, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(otel.AttrEvent.String(string(event)), otel.AttrReason.String(reason)))
}
