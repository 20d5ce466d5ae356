package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const rateLimitMeterName = "ratelimit.gate"

type RateLimitMetrics struct {
	rejections metric.Int64Counter
}

func NewRateLimitMetrics() (*RateLimitMetrics, error) {
	rejections, err := otel.Meter(rateLimitMeterName).Int64Counter(
		"rate_limit_rejections_total",
		metric.WithDescription("Requests rejected by a rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &RateLimitMetrics{rejections: rejections}, nil
}

// RecordRejection counts one rejected request. Client keys are left out to
// keep cardinality bounded.
func (m *RateLimitMetrics) RecordRejection(ctx context.Context, limiter string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", limiter)))
}
