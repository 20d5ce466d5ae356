package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	operationMeterName = "operation.service"
)

// OperationMetrics is safe to use through a nil pointer; every method is then a no-op.
type OperationMetrics struct {
	operationsSubmitted metric.Int64Counter
	operationsFinished  metric.Int64Counter
	targetsSettled      metric.Int64Counter
	targetAttempts      metric.Int64Histogram
	targetDuration      metric.Float64Histogram
	operationDuration   metric.Float64Histogram
	persistFailures     metric.Int64Counter
}

func NewOperationMetrics() (*OperationMetrics, error) {
	meter := otel.Meter(operationMeterName)

	operationsSubmitted, err := meter.Int64Counter(
		"bulk_operations_submitted_total",
		metric.WithDescription("Total number of admitted bulk operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	operationsFinished, err := meter.Int64Counter(
		"bulk_operations_finished_total",
		metric.WithDescription("Total number of bulk operations that reached a terminal status"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	targetsSettled, err := meter.Int64Counter(
		"bulk_operation_targets_settled_total",
		metric.WithDescription("Total number of settled targets"),
		metric.WithUnit("{target}"),
	)
	if err != nil {
		return nil, err
	}

	targetAttempts, err := meter.Int64Histogram(
		"bulk_operation_target_attempts",
		metric.WithDescription("Attempts needed to settle a target"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 8),
	)
	if err != nil {
		return nil, err
	}

	targetDuration, err := meter.Float64Histogram(
		"bulk_operation_target_duration_seconds",
		metric.WithDescription("Time spent applying a change to one target, including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
		),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"bulk_operation_duration_seconds",
		metric.WithDescription("Time from start to terminal status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800,
		),
	)
	if err != nil {
		return nil, err
	}

	persistFailures, err := meter.Int64Counter(
		"bulk_operation_persist_failures_total",
		metric.WithDescription("Operation snapshots that could not be persisted after retries"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	return &OperationMetrics{
		operationsSubmitted: operationsSubmitted,
		operationsFinished:  operationsFinished,
		targetsSettled:      targetsSettled,
		targetAttempts:      targetAttempts,
		targetDuration:      targetDuration,
		operationDuration:   operationDuration,
		persistFailures:     persistFailures,
	}, nil
}

func (m *OperationMetrics) RecordSubmitted(ctx context.Context, opType string, targets int) {
	if m == nil {
		return
	}
	m.operationsSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", opType),
		attribute.Int("targets", targets),
	))
}

func (m *OperationMetrics) RecordFinished(ctx context.Context, opType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", opType),
		attribute.String("status", status),
	)
	m.operationsFinished.Add(ctx, 1, attrs)
	if duration > 0 {
		m.operationDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

func (m *OperationMetrics) RecordTargetSettled(ctx context.Context, opType, outcome string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", opType),
		attribute.String("outcome", outcome),
	)
	m.targetsSettled.Add(ctx, 1, attrs)
	m.targetAttempts.Record(ctx, int64(attempts), attrs)
	m.targetDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *OperationMetrics) RecordPersistFailure(ctx context.Context, opType string) {
	if m == nil {
		return
	}
	m.persistFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", opType),
	))
}
