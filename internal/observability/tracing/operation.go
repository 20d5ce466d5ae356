package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const operationTracerName = "github.com/KasumiMercury/primind-bulk-operations/internal/service/operation"

func OperationTracer() trace.Tracer {
	return otel.Tracer(operationTracerName)
}

func StartOperationSpan(ctx context.Context, operationID, operationType string, targets, concurrency int) (context.Context, trace.Span) {
	return OperationTracer().Start(ctx, "operation.process",
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.type", operationType),
			attribute.Int("operation.targets", targets),
			attribute.Int("operation.concurrency", concurrency),
		),
	)
}

func StartTargetApplySpan(ctx context.Context, operationID, target string) (context.Context, trace.Span) {
	return OperationTracer().Start(ctx, "operation.apply_target",
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("target", target),
		),
	)
}

func StartExternalAPISpan(ctx context.Context, operation, url string) (context.Context, trace.Span) {
	return OperationTracer().Start(ctx, "operation.external_api."+operation,
		trace.WithAttributes(
			attribute.String("url", url),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func RecordOperationResult(span trace.Span, status string, successful, failed int) {
	span.SetAttributes(
		attribute.String("operation.status", status),
		attribute.Int("operation.successful_count", successful),
		attribute.Int("operation.failed_count", failed),
	)
	if failed > 0 && successful == 0 {
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// InjectToHTTPRequest propagates the span in ctx to an outgoing request.
func InjectToHTTPRequest(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// ExtractFromHTTPRequest continues a trace started by the caller.
func ExtractFromHTTPRequest(req *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
}
