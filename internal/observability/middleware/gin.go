package middleware

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/metrics"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/tracing"
)

const RequestIDHeader = "x-request-id"

type GinConfig struct {
	// SkipPaths are served without access logs or spans.
	SkipPaths   []string
	Module      logging.Module
	TracerName  string
	HTTPMetrics *metrics.HTTPMetrics
}

// Gin tags each request with a request id, continues the caller's trace,
// writes an access log line and records HTTP metrics.
func Gin(cfg GinConfig) gin.HandlerFunc {
	tracer := otel.Tracer(cfg.TracerName)

	return func(c *gin.Context) {
		start := time.Now()

		requestID := logging.ValidateAndExtractRequestID(c.GetHeader(RequestIDHeader))
		c.Header(RequestIDHeader, requestID)

		ctx := tracing.ExtractFromHTTPRequest(c.Request)
		ctx = logging.WithRequestID(ctx, requestID)
		if cfg.Module != "" {
			ctx = logging.WithModule(ctx, cfg.Module)
		}

		skip := slices.Contains(cfg.SkipPaths, c.Request.URL.Path)

		var span trace.Span
		if !skip {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			ctx, span = tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", c.Request.Method),
					attribute.String("http.route", route),
					attribute.String("request_id", requestID),
				),
			)
			defer span.End()
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if skip {
			return
		}

		status := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()

		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}

		cfg.HTTPMetrics.RecordRequest(ctx, c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "http request",
			slog.String("event", "http.request"),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", elapsed),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}
