//go:build !gcloud

package logging

import (
	"context"
	"log/slog"
)

// gcpTraceAttrs is a no-op outside Cloud Run; trace_id and span_id already cover local tooling.
func gcpTraceAttrs(_ context.Context, _ string) []slog.Attr {
	return nil
}
