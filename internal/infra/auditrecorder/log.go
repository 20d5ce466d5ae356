package auditrecorder

import (
	"context"
	"log/slog"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type logRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder writes every audit entry as a structured log line.
func NewLogRecorder(logger *slog.Logger) domain.AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logRecorder{logger: logger}
}

func (r *logRecorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	r.logger.InfoContext(ctx, "target settled",
		slog.String("event", "operation.target.audit"),
		slog.String("operation_id", entry.OperationID),
		slog.String("operation_type", entry.OperationType.String()),
		slog.String("target", entry.Target),
		slog.String("outcome", string(entry.Outcome)),
		slog.String("detail", entry.Detail),
		slog.Int("attempts", entry.Attempts),
		slog.Duration("duration", entry.Duration),
		slog.Time("settled_at", entry.Timestamp),
	)
	return nil
}

func (r *logRecorder) Flush(_ context.Context) error {
	return nil
}

func (r *logRecorder) Close() error {
	return nil
}
