package auditrecorder

import (
	"context"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type noopRecorder struct{}

func NewNoopRecorder() domain.AuditSink {
	return &noopRecorder{}
}

func (n *noopRecorder) Record(_ context.Context, _ domain.AuditEntry) error {
	return nil
}

func (n *noopRecorder) Flush(_ context.Context) error {
	return nil
}

func (n *noopRecorder) Close() error {
	return nil
}
