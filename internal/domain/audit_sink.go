package domain

import (
	"context"
	"time"
)

//go:generate mockgen -source=audit_sink.go -destination=audit_sink_mock.go -package=domain

type AuditEntry struct {
	OperationID   string
	OperationType OperationType
	Target        string
	Outcome       OutcomeKind
	Detail        string
	Attempts      int
	Duration      time.Duration
	Timestamp     time.Time
}

// AuditSink receives one entry per settled target.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
	Flush(ctx context.Context) error
	Close() error
}
