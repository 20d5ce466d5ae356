package operation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

// auditStream hands one operation's audit entries to the sink from a
// goroutine of its own, so a slow or hung sink never holds up settlement.
type auditStream struct {
	mu      sync.Mutex
	closed  bool
	entries chan domain.AuditEntry
}

const minAuditBuffer = 16

// auditFor returns the audit stream of t, opening it on first use. It is nil
// when the service has no audit sink.
func (s *Service) auditFor(ctx context.Context, t *tracked, size int) *auditStream {
	if s.audit == nil {
		return nil
	}

	t.auditMu.Lock()
	defer t.auditMu.Unlock()

	if t.audit == nil {
		a := &auditStream{entries: make(chan domain.AuditEntry, max(size, minAuditBuffer))}
		ctx = context.WithoutCancel(ctx)

		s.audits.Add(1)
		go func() {
			defer s.audits.Done()
			s.drainAudit(ctx, t.id, a.entries)
		}()
		t.audit = a
	}
	return t.audit
}

// closeAudit ends t's audit stream once everything queued has been written.
func (t *tracked) closeAudit() {
	t.auditMu.Lock()
	a := t.audit
	t.auditMu.Unlock()

	if a != nil {
		a.close()
	}
}

// send reports false when the entry was dropped.
func (a *auditStream) send(entry domain.AuditEntry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}
	select {
	case a.entries <- entry:
		return true
	default:
		return false
	}
}

func (a *auditStream) close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.entries)
	}
}

func (s *Service) drainAudit(ctx context.Context, operationID string, entries <-chan domain.AuditEntry) {
	for entry := range entries {
		s.writeAudit(ctx, entry)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic while flushing audit sink",
				slog.String("operation_id", operationID),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()

	if err := s.audit.Flush(ctx); err != nil {
		slog.WarnContext(ctx, "failed to flush audit sink",
			slog.String("operation_id", operationID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) writeAudit(ctx context.Context, entry domain.AuditEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic in audit sink",
				slog.String("operation_id", entry.OperationID),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()

	if err := s.audit.Record(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to record audit entry",
			slog.String("operation_id", entry.OperationID),
			slog.String("target", entry.Target),
			slog.String("error", err.Error()),
		)
	}
}
