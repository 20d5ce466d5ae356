package operation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

const (
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

// persist writes snap unless a newer snapshot has been written already.
// On repeated failure the in-memory record is marked degraded; the next
// snapshot carries the whole record so the store catches up.
func (s *Service) persist(ctx context.Context, t *tracked, snap snapshot) bool {
	ctx = context.WithoutCancel(ctx)

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	if snap.seq <= t.persisted {
		return true
	}

	if err := s.saveWithRetry(ctx, snap.Operation); err != nil {
		slog.ErrorContext(ctx, "failed to persist operation",
			slog.String("operation_id", snap.ID),
			slog.String("status", snap.Status.String()),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordPersistFailure(ctx, snap.Type.String())

		t.mu.Lock()
		t.op.Degraded = true
		t.mu.Unlock()
		return false
	}

	t.persisted = snap.seq
	return true
}

func (s *Service) saveWithRetry(ctx context.Context, op *domain.Operation) error {
	var lastErr error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * persistBackoff
			slog.DebugContext(ctx, "retrying operation save",
				slog.String("operation_id", op.ID),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := s.save(ctx, op); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("save operation after %d attempts: %w", persistAttempts, lastErr)
}

// save turns a panicking store driver into a failed write.
func (s *Service) save(ctx context.Context, op *domain.Operation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic in operation store",
				slog.String("operation_id", op.ID),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrStorePanicked, rec)
		}
	}()
	return s.repo.Save(ctx, op)
}

// progressWriter is the single writer of a running operation's progress.
// Settlements only signal it; it snapshots the record when it gets to run,
// so a burst of settlements becomes one store write.
type progressWriter struct {
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *Service) startProgressWriter(ctx context.Context, t *tracked) *progressWriter {
	w := &progressWriter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(ctx, "panic in progress writer",
					slog.String("operation_id", t.id),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				t.reportFault(fmt.Sprintf("progress writer panicked: %v", rec))
			}
		}()

		for range w.wake {
			t.mu.Lock()
			snap := t.snapshot()
			t.mu.Unlock()

			s.persist(ctx, t, snap)
		}
	}()

	return w
}

// notify never blocks; a pending signal already covers this change.
func (w *progressWriter) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// stop returns once every change signalled before it has been written.
// It must not race with notify.
func (w *progressWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.wake)
	})
	<-w.done
}
