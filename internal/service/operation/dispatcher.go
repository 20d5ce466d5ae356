package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
)

const orphanReason = "operation interrupted before completion"

// Run recovers orphaned records, starts MaxActiveOperations dispatcher
// workers, requeues stored pending work and blocks until ctx is done.
// Operations already running when ctx is cancelled are allowed to finish;
// queued ones stay pending in the store. Run returns once pending audit
// entries have been handed to the sink.
func (s *Service) Run(ctx context.Context) error {
	if err := s.recoverOrphans(ctx); err != nil {
		slog.WarnContext(ctx, "failed to recover interrupted operations",
			slog.String("error", err.Error()),
		)
	}

	var wg sync.WaitGroup
	for range s.cfg.MaxActiveOperations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	slog.InfoContext(ctx, "operation dispatcher started",
		slog.Int("max_active_operations", s.cfg.MaxActiveOperations),
		slog.Int("queue_size", s.cfg.QueueSize),
	)

	if err := s.requeuePending(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "failed to requeue pending operations",
			slog.String("error", err.Error()),
		)
	}

	wg.Wait()
	s.audits.Wait()

	slog.InfoContext(context.WithoutCancel(ctx), "operation dispatcher stopped")
	return nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.releaseSlot()
			if ctx.Err() != nil {
				return
			}
			s.dispatch(ctx, id)
		}
	}
}

// dispatch runs one operation detached from ctx so shutdown never cuts an
// operation in half. A panic finalizes the record instead of killing the worker.
func (s *Service) dispatch(ctx context.Context, id string) {
	execCtx := logging.WithOperationID(context.WithoutCancel(ctx), id)

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(execCtx, "panic while processing operation",
				slog.String("operation_id", id),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			if t := s.lookup(id); t != nil {
				s.abort(execCtx, t, fmt.Sprintf("processing panicked: %v", rec), true)
			}
		}
	}()

	if err := s.Start(execCtx, id); err != nil {
		if errors.Is(err, domain.ErrAlreadyStarted) {
			slog.DebugContext(execCtx, "skipping operation that is no longer pending",
				slog.String("operation_id", id),
			)
			return
		}
		slog.ErrorContext(execCtx, "failed to start operation",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Resume finalizes records a previous process left in_progress and
// requeues pending records, oldest first. It must run before dispatch
// begins; Run calls it in that order.
func (s *Service) Resume(ctx context.Context) error {
	if err := s.recoverOrphans(ctx); err != nil {
		return err
	}
	return s.requeuePending(ctx)
}

// recoverOrphans settles the unfinished targets of in_progress records as
// internal failures. Nothing in this process can be running yet.
func (s *Service) recoverOrphans(ctx context.Context) error {
	orphaned, _, err := s.repo.List(ctx, domain.ListFilter{Status: domain.StatusInProgress})
	if err != nil {
		return fmt.Errorf("list in-progress operations: %w", err)
	}

	recovered := 0
	for _, op := range orphaned {
		t := newTracked(op)
		if !s.trackIfAbsent(t) {
			continue
		}
		s.abort(logging.WithOperationID(ctx, op.ID), t, orphanReason, false)
		recovered++
	}

	if recovered > 0 {
		slog.InfoContext(ctx, "recovered interrupted operations",
			slog.Int("recovered", recovered),
		)
	}
	return nil
}

// requeuePending only enqueues ids; Start re-reads the record, so a stale
// listing can never run an operation twice.
func (s *Service) requeuePending(ctx context.Context) error {
	pending, _, err := s.repo.List(ctx, domain.ListFilter{Status: domain.StatusPending})
	if err != nil {
		return fmt.Errorf("list pending operations: %w", err)
	}

	resumed := 0
	for i := len(pending) - 1; i >= 0; i-- {
		id := pending[i].ID
		if s.lookup(id) != nil {
			continue
		}

		select {
		case s.slots <- struct{}{}:
			s.queue <- id
			resumed++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if resumed > 0 {
		slog.InfoContext(ctx, "requeued pending operations",
			slog.Int("resumed", resumed),
		)
	}
	return nil
}
