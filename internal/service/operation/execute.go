package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/executor"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/tracing"
)

// Start runs a pending operation to its terminal status and returns once
// every target has settled. Starting an operation twice returns
// domain.ErrAlreadyStarted.
func (s *Service) Start(ctx context.Context, id string) error {
	ctx = logging.WithOperationID(ctx, id)

	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if err := t.op.Start(s.now()); err != nil {
		terminal := t.op.Status.IsTerminal()
		t.mu.Unlock()
		if terminal && !t.running.Load() {
			s.untrack(id)
		}
		return err
	}
	t.running.Store(true)
	snap := t.snapshot()
	t.mu.Unlock()

	s.persist(ctx, t, snap)

	slog.InfoContext(ctx, "operation started",
		slog.String("operation_id", id),
		slog.String("operation_type", snap.Type.String()),
		slog.Int("targets", snap.TotalTargets),
		slog.Int("concurrency", snap.Policy.Concurrency),
	)

	s.execute(ctx, t, snap.Operation)
	return nil
}

func (s *Service) execute(ctx context.Context, t *tracked, view *domain.Operation) {
	ctx, span := tracing.StartOperationSpan(ctx, view.ID, view.Type.String(), view.TotalTargets, view.Policy.Concurrency)
	defer span.End()

	applier, err := s.appliers.Lookup(view.Type)
	if err != nil {
		s.abort(ctx, t, err.Error(), false)
		return
	}

	runCtx := ctx
	if s.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()
	}

	pending := view.PendingTargets()
	units := make([]executor.Unit[*domain.ApplyResult], 0, len(pending))
	for _, target := range pending {
		units = append(units, executor.Unit[*domain.ApplyResult]{
			ID:     target,
			Action: s.applyAction(t, applier, target, view.Change),
		})
	}

	writer := s.startProgressWriter(ctx, t)
	defer writer.stop()

	// Callbacks are serialized by the executor and only touch memory. Store
	// writes happen on the progress writer and audit entries on the audit
	// stream, so a slow backend never holds a worker.
	timedOut := false
	_, err = executor.Run(runCtx, units, executor.Options[*domain.ApplyResult]{
		Concurrency: view.Policy.Concurrency,
		Retries:     view.Policy.Retries,
		RetryDelay:  view.Policy.RetryDelay,
		OnUnitComplete: func(r executor.Result[*domain.ApplyResult]) {
			code := failureCode(runCtx, r.Err)
			if code == domain.FailureTimeout {
				timedOut = true
			}
			s.guard(ctx, t, "settlement", func() {
				s.settle(ctx, t, view, r, code)
			})
		},
		// OnProgress follows every OnUnitComplete.
		OnProgress: func(completed, total int, running []string) {
			s.guard(ctx, t, "progress update", func() {
				s.trackProgress(ctx, t, completed, total, running)
			})
			writer.notify()
		},
	})
	writer.stop()

	switch {
	case errors.Is(err, executor.ErrCallbackPanicked):
		t.reportFault(err.Error())
	case err != nil:
		s.abort(ctx, t, err.Error(), false)
		return
	}

	if reason := t.faultReason(); reason != "" {
		s.abort(ctx, t, reason, true)
		return
	}

	s.finish(ctx, t, timedOut)
}

// guard keeps a panic in a settlement callback off the executor's worker.
// The fault is reported on t and the operation is aborted as degraded once
// every unit has settled.
func (s *Service) guard(ctx context.Context, t *tracked, stage string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic while settling operation",
				slog.String("operation_id", t.id),
				slog.String("stage", stage),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			t.reportFault(fmt.Sprintf("%s panicked: %v", stage, rec))
		}
	}()
	fn()
}

// trackProgress points CurrentTarget at a target that is still running, or
// clears it when none is.
func (s *Service) trackProgress(ctx context.Context, t *tracked, completed, total int, running []string) {
	current := ""
	if len(running) > 0 {
		current = running[0]
	}

	t.mu.Lock()
	if t.op.Status == domain.StatusInProgress {
		t.op.CurrentTarget = current
	}
	t.mu.Unlock()

	slog.DebugContext(ctx, "operation progress",
		slog.String("operation_id", t.id),
		slog.Int("completed", completed),
		slog.Int("total", total),
		slog.Any("running", running),
	)
}

func (s *Service) applyAction(t *tracked, applier domain.TargetApplier, target string, change domain.ChangeDescriptor) func(context.Context) (*domain.ApplyResult, error) {
	return func(ctx context.Context) (*domain.ApplyResult, error) {
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)

		t.mu.Lock()
		t.op.CurrentTarget = target
		t.mu.Unlock()

		ctx, span := tracing.StartTargetApplySpan(ctx, t.id, target)
		defer span.End()

		res, err := applier.Apply(ctx, target, change)
		if err != nil {
			tracing.RecordError(span, err)
		}
		return res, err
	}
}

func failureCode(runCtx context.Context, err error) domain.FailureCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, executor.ErrActionPanicked):
		return domain.FailureInternal
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil:
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled) && runCtx.Err() != nil:
		return domain.FailureCancelled
	default:
		return domain.FailureApply
	}
}

func (s *Service) settle(ctx context.Context, t *tracked, view *domain.Operation, r executor.Result[*domain.ApplyResult], code domain.FailureCode) {
	result := domain.TargetResult{
		Target:    r.ID,
		Attempts:  r.Attempts,
		Duration:  r.Duration,
		Timestamp: s.now().UTC(),
	}
	if r.Err == nil {
		ref := ""
		if r.Value != nil {
			ref = r.Value.CommittedRef
		}
		result.Outcome = domain.Success{CommittedRef: ref}
	} else {
		result.Outcome = domain.Failure{Code: code, Message: r.Err.Error()}
	}

	t.mu.Lock()
	err := t.op.Settle(result)
	t.mu.Unlock()
	if err != nil {
		slog.ErrorContext(ctx, "failed to settle target",
			slog.String("operation_id", t.id),
			slog.String("target", r.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.recordTarget(ctx, t, view, result)
}

func (s *Service) recordTarget(ctx context.Context, t *tracked, op *domain.Operation, result domain.TargetResult) {
	outcome := result.Outcome.Kind()

	if result.Succeeded() {
		slog.DebugContext(ctx, "target applied",
			slog.String("operation_id", op.ID),
			slog.String("target", result.Target),
			slog.Int("attempts", result.Attempts),
		)
	} else {
		slog.WarnContext(ctx, "target failed",
			slog.String("operation_id", op.ID),
			slog.String("target", result.Target),
			slog.Int("attempts", result.Attempts),
			slog.String("detail", result.Detail()),
		)
	}

	s.metrics.RecordTargetSettled(ctx, op.Type.String(), string(outcome), result.Attempts, result.Duration)

	stream := s.auditFor(ctx, t, op.TotalTargets)
	if stream == nil {
		return
	}
	if !stream.send(domain.AuditEntry{
		OperationID:   op.ID,
		OperationType: op.Type,
		Target:        result.Target,
		Outcome:       outcome,
		Detail:        result.Detail(),
		Attempts:      result.Attempts,
		Duration:      result.Duration,
		Timestamp:     result.Timestamp,
	}) {
		slog.WarnContext(ctx, "audit entry dropped",
			slog.String("operation_id", op.ID),
			slog.String("target", result.Target),
		)
	}
}

// abort settles every remaining target as an internal failure and finalizes
// the record. It is a no-op for records that are already terminal.
func (s *Service) abort(ctx context.Context, t *tracked, reason string, degraded bool) {
	now := s.now()

	t.mu.Lock()
	if t.op.Status == domain.StatusPending {
		if err := t.op.Start(now); err != nil {
			t.mu.Unlock()
			return
		}
	}
	if t.op.Status != domain.StatusInProgress {
		t.mu.Unlock()
		t.running.Store(false)
		t.closeAudit()
		s.untrack(t.id)
		return
	}

	var settled []domain.TargetResult
	for _, target := range t.op.PendingTargets() {
		result := domain.TargetResult{
			Target:    target,
			Outcome:   domain.Failure{Code: domain.FailureInternal, Message: reason},
			Timestamp: now.UTC(),
		}
		if err := t.op.Settle(result); err == nil {
			settled = append(settled, result)
		}
	}
	if degraded {
		t.op.Degraded = true
	}
	view := t.op.Clone()
	t.mu.Unlock()

	slog.ErrorContext(ctx, "operation aborted",
		slog.String("operation_id", t.id),
		slog.String("reason", reason),
		slog.Int("failed_targets", len(settled)),
	)

	for _, result := range settled {
		s.recordTarget(ctx, t, view, result)
	}

	s.finish(ctx, t, false)
}

func (s *Service) finish(ctx context.Context, t *tracked, timedOut bool) {
	defer t.closeAudit()

	t.mu.Lock()
	if err := t.op.Complete(s.now(), timedOut); err != nil {
		t.mu.Unlock()
		slog.ErrorContext(ctx, "failed to complete operation",
			slog.String("operation_id", t.id),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := t.op.CheckInvariant(); err != nil {
		slog.ErrorContext(ctx, "operation counters inconsistent",
			slog.String("operation_id", t.id),
			slog.String("error", err.Error()),
		)
	}
	snap := t.snapshot()
	t.mu.Unlock()

	persisted := s.persist(ctx, t, snap)
	t.running.Store(false)
	if persisted {
		s.untrack(t.id)
	}

	s.archive(ctx, snap.Operation)

	var elapsed time.Duration
	if snap.StartedAt != nil && snap.CompletedAt != nil {
		elapsed = snap.CompletedAt.Sub(*snap.StartedAt)
	}

	s.metrics.RecordFinished(ctx, snap.Type.String(), snap.Status.String(), elapsed)
	tracing.RecordOperationResult(trace.SpanFromContext(ctx), snap.Status.String(), snap.SuccessfulCount, snap.FailedCount)

	slog.InfoContext(ctx, "operation finished",
		slog.String("operation_id", t.id),
		slog.String("status", snap.Status.String()),
		slog.Int("successful", snap.SuccessfulCount),
		slog.Int("failed", snap.FailedCount),
		slog.Bool("can_rollback", snap.CanRollback),
		slog.Bool("degraded", snap.Degraded),
		slog.Duration("duration", elapsed),
	)
}

func (s *Service) archive(ctx context.Context, op *domain.Operation) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, op); err != nil {
		slog.WarnContext(ctx, "failed to archive operation report",
			slog.String("operation_id", op.ID),
			slog.String("error", err.Error()),
		)
	}
}
