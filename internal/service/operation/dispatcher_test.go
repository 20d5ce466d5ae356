package operation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

func TestRun_DispatchesSubmittedOperations(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, Config{MaxActiveOperations: 2}, applyFunc(
		func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
			calls.Add(1)
			return &domain.ApplyResult{CommittedRef: "ok"}, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = svc.Run(ctx)
	}()

	ids := make([]string, 0, 3)
	for range 3 {
		id, err := svc.Submit(context.Background(), branchUpdate(targetNames(4)))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		op := waitForStatus(t, svc, id, domain.StatusCompleted)
		if op.SuccessfulCount != 4 {
			t.Errorf("operation %s successful = %d, want 4", id, op.SuccessfulCount)
		}
	}
	if got := calls.Load(); got != 12 {
		t.Errorf("apply calls = %d, want 12", got)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if stats := svc.Stats(); stats.ActiveOperations != 0 || stats.InFlightTargets != 0 {
		t.Errorf("Stats() = %+v, want idle", stats)
	}
}

func TestResume_RequeuesPendingAndRecoversOrphans(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := domain.NewOperation("op-pending", domain.OperationTypeBranchUpdate, "client-1",
		[]string{"repo-01", "repo-02"}, domain.ChangeDescriptor{Description: "resume"},
		domain.ExecutionPolicy{Concurrency: 2}, now)
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	orphan := domain.NewOperation("op-orphan", domain.OperationTypeBranchUpdate, "client-1",
		[]string{"repo-01", "repo-02", "repo-03"}, domain.ChangeDescriptor{Description: "crashed"},
		domain.ExecutionPolicy{Concurrency: 1}, now)
	if err := orphan.Start(now); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := orphan.Settle(domain.TargetResult{
		Target:    "repo-01",
		Outcome:   domain.Success{CommittedRef: "abc"},
		Attempts:  1,
		Timestamp: now,
	}); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if err := repo.Create(ctx, orphan); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	svc := NewService(Config{}, repo, registryFor(applyFunc(
		func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
			return &domain.ApplyResult{CommittedRef: "resumed"}, nil
		})), nil, nil, nil, nil)

	if err := svc.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	recovered, err := repo.Get(ctx, "op-orphan")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if recovered.Status != domain.StatusPartial {
		t.Errorf("orphan Status = %s, want partial", recovered.Status)
	}
	if recovered.SuccessfulCount != 1 || recovered.FailedCount != 2 || recovered.PendingCount != 0 {
		t.Errorf("orphan counts = %d/%d/%d, want 1/2/0",
			recovered.SuccessfulCount, recovered.FailedCount, recovered.PendingCount)
	}
	for _, r := range recovered.Results[1:] {
		if f, ok := r.Outcome.(domain.Failure); !ok || f.Code != domain.FailureInternal {
			t.Errorf("orphan result %s = %#v, want internal failure", r.Target, r.Outcome)
		}
	}

	if got := svc.Stats().QueuedOperations; got != 1 {
		t.Fatalf("QueuedOperations = %d, want 1", got)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = svc.Run(runCtx) }()

	op := waitForStatus(t, svc, "op-pending", domain.StatusCompleted)
	if op.SuccessfulCount != 2 {
		t.Errorf("resumed successful = %d, want 2", op.SuccessfulCount)
	}
}

type panickingResolver struct {
	calls   atomic.Int32
	applier domain.TargetApplier
}

func (r *panickingResolver) Lookup(domain.OperationType) (domain.TargetApplier, error) {
	if r.calls.Add(1) > 1 {
		panic("resolver exploded")
	}
	return r.applier, nil
}

func TestDispatch_RecoversPanic(t *testing.T) {
	resolver := &panickingResolver{applier: applyFunc(
		func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
			return &domain.ApplyResult{}, nil
		})}

	repo := newMemoryRepository()
	svc := NewService(Config{}, repo, resolver, nil, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, branchUpdate(targetNames(2)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	svc.dispatch(ctx, id)

	op, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if op.Status != domain.StatusFailed {
		t.Errorf("Status = %s, want failed", op.Status)
	}
	if !op.Degraded {
		t.Error("Degraded = false, want true")
	}
	if op.FailedCount != 2 || op.PendingCount != 0 {
		t.Errorf("counts failed = %d pending = %d, want 2 and 0", op.FailedCount, op.PendingCount)
	}
	for _, r := range op.Results {
		if f, ok := r.Outcome.(domain.Failure); !ok || f.Code != domain.FailureInternal {
			t.Errorf("result %s = %#v, want internal failure", r.Target, r.Outcome)
		}
	}
}
