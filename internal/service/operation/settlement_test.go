package operation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

// slowRepository delays every Save, like a store across a slow network.
type slowRepository struct {
	domain.OperationRepository
	delay time.Duration
	saves atomic.Int32
}

func (r *slowRepository) Save(ctx context.Context, op *domain.Operation) error {
	r.saves.Add(1)
	time.Sleep(r.delay)
	return r.OperationRepository.Save(ctx, op)
}

// panickingRepository panics on the Saves selected by panicOn.
type panickingRepository struct {
	domain.OperationRepository
	calls   atomic.Int32
	panicOn func(call int32) bool
}

func (r *panickingRepository) Save(ctx context.Context, op *domain.Operation) error {
	if r.panicOn(r.calls.Add(1)) {
		panic("store driver bug")
	}
	return r.OperationRepository.Save(ctx, op)
}

// blockingAuditSink holds every Record until release is closed.
type blockingAuditSink struct {
	release chan struct{}

	mu       sync.Mutex
	recorded []domain.AuditEntry
	flushed  int
}

func (s *blockingAuditSink) Record(_ context.Context, entry domain.AuditEntry) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, entry)
	return nil
}

func (s *blockingAuditSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *blockingAuditSink) Close() error { return nil }

func TestStart_SlowStoreDoesNotThrottleTargets(t *testing.T) {
	const (
		targets = 40
		latency = 30 * time.Millisecond
	)

	repo := &slowRepository{OperationRepository: newMemoryRepository(), delay: latency}
	reg := registryFor(applyFunc(func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
		time.Sleep(latency)
		return &domain.ApplyResult{CommittedRef: "ok"}, nil
	}))
	svc := NewService(Config{Concurrency: 10}, repo, reg, nil, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, branchUpdate(targetNames(targets)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	began := time.Now()
	if err := svc.Start(ctx, id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	elapsed := time.Since(began)

	// One save per settlement would take targets*latency on its own.
	if limit := targets * latency * 3 / 4; elapsed >= limit {
		t.Errorf("Start() took %v, want well under %v", elapsed, limit)
	}
	if got := repo.saves.Load(); got >= targets {
		t.Errorf("Save called %d times, want progress writes coalesced below %d", got, targets)
	}

	stored, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != domain.StatusCompleted || stored.SuccessfulCount != targets {
		t.Errorf("stored status = %s successful = %d, want completed/%d", stored.Status, stored.SuccessfulCount, targets)
	}
}

func TestStart_HungAuditSinkDoesNotStallOperation(t *testing.T) {
	sink := &blockingAuditSink{release: make(chan struct{})}
	reg := registryFor(applyFunc(func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
		return &domain.ApplyResult{CommittedRef: "ok"}, nil
	}))
	svc := NewService(Config{Concurrency: 2}, newMemoryRepository(), reg, nil, sink, nil, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, branchUpdate(targetNames(5)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx, id)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		close(sink.release)
		t.Fatal("Start() blocked on the audit sink")
	}

	op, err := svc.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want completed", op.Status)
	}

	close(sink.release)
	svc.audits.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.recorded) != 5 {
		t.Errorf("recorded %d audit entries, want 5", len(sink.recorded))
	}
	if sink.flushed != 1 {
		t.Errorf("Flush called %d times, want 1", sink.flushed)
	}
}

func TestDispatch_ContainsStorePanics(t *testing.T) {
	okApplier := applyFunc(func(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
		return &domain.ApplyResult{CommittedRef: "ok"}, nil
	})

	t.Run("single panic is retried", func(t *testing.T) {
		repo := &panickingRepository{
			OperationRepository: newMemoryRepository(),
			panicOn:             func(call int32) bool { return call == 2 },
		}
		svc := NewService(Config{Concurrency: 2}, repo, registryFor(okApplier), nil, nil, nil, nil)
		ctx := context.Background()

		id, err := svc.Submit(ctx, branchUpdate(targetNames(4)))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		svc.dispatch(ctx, id)

		stored, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.Status != domain.StatusCompleted || stored.SuccessfulCount != 4 {
			t.Errorf("stored status = %s successful = %d, want completed/4", stored.Status, stored.SuccessfulCount)
		}
		if stored.Degraded {
			t.Error("Degraded = true, want false after a successful retry")
		}
	})

	t.Run("persistent panics degrade the record", func(t *testing.T) {
		repo := &panickingRepository{
			OperationRepository: newMemoryRepository(),
			panicOn:             func(int32) bool { return true },
		}
		svc := NewService(Config{Concurrency: 2}, repo, registryFor(okApplier), nil, nil, nil, nil)
		ctx := context.Background()

		id, err := svc.Submit(ctx, branchUpdate(targetNames(2)))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		svc.dispatch(ctx, id)

		op, err := svc.GetOperation(ctx, id)
		if err != nil {
			t.Fatalf("GetOperation() error = %v", err)
		}
		if op.Status != domain.StatusCompleted || op.SuccessfulCount != 2 {
			t.Errorf("Status = %s successful = %d, want completed/2", op.Status, op.SuccessfulCount)
		}
		if !op.Degraded {
			t.Error("Degraded = false, want true")
		}
	})
}

// armedClock panics on the first reading after it is armed.
type armedClock struct {
	armed atomic.Bool
}

func (c *armedClock) Now() time.Time {
	if c.armed.CompareAndSwap(true, false) {
		panic("clock failure")
	}
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestStart_SettlementPanicAbortsOperationAsDegraded(t *testing.T) {
	clock := &armedClock{}
	a := applyFunc(func(_ context.Context, target string, _ domain.ChangeDescriptor) (*domain.ApplyResult, error) {
		if target == "repo-02" {
			// The next clock reading is this target's settlement.
			clock.armed.Store(true)
		}
		return &domain.ApplyResult{CommittedRef: target}, nil
	})
	svc, repo := newTestService(t, Config{Concurrency: 1}, a, WithClock(clock.Now))

	op := submitAndStart(t, svc, branchUpdate(targetNames(3)))

	if op.Status != domain.StatusPartial {
		t.Errorf("Status = %s, want partial", op.Status)
	}
	if !op.Degraded {
		t.Error("Degraded = false, want true")
	}
	if op.SuccessfulCount != 2 || op.FailedCount != 1 || op.PendingCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/1/0", op.SuccessfulCount, op.FailedCount, op.PendingCount)
	}
	for _, r := range op.Results {
		if r.Target != "repo-02" {
			continue
		}
		f, ok := r.Outcome.(domain.Failure)
		if !ok || f.Code != domain.FailureInternal || !strings.Contains(f.Message, "settlement panicked") {
			t.Errorf("repo-02 outcome = %#v, want internal failure from the settlement panic", r.Outcome)
		}
	}

	snaps := repo.snapshots()
	if last := snaps[len(snaps)-1]; last.Status != domain.StatusPartial || !last.Degraded {
		t.Errorf("last stored status = %s degraded = %v, want partial and degraded", last.Status, last.Degraded)
	}
}

func TestStart_CurrentTargetFollowsRunningTargets(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var secondAttempts atomic.Int32

	a := applyFunc(func(_ context.Context, target string, _ domain.ChangeDescriptor) (*domain.ApplyResult, error) {
		switch target {
		case "repo-01":
			close(firstStarted)
			<-release
		case "repo-02":
			<-firstStarted
			// Fail once so the retry starts after repo-01 is already running.
			if secondAttempts.Add(1) == 1 {
				return nil, errApply
			}
		}
		return &domain.ApplyResult{CommittedRef: target}, nil
	})
	svc, _ := newTestService(t, Config{Concurrency: 2, Retries: 1}, a)
	ctx := context.Background()

	id, err := svc.Submit(ctx, branchUpdate(targetNames(2)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx, id)
	}()

	deadline := time.Now().Add(5 * time.Second)
	var op *domain.Operation
	for time.Now().Before(deadline) {
		op, err = svc.GetOperation(ctx, id)
		if err == nil && op.SuccessfulCount == 1 && op.CurrentTarget == "repo-01" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if op == nil {
		close(release)
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.SuccessfulCount != 1 || op.CurrentTarget != "repo-01" {
		close(release)
		t.Fatalf("after repo-02 settled: successful = %d current = %q, want 1 and repo-01", op.SuccessfulCount, op.CurrentTarget)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	op, err = svc.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.CurrentTarget != "" {
		t.Errorf("CurrentTarget = %q after completion, want empty", op.CurrentTarget)
	}
}
