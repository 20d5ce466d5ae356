package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/applier"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/repository"
)

var errApply = errors.New("apply failed")

type applyFunc func(ctx context.Context, target string, change domain.ChangeDescriptor) (*domain.ApplyResult, error)

func (f applyFunc) Apply(ctx context.Context, target string, change domain.ChangeDescriptor) (*domain.ApplyResult, error) {
	return f(ctx, target, change)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// observingRepository records every saved snapshot so tests can check
// invariants at each observation point.
type observingRepository struct {
	domain.OperationRepository

	mu    sync.Mutex
	saves []*domain.Operation
}

func (r *observingRepository) Save(ctx context.Context, op *domain.Operation) error {
	r.mu.Lock()
	r.saves = append(r.saves, op.Clone())
	r.mu.Unlock()
	return r.OperationRepository.Save(ctx, op)
}

func (r *observingRepository) snapshots() []*domain.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Operation(nil), r.saves...)
}

func newTestService(t *testing.T, cfg Config, a domain.TargetApplier, opts ...Option) (*Service, *observingRepository) {
	t.Helper()

	repo := &observingRepository{OperationRepository: repository.NewMemoryOperationRepository()}

	reg := applier.NewRegistry()
	reg.Register(domain.OperationTypeBranchUpdate, a)
	reg.Register(domain.OperationTypeAppSync, a)

	return NewService(cfg, repo, reg, nil, nil, nil, nil, opts...), repo
}

func intPtr(v int) *int {
	return &v
}

func targetNames(n int) []string {
	targets := make([]string, n)
	for i := range targets {
		targets[i] = fmt.Sprintf("repo-%02d", i+1)
	}
	return targets
}

func branchUpdate(targets []string) SubmitRequest {
	return SubmitRequest{
		ClientKey:     "client-1",
		OperationType: domain.OperationTypeBranchUpdate,
		Targets:       targets,
		Change: domain.ChangeDescriptor{
			Description: "bump base image",
			Files:       []domain.FileChange{{Path: "Dockerfile", Content: "FROM alpine:3.20\n"}},
		},
	}
}

// submitAndStart runs the operation synchronously without the dispatcher.
func submitAndStart(t *testing.T, svc *Service, req SubmitRequest) *domain.Operation {
	t.Helper()

	ctx := context.Background()
	id, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := svc.Start(ctx, id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	op, err := svc.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	return op
}

func waitForStatus(t *testing.T, svc *Service, id string, want domain.Status) *domain.Operation {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		op, err := svc.GetOperation(context.Background(), id)
		if err == nil && op.Status == want {
			return op
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("operation %s did not reach status %s", id, want)
	return nil
}

func registryFor(a domain.TargetApplier) *applier.Registry {
	reg := applier.NewRegistry()
	reg.Register(domain.OperationTypeBranchUpdate, a)
	reg.Register(domain.OperationTypeAppSync, a)
	return reg
}

func newMemoryRepository() domain.OperationRepository {
	return repository.NewMemoryOperationRepository()
}
