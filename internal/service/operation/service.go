// Package operation orchestrates bulk operations: admission, dispatch,
// bounded per-target execution, settlement and persistence of the record.
package operation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/executor"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/metrics"
	"github.com/KasumiMercury/primind-bulk-operations/internal/ratelimit"
)

// ApplierResolver returns the applier registered for an operation type.
type ApplierResolver interface {
	Lookup(opType domain.OperationType) (domain.TargetApplier, error)
}

type Service struct {
	cfg      Config
	repo     domain.OperationRepository
	appliers ApplierResolver
	gate     ratelimit.Gate
	audit    domain.AuditSink
	archiver domain.ReportArchiver
	metrics  *metrics.OperationMetrics

	now   func() time.Time
	newID func() string

	// queue carries ids to the dispatcher. slots holds one token per
	// reserved queue position, so a send after a reservation never blocks.
	queue chan string
	slots chan struct{}

	mu     sync.Mutex
	active map[string]*tracked
	loadMu sync.Mutex

	inFlight atomic.Int64
	audits   sync.WaitGroup
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService wires the orchestrator. audit, archiver and m may be nil.
func NewService(
	cfg Config,
	repo domain.OperationRepository,
	appliers ApplierResolver,
	gate ratelimit.Gate,
	audit domain.AuditSink,
	archiver domain.ReportArchiver,
	m *metrics.OperationMetrics,
	opts ...Option,
) *Service {
	cfg = cfg.withDefaults()

	s := &Service{
		cfg:      cfg,
		repo:     repo,
		appliers: appliers,
		gate:     gate,
		audit:    audit,
		archiver: archiver,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
		queue:    make(chan string, cfg.QueueSize),
		slots:    make(chan struct{}, cfg.QueueSize),
		active:   make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit admits a new operation, persists it as pending and queues it for
// the dispatcher. Nothing is persisted when admission fails, including when
// the dispatch queue has no room.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if s.gate != nil {
		limiter := LimiterFor(req.OperationType)
		decision := s.gate.Admit(ctx, limiter, req.ClientKey)
		if !decision.Allowed {
			return "", &RateLimitError{
				Code:       RateLimitErrorCode,
				Message:    fmt.Sprintf("rate limit for %s exceeded, retry later", limiter),
				Limiter:    limiter,
				RetryAfter: decision.RetryAfter(s.now()),
			}
		}
	}

	policy, err := s.admit(req)
	if err != nil {
		return "", err
	}

	if !s.reserveSlot() {
		slog.WarnContext(ctx, "dispatch queue full, operation rejected",
			slog.String("client_key", req.ClientKey),
			slog.Int("queue_size", s.cfg.QueueSize),
		)
		return "", ErrQueueFull
	}

	id := s.newID()
	ctx = logging.WithOperationID(ctx, id)

	op := domain.NewOperation(id, req.OperationType, req.ClientKey, req.Targets, req.Change, policy, s.now())
	t := newTracked(op)
	if !s.trackIfAbsent(t) {
		s.releaseSlot()
		return "", fmt.Errorf("%w: %s", domain.ErrOperationExists, id)
	}

	if err := s.repo.Create(ctx, op.Clone()); err != nil {
		s.untrack(id)
		s.releaseSlot()
		slog.ErrorContext(ctx, "failed to create operation record",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("create operation: %w", err)
	}

	s.queue <- id

	s.metrics.RecordSubmitted(ctx, req.OperationType.String(), len(req.Targets))

	slog.InfoContext(ctx, "operation submitted",
		slog.String("operation_id", id),
		slog.String("operation_type", req.OperationType.String()),
		slog.Int("targets", len(req.Targets)),
		slog.Int("concurrency", policy.Concurrency),
		slog.Int("retries", policy.Retries),
	)

	return id, nil
}

func (s *Service) admit(req SubmitRequest) (domain.ExecutionPolicy, error) {
	if err := domain.ValidateTargets(req.Targets); err != nil {
		return domain.ExecutionPolicy{}, err
	}
	if len(req.Targets) > s.cfg.MaxTargets {
		return domain.ExecutionPolicy{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyTargets, len(req.Targets), s.cfg.MaxTargets)
	}
	if _, err := s.appliers.Lookup(req.OperationType); err != nil {
		return domain.ExecutionPolicy{}, err
	}

	policy := domain.ExecutionPolicy{
		Concurrency: s.cfg.Concurrency,
		Retries:     s.cfg.Retries,
		RetryDelay:  s.cfg.RetryDelay,
	}

	if req.Concurrency != nil {
		c := *req.Concurrency
		if c <= 0 {
			return domain.ExecutionPolicy{}, fmt.Errorf("%w: got %d", executor.ErrInvalidConcurrency, c)
		}
		if c > s.cfg.MaxConcurrency {
			return domain.ExecutionPolicy{}, fmt.Errorf("%w: concurrency %d exceeds %d", ErrPolicyOutOfRange, c, s.cfg.MaxConcurrency)
		}
		policy.Concurrency = c
	}

	if req.Retries != nil {
		r := *req.Retries
		if r < 0 {
			return domain.ExecutionPolicy{}, fmt.Errorf("%w: got %d", executor.ErrInvalidRetries, r)
		}
		if r > s.cfg.MaxRetries {
			return domain.ExecutionPolicy{}, fmt.Errorf("%w: retries %d exceeds %d", ErrPolicyOutOfRange, r, s.cfg.MaxRetries)
		}
		policy.Retries = r
	}

	return policy, nil
}

// GetOperation returns a snapshot of the record. Operations owned by this
// process are served from memory so readers never see a stale store copy.
func (s *Service) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	if t := s.lookup(id); t != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.op.Clone(), nil
	}

	op, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) ListOperations(ctx context.Context, filter domain.ListFilter) (*ListResult, error) {
	ops, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	for i, op := range ops {
		if t := s.lookup(op.ID); t != nil {
			t.mu.Lock()
			ops[i] = t.op.Clone()
			t.mu.Unlock()
		}
	}

	return &ListResult{Operations: ops, Total: total}, nil
}

// Cancel moves a pending operation to cancelled. It reports false, without
// error, when the operation has already started or finished.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	ctx = logging.WithOperationID(ctx, id)

	t, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	cancelled := t.op.Cancel(s.now())
	status := t.op.Status
	snap := t.snapshot()
	t.mu.Unlock()

	if !cancelled {
		if status.IsTerminal() && !t.running.Load() {
			s.untrack(id)
		}
		slog.InfoContext(ctx, "cancel ignored",
			slog.String("operation_id", id),
			slog.String("status", status.String()),
		)
		return false, nil
	}

	if s.persist(ctx, t, snap) {
		s.untrack(id)
	}
	s.metrics.RecordFinished(ctx, snap.Type.String(), snap.Status.String(), 0)

	slog.InfoContext(ctx, "operation cancelled",
		slog.String("operation_id", id),
	)
	return true, nil
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	activeOps := 0
	for _, t := range s.active {
		if t.running.Load() {
			activeOps++
		}
	}
	s.mu.Unlock()

	return Stats{
		ActiveOperations: activeOps,
		QueuedOperations: len(s.queue),
		InFlightTargets:  int(s.inFlight.Load()),
	}
}

func (s *Service) reserveSlot() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) releaseSlot() {
	<-s.slots
}

// trackIfAbsent registers t unless another record with the same id is owned already.
func (s *Service) trackIfAbsent(t *tracked) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[t.id]; ok {
		return false
	}
	s.active[t.id] = t
	return true
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *Service) lookup(id string) *tracked {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

// load returns the tracked record for id, reading it from the store when
// this process does not own it yet. Loads are serialized so a record has at
// most one in-memory owner.
func (s *Service) load(ctx context.Context, id string) (*tracked, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if t := s.lookup(id); t != nil {
		return t, nil
	}

	op, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t := newTracked(op)
	if !s.trackIfAbsent(t) {
		return s.lookup(id), nil
	}
	return t, nil
}
