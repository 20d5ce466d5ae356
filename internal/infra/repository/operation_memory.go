package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type memoryOperationRepository struct {
	mu         sync.RWMutex
	operations map[string]*domain.Operation
}

// NewMemoryOperationRepository keeps deep copies of every record in process
// memory. Records do not survive a restart.
func NewMemoryOperationRepository() domain.OperationRepository {
	return &memoryOperationRepository{
		operations: make(map[string]*domain.Operation),
	}
}

func (r *memoryOperationRepository) Create(_ context.Context, op *domain.Operation) error {
	if op == nil || op.ID == "" {
		return ErrInvalidOperationData
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[op.ID]; exists {
		return domain.ErrOperationExists
	}
	r.operations[op.ID] = op.Clone()
	return nil
}

func (r *memoryOperationRepository) Save(_ context.Context, op *domain.Operation) error {
	if op == nil || op.ID == "" {
		return ErrInvalidOperationData
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.operations[op.ID] = op.Clone()
	return nil
}

func (r *memoryOperationRepository) Get(_ context.Context, id string) (*domain.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[id]
	if !ok {
		return nil, domain.ErrOperationNotFound
	}
	return op.Clone(), nil
}

func (r *memoryOperationRepository) List(_ context.Context, filter domain.ListFilter) ([]*domain.Operation, int, error) {
	r.mu.RLock()
	matched := make([]*domain.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		if matchesFilter(op, filter) {
			matched = append(matched, op.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return page(matched, filter), len(matched), nil
}
