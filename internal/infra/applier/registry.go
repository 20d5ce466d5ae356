// Package applier holds the per-operation-type implementations that apply a
// change to a single target.
package applier

import (
	"fmt"
	"sort"
	"sync"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type Registry struct {
	mu       sync.RWMutex
	appliers map[domain.OperationType]domain.TargetApplier
}

func NewRegistry() *Registry {
	return &Registry{
		appliers: make(map[domain.OperationType]domain.TargetApplier),
	}
}

func (r *Registry) Register(opType domain.OperationType, a domain.TargetApplier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appliers[opType] = a
}

func (r *Registry) Lookup(opType domain.OperationType) (domain.TargetApplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appliers[opType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperationType, opType)
	}
	return a, nil
}

// Types lists registered operation types in lexical order.
func (r *Registry) Types() []domain.OperationType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.OperationType, 0, len(r.appliers))
	for t := range r.appliers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
