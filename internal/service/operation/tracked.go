package operation

import (
	"sync"
	"sync/atomic"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

// tracked is the authoritative in-memory copy of an operation owned by this process.
type tracked struct {
	id string

	mu  sync.Mutex
	op  *domain.Operation
	seq uint64

	running atomic.Bool

	// persistMu orders store writes; persisted is the last written seq.
	persistMu sync.Mutex
	persisted uint64

	faultMu sync.Mutex
	fault   string

	auditMu sync.Mutex
	audit   *auditStream
}

// snapshot is an immutable copy of the record tagged with its write order.
type snapshot struct {
	*domain.Operation
	seq uint64
}

func newTracked(op *domain.Operation) *tracked {
	return &tracked{id: op.ID, op: op}
}

// snapshot must be called with t.mu held.
func (t *tracked) snapshot() snapshot {
	t.seq++
	return snapshot{Operation: t.op.Clone(), seq: t.seq}
}

// reportFault keeps the first fault seen while the operation runs.
func (t *tracked) reportFault(reason string) {
	t.faultMu.Lock()
	defer t.faultMu.Unlock()
	if t.fault == "" {
		t.fault = reason
	}
}

func (t *tracked) faultReason() string {
	t.faultMu.Lock()
	defer t.faultMu.Unlock()
	return t.fault
}
