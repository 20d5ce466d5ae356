package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

const recordVersion = 1

// operationRecord wraps the persisted snapshot so the encoding can evolve.
type operationRecord struct {
	Version   int               `json:"version"`
	SavedAt   time.Time         `json:"saved_at"`
	Operation *domain.Operation `json:"operation"`
}

func encodeOperation(op *domain.Operation, now time.Time) ([]byte, error) {
	if op == nil || op.ID == "" {
		return nil, ErrInvalidOperationData
	}

	data, err := json.Marshal(operationRecord{
		Version:   recordVersion,
		SavedAt:   now,
		Operation: op,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperationData, err)
	}
	return data, nil
}

func decodeOperation(data []byte) (*domain.Operation, error) {
	var record operationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperationData, err)
	}
	if record.Operation == nil {
		return nil, ErrInvalidOperationData
	}
	return record.Operation, nil
}

func matchesFilter(op *domain.Operation, filter domain.ListFilter) bool {
	if filter.Status != "" && op.Status != filter.Status {
		return false
	}
	if filter.Type != "" && op.Type != filter.Type {
		return false
	}
	return true
}

// page applies offset and limit to an already filtered, ordered slice.
func page[T any](items []T, filter domain.ListFilter) []T {
	if filter.Offset >= len(items) {
		return []T{}
	}
	items = items[max(filter.Offset, 0):]
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}
