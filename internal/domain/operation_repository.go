package domain

import "context"

//go:generate mockgen -source=operation_repository.go -destination=operation_repository_mock.go -package=domain

// ListFilter narrows ListOperations. Zero values mean "any".
type ListFilter struct {
	Status Status
	Type   OperationType
	Limit  int
	Offset int
}

type OperationRepository interface {
	Create(ctx context.Context, op *Operation) error
	Save(ctx context.Context, op *Operation) error
	Get(ctx context.Context, id string) (*Operation, error)
	List(ctx context.Context, filter ListFilter) ([]*Operation, int, error)
}
