package domain

import "errors"

var (
	ErrOperationNotFound    = errors.New("operation not found")
	ErrOperationExists      = errors.New("operation already exists")
	ErrAlreadyStarted       = errors.New("operation already started")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoTargets            = errors.New("at least one target is required")
	ErrInvalidTarget        = errors.New("target must not be blank")
	ErrDuplicateTarget      = errors.New("duplicate target")
	ErrUnknownOperationType = errors.New("unknown operation type")
	ErrTargetNotPending     = errors.New("target is not pending")
)
