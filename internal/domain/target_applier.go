package domain

import "context"

//go:generate mockgen -source=target_applier.go -destination=target_applier_mock.go -package=domain

// ApplyResult is returned by a successful apply.
type ApplyResult struct {
	CommittedRef string
}

// TargetApplier applies a change to one target. Implementations may block on
// network calls and are not expected to be interruptible once a request is sent.
type TargetApplier interface {
	Apply(ctx context.Context, target string, change ChangeDescriptor) (*ApplyResult, error)
}
