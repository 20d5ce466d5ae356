package applier

import "errors"

var (
	ErrBranchNotFound = errors.New("branch not found")
	ErrInvalidPath    = errors.New("invalid file path")
	ErrNoFileChanges  = errors.New("change has no files")
	ErrWebhookStatus  = errors.New("unexpected webhook status")
)
