package archive

import "errors"

var (
	ErrBucketRequired = errors.New("archive bucket is required")
	ErrNotTerminal    = errors.New("operation is not in a terminal status")
)
