package repository

import "errors"

var (
	ErrInvalidOperationData = errors.New("invalid operation data")
	ErrUnsupportedDialect   = errors.New("unsupported sql dialect")
)
