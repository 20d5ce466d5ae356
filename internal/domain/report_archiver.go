package domain

import "context"

//go:generate mockgen -source=report_archiver.go -destination=report_archiver_mock.go -package=domain

// ReportArchiver stores the final record of an operation once it reaches a terminal status.
type ReportArchiver interface {
	Archive(ctx context.Context, op *Operation) error
}
