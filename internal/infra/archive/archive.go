// Package archive stores one JSON report per finished operation.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

const reportVersion = 1

// Report is the archived document. It embeds the full final record.
type Report struct {
	Version    int               `json:"version"`
	ArchivedAt time.Time         `json:"archived_at"`
	Operation  *domain.Operation `json:"operation"`
}

func encodeReport(op *domain.Operation, now time.Time) ([]byte, error) {
	if !op.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotTerminal, op.ID, op.Status)
	}
	return json.Marshal(Report{
		Version:    reportVersion,
		ArchivedAt: now.UTC(),
		Operation:  op,
	})
}

// reportKey partitions reports by completion day: <prefix>YYYY/MM/DD/<id>.json.
func reportKey(prefix string, op *domain.Operation) string {
	ts := op.CreatedAt
	if op.CompletedAt != nil {
		ts = *op.CompletedAt
	}
	return prefix + path.Join(ts.UTC().Format("2006/01/02"), op.ID+".json")
}

type noopArchiver struct{}

func NewNoopArchiver() domain.ReportArchiver {
	return noopArchiver{}
}

func (noopArchiver) Archive(context.Context, *domain.Operation) error {
	return nil
}
