//go:build gcloud

package auditrecorder

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type bigQueryRecord struct {
	RecordedAt    time.Time `bigquery:"recorded_at"`
	SettledAt     time.Time `bigquery:"settled_at"`
	OperationID   string    `bigquery:"operation_id"`
	OperationType string    `bigquery:"operation_type"`
	Target        string    `bigquery:"target"`
	Outcome       string    `bigquery:"outcome"`
	Detail        string    `bigquery:"detail"`
	Attempts      int64     `bigquery:"attempts"`
	DurationMs    int64     `bigquery:"duration_ms"`
}

type bigQueryRecorder struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	dataset  string
	table    string
}

func NewRecorder(ctx context.Context, cfg *Config) (domain.AuditSink, error) {
	if cfg.Disabled {
		slog.InfoContext(ctx, "target audit recording disabled")
		return NewNoopRecorder(), nil
	}

	if cfg.LogOnly {
		slog.InfoContext(ctx, "target audit recorder initialized", slog.String("type", "log"))
		return NewLogRecorder(slog.Default()), nil
	}

	if cfg.BigQueryProjectID == "" {
		slog.WarnContext(ctx, "BigQuery project ID not configured, falling back to log audit recorder")
		return NewLogRecorder(slog.Default()), nil
	}

	client, err := bigquery.NewClient(ctx, cfg.BigQueryProjectID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create BigQuery client, falling back to log audit recorder",
			slog.String("error", err.Error()),
			slog.String("project_id", cfg.BigQueryProjectID),
		)
		return NewLogRecorder(slog.Default()), nil
	}

	inserter := client.Dataset(cfg.BigQueryDataset).Table(cfg.BigQueryTable).Inserter()

	slog.InfoContext(ctx, "target audit recorder initialized",
		slog.String("type", "bigquery"),
		slog.String("project_id", cfg.BigQueryProjectID),
		slog.String("dataset", cfg.BigQueryDataset),
		slog.String("table", cfg.BigQueryTable),
	)

	return &bigQueryRecorder{
		client:   client,
		inserter: inserter,
		dataset:  cfg.BigQueryDataset,
		table:    cfg.BigQueryTable,
	}, nil
}

func (r *bigQueryRecorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	return r.inserter.Put(ctx, &bigQueryRecord{
		RecordedAt:    time.Now(),
		SettledAt:     entry.Timestamp,
		OperationID:   entry.OperationID,
		OperationType: entry.OperationType.String(),
		Target:        entry.Target,
		Outcome:       string(entry.Outcome),
		Detail:        entry.Detail,
		Attempts:      int64(entry.Attempts),
		DurationMs:    entry.Duration.Milliseconds(),
	})
}

func (r *bigQueryRecorder) Flush(_ context.Context) error {
	return nil
}

func (r *bigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
