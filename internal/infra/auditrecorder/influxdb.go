//go:build !gcloud

package auditrecorder

import (
	"context"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type influxDBRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
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

	if cfg.InfluxDBToken == "" || cfg.InfluxDBOrg == "" {
		slog.WarnContext(ctx, "InfluxDB token or org not configured, falling back to log audit recorder",
			slog.String("url", cfg.InfluxDBURL),
		)
		return NewLogRecorder(slog.Default()), nil
	}

	client := influxdb2.NewClient(cfg.InfluxDBURL, cfg.InfluxDBToken)
	writeAPI := client.WriteAPIBlocking(cfg.InfluxDBOrg, cfg.InfluxDBBucket)

	slog.InfoContext(ctx, "target audit recorder initialized",
		slog.String("type", "influxdb"),
		slog.String("url", cfg.InfluxDBURL),
		slog.String("bucket", cfg.InfluxDBBucket),
	)

	return &influxDBRecorder{
		client:   client,
		writeAPI: writeAPI,
		bucket:   cfg.InfluxDBBucket,
		org:      cfg.InfluxDBOrg,
	}, nil
}

func (r *influxDBRecorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	point := influxdb2.NewPoint(
		"target_audit",
		map[string]string{
			"operation_id":   entry.OperationID,
			"operation_type": entry.OperationType.String(),
			"outcome":        string(entry.Outcome),
		},
		map[string]any{
			"target":      entry.Target,
			"detail":      entry.Detail,
			"attempts":    entry.Attempts,
			"duration_ms": entry.Duration.Milliseconds(),
		},
		entry.Timestamp,
	)

	return r.writeAPI.WritePoint(ctx, point)
}

func (r *influxDBRecorder) Flush(ctx context.Context) error {
	return r.writeAPI.Flush(ctx)
}

func (r *influxDBRecorder) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
