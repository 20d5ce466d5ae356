package auditrecorder

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

func TestLogRecorderWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))

	entry := domain.AuditEntry{
		OperationID:   "op-1",
		OperationType: domain.OperationTypeBranchUpdate,
		Target:        "release/1.2",
		Outcome:       domain.OutcomeFailure,
		Detail:        "apply_failed: merge conflict",
		Attempts:      3,
		Duration:      1500 * time.Millisecond,
		Timestamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := rec.Record(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}

	expected := map[string]any{
		"event":          "operation.target.audit",
		"operation_id":   "op-1",
		"operation_type": "branch_update",
		"target":         "release/1.2",
		"outcome":        "failure",
		"detail":         "apply_failed: merge conflict",
		"attempts":       float64(3),
	}
	for k, want := range expected {
		if got := line[k]; got != want {
			t.Errorf("%s: expected %v, got %v", k, want, got)
		}
	}
}

func TestNewRecorderDisabledReturnsNoop(t *testing.T) {
	rec, err := NewRecorder(context.Background(), &Config{Disabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rec.(*noopRecorder); !ok {
		t.Errorf("expected noop recorder, got %T", rec)
	}
	if err := rec.Record(context.Background(), domain.AuditEntry{}); err != nil {
		t.Errorf("noop record returned error: %v", err)
	}
}

func TestNewRecorderLogOnly(t *testing.T) {
	rec, err := NewRecorder(context.Background(), &Config{LogOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rec.(*logRecorder); !ok {
		t.Errorf("expected log recorder, got %T", rec)
	}
}
