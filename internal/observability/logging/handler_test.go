package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(HandlerConfig{
		Writer:        &buf,
		Level:         slog.LevelDebug,
		ServiceInfo:   ServiceInfo{Name: "bulk-operations", Version: "v1.2.3"},
		Environment:   EnvProd,
		DefaultModule: Module("orchestrator"),
	}))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithOperationID(ctx, "op-9")
	logger.InfoContext(ctx, "hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}

	if line["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", line["request_id"])
	}
	if line["operation_id"] != "op-9" {
		t.Errorf("expected operation_id op-9, got %v", line["operation_id"])
	}
	if line["module"] != "orchestrator" {
		t.Errorf("expected module orchestrator, got %v", line["module"])
	}
	service, ok := line["service"].(map[string]any)
	if !ok || service["name"] != "bulk-operations" || service["version"] != "v1.2.3" {
		t.Errorf("unexpected service group: %v", line["service"])
	}
	if _, ok := line["trace_id"]; ok {
		t.Error("trace_id should be absent without a span")
	}
}

func TestValidateAndExtractRequestID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		keep bool
	}{
		{name: "uuid", in: "0f8fad5b-d9cb-469f-a165-70867728950e", keep: true},
		{name: "simple token", in: "abc.DEF_123", keep: true},
		{name: "empty", in: "", keep: false},
		{name: "header injection", in: "abc\r\nX-Evil: 1", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateAndExtractRequestID(tt.in)
			if tt.keep && got != tt.in {
				t.Errorf("expected %q to be kept, got %q", tt.in, got)
			}
			if !tt.keep && (got == tt.in || got == "") {
				t.Errorf("expected a generated id for %q, got %q", tt.in, got)
			}
		})
	}
}
