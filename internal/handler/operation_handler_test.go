package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/applier"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/repository"
	"github.com/KasumiMercury/primind-bulk-operations/internal/ratelimit"
	"github.com/KasumiMercury/primind-bulk-operations/internal/service/operation"
)

type stubApplier struct{}

func (stubApplier) Apply(context.Context, string, domain.ChangeDescriptor) (*domain.ApplyResult, error) {
	return &domain.ApplyResult{CommittedRef: "abc"}, nil
}

func setupRouter(t *testing.T, maxRequests int) (*gin.Engine, *operation.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate, err := ratelimit.NewMemoryGate([]ratelimit.Policy{
		{Name: ratelimit.LimiterBulk, MaxRequests: maxRequests, Window: time.Minute},
		{Name: ratelimit.LimiterSync, MaxRequests: maxRequests, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("NewMemoryGate() error = %v", err)
	}

	reg := applier.NewRegistry()
	reg.Register(domain.OperationTypeBranchUpdate, stubApplier{})

	svc := operation.NewService(operation.Config{MaxTargets: 10}, repository.NewMemoryOperationRepository(), reg, gate, nil, nil, nil)

	r := gin.New()
	NewOperationHandler(svc).Register(r.Group("/api/v1"))
	return r, svc
}

func doJSON(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validSubmit() map[string]any {
	return map[string]any{
		"operation_type": "branch_update",
		"targets":        []string{"repo-01", "repo-02"},
		"change": map[string]any{
			"description": "bump",
			"files":       []map[string]string{{"path": "VERSION", "content": "2\n"}},
		},
	}
}

func TestHandleSubmit_Accepted(t *testing.T) {
	r, svc := setupRouter(t, 5)

	w := doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OperationID == "" || resp.Status != domain.StatusPending {
		t.Errorf("response = %+v", resp)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/operations/"+resp.OperationID {
		t.Errorf("Location = %q", loc)
	}

	op, err := svc.GetOperation(context.Background(), resp.OperationID)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.TotalTargets != 2 || op.Change.Files[0].Path != "VERSION" {
		t.Errorf("stored operation = %+v", op)
	}
}

func TestHandleSubmit_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing type", map[string]any{"targets": []string{"a"}}},
		{"missing targets", map[string]any{"operation_type": "branch_update"}},
		{"empty targets", map[string]any{"operation_type": "branch_update", "targets": []string{}}},
		{"duplicate targets", map[string]any{"operation_type": "branch_update", "targets": []string{"a", "a"}}},
		{"unknown type", map[string]any{"operation_type": "app_sync", "targets": []string{"a"}}},
		{"zero concurrency", map[string]any{"operation_type": "branch_update", "targets": []string{"a"}, "concurrency": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setupRouter(t, 100)

			w := doJSON(r, http.MethodPost, "/api/v1/operations", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}

			var resp errorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error != "VALIDATION_ERROR" {
				t.Errorf("error = %q, want VALIDATION_ERROR", resp.Error)
			}
		})
	}
}

func TestHandleSubmit_RateLimited(t *testing.T) {
	r, _ := setupRouter(t, 2)
	headers := map[string]string{ClientKeyHeader: "tenant-a"}

	for i := 0; i < 2; i++ {
		if w := doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), headers); w.Code != http.StatusAccepted {
			t.Fatalf("submission %d status = %d", i+1, w.Code)
		}
	}

	w := doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != operation.RateLimitErrorCode {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.RetryAfterSeconds < 1 || resp.RetryAfterSeconds > 60 {
		t.Errorf("retry_after_seconds = %d", resp.RetryAfterSeconds)
	}

	other := doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), map[string]string{ClientKeyHeader: "tenant-b"})
	if other.Code != http.StatusAccepted {
		t.Errorf("other client status = %d, want 202", other.Code)
	}
}

func TestHandleGet(t *testing.T) {
	r, svc := setupRouter(t, 5)

	w := doJSON(r, http.MethodGet, "/api/v1/operations/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}

	id, err := svc.Submit(context.Background(), operation.SubmitRequest{
		ClientKey:     "c",
		OperationType: domain.OperationTypeBranchUpdate,
		Targets:       []string{"repo-01"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := svc.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/operations/"+id, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var op domain.Operation
	if err := json.Unmarshal(w.Body.Bytes(), &op); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if op.Status != domain.StatusCompleted || op.ProgressPercentage != 100 || len(op.Results) != 1 {
		t.Errorf("operation = %+v", op)
	}
	if s, ok := op.Results[0].Outcome.(domain.Success); !ok || s.CommittedRef != "abc" {
		t.Errorf("result outcome = %#v", op.Results[0].Outcome)
	}
}

func TestHandleList(t *testing.T) {
	r, _ := setupRouter(t, 10)

	for i := 0; i < 3; i++ {
		doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), nil)
	}

	w := doJSON(r, http.MethodGet, "/api/v1/operations?status=pending&limit=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Operations) != 2 || resp.Limit != 2 {
		t.Errorf("response total=%d len=%d limit=%d", resp.Total, len(resp.Operations), resp.Limit)
	}

	for _, query := range []string{"status=bogus", "limit=0", "limit=x", "offset=-1"} {
		if w := doJSON(r, http.MethodGet, "/api/v1/operations?"+query, nil, nil); w.Code != http.StatusBadRequest {
			t.Errorf("query %q status = %d, want 400", query, w.Code)
		}
	}
}

func TestHandleCancel(t *testing.T) {
	r, _ := setupRouter(t, 5)

	w := doJSON(r, http.MethodPost, "/api/v1/operations", validSubmit(), nil)
	var submitted submitResponse
	_ = json.Unmarshal(w.Body.Bytes(), &submitted)

	path := "/api/v1/operations/" + submitted.OperationID + "/cancel"

	w = doJSON(r, http.MethodPost, path, nil, nil)
	var resp cancelResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Cancelled {
		t.Fatalf("first cancel status = %d cancelled = %v", w.Code, resp.Cancelled)
	}

	w = doJSON(r, http.MethodPost, path, nil, nil)
	resp = cancelResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Cancelled {
		t.Errorf("second cancel status = %d cancelled = %v", w.Code, resp.Cancelled)
	}

	if w := doJSON(r, http.MethodPost, "/api/v1/operations/missing/cancel", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing cancel status = %d, want 404", w.Code)
	}
}
