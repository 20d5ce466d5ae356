package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/handler"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/applier"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/repository"
	"github.com/KasumiMercury/primind-bulk-operations/internal/ratelimit"
	"github.com/KasumiMercury/primind-bulk-operations/internal/service/operation"
)

type flakyApplier struct {
	fail map[string]bool
}

func (a flakyApplier) Apply(_ context.Context, target string, _ domain.ChangeDescriptor) (*domain.ApplyResult, error) {
	if a.fail[target] {
		return nil, errors.New("push rejected")
	}
	return &domain.ApplyResult{CommittedRef: "ref-" + target}, nil
}

func newTestServer(t *testing.T, bulkMax int) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate, err := ratelimit.NewMemoryGate([]ratelimit.Policy{
		{Name: ratelimit.LimiterBulk, MaxRequests: bulkMax, Window: time.Minute},
		{Name: ratelimit.LimiterSync, MaxRequests: 100, Window: time.Minute},
	})
	require.NoError(t, err)

	reg := applier.NewRegistry()
	reg.Register(domain.OperationTypeBranchUpdate, flakyApplier{fail: map[string]bool{"repo-02": true}})

	svc := operation.NewService(operation.Config{RetryDelay: 0}, repository.NewMemoryOperationRepository(), reg, gate, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	r := gin.New()
	handler.NewOperationHandler(svc).Register(r.Group("/api/v1"))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv
}

func TestClient_SubmitAndWait(t *testing.T) {
	srv := newTestServer(t, 5)
	c := NewClient(srv.URL, WithClientKey("ci"))
	ctx := context.Background()

	submitted, err := c.Submit(ctx, SubmitRequest{
		OperationType: domain.OperationTypeBranchUpdate,
		Targets:       []string{"repo-01", "repo-02", "repo-03"},
		Change:        domain.ChangeDescriptor{Description: "bump"},
		Retries:       intPtr(0),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, submitted.OperationID)
	assert.Equal(t, domain.StatusPending, submitted.Status)

	var polls int
	op, err := c.Wait(ctx, submitted.OperationID, 10*time.Millisecond, func(*domain.Operation) { polls++ })
	require.NoError(t, err)
	assert.Positive(t, polls)

	assert.Equal(t, domain.StatusPartial, op.Status)
	assert.Equal(t, 2, op.SuccessfulCount)
	assert.Equal(t, 1, op.FailedCount)
	assert.InDelta(t, 100.0, op.ProgressPercentage, 0.001)
	require.NotNil(t, op.Summary)
	assert.Equal(t, 3, op.Summary.Total)
}

func TestClient_RateLimited(t *testing.T) {
	srv := newTestServer(t, 1)
	c := NewClient(srv.URL, WithClientKey("burst"))
	ctx := context.Background()

	req := SubmitRequest{OperationType: domain.OperationTypeBranchUpdate, Targets: []string{"repo-01"}}

	_, err := c.Submit(ctx, req)
	require.NoError(t, err)

	_, err = c.Submit(ctx, req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, operation.RateLimitErrorCode, apiErr.Code)
	assert.Greater(t, apiErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, apiErr.RetryAfter, time.Minute)
}

func TestClient_ValidationError(t *testing.T) {
	srv := newTestServer(t, 5)
	c := NewClient(srv.URL)

	_, err := c.Submit(context.Background(), SubmitRequest{
		OperationType: domain.OperationTypeBranchUpdate,
		Targets:       []string{"repo-01", "repo-01"},
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Message, "duplicate")
}

func TestClient_NotFound(t *testing.T) {
	srv := newTestServer(t, 5)
	c := NewClient(srv.URL)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ListAndCancel(t *testing.T) {
	srv := newTestServer(t, 5)
	c := NewClient(srv.URL)
	ctx := context.Background()

	submitted, err := c.Submit(ctx, SubmitRequest{OperationType: domain.OperationTypeBranchUpdate, Targets: []string{"repo-01"}})
	require.NoError(t, err)
	_, err = c.Wait(ctx, submitted.OperationID, 10*time.Millisecond, nil)
	require.NoError(t, err)

	cancelled, err := c.Cancel(ctx, submitted.OperationID)
	require.NoError(t, err)
	assert.False(t, cancelled, "a completed operation cannot be cancelled")

	list, err := c.List(ctx, ListOptions{Status: domain.StatusCompleted, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Operations, 1)
	assert.Equal(t, submitted.OperationID, list.Operations[0].ID)
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down\n"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Get(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Service Unavailable", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
}

func intPtr(v int) *int {
	return &v
}
