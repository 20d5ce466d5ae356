package applier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
)

func TestWebhookApplier_Success(t *testing.T) {
	var got webhookRequest
	var gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotRequestID = r.Header.Get("x-request-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ref":"sync-42"}`))
	}))
	defer srv.Close()

	a := NewWebhookApplier(srv.URL, 5*time.Second)
	ctx := logging.WithRequestID(context.Background(), "req-123")

	res, err := a.Apply(ctx, "billing-app", domain.ChangeDescriptor{
		Description: "sync",
		Parameters:  map[string]string{"revision": "v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sync-42", res.CommittedRef)
	assert.Equal(t, "billing-app", got.Target)
	assert.Equal(t, "v2", got.Parameters["revision"])
	assert.Equal(t, "req-123", gotRequestID)
}

func TestWebhookApplier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "app is locked", http.StatusConflict)
	}))
	defer srv.Close()

	a := NewWebhookApplier(srv.URL, 5*time.Second)
	_, err := a.Apply(context.Background(), "billing-app", domain.ChangeDescriptor{})
	require.ErrorIs(t, err, ErrWebhookStatus)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "app is locked")
}

func TestWebhookApplier_EmptyBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res, err := NewWebhookApplier(srv.URL, time.Second).Apply(context.Background(), "app", domain.ChangeDescriptor{})
	require.NoError(t, err)
	assert.Empty(t, res.CommittedRef)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	webhook := NewWebhookApplier("http://localhost", time.Second)
	r.Register(domain.OperationTypeAppSync, webhook)

	got, err := r.Lookup(domain.OperationTypeAppSync)
	require.NoError(t, err)
	assert.Same(t, webhook, got)

	_, err = r.Lookup(domain.OperationTypeBranchUpdate)
	assert.ErrorIs(t, err, domain.ErrUnknownOperationType)

	assert.Equal(t, []domain.OperationType{domain.OperationTypeAppSync}, r.Types())
}
