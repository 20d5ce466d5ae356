package applier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/tracing"
)

type webhookRequest struct {
	Target      string            `json:"target"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

type webhookResponse struct {
	Ref string `json:"ref"`
}

// WebhookApplier asks an external service to sync one application per call.
type WebhookApplier struct {
	url        string
	httpClient *http.Client
}

var _ domain.TargetApplier = (*WebhookApplier)(nil)

func NewWebhookApplier(url string, timeout time.Duration) *WebhookApplier {
	return &WebhookApplier{
		url:        url,
		httpClient: newHTTPClient(url, timeout),
	}
}

func (a *WebhookApplier) Apply(ctx context.Context, target string, change domain.ChangeDescriptor) (*domain.ApplyResult, error) {
	body, err := json.Marshal(webhookRequest{
		Target:      target,
		Description: change.Description,
		Author:      change.Author,
		Parameters:  change.Parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	ctx, span := tracing.StartExternalAPISpan(ctx, "app_sync", a.url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("x-request-id", requestID)
	}
	tracing.InjectToHTTPRequest(ctx, req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to send sync request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.WarnContext(ctx, "unexpected status code from sync webhook",
			slog.String("target", target),
			slog.Int("status_code", resp.StatusCode),
		)
		err := fmt.Errorf("%w: %d: %s", ErrWebhookStatus, resp.StatusCode, bytes.TrimSpace(snippet))
		tracing.RecordError(span, err)
		return nil, err
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}

	return &domain.ApplyResult{CommittedRef: out.Ref}, nil
}
