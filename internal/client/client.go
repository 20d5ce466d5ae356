// Package client talks to the bulk operations HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/tracing"
)

const ClientKeyHeader = "X-Client-Key"

var ErrNotFound = errors.New("operation not found")

type Client struct {
	baseURL    string
	clientKey  string
	httpClient *http.Client
}

type Option func(*Client)

// WithClientKey sets the key the server rate limits this client under.
func WithClientKey(key string) Option {
	return func(c *Client) {
		c.clientKey = key
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/operations", nil, req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*domain.Operation, error) {
	var out domain.Operation
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations/"+url.PathEscape(id), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/operations", q, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel reports whether the operation was still pending and is now cancelled.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var out cancelResponse
	path := "/api/v1/operations/" + url.PathEscape(id) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, http.StatusOK, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// Wait polls the operation every interval until it reaches a terminal status.
// onProgress, when non-nil, sees every polled snapshot.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onProgress func(*domain.Operation)) (*domain.Operation, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		op, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(op)
		}
		if op.Status.IsTerminal() {
			return op, nil
		}

		select {
		case <-ctx.Done():
			return op, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, wantStatus int, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}
	u.Path = path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-request-id", logging.ValidateAndExtractRequestID(logging.RequestIDFromContext(ctx)))
	if c.clientKey != "" {
		req.Header.Set(ClientKeyHeader, c.clientKey)
	}
	tracing.InjectToHTTPRequest(ctx, req)

	slog.DebugContext(ctx, "sending operations API request",
		slog.String("method", method),
		slog.String("url", u.String()),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, data []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = string(bytes.TrimSpace(data))
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	} else if apiErr.RetryAfterSeconds > 0 {
		apiErr.RetryAfter = time.Duration(apiErr.RetryAfterSeconds) * time.Second
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}
