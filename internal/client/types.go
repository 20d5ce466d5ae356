package client

import (
	"fmt"
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type SubmitRequest struct {
	OperationType domain.OperationType    `json:"operation_type"`
	Targets       []string                `json:"targets"`
	Change        domain.ChangeDescriptor `json:"change"`
	Concurrency   *int                    `json:"concurrency,omitempty"`
	Retries       *int                    `json:"retries,omitempty"`
}

type SubmitResponse struct {
	OperationID string        `json:"operation_id"`
	Status      domain.Status `json:"status"`
}

type ListOptions struct {
	Status domain.Status
	Type   domain.OperationType
	Limit  int
	Offset int
}

type ListResponse struct {
	Operations []*domain.Operation `json:"operations"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// APIError is a non-2xx response from the operations API.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	// RetryAfter is set on 429 and 503 responses.
	RetryAfter time.Duration `json:"-"`

	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (%d): %s, retry after %s", e.Code, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}
