package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/executor"
	"github.com/KasumiMercury/primind-bulk-operations/internal/service/operation"
)

const (
	ClientKeyHeader = "X-Client-Key"

	defaultListLimit = 50
	maxListLimit     = 200
)

// OperationService is the orchestrator surface the HTTP API needs.
type OperationService interface {
	Submit(ctx context.Context, req operation.SubmitRequest) (string, error)
	GetOperation(ctx context.Context, id string) (*domain.Operation, error)
	ListOperations(ctx context.Context, filter domain.ListFilter) (*operation.ListResult, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

type OperationHandler struct {
	service OperationService
}

func NewOperationHandler(service OperationService) *OperationHandler {
	return &OperationHandler{service: service}
}

// Register mounts the operation routes on rg.
func (h *OperationHandler) Register(rg gin.IRoutes) {
	rg.POST("/operations", h.HandleSubmit)
	rg.GET("/operations", h.HandleList)
	rg.GET("/operations/:id", h.HandleGet)
	rg.POST("/operations/:id/cancel", h.HandleCancel)
}

type submitRequest struct {
	OperationType string                  `json:"operation_type" binding:"required"`
	Targets       []string                `json:"targets" binding:"required"`
	Change        domain.ChangeDescriptor `json:"change"`
	Concurrency   *int                    `json:"concurrency,omitempty"`
	Retries       *int                    `json:"retries,omitempty"`
}

type submitResponse struct {
	OperationID string        `json:"operation_id"`
	Status      domain.Status `json:"status"`
}

type listResponse struct {
	Operations []*domain.Operation `json:"operations"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func (h *OperationHandler) HandleSubmit(c *gin.Context) {
	ctx := c.Request.Context()

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "request validation failed",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	id, err := h.service.Submit(ctx, operation.SubmitRequest{
		ClientKey:     clientKey(c),
		OperationType: domain.OperationType(req.OperationType),
		Targets:       req.Targets,
		Change:        req.Change,
		Concurrency:   req.Concurrency,
		Retries:       req.Retries,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.Header("Location", "/api/v1/operations/"+id)
	c.JSON(http.StatusAccepted, submitResponse{
		OperationID: id,
		Status:      domain.StatusPending,
	})
}

func (h *OperationHandler) HandleGet(c *gin.Context) {
	op, err := h.service.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

func (h *OperationHandler) HandleList(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := h.service.ListOperations(c.Request.Context(), filter)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse{
		Operations: result.Operations,
		Total:      result.Total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

func (h *OperationHandler) HandleCancel(c *gin.Context) {
	cancelled, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{Cancelled: cancelled})
}

func parseListFilter(c *gin.Context) (domain.ListFilter, error) {
	filter := domain.ListFilter{
		Type:  domain.OperationType(c.Query("type")),
		Limit: defaultListLimit,
	}

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return domain.ListFilter{}, err
		}
		filter.Status = status
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return domain.ListFilter{}, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(limit, maxListLimit)
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return domain.ListFilter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// clientKey identifies the caller for rate limiting.
func clientKey(c *gin.Context) string {
	if key := c.GetHeader(ClientKeyHeader); key != "" {
		return key
	}
	return c.ClientIP()
}

func (h *OperationHandler) respondServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var rlErr *operation.RateLimitError
	switch {
	case errors.As(err, &rlErr):
		retryAfter := rlErr.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, errorResponse{
			Error:             rlErr.Code,
			Message:           rlErr.Message,
			RetryAfterSeconds: retryAfter,
		})

	case errors.Is(err, domain.ErrOperationNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())

	case errors.Is(err, domain.ErrNoTargets),
		errors.Is(err, domain.ErrInvalidTarget),
		errors.Is(err, domain.ErrDuplicateTarget),
		errors.Is(err, domain.ErrUnknownOperationType),
		errors.Is(err, operation.ErrTooManyTargets),
		errors.Is(err, operation.ErrPolicyOutOfRange),
		errors.Is(err, executor.ErrInvalidConcurrency),
		errors.Is(err, executor.ErrInvalidRetries):
		slog.WarnContext(ctx, "operation rejected",
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())

	case errors.Is(err, operation.ErrQueueFull):
		c.Header("Retry-After", "1")
		respondError(c, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error())

	default:
		slog.ErrorContext(ctx, "operation request failed",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Error:   code,
		Message: message,
	})
}
