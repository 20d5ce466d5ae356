package stub

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	storage *RunStorage
}

func NewHandler(storage *RunStorage) *Handler {
	return &Handler{storage: storage}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/reset", h.HandleReset)
	r.POST("/behavior", h.HandleConfigure)
	r.POST("/sync", h.HandleSync)
	r.GET("/stats", h.HandleStats)
}

func (h *Handler) HandleReset(c *gin.Context) {
	runID := c.DefaultQuery("run_id", "default")

	h.storage.Reset(runID)

	slog.Info("reset run", slog.String("run_id", runID))

	c.JSON(http.StatusOK, gin.H{
		"status": "reset complete",
		"run_id": runID,
	})
}

// POST /behavior?run_id=...
func (h *Handler) HandleConfigure(c *gin.Context) {
	runID := c.DefaultQuery("run_id", "default")

	var req Behavior
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FailPercent < 0 || req.FailPercent > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fail_percent must be between 0 and 100"})
		return
	}

	h.storage.Configure(runID, req)

	slog.Info("configured run",
		slog.String("run_id", runID),
		slog.Int("fail_targets", len(req.FailTargets)),
		slog.Int("fail_first_attempts", req.FailFirstAttempts),
		slog.Int("fail_percent", req.FailPercent),
		slog.Int("latency_ms", req.LatencyMs),
	)

	c.JSON(http.StatusOK, gin.H{"status": "configured", "run_id": runID})
}

// POST /sync?run_id=... is the app_sync webhook endpoint.
func (h *Handler) HandleSync(c *gin.Context) {
	runID := c.DefaultQuery("run_id", "default")

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, latency := h.storage.Record(runID, req.Target)
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-c.Request.Context().Done():
			return
		}
	}

	slog.Debug("sync call",
		slog.String("run_id", runID),
		slog.String("target", req.Target),
		slog.Bool("ok", ref != ""),
	)

	if ref == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync failed for " + req.Target})
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Ref: ref})
}

func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.storage.Stats(c.DefaultQuery("run_id", "default")))
}
