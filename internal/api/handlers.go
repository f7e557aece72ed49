package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/RishiKendai/palimpsest/internal/reuse"
	"github.com/RishiKendai/palimpsest/internal/runs"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RunService is the part of runs.Service the HTTP layer needs
type RunService interface {
	Submit(ctx context.Context, req models.RunRequest) (models.RunRequest, error)
	Stream(ctx context.Context, req models.RunRequest) (*reuse.Task, error)
	Report(ctx context.Context, runID string) (*models.RunReport, error)
	Status(ctx context.Context, runID string) (*models.RunStatus, error)
}

// MetadataStore imports document metadata when metadata is served from MongoDB
type MetadataStore interface {
	UpsertMetadata(ctx context.Context, records []models.RawMetadataRecord) error
	CountMetadata(ctx context.Context) (int64, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	runs     RunService
	metadata MetadataStore
}

// NewHandler creates a new handler. metadata may be nil, which disables the import endpoint.
func NewHandler(runs RunService, metadata MetadataStore) *Handler {
	return &Handler{
		runs:     runs,
		metadata: metadata,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// CreateRun queues a run and answers 202 with its id
func (h *Handler) CreateRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	req, err := h.runs.Submit(c.Request.Context(), req)
	if err != nil {
		h.runError(c, req, err)
		return
	}

	c.JSON(http.StatusAccepted, models.RunResponse{
		Step:  models.StepQueued,
		RunID: req.RunID,
	})
}

// reportView is a stored report, optionally with matches grouped per page pair
type reportView struct {
	*models.RunReport
	PageGroups map[string][]reuse.PageGroup `json:"pageGroups,omitempty"`
}

func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	report, err := h.runs.Report(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Failed to get run report")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to get run report",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}

	view := reportView{RunReport: report}
	if c.Query("group") == "pages" && report.Result != nil {
		view.PageGroups = make(map[string][]reuse.PageGroup, len(report.Result.Connections))
		for _, conn := range report.Result.Connections {
			view.PageGroups[conn.ID] = reuse.GroupByPagePair(conn)
		}
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetRunStatus(c *gin.Context) {
	runID := c.Param("id")
	status, err := h.runs.Status(c.Request.Context(), runID)
	if errors.Is(err, reuse.ErrStatusNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Failed to get run status")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to get run status",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Analyze executes a run while the client waits, as Server-Sent Events:
// progress events, then a single result or error event.
func (h *Handler) Analyze(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()
	task, err := h.runs.Stream(ctx, req)
	if err != nil {
		h.runError(c, req, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for value := range task.Progress() {
		if ctx.Err() != nil {
			log.Debug().Str("target", req.Target).Msg("Client left before the run ended")
			return
		}
		c.SSEvent("progress", models.ProgressEvent{Type: "progress", Value: value})
		c.Writer.Flush()
	}

	result, err := task.Wait()
	if err != nil {
		log.Error().Err(err).Str("target", req.Target).Msg("Streamed run failed")
		c.SSEvent("error", models.ErrorResponse{
			Error: err.Error(),
			Code:  errorCode(err),
		})
		c.Writer.Flush()
		return
	}

	c.SSEvent("result", result)
	c.Writer.Flush()
}

// ImportMetadata replaces metadata records by filename
func (h *Handler) ImportMetadata(c *gin.Context) {
	if h.metadata == nil {
		c.JSON(http.StatusNotImplemented, models.ErrorResponse{
			Error: "Metadata is not served from the database",
			Code:  "METADATA_READ_ONLY",
		})
		return
	}

	var records []models.RawMetadataRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid metadata body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.metadata.UpsertMetadata(ctx, records); err != nil {
		_ = c.Error(err)
		return
	}

	total, err := h.metadata.CountMetadata(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": len(records),
		"total":    total,
	})
}

func (h *Handler) runError(c *gin.Context, req models.RunRequest, err error) {
	switch {
	case runs.IsClientError(err):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, models.ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
	default:
		log.Error().Err(err).Str("target", req.Target).Msg("Failed to start run")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to start run",
			Code:  "INTERNAL_ERROR",
		})
	}
}

func errorCode(err error) string {
	if errors.Is(err, reuse.ErrInputUnavailable) {
		return "INPUT_UNAVAILABLE"
	}
	return "INTERNAL_ERROR"
}
