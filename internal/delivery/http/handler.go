package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/logging"
	"github.com/adbroll/matcher/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint; set at build time with -ldflags
var Version = "1.0.0"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	matcher        *usecase.Matcher
	jobs           *usecase.JobService
	importer       *usecase.ImportService
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler creates a new HTTP handler
func NewHandler(matcher *usecase.Matcher, jobs *usecase.JobService, importer *usecase.ImportService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		matcher:        matcher,
		jobs:           jobs,
		importer:       importer,
		logger:         logger,
		maxUploadBytes: 32 << 20,
	}
}

// SetMaxUploadBytes bounds the size of catalog uploads
func (h *Handler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUploadBytes = n
	}
}

// batchBody is the optional body of the batch and smart endpoints
type batchBody struct {
	BatchSize *int     `json:"batchSize"`
	Offset    *int     `json:"offset"`
	Threshold *float64 `json:"threshold"`
}

// rebuildBody is the optional body of the rebuild endpoint
type rebuildBody struct {
	BatchSize *int     `json:"batchSize"`
	Threshold *float64 `json:"threshold"`
	UseAI     bool     `json:"useAI"`
}

type linkBody struct {
	ProductID string `json:"productId"`
}

type jobBody struct {
	Kind      domain.JobKind `json:"kind"`
	BatchSize int            `json:"batchSize"`
	Offset    int            `json:"offset"`
	Threshold float64        `json:"threshold"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "adbroll-matcher",
		"version": Version,
	})
}

// MatchBatch runs one heuristic page of the matcher
func (h *Handler) MatchBatch(c *gin.Context) {
	h.runBatch(c, false)
}

// MatchSmart runs one page of the matcher with the AI fallback pass
func (h *Handler) MatchSmart(c *gin.Context) {
	h.runBatch(c, true)
}

func (h *Handler) runBatch(c *gin.Context, useAI bool) {
	var body batchBody
	if err := bindOptionalJSON(c, &body); err != nil {
		h.matchError(c, err)
		return
	}

	request := domain.BatchRequest{UseAI: useAI}
	if body.BatchSize != nil {
		if *body.BatchSize <= 0 {
			h.matchError(c, fmt.Errorf("%w: batchSize must be positive", domain.ErrInvalidRequest))
			return
		}
		request.BatchSize = *body.BatchSize
	}
	if body.Offset != nil {
		request.Offset = *body.Offset
	}
	if body.Threshold != nil {
		if *body.Threshold <= 0 {
			h.matchError(c, fmt.Errorf("%w: threshold must be within (0, 1]", domain.ErrInvalidRequest))
			return
		}
		request.Threshold = *body.Threshold
	}

	summary, err := h.matcher.MatchBatch(c.Request.Context(), request)
	if err != nil {
		h.matchError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Rebuild clears non-manual matches and rematches every video
func (h *Handler) Rebuild(c *gin.Context) {
	var body rebuildBody
	if err := bindOptionalJSON(c, &body); err != nil {
		h.matchError(c, err)
		return
	}

	request := domain.RebuildRequest{UseAI: body.UseAI}
	if body.BatchSize != nil {
		if *body.BatchSize <= 0 {
			h.matchError(c, fmt.Errorf("%w: batchSize must be positive", domain.ErrInvalidRequest))
			return
		}
		request.BatchSize = *body.BatchSize
	}
	if body.Threshold != nil {
		if *body.Threshold <= 0 {
			h.matchError(c, fmt.Errorf("%w: threshold must be within (0, 1]", domain.ErrInvalidRequest))
			return
		}
		request.Threshold = *body.Threshold
	}

	summary, err := h.matcher.Rebuild(c.Request.Context(), request)
	if err != nil {
		h.matchError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ResetAttempts makes attempted-unmatched videos candidates again
func (h *Handler) ResetAttempts(c *gin.Context) {
	n, err := h.matcher.ResetAttempts(c.Request.Context())
	if err != nil {
		h.matchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": n})
}

// LinkVideo records a manual match
func (h *Handler) LinkVideo(c *gin.Context) {
	var body linkBody
	if err := bindOptionalJSON(c, &body); err != nil || body.ProductID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
		return
	}

	if err := h.matcher.LinkVideo(c.Request.Context(), c.Param("id"), body.ProductID); err != nil {
		h.resourceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}

// EnqueueJob queues a matcher run for the background worker
func (h *Handler) EnqueueJob(c *gin.Context) {
	var body jobBody
	if err := bindOptionalJSON(c, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), body.Kind, domain.JobParams{
		BatchSize: body.BatchSize,
		Offset:    body.Offset,
		Threshold: body.Threshold,
	})
	if err != nil {
		h.resourceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// GetJob returns a queued job with its status and result
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resourceError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ImportProducts loads an uploaded CSV or XLSX catalog
func (h *Handler) ImportProducts(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	summary, err := h.importer.Import(c.Request.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.requestLogger(c).Error("Catalog import failed", zap.String("file", header.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// matchError maps matcher failures: a held lease is 409, everything else 500
func (h *Handler) matchError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrBatchInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.requestLogger(c).Error("Match request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// resourceError maps job and link failures to 400, 404, 409 or 500
func (h *Handler) resourceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.requestLogger(c).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) requestLogger(c *gin.Context) *zap.Logger {
	return logging.FromContext(c.Request.Context(), h.logger)
}

// bindOptionalJSON decodes the body into v; an empty body leaves v unchanged
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil {
		return nil
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
