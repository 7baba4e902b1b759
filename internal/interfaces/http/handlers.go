package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/application/service"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/domain/workflow"
	"github.com/HadassahLevi/tiktax/internal/stats"
)

// maxUploadBytes caps receipt image uploads at 20 MiB.
const maxUploadBytes = 20 << 20

const filterDateLayout = "2006-01-02"

// Handlers contains all HTTP request handlers
type Handlers struct {
	receipts    *service.ReceiptService
	images      port.ImageStore
	renderer    port.ExportRenderer
	registry    *entity.CategoryRegistry
	recentLimit int
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	receipts *service.ReceiptService,
	images port.ImageStore,
	renderer port.ExportRenderer,
	registry *entity.CategoryRegistry,
	recentLimit int,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		receipts:    receipts,
		images:      images,
		renderer:    renderer,
		registry:    registry,
		recentLimit: recentLimit,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success     bool               `json:"success"`
	Data        interface{}        `json:"data,omitempty"`
	Error       string             `json:"error,omitempty"`
	FieldErrors entity.FieldErrors `json:"field_errors,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// EditRequest is the body of POST /receipts/:id/edits
type EditRequest struct {
	Field    string `json:"field" binding:"required"`
	Value    string `json:"value"`
	EditedBy string `json:"edited_by"`
}

// ExportRequest is the body of POST /export. Dates use YYYY-MM-DD.
type ExportRequest struct {
	DateFrom    string   `json:"date_from"`
	DateTo      string   `json:"date_to"`
	CategoryIDs []string `json:"category_ids"`
	MinAmount   *float64 `json:"min_amount"`
	MaxAmount   *float64 `json:"max_amount"`
	Vendors     []string `json:"vendors"`
	Statuses    []string `json:"statuses"`
	Query       string   `json:"query"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ListCategories handles GET /api/v1/categories
func (h *Handlers) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.registry.All(),
	})
}

// SubmitReceipt handles POST /api/v1/receipts. The request is
// multipart: an owner_id field plus the receipt image or PDF.
func (h *Handlers) SubmitReceipt(c *gin.Context) {
	ownerID := c.PostForm("owner_id")
	if ownerID == "" {
		h.badRequest(c, "owner_id is required")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		h.badRequest(c, "image file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		h.badRequest(c, "image exceeds maximum upload size")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.writeError(c, err)
		return
	}

	imageRef, err := h.images.Store(c.Request.Context(), ownerID, fileHeader.Filename, content)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	outcome, err := h.receipts.Submit(c.Request.Context(), ownerID, imageRef)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success:     true,
		Data:        outcome.Receipt,
		FieldErrors: outcome.FieldErrors,
	})
}

// ListReceipts handles GET /api/v1/receipts?owner=
func (h *Handlers) ListReceipts(c *gin.Context) {
	ownerID := c.Query("owner")
	if ownerID == "" {
		h.badRequest(c, "owner query parameter is required")
		return
	}

	receipts, err := h.receipts.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: receipts})
}

// GetReceipt handles GET /api/v1/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	rec, err := h.receipts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// EditReceipt handles POST /api/v1/receipts/:id/edits
func (h *Handlers) EditReceipt(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	field := entity.FieldID(req.Field)
	if !field.IsValid() {
		h.badRequest(c, "unknown field: "+req.Field)
		return
	}

	outcome, err := h.receipts.ApplyEdit(c.Request.Context(), c.Param("id"), field, req.Value, req.EditedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:     true,
		Data:        outcome.Receipt,
		FieldErrors: outcome.FieldErrors,
	})
}

// ConfirmReceipt handles POST /api/v1/receipts/:id/confirm. A receipt
// held back by validation or flagged as duplicate still answers 200;
// the body carries the field errors or the duplicate verdict.
func (h *Handlers) ConfirmReceipt(c *gin.Context) {
	outcome, err := h.receipts.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:     true,
		Data:        outcome,
		FieldErrors: outcome.FieldErrors,
	})
}

// OverrideDuplicate handles POST /api/v1/receipts/:id/not-duplicate
func (h *Handlers) OverrideDuplicate(c *gin.Context) {
	outcome, err := h.receipts.OverrideDuplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: outcome.Receipt})
}

// GetStatistics handles GET /api/v1/stats?owner=
func (h *Handlers) GetStatistics(c *gin.Context) {
	ownerID := c.Query("owner")
	if ownerID == "" {
		h.badRequest(c, "owner query parameter is required")
		return
	}

	result, err := h.receipts.Statistics(c.Request.Context(), ownerID, time.Now().UTC(), h.recentLimit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// Export handles POST /api/v1/export?owner=&format=. Format "json"
// (the default) returns the dataset inline, "xlsx" streams a workbook.
func (h *Handlers) Export(c *gin.Context) {
	ownerID := c.Query("owner")
	if ownerID == "" {
		h.badRequest(c, "owner query parameter is required")
		return
	}

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.badRequest(c, "invalid request body")
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		result, err := h.receipts.Export(c.Request.Context(), ownerID, filter)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: result})
	case "xlsx":
		data, err := h.receipts.RenderExport(c.Request.Context(), ownerID, filter, h.renderer)
		if err != nil {
			h.writeError(c, err)
			return
		}
		filename := "receipts-" + time.Now().UTC().Format("20060102") + ".xlsx"
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		h.badRequest(c, "unsupported format")
	}
}

func (r *ExportRequest) toFilter() (stats.ExportFilter, error) {
	var filter stats.ExportFilter

	if r.DateFrom != "" {
		t, err := time.Parse(filterDateLayout, r.DateFrom)
		if err != nil {
			return filter, errors.New("date_from must be YYYY-MM-DD")
		}
		filter.DateFrom = &t
	}
	if r.DateTo != "" {
		t, err := time.Parse(filterDateLayout, r.DateTo)
		if err != nil {
			return filter, errors.New("date_to must be YYYY-MM-DD")
		}
		filter.DateTo = &t
	}

	filter.CategoryIDs = r.CategoryIDs
	filter.MinAmount = r.MinAmount
	filter.MaxAmount = r.MaxAmount
	filter.Vendors = r.Vendors
	filter.Query = r.Query

	for _, s := range r.Statuses {
		status := entity.Status(s)
		if !workflow.IsValidState(status) {
			return filter, errors.New("unknown status: " + s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	return filter, nil
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps service errors onto HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, entity.ErrReceiptNotFound):
		status = http.StatusNotFound
		msg = "receipt not found"
	case errors.Is(err, workflow.ErrStateConflict):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, entity.ErrConcurrentModification):
		status = http.StatusConflict
		msg = "receipt was modified concurrently, reload and retry"
	case errors.Is(err, entity.ErrDuplicateCheckUnavailable):
		status = http.StatusServiceUnavailable
		msg = "duplicate check unavailable, try again later"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(status, Response{Success: false, Error: msg})
}
