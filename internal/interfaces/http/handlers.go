package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/haulmark/invoice-audit/internal/application/service"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/domain/reconcile"
	"github.com/haulmark/invoice-audit/internal/importer"
	"github.com/haulmark/invoice-audit/pkg/metrics"
	"github.com/haulmark/invoice-audit/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	reconciliation service.ReconciliationService
	health         HealthFunc
	jobs           *metrics.JobMetrics
	logger         Logger
	now            func() time.Time
	maxUpload      int64
}

// NewHandlers creates a new Handlers instance. health and jobs may be nil.
func NewHandlers(reconciliation service.ReconciliationService, health HealthFunc, jobs *metrics.JobMetrics, logger Logger) *Handlers {
	return &Handlers{
		reconciliation: reconciliation,
		health:         health,
		jobs:           jobs,
		logger:         logger,
		now:            time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// RecordResponse is an audit record with its derived fields
type RecordResponse struct {
	ID            int64  `json:"id"`
	CustomerName  string `json:"customer_name"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date,omitempty"`
	PONumber      string `json:"po_number"`
	Amount        string `json:"amount"`
	Source        string `json:"source"`
	Matched       bool   `json:"matched"`
	MatchStatus   string `json:"match_status"`
	DriverName    string `json:"driver_name,omitempty"`
	Color         string `json:"color,omitempty"`
}

// UpdateRecordRequest is the body of PUT /api/records/:id
type UpdateRecordRequest struct {
	CustomerName  string          `json:"customer_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	PONumber      string          `json:"po_number" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Source        string          `json:"source"`
	Matched       bool            `json:"matched"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.health != nil {
		healthy, details := h.health()
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    resp,
	})
}

// ListRecords handles GET /api/records. ?status= filters by match status
// and ?refresh=true recomputes the view first.
func (h *Handlers) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		records []*entity.AuditRecord
		err     error
	)
	if c.Query("refresh") == "true" {
		records, err = h.reconciliation.Refresh(ctx)
	} else {
		records, err = h.reconciliation.Records(ctx)
	}
	if err != nil {
		h.fail(c, "Failed to list records", err)
		return
	}

	status := entity.MatchStatus(strings.ToUpper(c.Query("status")))
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		if status != "" && r.MatchStatus != status {
			continue
		}
		out = append(out, toRecordResponse(r))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// ImportRecords handles POST /api/records/import with a multipart "file"
func (h *Handlers) ImportRecords(c *gin.Context) {
	header, err := c.FormFile("file")
	if isBodyTooLarge(err) {
		abortTooLarge(c, h.maxUpload)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "multipart field \"file\" is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.fail(c, "Failed to open upload", err)
		return
	}
	defer file.Close()

	start := time.Now()
	result, err := h.reconciliation.ImportReader(c.Request.Context(), file, header.Filename)
	h.jobs.Observe(metrics.JobImport, start, err)
	if err != nil {
		h.fail(c, "Import failed", err, "file", header.Filename)
		return
	}

	h.logger.Info("Spreadsheet imported via API",
		"file", header.Filename,
		"inserted", result.Inserted,
		"updated", result.Updated)
	h.jobs.AddRecords(metrics.JobImport, "inserted", result.Inserted)
	h.jobs.AddRecords(metrics.JobImport, "updated", result.Updated)
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// SyncLoads handles POST /api/records/sync
func (h *Handlers) SyncLoads(c *gin.Context) {
	start := time.Now()
	result, err := h.reconciliation.SyncLoads(c.Request.Context())
	h.jobs.Observe(metrics.JobLoadSync, start, err)
	if err != nil {
		h.fail(c, "Load sync failed", err)
		return
	}
	h.jobs.AddRecords(metrics.JobLoadSync, "created", result.Created)
	h.jobs.AddRecords(metrics.JobLoadSync, "refreshed", result.Refreshed)
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// UpdateRecord handles PUT /api/records/:id
func (h *Handlers) UpdateRecord(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}
	date, err := utils.ParseOptionalDate(req.InvoiceDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	rec := &entity.AuditRecord{
		ID:            id,
		CustomerName:  utils.SanitizeString(req.CustomerName),
		InvoiceNumber: utils.SanitizeString(req.InvoiceNumber),
		InvoiceDate:   date,
		PONumber:      utils.SanitizeString(req.PONumber),
		Amount:        req.Amount.Round(2),
		Source:        entity.RecordSource(strings.ToUpper(req.Source)),
		Matched:       req.Matched,
	}
	if err := h.reconciliation.UpdateRecord(c.Request.Context(), rec); err != nil {
		h.fail(c, "Failed to update record", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// DeleteRecord handles DELETE /api/records/:id
func (h *Handlers) DeleteRecord(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.reconciliation.DeleteRecord(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to delete record", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// UnbilledExport handles GET /api/records/unbilled-export. The payload is
// returned as text/plain unless ?save=true, which writes it to the export
// directory and returns the path.
func (h *Handlers) UnbilledExport(c *gin.Context) {
	invoiceDate, err := utils.ParseDateOr(c.Query("invoice_date"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	rng, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if c.Query("save") == "true" {
		path, err := h.reconciliation.SaveUnbilledExport(ctx, invoiceDate, rng)
		if err != nil {
			h.fail(c, "Failed to save unbilled export", err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"path": path}})
		return
	}

	payload, err := h.reconciliation.ExportUnbilled(ctx, invoiceDate, rng)
	if err != nil {
		h.fail(c, "Failed to build unbilled export", err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(payload))
}

// ExportWorkbook handles GET /api/records/export.xlsx
func (h *Handlers) ExportWorkbook(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("save") == "true" {
		path, err := h.reconciliation.SaveWorkbook(ctx)
		if err != nil {
			h.fail(c, "Failed to save workbook", err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"path": path}})
		return
	}

	var buf bytes.Buffer
	if err := h.reconciliation.ExportWorkbook(ctx, &buf); err != nil {
		h.fail(c, "Failed to export workbook", err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=invoice_audit_"+h.now().Format("20060102")+".xlsx")
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ImportHistory handles GET /api/imports
func (h *Handlers) ImportHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	logs, err := h.reconciliation.ImportHistory(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "Failed to list imports", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: logs})
}

func (h *Handlers) parseID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid record ID"})
		return 0, false
	}
	return id, true
}

// fail maps service errors onto status codes. Client errors are logged
// as warnings.
func (h *Handlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	code := statusFor(err)
	kv := append([]interface{}{"error", err}, keysAndValues...)
	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, kv...)
		c.JSON(code, Response{Success: false, Error: strings.ToLower(msg[:1]) + msg[1:]})
		return
	}
	h.logger.Warn(msg, kv...)
	c.JSON(code, Response{Success: false, Error: err.Error()})
}

func isBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func statusFor(err error) int {
	var formatErr *importer.FormatError
	switch {
	case errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrDuplicatePO):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseRange(from, to string) (*reconcile.DateRange, error) {
	f, err := utils.ParseOptionalDate(from)
	if err != nil {
		return nil, err
	}
	t, err := utils.ParseOptionalDate(to)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateDateOrder(f, t); err != nil {
		return nil, err
	}
	if f == nil && t == nil {
		return nil, nil
	}
	return &reconcile.DateRange{From: f, To: t}, nil
}

func toRecordResponse(r *entity.AuditRecord) RecordResponse {
	resp := RecordResponse{
		ID:            r.ID,
		CustomerName:  r.CustomerName,
		InvoiceNumber: r.InvoiceNumber,
		PONumber:      r.PONumber,
		Amount:        r.Amount.StringFixed(2),
		Source:        string(r.Source),
		Matched:       r.Matched,
		MatchStatus:   string(r.MatchStatus),
		DriverName:    r.DriverName,
		Color:         reconcile.StatusColor(r.MatchStatus),
	}
	if r.InvoiceDate != nil {
		resp.InvoiceDate = r.InvoiceDate.Format("2006-01-02")
	}
	return resp
}
