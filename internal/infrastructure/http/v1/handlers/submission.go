package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opname/internal/core/apperror"
	"opname/internal/core/id"
	"opname/internal/domain/reconciliation"
	"opname/internal/infrastructure/http/v1/dto"
)

// SubmissionHandler handles HTTP requests for stock check submissions.
type SubmissionHandler struct {
	*BaseHandler
	service *reconciliation.Service
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(base *BaseHandler, service *reconciliation.Service) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create initiates a stock check for a branch.
// POST /api/v1/submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSubmissionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	params := reconciliation.CreateParams{
		BranchID:   req.BranchID,
		BranchName: req.BranchName,
		StaffID:    req.StaffID,
		StaffName:  req.StaffName,
	}

	// The counting staff defaults to the authenticated user.
	if params.StaffID == "" {
		if user := h.GetUser(c); user != nil {
			params.StaffID = user.UserID
			params.StaffName = user.Name
		}
	}

	sub, err := h.service.Create(ctx, params)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromSubmission(sub))
}

// Get retrieves a submission with all its lines.
// GET /api/v1/submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	sub, err := h.service.Get(ctx, subID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSubmission(sub))
}

// GetDetail returns the line-level detail of a submission.
// GET /api/v1/submissions/:id/lines
func (h *SubmissionHandler) GetDetail(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	lines, err := h.service.GetDetail(ctx, subID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.DetailResponse{
		SubmissionID: subID.String(),
		Lines:        dto.FromLines(lines),
	})
}

// GetLine returns one line by item code.
// GET /api/v1/submissions/:id/lines/:itemCode
func (h *SubmissionHandler) GetLine(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	line, err := h.service.GetLine(ctx, subID, c.Param("itemCode"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromLine(line))
}

// UpdateLine records the counted stock for one item.
// PUT /api/v1/submissions/:id/lines/:itemCode
func (h *SubmissionHandler) UpdateLine(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateLineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	line, err := h.service.UpdateLine(ctx, subID, c.Param("itemCode"), *req.ActualStock, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromLine(line))
}

// UpdateLines applies a bulk count. Lines commit independently; a
// partial failure returns the per-item breakdown.
// PUT /api/v1/submissions/:id/lines
func (h *SubmissionHandler) UpdateLines(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.BulkUpdateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updates := make([]reconciliation.LineUpdate, len(req.Lines))
	for i, l := range req.Lines {
		updates[i] = reconciliation.LineUpdate{
			ItemCode:    l.ItemCode,
			ActualStock: *l.ActualStock,
			Note:        l.Note,
		}
	}

	applied, err := h.service.UpdateLines(ctx, subID, updates)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"lines": dto.FromLines(applied)})
}

// UpdateStatus moves a submission through its review lifecycle.
// PUT /api/v1/submissions/:id/status
func (h *SubmissionHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()

	subID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	status := reconciliation.Status(req.Status)
	if !status.Valid() {
		h.Error(c, apperror.NewValidation("unknown status").WithDetail("status", req.Status))
		return
	}

	result, err := h.service.Transition(ctx, subID, status)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.TransitionResponse{
		Submission: dto.FromSubmission(result.Submission),
		Changed:    result.Changed,
	}
	if result.NotifyErr != nil {
		resp.Warning = "status updated but notification delivery failed"
	}

	h.OK(c, resp)
}

// List returns submission summaries, newest first.
// GET /api/v1/submissions
func (h *SubmissionHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := reconciliation.DefaultListFilter()
	filter.Limit = h.ParseIntQuery(c, "limit", filter.Limit)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)

	if branchID := c.Query("branchId"); branchID != "" {
		filter.BranchID = &branchID
	}

	if status := c.Query("status"); status != "" {
		s := reconciliation.Status(status)
		if !s.Valid() {
			h.Error(c, apperror.NewValidation("unknown status").WithDetail("status", status))
			return
		}
		filter.Status = &s
	}

	if dateFrom := c.Query("dateFrom"); dateFrom != "" {
		if parsed, err := time.Parse(time.RFC3339, dateFrom); err == nil {
			filter.DateFrom = &parsed
		}
	}

	if dateTo := c.Query("dateTo"); dateTo != "" {
		if parsed, err := time.Parse(time.RFC3339, dateTo); err == nil {
			filter.DateTo = &parsed
		}
	}

	summaries, err := h.service.ListSummaries(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSummaries(summaries))
}
