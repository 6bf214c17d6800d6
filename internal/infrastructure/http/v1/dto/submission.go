package dto

import (
	"time"

	"opname/internal/domain/reconciliation"
)

// --- Request DTOs ---

type CreateSubmissionRequest struct {
	BranchID   string `json:"branchId" binding:"required"`
	BranchName string `json:"branchName,omitempty"`
	StaffID    string `json:"staffId,omitempty"`
	StaffName  string `json:"staffName,omitempty"`
}

// UpdateLineRequest carries one counted line. ActualStock is a pointer
// so that an explicit zero count binds correctly.
type UpdateLineRequest struct {
	ActualStock *int64 `json:"actualStock" binding:"required"`
	Note        string `json:"note"`
}

type BulkLineUpdate struct {
	ItemCode    string `json:"itemCode" binding:"required"`
	ActualStock *int64 `json:"actualStock" binding:"required"`
	Note        string `json:"note"`
}

type BulkUpdateRequest struct {
	Lines []BulkLineUpdate `json:"lines" binding:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// --- Response DTOs ---

type LineResponse struct {
	ItemCode    string     `json:"itemCode"`
	ItemName    string     `json:"itemName"`
	Category    string     `json:"category"`
	SystemStock int64      `json:"systemStock"`
	ActualStock *int64     `json:"actualStock,omitempty"`
	Discrepancy *int64     `json:"discrepancy,omitempty"`
	Result      string     `json:"result"`
	Unit        string     `json:"unit"`
	Note        string     `json:"note,omitempty"`
	CountedAt   *time.Time `json:"countedAt,omitempty"`
	CountedBy   *string    `json:"countedBy,omitempty"`
}

type SubmissionResponse struct {
	ID           string         `json:"id"`
	BranchID     string         `json:"branchId"`
	BranchName   string         `json:"branchName,omitempty"`
	StaffID      string         `json:"staffId"`
	StaffName    string         `json:"staffName,omitempty"`
	Status       string         `json:"status"`
	ItemCount    int            `json:"itemCount"`
	ProblemCount int            `json:"problemCount"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Lines        []LineResponse `json:"lines"`
}

type SummaryResponse struct {
	SubmissionID string    `json:"submissionId"`
	BranchID     string    `json:"branchId"`
	BranchName   string    `json:"branchName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	StaffID      string    `json:"staffId"`
	StaffName    string    `json:"staffName,omitempty"`
	ItemCount    int       `json:"itemCount"`
	ProblemCount int       `json:"problemCount"`
	Status       string    `json:"status"`
}

type SummaryListResponse struct {
	Items []SummaryResponse `json:"items"`
}

type DetailResponse struct {
	SubmissionID string         `json:"submissionId"`
	Lines        []LineResponse `json:"lines"`
}

// TransitionResponse reports a status change. Warning is set when the
// transition committed but the notification could not be delivered.
type TransitionResponse struct {
	Submission *SubmissionResponse `json:"submission"`
	Changed    bool                `json:"changed"`
	Warning    string              `json:"warning,omitempty"`
}

func FromLine(line *reconciliation.StockItemLine) LineResponse {
	resp := LineResponse{
		ItemCode:    line.ItemCode,
		ItemName:    line.ItemName,
		Category:    line.Category,
		SystemStock: line.SystemStock,
		ActualStock: line.ActualStock,
		Result:      string(line.Result()),
		Unit:        line.Unit,
		Note:        line.Note,
		CountedAt:   line.CountedAt,
		CountedBy:   line.CountedBy,
	}
	if diff, ok := line.Discrepancy(); ok {
		resp.Discrepancy = &diff
	}
	return resp
}

func FromLines(lines []reconciliation.StockItemLine) []LineResponse {
	out := make([]LineResponse, len(lines))
	for i := range lines {
		out[i] = FromLine(&lines[i])
	}
	return out
}

func FromSubmission(sub *reconciliation.Submission) *SubmissionResponse {
	return &SubmissionResponse{
		ID:           sub.ID.String(),
		BranchID:     sub.BranchID,
		BranchName:   sub.BranchName,
		StaffID:      sub.StaffID,
		StaffName:    sub.StaffName,
		Status:       string(sub.Status),
		ItemCount:    len(sub.Lines),
		ProblemCount: sub.ProblemCount(),
		CreatedAt:    sub.CreatedAt,
		UpdatedAt:    sub.UpdatedAt,
		Lines:        FromLines(sub.Lines),
	}
}

func FromSummary(s reconciliation.Summary) SummaryResponse {
	return SummaryResponse{
		SubmissionID: s.SubmissionID.String(),
		BranchID:     s.BranchID,
		BranchName:   s.BranchName,
		Timestamp:    s.Timestamp,
		StaffID:      s.StaffID,
		StaffName:    s.StaffName,
		ItemCount:    s.ItemCount,
		ProblemCount: s.ProblemCount,
		Status:       string(s.Status),
	}
}

func FromSummaries(summaries []reconciliation.Summary) SummaryListResponse {
	items := make([]SummaryResponse, len(summaries))
	for i, s := range summaries {
		items[i] = FromSummary(s)
	}
	return SummaryListResponse{Items: items}
}
