// Package reconciliation provides the stock-check (stock opname) workflow:
// one submission per physical check of a branch, with per-item lines
// comparing system stock against counted stock.
package reconciliation

import (
	"sort"
	"time"

	"opname/internal/core/apperror"
	"opname/internal/core/id"
	"opname/internal/domain/snapshot"
)

// Status represents the lifecycle state of a submission.
type Status string

const (
	// StatusPendingReview is the initial state: created, counts may still be missing.
	StatusPendingReview Status = "pending_review"

	// StatusVerified is terminal: all lines counted and the reviewer confirmed.
	StatusVerified Status = "verified"

	// StatusNeedsAttention is terminal: reviewer flagged unresolved discrepancies.
	StatusNeedsAttention Status = "needs_attention"
)

// Valid reports whether s is a defined lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusVerified, StatusNeedsAttention:
		return true
	}
	return false
}

// Terminal reports whether s allows no further changes.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusNeedsAttention
}

// LineResult classifies a line by its discrepancy sign.
type LineResult string

const (
	LineUnchecked LineResult = "unchecked"
	LineMatched   LineResult = "matched"
	LineSurplus   LineResult = "surplus"
	LineDeficit   LineResult = "deficit"
)

// StockItemLine is one item's reconciliation record within a submission.
// SystemStock is fixed at snapshot time and never changes afterwards;
// ActualStock may be revised any number of times until the parent
// submission reaches a terminal status.
type StockItemLine struct {
	ItemCode    string     `db:"item_code" json:"itemCode"`
	ItemName    string     `db:"item_name" json:"itemName"`
	Category    string     `db:"category" json:"category"`
	SystemStock int64      `db:"system_stock" json:"systemStock"`
	ActualStock *int64     `db:"actual_stock" json:"actualStock,omitempty"`
	Unit        string     `db:"unit" json:"unit"`
	Note        string     `db:"note" json:"note"`
	CountedAt   *time.Time `db:"counted_at" json:"countedAt,omitempty"`
	CountedBy   *string    `db:"counted_by" json:"countedBy,omitempty"`
}

// Counted reports whether an actual stock has been recorded.
func (l *StockItemLine) Counted() bool {
	return l.ActualStock != nil
}

// Discrepancy returns actual minus system. Only defined once counted.
func (l *StockItemLine) Discrepancy() (int64, bool) {
	if l.ActualStock == nil {
		return 0, false
	}
	return *l.ActualStock - l.SystemStock, true
}

// Result classifies the line.
func (l *StockItemLine) Result() LineResult {
	diff, ok := l.Discrepancy()
	switch {
	case !ok:
		return LineUnchecked
	case diff > 0:
		return LineSurplus
	case diff < 0:
		return LineDeficit
	default:
		return LineMatched
	}
}

// Submission is one stock-check event for one branch.
// Submissions are permanent audit records: they are never deleted,
// only superseded by a re-check.
type Submission struct {
	ID         id.ID     `db:"id" json:"id"`
	BranchID   string    `db:"branch_id" json:"branchId"`
	BranchName string    `db:"branch_name" json:"branchName"`
	StaffID    string    `db:"staff_id" json:"staffId"`
	StaffName  string    `db:"staff_name" json:"staffName"`
	Status     Status    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`

	// Lines are unique by item code within the submission.
	Lines []StockItemLine `db:"-" json:"lines"`
}

// Summary is the list-view projection of a submission.
type Summary struct {
	SubmissionID id.ID     `db:"id" json:"submissionId"`
	BranchID     string    `db:"branch_id" json:"branchId"`
	BranchName   string    `db:"branch_name" json:"branchName"`
	Timestamp    time.Time `db:"created_at" json:"timestamp"`
	StaffID      string    `db:"staff_id" json:"staffId"`
	StaffName    string    `db:"staff_name" json:"staffName"`
	ItemCount    int       `db:"item_count" json:"itemCount"`
	ProblemCount int       `db:"problem_count" json:"problemCount"`
	Status       Status    `db:"status" json:"status"`
}

// NewSubmission snapshots branch stock into a fresh pending submission.
// Every line starts with a nil actual stock.
func NewSubmission(branchID, staffID string, items []snapshot.ItemSnapshot) *Submission {
	now := time.Now().UTC()
	sub := &Submission{
		ID:        id.New(),
		BranchID:  branchID,
		StaffID:   staffID,
		Status:    StatusPendingReview,
		CreatedAt: now,
		UpdatedAt: now,
		Lines:     make([]StockItemLine, 0, len(items)),
	}

	for _, item := range items {
		sub.Lines = append(sub.Lines, StockItemLine{
			ItemCode:    item.ItemCode,
			ItemName:    item.ItemName,
			Category:    item.Category,
			SystemStock: item.SystemStock,
			Unit:        item.Unit,
		})
	}

	return sub
}

// Line returns the line for an item code.
func (s *Submission) Line(itemCode string) (*StockItemLine, error) {
	for i := range s.Lines {
		if s.Lines[i].ItemCode == itemCode {
			return &s.Lines[i], nil
		}
	}
	return nil, apperror.NewNotFound("item line", itemCode).
		WithDetail("submissionId", s.ID.String())
}

// RecordActual writes the counted stock and note for one item.
// Actual stock and note are always written together: there is never a
// partial merge of two concurrent writers.
func (s *Submission) RecordActual(itemCode string, actual int64, note string, countedBy string) (*StockItemLine, error) {
	if s.Status.Terminal() {
		return nil, apperror.NewConflict("submission is finalized; lines can no longer be updated").
			WithDetail("status", string(s.Status))
	}
	if actual < 0 {
		return nil, apperror.NewValidation("actual stock must not be negative").
			WithDetail("itemCode", itemCode).
			WithDetail("actualStock", actual)
	}

	line, err := s.Line(itemCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	line.ActualStock = &actual
	line.Note = note
	line.CountedAt = &now
	if countedBy != "" {
		line.CountedBy = &countedBy
	}
	s.UpdatedAt = now

	return line, nil
}

// UncountedItemCodes returns the codes of lines with no actual stock,
// sorted ascending.
func (s *Submission) UncountedItemCodes() []string {
	var codes []string
	for i := range s.Lines {
		if !s.Lines[i].Counted() {
			codes = append(codes, s.Lines[i].ItemCode)
		}
	}
	sort.Strings(codes)
	return codes
}

// ProblemCount counts lines where actual is recorded and differs from system.
func (s *Submission) ProblemCount() int {
	count := 0
	for i := range s.Lines {
		if diff, ok := s.Lines[i].Discrepancy(); ok && diff != 0 {
			count++
		}
	}
	return count
}

// Summarize builds the list-view projection.
func (s *Submission) Summarize() Summary {
	return Summary{
		SubmissionID: s.ID,
		BranchID:     s.BranchID,
		BranchName:   s.BranchName,
		Timestamp:    s.CreatedAt,
		StaffID:      s.StaffID,
		StaffName:    s.StaffName,
		ItemCount:    len(s.Lines),
		ProblemCount: s.ProblemCount(),
		Status:       s.Status,
	}
}

// Transition applies a status change, enforcing the lifecycle rules.
// Returns false when the target equals the current status: that is an
// idempotent no-op, not an error, and must trigger no side effects.
func (s *Submission) Transition(to Status) (bool, error) {
	if !to.Valid() {
		return false, apperror.NewValidation("unknown status").
			WithDetail("status", string(to))
	}

	if to == s.Status {
		return false, nil
	}

	if s.Status.Terminal() {
		return false, apperror.NewInvalidTransition(string(s.Status), string(to))
	}

	if to == StatusVerified {
		if uncounted := s.UncountedItemCodes(); len(uncounted) > 0 {
			return false, apperror.NewIncompleteSubmission(len(uncounted), uncounted)
		}
	}

	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

// SortLines orders lines by item code ascending. Detail reads use this
// so output is stable regardless of insertion order.
func (s *Submission) SortLines() {
	sort.Slice(s.Lines, func(i, j int) bool {
		return s.Lines[i].ItemCode < s.Lines[j].ItemCode
	})
}
