package reconciliation

import (
	"context"
	"time"

	"opname/internal/core/id"
)

// Repository defines persistence operations for submissions.
type Repository interface {
	Create(ctx context.Context, sub *Submission) error
	GetByID(ctx context.Context, subID id.ID) (*Submission, error)

	// GetForUpdate locks the submission row for the current transaction.
	GetForUpdate(ctx context.Context, subID id.ID) (*Submission, error)

	// GetLines returns all lines ordered by item code ascending.
	GetLines(ctx context.Context, subID id.ID) ([]StockItemLine, error)

	// UpdateLine persists one line's actual stock, note and count metadata.
	// System stock is never written after creation.
	UpdateLine(ctx context.Context, subID id.ID, line StockItemLine) error

	UpdateStatus(ctx context.Context, subID id.ID, status Status, updatedAt time.Time) error

	ListSummaries(ctx context.Context, filter ListFilter) ([]Summary, error)
}

// ListFilter for filtering submission summaries.
type ListFilter struct {
	BranchID *string
	Status   *Status
	DateFrom *time.Time
	DateTo   *time.Time

	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}
