// Package reconciliation_repo implements reconciliation.Repository on PostgreSQL.
package reconciliation_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"opname/internal/core/apperror"
	"opname/internal/core/id"
	"opname/internal/domain/reconciliation"
	"opname/internal/infrastructure/storage/postgres"
)

const (
	submissionsTable     = "submissions"
	submissionLinesTable = "submission_lines"
)

// SubmissionRepo implements reconciliation.Repository.
type SubmissionRepo struct {
	txManager *postgres.TxManager
}

// NewSubmissionRepo creates a new submission repository.
func NewSubmissionRepo(txManager *postgres.TxManager) *SubmissionRepo {
	return &SubmissionRepo{txManager: txManager}
}

var _ reconciliation.Repository = (*SubmissionRepo)(nil)

func (r *SubmissionRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *SubmissionRepo) Create(ctx context.Context, sub *reconciliation.Submission) error {
	querier := r.txManager.GetQuerier(ctx)

	q := r.builder().
		Insert(submissionsTable).
		Columns("id", "branch_id", "branch_name", "staff_id", "staff_name", "status", "created_at", "updated_at").
		Values(sub.ID, sub.BranchID, sub.BranchName, sub.StaffID, sub.StaffName, sub.Status, sub.CreatedAt, sub.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	if len(sub.Lines) == 0 {
		return nil
	}

	lq := r.builder().
		Insert(submissionLinesTable).
		Columns(
			"submission_id", "item_code", "item_name", "category",
			"system_stock", "actual_stock", "unit", "note",
			"counted_at", "counted_by",
		)
	for _, line := range sub.Lines {
		lq = lq.Values(
			sub.ID, line.ItemCode, line.ItemName, line.Category,
			line.SystemStock, line.ActualStock, line.Unit, line.Note,
			line.CountedAt, line.CountedBy,
		)
	}

	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

func (r *SubmissionRepo) GetByID(ctx context.Context, subID id.ID) (*reconciliation.Submission, error) {
	return r.get(ctx, subID, false)
}

func (r *SubmissionRepo) GetForUpdate(ctx context.Context, subID id.ID) (*reconciliation.Submission, error) {
	return r.get(ctx, subID, true)
}

func (r *SubmissionRepo) get(ctx context.Context, subID id.ID, forUpdate bool) (*reconciliation.Submission, error) {
	q := r.builder().
		Select("id", "branch_id", "branch_name", "staff_id", "staff_name", "status", "created_at", "updated_at").
		From(submissionsTable).
		Where(squirrel.Eq{"id": subID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sub reconciliation.Submission
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &sub, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("submission", subID.String())
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	lines, err := r.GetLines(ctx, subID)
	if err != nil {
		return nil, err
	}
	sub.Lines = lines

	return &sub, nil
}

func (r *SubmissionRepo) GetLines(ctx context.Context, subID id.ID) ([]reconciliation.StockItemLine, error) {
	q := r.builder().
		Select(
			"item_code", "item_name", "category",
			"system_stock", "actual_stock", "unit", "note",
			"counted_at", "counted_by",
		).
		From(submissionLinesTable).
		Where(squirrel.Eq{"submission_id": subID}).
		OrderBy("item_code")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []reconciliation.StockItemLine
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// UpdateLine writes the mutable fields of one line. System stock is
// deliberately absent from the SET list: it is immutable post-creation.
func (r *SubmissionRepo) UpdateLine(ctx context.Context, subID id.ID, line reconciliation.StockItemLine) error {
	q := r.builder().
		Update(submissionLinesTable).
		Set("actual_stock", line.ActualStock).
		Set("note", line.Note).
		Set("counted_at", line.CountedAt).
		Set("counted_by", line.CountedBy).
		Where(squirrel.Eq{"submission_id": subID, "item_code": line.ItemCode})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("item line", line.ItemCode).
			WithDetail("submissionId", subID.String())
	}

	return nil
}

func (r *SubmissionRepo) UpdateStatus(ctx context.Context, subID id.ID, status reconciliation.Status, updatedAt time.Time) error {
	q := r.builder().
		Update(submissionsTable).
		Set("status", status).
		Set("updated_at", updatedAt).
		Where(squirrel.Eq{"id": subID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("submission", subID.String())
	}

	return nil
}

func (r *SubmissionRepo) ListSummaries(ctx context.Context, filter reconciliation.ListFilter) ([]reconciliation.Summary, error) {
	q := r.builder().
		Select(
			"s.id",
			"s.branch_id",
			"s.branch_name",
			"s.staff_id",
			"s.staff_name",
			"s.status",
			"s.created_at",
			"COUNT(l.item_code) AS item_count",
			"COUNT(*) FILTER (WHERE l.actual_stock IS NOT NULL AND l.actual_stock <> l.system_stock) AS problem_count",
		).
		From(submissionsTable + " s").
		LeftJoin(submissionLinesTable + " l ON l.submission_id = s.id").
		GroupBy("s.id", "s.branch_id", "s.branch_name", "s.staff_id", "s.staff_name", "s.status", "s.created_at").
		OrderBy("s.created_at DESC")

	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"s.branch_id": *filter.BranchID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"s.status": *filter.Status})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"s.created_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"s.created_at": *filter.DateTo})
	}

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var summaries []reconciliation.Summary
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &summaries, sql, args...); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	return summaries, nil
}
