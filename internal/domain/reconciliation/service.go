package reconciliation

import (
	"context"
	"fmt"
	"sync"

	"opname/internal/core/apperror"
	appctx "opname/internal/core/context"
	"opname/internal/core/id"
	"opname/internal/core/security"
	"opname/internal/core/tx"
	"opname/internal/domain/notification"
	"opname/internal/domain/snapshot"
	"opname/pkg/logger"
)

// AuditAction identifies an audited workflow event.
type AuditAction string

const (
	AuditSubmissionCreated AuditAction = "submission_created"
	AuditLineUpdated       AuditAction = "line_updated"
	AuditStatusChanged     AuditAction = "status_changed"
)

// AuditTrail records workflow events for the permanent audit log.
// Recording failures never fail the business operation.
type AuditTrail interface {
	Record(ctx context.Context, action AuditAction, subID id.ID, payload any) error
}

// Service provides business operations for reconciliation submissions.
type Service struct {
	repo       Repository
	stock      snapshot.Provider
	dispatcher notification.Dispatcher
	txManager  tx.Manager
	audit      AuditTrail // optional

	// Per-submission write serialization. Two concurrent line updates
	// for the same submission are applied in arrival order; updates to
	// different submissions proceed independently.
	mu    sync.Mutex
	locks map[id.ID]*sync.Mutex
}

// NewService creates a new reconciliation service.
// audit may be nil to disable the audit trail.
func NewService(
	repo Repository,
	stock snapshot.Provider,
	dispatcher notification.Dispatcher,
	txManager tx.Manager,
	audit AuditTrail,
) *Service {
	return &Service{
		repo:       repo,
		stock:      stock,
		dispatcher: dispatcher,
		txManager:  txManager,
		audit:      audit,
		locks:      make(map[id.ID]*sync.Mutex),
	}
}

func (s *Service) lockFor(subID id.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[subID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[subID] = m
	}
	return m
}

// releaseLock drops the lock entry once a submission is terminal;
// no further writes can arrive for it.
func (s *Service) releaseLock(subID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, subID)
}

// CreateParams carries submission creation input. Branch and staff
// display names are denormalized into the submission for history views.
type CreateParams struct {
	BranchID   string
	BranchName string
	StaffID    string
	StaffName  string
}

// Create initiates a stock check: snapshots every item currently
// assigned to the branch and persists a pending submission with one
// uncounted line per item.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Submission, error) {
	if params.BranchID == "" {
		return nil, apperror.NewValidation("branch is required").WithDetail("field", "branchId")
	}
	if params.StaffID == "" {
		return nil, apperror.NewValidation("staff is required").WithDetail("field", "staffId")
	}

	items, err := s.stock.FetchBranchStock(ctx, params.BranchID)
	if err != nil {
		return nil, fmt.Errorf("fetch branch stock: %w", err)
	}

	sub := NewSubmission(params.BranchID, params.StaffID, items)
	sub.BranchName = params.BranchName
	sub.StaffName = params.StaffName

	if len(items) == 0 {
		// Permitted: the check itself is still an audit event.
		logger.Warn(ctx, "stock check created for branch with no items", "branch_id", params.BranchID)
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	s.recordAudit(ctx, AuditSubmissionCreated, sub.ID, sub.Summarize())
	logger.Info(ctx, "submission created",
		"submission_id", sub.ID,
		"branch_id", sub.BranchID,
		"items", len(sub.Lines),
	)
	return sub, nil
}

// readOnly runs fn in a read-only transaction when the manager
// supports one.
func (s *Service) readOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := s.txManager.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

// Get retrieves a submission with its lines.
func (s *Service) Get(ctx context.Context, subID id.ID) (*Submission, error) {
	var sub *Submission
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.repo.GetByID(ctx, subID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetLine retrieves a single line by item code.
func (s *Service) GetLine(ctx context.Context, subID id.ID, itemCode string) (*StockItemLine, error) {
	sub, err := s.Get(ctx, subID)
	if err != nil {
		return nil, err
	}

	line, err := sub.Line(itemCode)
	if err != nil {
		return nil, err
	}
	out := *line
	return &out, nil
}

// UpdateLine records the counted stock and note for one item.
// Last write wins for the same item code; actual stock and note are
// always written together.
func (s *Service) UpdateLine(ctx context.Context, subID id.ID, itemCode string, actual int64, note string) (*StockItemLine, error) {
	lock := s.lockFor(subID)
	lock.Lock()
	defer lock.Unlock()

	return s.updateLineLocked(ctx, subID, itemCode, actual, note)
}

func (s *Service) updateLineLocked(ctx context.Context, subID id.ID, itemCode string, actual int64, note string) (*StockItemLine, error) {
	var updated StockItemLine

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sub, err := s.repo.GetForUpdate(ctx, subID)
		if err != nil {
			return err
		}

		line, err := sub.RecordActual(itemCode, actual, note, appctx.GetUserID(ctx))
		if err != nil {
			return err
		}

		if err := s.repo.UpdateLine(ctx, subID, *line); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		updated = *line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, AuditLineUpdated, subID, updated)
	return &updated, nil
}

// LineUpdate is one entry of a bulk count.
type LineUpdate struct {
	ItemCode    string
	ActualStock int64
	Note        string
}

// UpdateLines applies a bulk count. Each line commits independently: a
// failure partway leaves earlier lines updated. Failures are reported
// per item so the caller can retry only the failed subset.
func (s *Service) UpdateLines(ctx context.Context, subID id.ID, updates []LineUpdate) ([]StockItemLine, error) {
	if len(updates) == 0 {
		return nil, apperror.NewValidation("no line updates given")
	}

	lock := s.lockFor(subID)
	lock.Lock()
	defer lock.Unlock()

	var (
		applied   []StockItemLine
		succeeded []string
		failed    = make(map[string]string)
	)

	for _, u := range updates {
		line, err := s.updateLineLocked(ctx, subID, u.ItemCode, u.ActualStock, u.Note)
		if err != nil {
			failed[u.ItemCode] = err.Error()
			continue
		}
		applied = append(applied, *line)
		succeeded = append(succeeded, u.ItemCode)
	}

	if len(failed) > 0 {
		return applied, apperror.NewPartialBatchFailure(failed, succeeded)
	}
	return applied, nil
}

// TransitionResult reports a status change. NotifyErr carries a
// dispatch failure as a partial-success warning: the transition itself
// is durable even when the notification was not delivered.
type TransitionResult struct {
	Submission *Submission
	Changed    bool
	NotifyErr  error
}

// Transition moves a submission to the target status and fans out the
// transition notification. Re-applying the current status is an
// idempotent no-op with no side effects.
func (s *Service) Transition(ctx context.Context, subID id.ID, to Status) (*TransitionResult, error) {
	lock := s.lockFor(subID)
	lock.Lock()
	defer lock.Unlock()

	var (
		sub     *Submission
		changed bool
	)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.repo.GetForUpdate(ctx, subID)
		if err != nil {
			return err
		}

		changed, err = sub.Transition(to)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		return s.repo.UpdateStatus(ctx, subID, sub.Status, sub.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Submission: sub, Changed: changed}
	if !changed {
		return result, nil
	}

	s.recordAudit(ctx, AuditStatusChanged, subID, map[string]any{
		"status":       string(sub.Status),
		"problemCount": sub.ProblemCount(),
	})

	if sub.Status.Terminal() {
		s.releaseLock(subID)
	}

	result.NotifyErr = s.notifyTransition(ctx, sub)
	logger.Info(ctx, "submission status changed",
		"submission_id", subID,
		"status", string(sub.Status),
		"notified", result.NotifyErr == nil,
	)
	return result, nil
}

// notifyTransition builds and dispatches the transition event.
// Delivery failure is logged and returned; it never rolls back the
// already-committed status change.
func (s *Service) notifyTransition(ctx context.Context, sub *Submission) error {
	sender := security.RoleFieldStaff
	if user := appctx.GetUser(ctx); user != nil {
		sender = user.Role
	}

	subID := sub.ID
	event := notification.Event{
		SenderRole:    sender,
		RecipientRole: notification.RecipientFor(sender),
		BranchID:      sub.BranchID,
		Body:          notification.TransitionBody(string(sub.Status), sub.BranchID, len(sub.Lines), sub.ProblemCount()),
		SubmissionID:  &subID,
		Timestamp:     sub.UpdatedAt,
	}

	if err := s.dispatcher.Send(ctx, event); err != nil {
		logger.Error(ctx, "transition notification failed",
			"submission_id", sub.ID,
			"recipient_role", string(event.RecipientRole),
			"error", err,
		)
		return err
	}
	return nil
}

// ListSummaries lists past submissions, globally or scoped by filter.
func (s *Service) ListSummaries(ctx context.Context, filter ListFilter) ([]Summary, error) {
	var summaries []Summary
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		summaries, err = s.repo.ListSummaries(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetDetail returns all lines of a submission ordered by item code.
func (s *Service) GetDetail(ctx context.Context, subID id.ID) ([]StockItemLine, error) {
	var lines []StockItemLine
	err := s.readOnly(ctx, func(ctx context.Context) error {
		// Existence check first so an unknown id is NotFound, not an empty list.
		if _, err := s.repo.GetByID(ctx, subID); err != nil {
			return err
		}
		var err error
		lines, err = s.repo.GetLines(ctx, subID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Service) recordAudit(ctx context.Context, action AuditAction, subID id.ID, payload any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, subID, payload); err != nil {
		logger.Warn(ctx, "audit record failed", "action", string(action), "submission_id", subID, "error", err)
	}
}
