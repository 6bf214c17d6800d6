package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opname/internal/core/apperror"
	appctx "opname/internal/core/context"
	"opname/internal/core/id"
	"opname/internal/core/security"
	"opname/internal/domain/notification"
	"opname/internal/domain/snapshot"
)

// --- Fakes ---

type fakeRepo struct {
	subs map[id.ID]*Submission
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[id.ID]*Submission)}
}

func (r *fakeRepo) Create(_ context.Context, sub *Submission) error {
	cp := *sub
	cp.Lines = append([]StockItemLine(nil), sub.Lines...)
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, subID id.ID) (*Submission, error) {
	sub, ok := r.subs[subID]
	if !ok {
		return nil, apperror.NewNotFound("submission", subID.String())
	}
	cp := *sub
	cp.Lines = append([]StockItemLine(nil), sub.Lines...)
	return &cp, nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, subID id.ID) (*Submission, error) {
	return r.GetByID(ctx, subID)
}

func (r *fakeRepo) GetLines(_ context.Context, subID id.ID) ([]StockItemLine, error) {
	sub, ok := r.subs[subID]
	if !ok {
		return nil, apperror.NewNotFound("submission", subID.String())
	}
	cp := *sub
	cp.Lines = append([]StockItemLine(nil), sub.Lines...)
	cp.SortLines()
	return cp.Lines, nil
}

func (r *fakeRepo) UpdateLine(_ context.Context, subID id.ID, line StockItemLine) error {
	sub, ok := r.subs[subID]
	if !ok {
		return apperror.NewNotFound("submission", subID.String())
	}
	for i := range sub.Lines {
		if sub.Lines[i].ItemCode == line.ItemCode {
			sub.Lines[i] = line
			return nil
		}
	}
	return apperror.NewNotFound("item line", line.ItemCode)
}

func (r *fakeRepo) UpdateStatus(_ context.Context, subID id.ID, status Status, updatedAt time.Time) error {
	sub, ok := r.subs[subID]
	if !ok {
		return apperror.NewNotFound("submission", subID.String())
	}
	sub.Status = status
	sub.UpdatedAt = updatedAt
	return nil
}

func (r *fakeRepo) ListSummaries(_ context.Context, _ ListFilter) ([]Summary, error) {
	var out []Summary
	for _, sub := range r.subs {
		out = append(out, sub.Summarize())
	}
	return out, nil
}

type fakeProvider struct {
	items []snapshot.ItemSnapshot
	err   error
}

func (p *fakeProvider) FetchBranchStock(_ context.Context, _ string) ([]snapshot.ItemSnapshot, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.items, nil
}

type fakeDispatcher struct {
	sent []notification.Event
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, event notification.Event) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, event)
	return nil
}

// passthroughTx runs fn directly; the fakes have no real transactions.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// readOnlyTx additionally counts read-only executions.
type readOnlyTx struct {
	passthroughTx
	readOnlyCalls atomic.Int32
}

func (t *readOnlyTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	t.readOnlyCalls.Add(1)
	return fn(ctx)
}

type testEnv struct {
	repo       *fakeRepo
	provider   *fakeProvider
	dispatcher *fakeDispatcher
	service    *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:       newFakeRepo(),
		provider:   &fakeProvider{items: branchItems()},
		dispatcher: &fakeDispatcher{},
	}
	env.service = NewService(env.repo, env.provider, env.dispatcher, passthroughTx{}, nil)
	return env
}

func (env *testEnv) createSubmission(t *testing.T) *Submission {
	t.Helper()
	sub, err := env.service.Create(context.Background(), CreateParams{
		BranchID: "010",
		StaffID:  "staff-1",
	})
	require.NoError(t, err)
	return sub
}

// --- Tests ---

func TestServiceCreate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sub, err := env.service.Create(ctx, CreateParams{
		BranchID:   "010",
		BranchName: "Cabang Sepuluh",
		StaffID:    "staff-1",
		StaffName:  "Budi",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPendingReview, sub.Status)
	assert.Equal(t, "Cabang Sepuluh", sub.BranchName)
	require.Len(t, sub.Lines, 3)

	stored, err := env.service.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
}

func TestServiceCreate_MissingBranch(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.Create(context.Background(), CreateParams{StaffID: "staff-1"})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestServiceCreate_EmptyBranchAllowed(t *testing.T) {
	env := newTestEnv()
	env.provider.items = nil

	sub, err := env.service.Create(context.Background(), CreateParams{
		BranchID: "077",
		StaffID:  "staff-1",
	})
	require.NoError(t, err)
	assert.Empty(t, sub.Lines)
}

func TestServiceCreate_SnapshotUnavailable(t *testing.T) {
	env := newTestEnv()
	env.provider.err = apperror.NewUpstreamUnavailable("inventory", errors.New("connection refused"))

	_, err := env.service.Create(context.Background(), CreateParams{
		BranchID: "010",
		StaffID:  "staff-1",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
}

func TestServiceUpdateLine(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sub := env.createSubmission(t)

	line, err := env.service.UpdateLine(ctx, sub.ID, "ITM-B", 18, "two damaged")
	require.NoError(t, err)
	assert.Equal(t, int64(18), *line.ActualStock)
	assert.Equal(t, LineDeficit, line.Result())

	// Last write wins, note travels with the count.
	line, err = env.service.UpdateLine(ctx, sub.ID, "ITM-B", 19, "found one more")
	require.NoError(t, err)
	assert.Equal(t, int64(19), *line.ActualStock)
	assert.Equal(t, "found one more", line.Note)

	stored, err := env.service.GetLine(ctx, sub.ID, "ITM-B")
	require.NoError(t, err)
	assert.Equal(t, int64(19), *stored.ActualStock)
}

func TestServiceUpdateLine_ConcurrentWritesStayCoherent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sub := env.createSubmission(t)

	// Many writers race on the same item. Whichever write lands last,
	// actual stock and note must come from the same writer: the note
	// encodes the count so a merged pair is detectable.
	const writers = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_, err := env.service.UpdateLine(ctx, sub.ID, "ITM-A", n, fmt.Sprintf("count %d", n))
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	line, err := env.service.GetLine(ctx, sub.ID, "ITM-A")
	require.NoError(t, err)
	require.NotNil(t, line.ActualStock)
	assert.Equal(t, fmt.Sprintf("count %d", *line.ActualStock), line.Note)
	require.NotNil(t, line.CountedAt)
}

func TestServiceUpdateLine_ConcurrentAcrossSubmissions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := env.createSubmission(t)
	second := env.createSubmission(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			subID := first.ID
			if n%2 == 0 {
				subID = second.ID
			}
			_, err := env.service.UpdateLine(ctx, subID, "ITM-B", n, "")
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	firstLine, err := env.service.GetLine(ctx, first.ID, "ITM-B")
	require.NoError(t, err)
	assert.True(t, firstLine.Counted())

	secondLine, err := env.service.GetLine(ctx, second.ID, "ITM-B")
	require.NoError(t, err)
	assert.True(t, secondLine.Counted())
}

func TestServiceUpdateLine_NotFound(t *testing.T) {
	env := newTestEnv()
	sub := env.createSubmission(t)

	_, err := env.service.UpdateLine(context.Background(), sub.ID, "ITM-X", 5, "")
	assert.True(t, apperror.IsNotFound(err))

	_, err = env.service.UpdateLine(context.Background(), id.New(), "ITM-A", 5, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestServiceUpdateLines_PartialFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sub := env.createSubmission(t)

	applied, err := env.service.UpdateLines(ctx, sub.ID, []LineUpdate{
		{ItemCode: "ITM-A", ActualStock: 50},
		{ItemCode: "ITM-X", ActualStock: 5}, // unknown item
		{ItemCode: "ITM-C", ActualStock: 0},
	})

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodePartialBatchFailure, appErr.Code)

	// The two valid lines committed despite the failure in between.
	require.Len(t, applied, 2)

	stored, err := env.service.GetLine(ctx, sub.ID, "ITM-C")
	require.NoError(t, err)
	assert.True(t, stored.Counted())

	failed := appErr.Details["failed"].(map[string]string)
	assert.Contains(t, failed, "ITM-X")
	assert.Equal(t, []string{"ITM-A", "ITM-C"}, appErr.Details["succeeded"])
}

func TestServiceUpdateLines_AllSucceed(t *testing.T) {
	env := newTestEnv()
	sub := env.createSubmission(t)

	applied, err := env.service.UpdateLines(context.Background(), sub.ID, []LineUpdate{
		{ItemCode: "ITM-A", ActualStock: 50},
		{ItemCode: "ITM-B", ActualStock: 20},
		{ItemCode: "ITM-C", ActualStock: 0, Note: "empty shelf confirmed"},
	})
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestServiceTransition_Verify(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sub := env.createSubmission(t)

	_, err := env.service.UpdateLines(ctx, sub.ID, []LineUpdate{
		{ItemCode: "ITM-A", ActualStock: 50},
		{ItemCode: "ITM-B", ActualStock: 18, Note: "two damaged"},
		{ItemCode: "ITM-C", ActualStock: 0},
	})
	require.NoError(t, err)

	result, err := env.service.Transition(ctx, sub.ID, StatusVerified)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.NoError(t, result.NotifyErr)
	assert.Equal(t, StatusVerified, result.Submission.Status)

	require.Len(t, env.dispatcher.sent, 1)
	event := env.dispatcher.sent[0]
	assert.Equal(t, security.RoleBranchHead, event.RecipientRole)
	assert.Equal(t, "010", event.BranchID)
	require.NotNil(t, event.SubmissionID)
	assert.Equal(t, sub.ID, *event.SubmissionID)
}

func TestServiceTransition_SenderFromContext(t *testing.T) {
	env := newTestEnv()
	sub := env.createSubmission(t)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "head-1",
		Role:   security.RoleBranchHead,
	})

	result, err := env.service.Transition(ctx, sub.ID, StatusNeedsAttention)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	require.Len(t, env.dispatcher.sent, 1)
	assert.Equal(t, security.RoleBranchHead, env.dispatcher.sent[0].SenderRole)
	assert.Equal(t, security.RoleInventoryAdmin, env.dispatcher.sent[0].RecipientRole)
}

func TestServiceTransition_IncompleteBlocksVerify(t *testing.T) {
	env := newTestEnv()
	sub := env.createSubmission(t)

	_, err := env.service.Transition(context.Background(), sub.ID, StatusVerified)
	require.True(t, apperror.IsIncompleteSubmission(err))

	// Nothing committed, nothing dispatched.
	stored, getErr := env.service.Get(context.Background(), sub.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusPendingReview, stored.Status)
	assert.Empty(t, env.dispatcher.sent)
}

func TestServiceTransition_IdempotentNoOp(t *testing.T) {
	env := newTestEnv()
	sub := env.createSubmission(t)

	result, err := env.service.Transition(context.Background(), sub.ID, StatusPendingReview)
	require.NoError(t, err)
	assert.False(t, result.Changed)

	// No-op must not notify.
	assert.Empty(t, env.dispatcher.sent)
}

func TestServiceTransition_DispatchFailureIsWarning(t *testing.T) {
	env := newTestEnv()
	env.dispatcher.err = errors.New("notification channel down")
	sub := env.createSubmission(t)

	result, err := env.service.Transition(context.Background(), sub.ID, StatusNeedsAttention)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Error(t, result.NotifyErr)

	// The status change is durable even though delivery failed.
	stored, err := env.service.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsAttention, stored.Status)
}

func TestServiceGetDetail(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sub := env.createSubmission(t)

	lines, err := env.service.GetDetail(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "ITM-A", lines[0].ItemCode)

	_, err = env.service.GetDetail(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestServiceListSummaries(t *testing.T) {
	env := newTestEnv()
	env.createSubmission(t)
	env.createSubmission(t)

	summaries, err := env.service.ListSummaries(context.Background(), DefaultListFilter())
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestServiceReads_UseReadOnlyTransactions(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{items: branchItems()}
	dispatcher := &fakeDispatcher{}
	txm := &readOnlyTx{}
	svc := NewService(repo, provider, dispatcher, txm, nil)
	ctx := context.Background()

	sub, err := svc.Create(ctx, CreateParams{BranchID: "010", StaffID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), txm.readOnlyCalls.Load(), "writes must not run read-only")

	_, err = svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	_, err = svc.GetDetail(ctx, sub.ID)
	require.NoError(t, err)
	_, err = svc.ListSummaries(ctx, DefaultListFilter())
	require.NoError(t, err)

	assert.Equal(t, int32(3), txm.readOnlyCalls.Load())
}
