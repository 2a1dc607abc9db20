package service

import (
	"context"
	"fmt"
	"testing"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitRequest(t *testing.T) {
	env := newTestEnv(t)

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(10), decimal.Zero)

	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.Equal(t, "alice", req.RequestedBy)
	assert.Equal(t, "site-a", req.ProjectSite)
	assert.Equal(t, "Cement", req.ItemName)

	// Admin broadcast plus requester confirmation.
	rows := env.notificationRows(t)
	require.Len(t, rows, 2)

	broadcast := findByEventKey(t, rows, fmt.Sprintf("request:%s:submitted", req.ID))
	assert.Nil(t, broadcast.ReceiverID)
	assert.Equal(t, model.NotifTypeNewRequest, broadcast.Type)
	require.NotNil(t, broadcast.RelatedRequestID)
	assert.Equal(t, req.ID, broadcast.RelatedRequestID.String())

	ack := findByEventKey(t, rows, fmt.Sprintf("request:%s:submitted:ack", req.ID))
	require.NotNil(t, ack.ReceiverID)
	assert.Equal(t, staff.ID, *ack.ReceiverID)

	var audits []model.AuditLog
	require.NoError(t, env.db.Where("action = ?", model.ActionSubmitRequest).Find(&audits).Error)
	assert.Len(t, audits, 1)
}

func TestSubmitRequest_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	cases := []struct {
		name string
		dto  SubmitRequestDTO
		want error
	}{
		{
			name: "bad section",
			dto:  SubmitRequestDTO{Section: "plumbing", ItemID: item.ID.String(), Qty: decimal.NewFromInt(1)},
			want: ErrValidation,
		},
		{
			name: "zero qty",
			dto:  SubmitRequestDTO{Section: model.CategoryMaterials, ItemID: item.ID.String(), Qty: decimal.Zero},
			want: ErrValidation,
		},
		{
			name: "negative snapshot",
			dto: SubmitRequestDTO{
				Section: model.CategoryMaterials, ItemID: item.ID.String(),
				Qty: decimal.NewFromInt(1), PriceSnapshot: decimal.NewFromInt(-5),
			},
			want: ErrValidation,
		},
		{
			name: "malformed item id",
			dto:  SubmitRequestDTO{Section: model.CategoryMaterials, ItemID: "not-a-uuid", Qty: decimal.NewFromInt(1)},
			want: ErrValidation,
		},
		{
			name: "unknown item",
			dto:  SubmitRequestDTO{Section: model.CategoryMaterials, ItemID: uuid.NewString(), Qty: decimal.NewFromInt(1)},
			want: ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.requestService.Submit(ctx, tc.dto, staff.ID.String())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTransition_ApproveUsesPriceSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(10), decimal.NewFromInt(5500))

	result, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, model.RequestStatusApproved, result.Request.Status)
	require.NotNil(t, result.Request.ApprovedBy)
	assert.Equal(t, "boss", *result.Request.ApprovedBy)

	actuals := env.actualRows(t)
	require.Len(t, actuals, 1)
	assert.True(t, actuals[0].Cost.Equal(decimal.NewFromInt(55000)),
		"expected cost 55000, got %s", actuals[0].Cost)
	assert.Equal(t, "boss", actuals[0].RecordedBy)
	require.NotNil(t, actuals[0].SourceRequestID)
	assert.Equal(t, req.ID, actuals[0].SourceRequestID.String())
}

func TestTransition_ApproveFallsBackToUnitCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(10), decimal.Zero)

	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)

	actuals := env.actualRows(t)
	require.Len(t, actuals, 1)
	assert.True(t, actuals[0].Cost.Equal(decimal.NewFromInt(6000)),
		"expected cost 6000, got %s", actuals[0].Cost)
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(2), decimal.Zero)
	before := len(env.notificationRows(t))

	result, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusPending, admin.ID.String())
	require.NoError(t, err)
	assert.True(t, result.NoOp)

	// No side effects at all.
	assert.Empty(t, env.actualRows(t))
	assert.Len(t, env.notificationRows(t), before)
}

func TestTransition_ApproveReplayKeepsOneActual(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(3), decimal.Zero)

	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)

	// Re-applying Approved is a no-op, not a second actual.
	replay, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)
	assert.True(t, replay.NoOp)

	assert.Len(t, env.actualRows(t), 1)
}

func TestTransition_RejectAfterApproveRemovesActual(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(4), decimal.Zero)

	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)
	require.Len(t, env.actualRows(t), 1)

	result, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusRejected, admin.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, result.Request.Status)

	assert.Empty(t, env.actualRows(t))

	// Exactly one direct rejection notification for the requester.
	var rejected []model.Notification
	require.NoError(t, env.db.Where("event_key = ?", fmt.Sprintf("request:%s:rejected", req.ID)).Find(&rejected).Error)
	require.Len(t, rejected, 1)
	require.NotNil(t, rejected[0].ReceiverID)
	assert.Equal(t, staff.ID, *rejected[0].ReceiverID)
	assert.Equal(t, "Your request for Cement has been rejected", rejected[0].Message)
}

func TestTransition_ApproveNotifiesRequester(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(1), decimal.Zero)

	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)

	rows := env.notificationRows(t)
	direct := findByEventKey(t, rows, fmt.Sprintf("request:%s:approved", req.ID))
	assert.Equal(t, "Your request for Cement has been approved!", direct.Message)
	assert.Equal(t, model.NotifTypeRequestApproved, direct.Type)

	// Admin audit broadcast is always written.
	broadcast := findByEventKey(t, rows, fmt.Sprintf("request:%s:approved:admins", req.ID))
	assert.Nil(t, broadcast.ReceiverID)
}

func TestTransition_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")

	_, err := env.requestService.Transition(ctx, uuid.NewString(), "Shipped", admin.ID.String())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.requestService.Transition(ctx, uuid.NewString(), model.RequestStatusApproved, admin.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_StaleReadUpdatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")
	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(1), decimal.Zero)

	// Guard clause: the stored status no longer matches what the caller read.
	rows, err := env.requests.UpdateStatus(ctx, uuid.MustParse(req.ID), model.RequestStatusRejected, model.RequestStatusApproved, "boss")
	require.NoError(t, err)
	assert.Zero(t, rows)

	fresh, err := env.requestService.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, fresh.Status)
}

// staleRequestRepository reports an outdated status from FindByIDWithItem,
// simulating a request that another actor changed between lookup and update.
type staleRequestRepository struct {
	repository.RequestRepository
	reportStatus string
}

func (r *staleRequestRepository) FindByIDWithItem(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	req, err := r.RequestRepository.FindByIDWithItem(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Status = r.reportStatus
	return req, nil
}

func TestTransition_ConcurrentChangeConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(2), decimal.Zero)
	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)
	notifsBefore := len(env.notificationRows(t))

	// A service holding a stale read (still sees Pending) loses the race.
	stale := &staleRequestRepository{RequestRepository: env.requests, reportStatus: model.RequestStatusPending}
	staleService := NewRequestService(stale, env.items, env.users, env.audits,
		env.notificationService, env.actualsService, repository.NewTransactionManager(env.db), zap.NewNop())

	_, err = staleService.Transition(ctx, req.ID, model.RequestStatusRejected, admin.ID.String())
	assert.ErrorIs(t, err, ErrConflict)

	// The losing transition writes nothing.
	fresh, err := env.requestService.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, fresh.Status)
	assert.Len(t, env.actualRows(t), 1)
	assert.Len(t, env.notificationRows(t), notifsBefore)

	var audits []model.AuditLog
	require.NoError(t, env.db.Where("action = ?", model.ActionRejectRequest).Find(&audits).Error)
	assert.Empty(t, audits)
}

func TestDeleteRequest_CascadesDerivedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	req := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(5), decimal.Zero)
	_, err := env.requestService.Transition(ctx, req.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)

	result, err := env.requestService.Delete(ctx, req.ID, admin.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ActualsDeleted)
	assert.Greater(t, result.NotificationsDeleted, int64(0))

	_, err = env.requestService.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, env.actualRows(t))
	assert.Empty(t, env.notificationRows(t))

	var audits []model.AuditLog
	require.NoError(t, env.db.Where("action = ?", model.ActionDeleteRequest).Find(&audits).Error)
	assert.Len(t, audits, 1)
}

func findByEventKey(t *testing.T, rows []model.Notification, key string) model.Notification {
	t.Helper()
	for _, n := range rows {
		if n.EventKey != nil && *n.EventKey == key {
			return n
		}
	}
	t.Fatalf("no notification with event key %q", key)
	return model.Notification{}
}
