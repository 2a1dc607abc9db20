package service

import (
	"context"
	"testing"

	"sitestock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureActual_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")
	req := &model.Request{
		ID:          uuid.New(),
		Section:     model.CategoryMaterials,
		ItemID:      item.ID,
		Qty:         decimal.NewFromInt(10),
		RequestedBy: "alice",
		Status:      model.RequestStatusApproved,
		ProjectSite: "site-a",
	}
	require.NoError(t, env.db.Create(req).Error)

	require.NoError(t, env.actualsService.Ensure(ctx, req, "boss"))
	require.NoError(t, env.actualsService.Ensure(ctx, req, "boss"))

	rows := env.actualRows(t)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Cost.Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, "Created from approved request "+req.ID.String(), rows[0].Notes)
	assert.Equal(t, "site-a", rows[0].ProjectSite)
}

func TestEnsureActual_MissingItemYieldsZeroCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Item referenced by the request no longer exists in the catalog.
	req := &model.Request{
		ID:          uuid.New(),
		Section:     model.CategoryMaterials,
		ItemID:      uuid.New(),
		Qty:         decimal.NewFromInt(7),
		RequestedBy: "alice",
		Status:      model.RequestStatusApproved,
		ProjectSite: "site-a",
	}
	require.NoError(t, env.db.Create(req).Error)

	require.NoError(t, env.actualsService.Ensure(ctx, req, "boss"))

	rows := env.actualRows(t)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Cost.IsZero(), "expected zero cost, got %s", rows[0].Cost)
}

func TestRemoveActual_ZeroRowsIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deleted, err := env.actualsService.Remove(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
