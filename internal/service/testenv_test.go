package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"sitestock/internal/database"
	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv wires the full service stack against an in-memory sqlite database.
// Each test gets its own database keyed by the test name.
type testEnv struct {
	db *gorm.DB

	users         repository.UserRepository
	items         repository.ItemRepository
	requests      repository.RequestRepository
	actuals       repository.ActualRepository
	notifications repository.NotificationRepository
	audits        repository.AuditRepository

	notificationService NotificationService
	actualsService      ActualsService
	requestService      RequestService
	userService         UserService
	auditService        AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	zapLogger := zap.NewNop()

	env := &testEnv{db: db}
	env.users = repository.NewUserRepository(db)
	env.items = repository.NewItemRepository(db)
	env.requests = repository.NewRequestRepository(db)
	env.actuals = repository.NewActualRepository(db)
	env.notifications = repository.NewNotificationRepository(db)
	env.audits = repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	env.notificationService = NewNotificationService(env.notifications, env.users, zapLogger)
	env.actualsService = NewActualsService(env.actuals, env.items, zapLogger)
	env.requestService = NewRequestService(env.requests, env.items, env.users, env.audits, env.notificationService, env.actualsService, txManager, zapLogger)
	env.userService = NewUserService(env.users, env.requests, env.actuals, env.notifications, env.audits, zapLogger)
	env.auditService = NewAuditService(env.audits)

	return env
}

func (e *testEnv) seedUser(t *testing.T, username, role, projectSite string) *model.User {
	t.Helper()
	user := &model.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "not-a-real-hash",
		Role:        role,
		ProjectSite: projectSite,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *testEnv) seedItem(t *testing.T, name string, unitCost decimal.Decimal, projectSite string) *model.Item {
	t.Helper()
	item := &model.Item{
		Code:        strings.ToUpper(strings.ReplaceAll(name, " ", "-")),
		Name:        name,
		Category:    model.CategoryMaterials,
		Unit:        "bag",
		UnitCost:    unitCost,
		ProjectSite: projectSite,
	}
	require.NoError(t, e.items.Create(context.Background(), item))
	return item
}

func (e *testEnv) submit(t *testing.T, actor *model.User, itemID string, qty, snapshot decimal.Decimal) RequestResponse {
	t.Helper()
	result, err := e.requestService.Submit(context.Background(), SubmitRequestDTO{
		Section:       model.CategoryMaterials,
		ItemID:        itemID,
		Qty:           qty,
		PriceSnapshot: snapshot,
	}, actor.ID.String())
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	return result.Request
}

func (e *testEnv) notificationRows(t *testing.T) []model.Notification {
	t.Helper()
	var rows []model.Notification
	require.NoError(t, e.db.Order("created_at").Find(&rows).Error)
	return rows
}

func (e *testEnv) actualRows(t *testing.T) []model.Actual {
	t.Helper()
	var rows []model.Actual
	require.NoError(t, e.db.Find(&rows).Error)
	return rows
}
