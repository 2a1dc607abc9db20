package repository

import (
	"context"

	"sitestock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActualRepository interface {
	// Create inserts the actual. A concurrent insert for the same source
	// request is swallowed by the unique index and reported as zero rows.
	Create(ctx context.Context, actual *model.Actual) error
	FindBySourceRequestID(ctx context.Context, requestID uuid.UUID) (*model.Actual, error)
	DeleteBySourceRequestID(ctx context.Context, requestID uuid.UUID) (int64, error)
	DeleteByRecordedBy(ctx context.Context, name string) (int64, error)
	List(ctx context.Context, projectSite string, page, limit int) ([]model.Actual, int64, error)
}

type actualRepository struct {
	db *gorm.DB
}

func NewActualRepository(db *gorm.DB) ActualRepository {
	return &actualRepository{db: db}
}

func (r *actualRepository) Create(ctx context.Context, actual *model.Actual) error {
	return GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_request_id"}},
			DoNothing: true,
		}).
		Create(actual).Error
}

func (r *actualRepository) FindBySourceRequestID(ctx context.Context, requestID uuid.UUID) (*model.Actual, error) {
	var actual model.Actual
	if err := GetDB(ctx, r.db).First(&actual, "source_request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &actual, nil
}

func (r *actualRepository) DeleteBySourceRequestID(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Actual{}, "source_request_id = ?", requestID)
	return result.RowsAffected, result.Error
}

func (r *actualRepository) DeleteByRecordedBy(ctx context.Context, name string) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Actual{}, "recorded_by = ?", name)
	return result.RowsAffected, result.Error
}

func (r *actualRepository) List(ctx context.Context, projectSite string, page, limit int) ([]model.Actual, int64, error) {
	var actuals []model.Actual
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Actual{})
	if projectSite != "" {
		query = query.Where("project_site = ?", projectSite)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Item")
	if projectSite != "" {
		fetchQuery = fetchQuery.Where("project_site = ?", projectSite)
	}
	if err := fetchQuery.Order("created_at DESC").Offset(offset).Limit(limit).Find(&actuals).Error; err != nil {
		return nil, 0, err
	}

	return actuals, total, nil
}
