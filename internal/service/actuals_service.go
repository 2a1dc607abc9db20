package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ActualResponse struct {
	ID              string          `json:"id"`
	ItemID          string          `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Qty             decimal.Decimal `json:"qty"`
	Cost            decimal.Decimal `json:"cost"`
	Date            string          `json:"date"`
	RecordedBy      string          `json:"recorded_by"`
	Notes           string          `json:"notes"`
	ProjectSite     string          `json:"project_site"`
	SourceRequestID *string         `json:"source_request_id"`
}

// ActualsService keeps the actuals ledger consistent with request approval
// state. Both operations are idempotent so a replayed transition handler
// cannot duplicate or over-delete ledger rows.
type ActualsService interface {
	// Ensure creates the actual derived from an approved request unless one
	// already exists for it.
	Ensure(ctx context.Context, req *model.Request, recordedBy string) error
	// Remove deletes the actual tagged with requestID. Deleting zero rows is
	// not an error.
	Remove(ctx context.Context, requestID uuid.UUID) (int64, error)
	List(ctx context.Context, projectSite string, page, limit int) ([]ActualResponse, int64, error)
}

type actualsService struct {
	actuals repository.ActualRepository
	items   repository.ItemRepository
	logger  *zap.Logger
}

func NewActualsService(actuals repository.ActualRepository, items repository.ItemRepository, logger *zap.Logger) ActualsService {
	return &actualsService{actuals: actuals, items: items, logger: logger}
}

func (s *actualsService) Ensure(ctx context.Context, req *model.Request, recordedBy string) error {
	if _, err := s.actuals.FindBySourceRequestID(ctx, req.ID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing actual: %w", err)
	}

	rate := s.effectiveRate(ctx, req)
	actual := &model.Actual{
		ItemID:          req.ItemID,
		Qty:             req.Qty,
		Cost:            req.Qty.Mul(rate),
		Date:            time.Now(),
		RecordedBy:      recordedBy,
		Notes:           fmt.Sprintf("Created from approved request %s", req.ID),
		ProjectSite:     req.ProjectSite,
		SourceRequestID: &req.ID,
	}
	if err := s.actuals.Create(ctx, actual); err != nil {
		return fmt.Errorf("failed to create actual for request %s: %w", req.ID, err)
	}
	return nil
}

// effectiveRate prefers the request's price snapshot when positive, falling
// back to the catalog item's current unit cost. A missing item or cost yields
// zero, which makes the actual's cost zero rather than skipping the row.
func (s *actualsService) effectiveRate(ctx context.Context, req *model.Request) decimal.Decimal {
	if req.PriceSnapshot.IsPositive() {
		return req.PriceSnapshot
	}
	item, err := s.items.FindByID(ctx, req.ItemID)
	if err != nil {
		s.logger.Warn("item lookup failed while deriving actual cost, using zero rate",
			zap.String("request_id", req.ID.String()),
			zap.String("item_id", req.ItemID.String()),
			zap.Error(err))
		return decimal.Zero
	}
	return item.UnitCost
}

func (s *actualsService) Remove(ctx context.Context, requestID uuid.UUID) (int64, error) {
	deleted, err := s.actuals.DeleteBySourceRequestID(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove actual for request %s: %w", requestID, err)
	}
	return deleted, nil
}

func (s *actualsService) List(ctx context.Context, projectSite string, page, limit int) ([]ActualResponse, int64, error) {
	actuals, total, err := s.actuals.List(ctx, projectSite, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch actuals: %w", err)
	}

	result := make([]ActualResponse, 0, len(actuals))
	for _, a := range actuals {
		result = append(result, toActualResponse(a))
	}
	return result, total, nil
}

func toActualResponse(a model.Actual) ActualResponse {
	resp := ActualResponse{
		ID:          a.ID.String(),
		ItemID:      a.ItemID.String(),
		Qty:         a.Qty,
		Cost:        a.Cost,
		Date:        a.Date.Format("2006-01-02"),
		RecordedBy:  a.RecordedBy,
		Notes:       a.Notes,
		ProjectSite: a.ProjectSite,
	}
	if a.Item != nil {
		resp.ItemName = a.Item.Name
	}
	if a.SourceRequestID != nil {
		s := a.SourceRequestID.String()
		resp.SourceRequestID = &s
	}
	return resp
}
