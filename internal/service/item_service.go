package service

import (
	"context"
	"errors"
	"fmt"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ItemResponse struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	Qty         decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Budget      string          `json:"budget"`
	Section     string          `json:"section"`
	Grp         string          `json:"grp"`
	ProjectSite string          `json:"project_site"`
}

// ItemService exposes read-only catalog lookups. Item CRUD itself lives
// outside the request engine.
type ItemService interface {
	GetByID(ctx context.Context, id string) (*ItemResponse, error)
	List(ctx context.Context, category, projectSite string, page, limit int) ([]ItemResponse, int64, error)
}

type itemService struct {
	repo repository.ItemRepository
}

func NewItemService(repo repository.ItemRepository) ItemService {
	return &itemService{repo: repo}
}

func (s *itemService) GetByID(ctx context.Context, id string) (*ItemResponse, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid item id", ErrValidation)
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("failed to look up item: %w", err)
	}
	resp := toItemResponse(*item)
	return &resp, nil
}

func (s *itemService) List(ctx context.Context, category, projectSite string, page, limit int) ([]ItemResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	items, total, err := s.repo.List(ctx, category, projectSite, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch items: %w", err)
	}

	result := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, toItemResponse(item))
	}
	return result, total, nil
}

func toItemResponse(item model.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID.String(),
		Code:        item.Code,
		Name:        item.Name,
		Category:    item.Category,
		Unit:        item.Unit,
		Qty:         item.Qty,
		UnitCost:    item.UnitCost,
		Budget:      item.Budget,
		Section:     item.Section,
		Grp:         item.Grp,
		ProjectSite: item.ProjectSite,
	}
}
