package handler

import (
	"net/http"

	"sitestock/internal/middleware"
	"sitestock/internal/model"
	"sitestock/internal/service"
	"sitestock/pkg/pagination"
	"sitestock/pkg/response"

	"github.com/gin-gonic/gin"
)

type ItemHandler struct {
	itemService service.ItemService
}

func NewItemHandler(itemService service.ItemService) *ItemHandler {
	return &ItemHandler{itemService: itemService}
}

func (h *ItemHandler) RegisterRoutes(router *gin.RouterGroup) {
	items := router.Group("/api/items")
	items.Use(middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff))
	{
		items.GET("", h.ListItems)
		items.GET("/:id", h.GetItem)
	}
}

// ListItems returns catalog items, optionally filtered by category or site
// @Summary      List items
// @Tags         items
// @Produce      json
// @Security     BearerAuth
// @Param        category      query     string  false  "Filter by category (materials, labour)"
// @Param        project_site  query     string  false  "Filter by project site"
// @Param        page          query     int     false  "Page number"
// @Param        limit         query     int     false  "Items per page"
// @Success      200  {object}  response.Response{data=[]service.ItemResponse}
// @Router       /items [get]
func (h *ItemHandler) ListItems(c *gin.Context) {
	params := pagination.Parse(c)

	items, total, err := h.itemService.List(c.Request.Context(), c.Query("category"), c.Query("project_site"), params.Page, params.Limit)
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   items,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetItem returns a single catalog item
// @Summary      Get item
// @Tags         items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      200  {object}  response.Response{data=service.ItemResponse}
// @Failure      404  {object}  response.Response
// @Router       /items/{id} [get]
func (h *ItemHandler) GetItem(c *gin.Context) {
	item, err := h.itemService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}
