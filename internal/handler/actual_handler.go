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

type ActualHandler struct {
	actualsService service.ActualsService
}

func NewActualHandler(actualsService service.ActualsService) *ActualHandler {
	return &ActualHandler{actualsService: actualsService}
}

func (h *ActualHandler) RegisterRoutes(router *gin.RouterGroup) {
	actuals := router.Group("/api/actuals")
	{
		actuals.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ListActuals)
	}
}

// ListActuals returns recorded actuals. Actuals are written only by the
// request state machine, so there is no create endpoint here.
// @Summary      List actuals
// @Tags         actuals
// @Produce      json
// @Security     BearerAuth
// @Param        project_site  query     string  false  "Filter by project site"
// @Param        page          query     int     false  "Page number"
// @Param        limit         query     int     false  "Items per page"
// @Success      200  {object}  response.Response{data=[]service.ActualResponse}
// @Router       /actuals [get]
func (h *ActualHandler) ListActuals(c *gin.Context) {
	params := pagination.Parse(c)

	actuals, total, err := h.actualsService.List(c.Request.Context(), c.Query("project_site"), params.Page, params.Limit)
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   actuals,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}
