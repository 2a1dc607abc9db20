package handler

import (
	"net/http"

	"sitestock/internal/middleware"
	"sitestock/internal/model"
	"sitestock/internal/repository"
	"sitestock/internal/service"
	"sitestock/pkg/pagination"
	"sitestock/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService service.RequestService
}

func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.SubmitRequest)
		requests.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.ListRequests)
		requests.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.GetRequest)
		requests.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ApproveRequest)
		requests.PUT("/:id/reject", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.RejectRequest)
		requests.PUT("/:id/status", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.SetRequestStatus)
		requests.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteRequest)
	}
}

// SubmitRequest creates a new pending inventory request
// @Summary      Submit a request
// @Description  Creates a new request in Pending status and notifies administrators
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitRequestDTO  true  "Request Payload"
// @Success      201      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /requests [post]
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	var dto service.SubmitRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.requestService.Submit(c.Request.Context(), dto, actorID(c))
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, result.Request, result.Warnings))
}

// ListRequests returns requests, optionally filtered by status, site or requester
// @Summary      List requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status        query     string  false  "Filter by status (Pending, Approved, Rejected)"
// @Param        project_site  query     string  false  "Filter by project site"
// @Param        requested_by  query     string  false  "Filter by requester display name"
// @Param        page          query     int     false  "Page number"
// @Param        limit         query     int     false  "Items per page"
// @Success      200  {object}  response.Response{data=[]service.RequestResponse}
// @Router       /requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	params := pagination.Parse(c)

	filter := repository.RequestFilter{
		Status:      c.Query("status"),
		ProjectSite: c.Query("project_site"),
		RequestedBy: c.Query("requested_by"),
		Page:        params.Page,
		Limit:       params.Limit,
	}

	requests, total, err := h.requestService.List(c.Request.Context(), filter)
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   requests,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetRequest returns a single request by id
// @Summary      Get request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	result, err := h.requestService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRequest moves a request to Approved and records the derived actual
// @Summary      Approve request
// @Description  Sets the request to Approved, creates its actual and notifies the requester
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	h.transition(c, model.RequestStatusApproved)
}

// RejectRequest moves a request to Rejected
// @Summary      Reject request
// @Description  Sets the request to Rejected, removing its actual if one exists
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	h.transition(c, model.RequestStatusRejected)
}

type setStatusDTO struct {
	Status string `json:"status" binding:"required"`
}

// SetRequestStatus moves a request to an arbitrary valid status
// @Summary      Set request status
// @Description  Transitions the request to the given status, synchronizing actuals
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string        true  "Request ID"
// @Param        payload  body      setStatusDTO  true  "Target status"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/status [put]
func (h *RequestHandler) SetRequestStatus(c *gin.Context) {
	var dto setStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	h.transition(c, dto.Status)
}

func (h *RequestHandler) transition(c *gin.Context, target string) {
	result, err := h.requestService.Transition(c.Request.Context(), c.Param("id"), target, actorID(c))
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, result.Request, result.Warnings))
}

// DeleteRequest removes a request and everything derived from it
// @Summary      Delete request
// @Description  Deletes the request together with its actual and its notifications
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.DeleteRequestResult}
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	result, err := h.requestService.Delete(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		status := statusFromErr(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// actorID pulls the authenticated user id set by the auth middleware.
func actorID(c *gin.Context) string {
	userID, _ := c.Get("userID")
	s, _ := userID.(string)
	return s
}
