package handlers

import (
	"github.com/gin-gonic/gin"

	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/http/v1/dto"
)

// GoalHandler serves objectives, key results and check-ins. It never sees
// an organization id: the tenant scope travels in the request context.
type GoalHandler struct {
	*BaseHandler
	service *goals.Service
}

// NewGoalHandler creates a goal handler.
func NewGoalHandler(base *BaseHandler, service *goals.Service) *GoalHandler {
	return &GoalHandler{BaseHandler: base, service: service}
}

// ListObjectives handles GET /goals.
func (h *GoalHandler) ListObjectives(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	f := goals.ListFilter{Limit: page.Limit, Offset: page.Offset}.Normalize()

	items, err := h.service.ListObjectives(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, dto.PaginationRequest{Limit: f.Limit, Offset: f.Offset})
}

// CreateObjective handles POST /goals.
func (h *GoalHandler) CreateObjective(c *gin.Context) {
	var req dto.CreateObjectiveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	obj, err := h.service.CreateObjective(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, obj)
}

// GetObjective handles GET /goals/:id.
func (h *GoalHandler) GetObjective(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "objective")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	obj, err := h.service.GetObjective(ctx, id)
	if err != nil {
		h.Error(c, err)
		return
	}
	krs, err := h.service.ListKeyResults(ctx, id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ObjectiveDetail{Objective: obj, KeyResults: krs})
}

// ListKeyResults handles GET /goals/:id/key-results.
func (h *GoalHandler) ListKeyResults(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "objective")
	if !ok {
		return
	}
	items, err := h.service.ListKeyResults(c.Request.Context(), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, dto.PaginationRequest{Limit: len(items)})
}

// CreateKeyResult handles POST /goals/:id/key-results.
func (h *GoalHandler) CreateKeyResult(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "objective")
	if !ok {
		return
	}
	var req dto.CreateKeyResultRequest
	if !h.BindJSON(c, &req) {
		return
	}
	kr, err := h.service.CreateKeyResult(c.Request.Context(), id, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, kr)
}

// ListCheckIns handles GET /key-results/:id/check-ins.
func (h *GoalHandler) ListCheckIns(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "key result")
	if !ok {
		return
	}
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	f := goals.ListFilter{Limit: page.Limit, Offset: page.Offset}.Normalize()

	items, err := h.service.ListCheckIns(c.Request.Context(), id, f)
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, items, dto.PaginationRequest{Limit: f.Limit, Offset: f.Offset})
}

// CreateCheckIn handles POST /key-results/:id/check-ins.
func (h *GoalHandler) CreateCheckIn(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "key result")
	if !ok {
		return
	}
	var req dto.CreateCheckInRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ci, err := h.service.CreateCheckIn(c.Request.Context(), id, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, ci)
}

// RegisterRoutes mounts the goal routes on rg.
func (h *GoalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/goals", h.ListObjectives)
	rg.POST("/goals", h.CreateObjective)
	rg.GET("/goals/:id", h.GetObjective)
	rg.GET("/goals/:id/key-results", h.ListKeyResults)
	rg.POST("/goals/:id/key-results", h.CreateKeyResult)
	rg.GET("/key-results/:id/check-ins", h.ListCheckIns)
	rg.POST("/key-results/:id/check-ins", h.CreateCheckIn)
}
