package handler

import (
	"github.com/gin-gonic/gin"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// OrderHandler serves the order lifecycle: creation, assignment,
// delivery, returns, rescheduling and cancellation
type OrderHandler struct {
	BaseHandler
	service *appsettlement.SettlementService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(service *appsettlement.SettlementService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes mounts the /orders routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := middleware.RequireAnyPermission(auth.PermSettlementRead, auth.PermSettlementWrite)
	write := middleware.RequirePermission(auth.PermSettlementWrite)

	orders := rg.Group("/orders")
	orders.POST("", write, h.Create)
	orders.GET("", read, h.List)
	orders.GET("/:id", read, h.Get)
	orders.POST("/:id/assign", write, h.Assign)
	orders.PUT("/:id/agent-shipping", write, h.AdjustShipping)
	orders.POST("/:id/deliver", write, h.Deliver)
	orders.POST("/:id/returns", write, h.RegisterReturn)
	orders.GET("/:id/returns", read, h.ListReturns)
	orders.POST("/:id/reschedule", write, h.Reschedule)
	orders.POST("/:id/cancel", write, h.Cancel)
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req appsettlement.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// List handles GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	var filter appsettlement.OrderListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	filter.Page, filter.PageSize = pageOf(filter.Page, filter.PageSize, defaultPageSize)

	orders, total, err := h.service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, orders, total, filter.Page, filter.PageSize)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Assign handles POST /orders/:id/assign
func (h *OrderHandler) Assign(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var req appsettlement.AssignOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.service.AssignToAgent(c.Request.Context(), id, req.AgentID, req.AgentShippingCost)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// AdjustShipping handles PUT /orders/:id/agent-shipping
func (h *OrderHandler) AdjustShipping(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var req appsettlement.AdjustShippingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.service.AdjustAgentShipping(c.Request.Context(), id, req.AgentShippingCost)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Deliver handles POST /orders/:id/deliver
func (h *OrderHandler) Deliver(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.service.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// RegisterReturn handles POST /orders/:id/returns
func (h *OrderHandler) RegisterReturn(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var req appsettlement.RegisterReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	record, err := h.service.RegisterReturn(c.Request.Context(), id, req.Lines(), req.RemoveShipping, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, record)
}

// ListReturns handles GET /orders/:id/returns
func (h *OrderHandler) ListReturns(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	records, err := h.service.ListReturns(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, records)
}

// Reschedule handles POST /orders/:id/reschedule
func (h *OrderHandler) Reschedule(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var req appsettlement.RescheduleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	day, ok := h.ParseDay(c, req.Date)
	if !ok {
		return
	}
	order, err := h.service.Reschedule(c.Request.Context(), id, *day)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Cancel handles POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.service.CancelOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}
