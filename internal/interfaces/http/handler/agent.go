package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

const (
	defaultPageSize       = 20
	defaultLedgerPageSize = 50
)

// AgentHandler serves agent registration, balances, ledger history and
// the settlement operations scoped to one agent
type AgentHandler struct {
	BaseHandler
	service *appsettlement.SettlementService
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(service *appsettlement.SettlementService) *AgentHandler {
	return &AgentHandler{service: service}
}

// RegisterRoutes mounts the /agents routes
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := middleware.RequireAnyPermission(auth.PermSettlementRead, auth.PermSettlementWrite)
	write := middleware.RequirePermission(auth.PermSettlementWrite)

	agents := rg.Group("/agents")
	agents.POST("", write, h.Create)
	agents.GET("", read, h.List)
	agents.GET("/:id", read, h.Get)
	agents.POST("/:id/deactivate", write, h.Deactivate)
	agents.GET("/:id/balance", read, h.Balance)
	agents.GET("/:id/ledger", read, h.Ledger)
	agents.POST("/:id/payments", write, h.RecordPayment)
	agents.POST("/:id/reset/delivered", write, h.ResetDelivered)
	agents.POST("/:id/reset/returns", write, h.ResetReturns)
	agents.POST("/:id/reset/advance", write, h.ResetAdvance)
	agents.POST("/:id/settle", middleware.RequirePermission(auth.PermSettlementSettle), h.Settle)
}

// Create handles POST /agents
func (h *AgentHandler) Create(c *gin.Context) {
	var req appsettlement.CreateAgentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	agent, err := h.service.CreateAgent(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, agent)
}

// List handles GET /agents
func (h *AgentHandler) List(c *gin.Context) {
	var filter appsettlement.AgentListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	filter.Page, filter.PageSize = pageOf(filter.Page, filter.PageSize, defaultPageSize)

	agents, total, err := h.service.ListAgents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, agents, total, filter.Page, filter.PageSize)
}

// Get handles GET /agents/:id
func (h *AgentHandler) Get(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	agent, err := h.service.GetAgent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agent)
}

// Deactivate handles POST /agents/:id/deactivate
func (h *AgentHandler) Deactivate(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	agent, err := h.service.DeactivateAgent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agent)
}

// Balance handles GET /agents/:id/balance?date=YYYY-MM-DD. Without a
// date the all-time balance is returned.
func (h *AgentHandler) Balance(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	day, ok := h.ParseDay(c, c.Query("date"))
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(c.Request.Context(), id, day)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// Ledger handles GET /agents/:id/ledger
func (h *AgentHandler) Ledger(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var filter appsettlement.LedgerListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	filter.Page, filter.PageSize = pageOf(filter.Page, filter.PageSize, defaultLedgerPageSize)

	entries, total, err := h.service.GetLedger(c.Request.Context(), id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, entries, total, filter.Page, filter.PageSize)
}

// RecordPayment handles POST /agents/:id/payments
func (h *AgentHandler) RecordPayment(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	var req appsettlement.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	date := h.service.Today()
	if req.Date != "" {
		day, ok := h.ParseDay(c, req.Date)
		if !ok {
			return
		}
		date = *day
	}

	entry, err := h.service.RecordAdvancePayment(c.Request.Context(), id, req.Amount, date, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entry)
}

// ResetDelivered handles POST /agents/:id/reset/delivered
func (h *AgentHandler) ResetDelivered(c *gin.Context) {
	h.reset(c, h.service.ResetDelivered)
}

// ResetReturns handles POST /agents/:id/reset/returns
func (h *AgentHandler) ResetReturns(c *gin.Context) {
	h.reset(c, h.service.ResetReturns)
}

// ResetAdvance handles POST /agents/:id/reset/advance
func (h *AgentHandler) ResetAdvance(c *gin.Context) {
	h.reset(c, h.service.ResetAdvance)
}

func (h *AgentHandler) reset(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*appsettlement.ResetResult, error)) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	result, err := op(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Settle handles POST /agents/:id/settle
func (h *AgentHandler) Settle(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Settle(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
