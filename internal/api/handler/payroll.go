package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
)

// PayrollHandler serves wage assignment routes. Processing goes through
// SettlementHandler.
type PayrollHandler struct {
	svc    *payroll.Service
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewPayrollHandler creates a PayrollHandler.
func NewPayrollHandler(svc *payroll.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *PayrollHandler {
	return &PayrollHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the payroll routes.
func (h *PayrollHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/payroll")
	{
		p.POST("", auth(h.tokens, identity.RoleEmployer), h.Assign)
		p.GET("/pending", auth(h.tokens), h.ListPending)
		p.GET("/:worker", auth(h.tokens), h.GetEntry)
	}
}

type assignRequest struct {
	WorkerID   string `json:"worker_id"   binding:"required"`
	EmployerID string `json:"employer_id" binding:"required"`
	Amount     int64  `json:"amount"`
}

// Assign handles POST /payroll.
func (h *PayrollHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.svc.Assign(requestCtx(c), req.WorkerID, req.EmployerID, req.Amount)
	if err != nil {
		writeError(c, h.logger, "assign payroll", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// GetEntry handles GET /payroll/:worker.
func (h *PayrollHandler) GetEntry(c *gin.Context) {
	entry, err := h.svc.Entry(requestCtx(c), c.Param("worker"))
	if err != nil {
		writeError(c, h.logger, "get payroll entry", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListPending handles GET /payroll/pending.
func (h *PayrollHandler) ListPending(c *gin.Context) {
	entries, err := h.svc.Pending(requestCtx(c))
	if err != nil {
		writeError(c, h.logger, "list pending payroll", err)
		return
	}
	if entries == nil {
		entries = []*model.PayrollEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
