package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/compliance"
	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
)

// ComplianceHandler serves employer tax and funding routes.
type ComplianceHandler struct {
	gate   *compliance.Gate
	tokens *identity.TokenIssuer // nil = open mode
	logger *zap.Logger
}

// NewComplianceHandler creates a ComplianceHandler.
func NewComplianceHandler(gate *compliance.Gate, tokens *identity.TokenIssuer, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{gate: gate, tokens: tokens, logger: logger}
}

// Register mounts the employer routes.
func (h *ComplianceHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/employers/:id")
	{
		e.GET("", auth(h.tokens), h.GetStanding)
		e.GET("/compliance", auth(h.tokens), h.CheckCompliance)
		e.POST("/tax-payments", auth(h.tokens, identity.RoleGovernment), h.RecordTaxPayment)
		e.POST("/penalty", auth(h.tokens, identity.RoleGovernment), h.EnforcePenalty)
		e.PUT("/funding", auth(h.tokens, identity.RoleEmployer), h.UpdateFunding)
	}
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type fundingRequest struct {
	Funds uint64 `json:"funds"`
}

// GetStanding handles GET /employers/:id.
func (h *ComplianceHandler) GetStanding(c *gin.Context) {
	st, err := h.gate.Standing(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get standing", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// CheckCompliance handles GET /employers/:id/compliance.
func (h *ComplianceHandler) CheckCompliance(c *gin.Context) {
	ok, err := h.gate.CheckCompliance(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "check compliance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employer_id": c.Param("id"), "compliant": ok})
}

// RecordTaxPayment handles POST /employers/:id/tax-payments.
func (h *ComplianceHandler) RecordTaxPayment(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	total, err := h.gate.RecordTaxPayment(requestCtx(c), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, h.logger, "record tax payment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employer_id": c.Param("id"), "taxes_paid": total, "compliant": true})
}

// EnforcePenalty handles POST /employers/:id/penalty.
func (h *ComplianceHandler) EnforcePenalty(c *gin.Context) {
	res, err := h.gate.EnforcePenalty(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "enforce penalty", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UpdateFunding handles PUT /employers/:id/funding.
func (h *ComplianceHandler) UpdateFunding(c *gin.Context) {
	var req fundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.gate.UpdatePayrollFunding(requestCtx(c), c.Param("id"), req.Funds); err != nil {
		writeError(c, h.logger, "update payroll funding", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employer_id": c.Param("id"), "payroll_funds": req.Funds})
}
