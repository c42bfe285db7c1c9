package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/trustpool"
)

// TrustPoolHandler serves contribution, KYC and approval routes.
// Withdrawals go through SettlementHandler so every one is audited.
type TrustPoolHandler struct {
	custodian *trustpool.Custodian
	tokens    *identity.TokenIssuer
	logger    *zap.Logger
}

// NewTrustPoolHandler creates a TrustPoolHandler.
func NewTrustPoolHandler(custodian *trustpool.Custodian, tokens *identity.TokenIssuer, logger *zap.Logger) *TrustPoolHandler {
	return &TrustPoolHandler{custodian: custodian, tokens: tokens, logger: logger}
}

// Register mounts the trust pool routes.
func (h *TrustPoolHandler) Register(rg *gin.RouterGroup) {
	tp := rg.Group("/trust-pool")
	{
		tp.GET("/:worker", auth(h.tokens), h.GetBalance)
		tp.POST("/:worker/contributions", auth(h.tokens, identity.RoleEmployer), h.Contribute)
	}

	kyc := rg.Group("/kyc")
	{
		kyc.GET("/:id", auth(h.tokens), h.GetKYC)
		kyc.POST("/:id", auth(h.tokens, identity.RoleCustodian), h.VerifyKYC)
		kyc.DELETE("/:id", auth(h.tokens, identity.RoleCustodian), h.RevokeKYC)
	}

	ap := rg.Group("/approvals")
	{
		ap.POST("", auth(h.tokens), h.OpenApproval)
		ap.GET("/:id", auth(h.tokens), h.GetApproval)
		ap.POST("/:id/approve", auth(h.tokens), h.Approve)
	}
}

// GetBalance handles GET /trust-pool/:worker.
func (h *TrustPoolHandler) GetBalance(c *gin.Context) {
	rec, err := h.custodian.Balance(requestCtx(c), c.Param("worker"))
	if err != nil {
		writeError(c, h.logger, "get trust pool balance", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Contribute handles POST /trust-pool/:worker/contributions.
func (h *TrustPoolHandler) Contribute(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.custodian.Contribute(requestCtx(c), c.Param("worker"), req.Amount)
	if err != nil {
		writeError(c, h.logger, "contribute", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetKYC handles GET /kyc/:id. The attestation reference is not returned.
func (h *TrustPoolHandler) GetKYC(c *gin.Context) {
	ok, err := h.custodian.IsKYCVerified(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get kyc", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "verified": ok})
}

// VerifyKYC handles POST /kyc/:id.
func (h *TrustPoolHandler) VerifyKYC(c *gin.Context) {
	rec, err := h.custodian.VerifyKYC(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "verify kyc", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// RevokeKYC handles DELETE /kyc/:id.
func (h *TrustPoolHandler) RevokeKYC(c *gin.Context) {
	if err := h.custodian.RevokeKYC(requestCtx(c), c.Param("id")); err != nil {
		writeError(c, h.logger, "revoke kyc", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type openApprovalRequest struct {
	WorkerID string `json:"worker_id" binding:"required"`
	Amount   int64  `json:"amount"`
}

type approveRequest struct {
	ApproverID string `json:"approver_id"`
}

// OpenApproval handles POST /approvals.
func (h *TrustPoolHandler) OpenApproval(c *gin.Context) {
	var req openApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ap, err := h.custodian.OpenApproval(requestCtx(c), req.WorkerID, req.Amount)
	if err != nil {
		writeError(c, h.logger, "open approval", err)
		return
	}
	c.JSON(http.StatusCreated, ap)
}

// GetApproval handles GET /approvals/:id.
func (h *TrustPoolHandler) GetApproval(c *gin.Context) {
	ap, err := h.custodian.Approval(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get approval", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approval": ap, "complete": ap.Complete()})
}

// Approve handles POST /approvals/:id/approve. With auth enabled the
// approver is the calling operator; approver_id may only repeat that name.
func (h *TrustPoolHandler) Approve(c *gin.Context) {
	var req approveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	approver := req.ApproverID
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		if approver != "" && approver != claims.Name {
			c.JSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("operator %s cannot approve on behalf of %s", claims.Name, approver),
				"code":  "unauthorized",
			})
			return
		}
		approver = claims.Name
	}
	ap, err := h.custodian.Approve(requestCtx(c), c.Param("id"), approver)
	if err != nil {
		writeError(c, h.logger, "approve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approval": ap, "complete": ap.Complete()})
}
