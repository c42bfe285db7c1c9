package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/bridge"
	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

// BridgeHandler lets operators test a transfer against the bridge rules
// without moving funds. Denied checks are audited like real attempts.
type BridgeHandler struct {
	enforcer *bridge.Enforcer
	tokens   *identity.TokenIssuer
	logger   *zap.Logger
}

// NewBridgeHandler creates a BridgeHandler.
func NewBridgeHandler(enforcer *bridge.Enforcer, tokens *identity.TokenIssuer, logger *zap.Logger) *BridgeHandler {
	return &BridgeHandler{enforcer: enforcer, tokens: tokens, logger: logger}
}

// Register mounts the bridge routes.
func (h *BridgeHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/bridge/check", auth(h.tokens), h.Check)
}

// Check handles POST /bridge/check.
func (h *BridgeHandler) Check(c *gin.Context) {
	var t transport.Transfer
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err)
		return
	}
	err := h.enforcer.Check(requestCtx(c), t)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"allowed": true})
	case errors.Is(err, model.ErrPolicyViolation):
		c.JSON(http.StatusOK, gin.H{"allowed": false, "reason": err.Error(), "code": model.ErrorCode(err)})
	default:
		writeError(c, h.logger, "bridge check", err)
	}
}
