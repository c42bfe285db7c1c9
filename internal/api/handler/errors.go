package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch model.ErrorCode(err) {
	case "not_found":
		return http.StatusNotFound
	case "invalid_amount", "invalid_request":
		return http.StatusBadRequest
	case "insufficient_balance", "already_processed":
		return http.StatusConflict
	case "proof_invalid":
		return http.StatusUnprocessableEntity
	case "unauthorized", "policy_violation":
		return http.StatusForbidden
	case "transfer_failed":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError writes {"error", "code"} with the mapped status. Internal
// errors are logged and their detail withheld.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := StatusFor(err)
	code := model.ErrorCode(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": op + " failed", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
}
