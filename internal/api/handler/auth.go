package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/operators"
)

// AuthHandler issues operator session tokens and manages operators.
type AuthHandler struct {
	operators *operators.Service
	tokens    *identity.TokenIssuer
	logger    *zap.Logger
}

// NewAuthHandler creates an AuthHandler. tokens must not be nil.
func NewAuthHandler(ops *operators.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{operators: ops, tokens: tokens, logger: logger}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.GET("/auth/me", identity.RequireOperator(h.tokens), h.Me)
	rg.POST("/operators", identity.RequireRole(h.tokens, identity.RoleAdmin), h.CreateOperator)
}

type loginRequest struct {
	Name     string `json:"name"     binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	op, err := h.operators.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, operators.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("operator login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := h.tokens.Issue(op.ID.String(), op.Name, op.Role)
	if err != nil {
		h.logger.Error("issue operator token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "operator": op})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	c.JSON(http.StatusOK, gin.H{
		"operator_id": claims.OperatorID,
		"name":        claims.Name,
		"role":        claims.Role,
	})
}

type createOperatorRequest struct {
	Name     string `json:"name"     binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"     binding:"required"`
}

// CreateOperator handles POST /operators.
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	var req createOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		badRequest(c, err)
		return
	}

	op, err := h.operators.Create(c.Request.Context(), req.Name, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, operators.ErrDuplicateName):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			writeError(c, h.logger, "create operator", err)
		}
		return
	}
	c.JSON(http.StatusCreated, op)
}
