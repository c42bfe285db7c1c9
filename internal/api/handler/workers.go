package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/workers"
)

// WorkerHandler serves the worker identity registry.
type WorkerHandler struct {
	registry *workers.Registry
	tokens   *identity.TokenIssuer
	logger   *zap.Logger
}

// NewWorkerHandler creates a WorkerHandler.
func NewWorkerHandler(registry *workers.Registry, tokens *identity.TokenIssuer, logger *zap.Logger) *WorkerHandler {
	return &WorkerHandler{registry: registry, tokens: tokens, logger: logger}
}

// Register mounts the worker routes.
func (h *WorkerHandler) Register(rg *gin.RouterGroup) {
	w := rg.Group("/workers")
	{
		w.POST("", auth(h.tokens, identity.RoleEmployer), h.RegisterWorker)
		w.GET("", auth(h.tokens), h.ListWorkers)
		w.GET("/:id", auth(h.tokens), h.GetWorker)
	}
}

// registerWorkerRequest carries proofs as base64 in JSON.
type registerWorkerRequest struct {
	ID            string           `json:"id"             binding:"required"`
	Type          model.WorkerType `json:"type"`
	Industry      string           `json:"industry"`
	IdentityProof []byte           `json:"identity_proof" binding:"required"`
	KYCProof      []byte           `json:"kyc_proof"      binding:"required"`
}

// RegisterWorker handles POST /workers.
func (h *WorkerHandler) RegisterWorker(c *gin.Context) {
	var req registerWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.registry.Register(requestCtx(c), model.Worker{
		ID:       req.ID,
		Type:     req.Type,
		Industry: req.Industry,
	}, req.IdentityProof, req.KYCProof)
	if err != nil {
		writeError(c, h.logger, "register worker", err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// GetWorker handles GET /workers/:id.
func (h *WorkerHandler) GetWorker(c *gin.Context) {
	w, err := h.registry.Get(requestCtx(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get worker", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListWorkers handles GET /workers.
func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	ws, err := h.registry.List(requestCtx(c))
	if err != nil {
		writeError(c, h.logger, "list workers", err)
		return
	}
	if ws == nil {
		ws = []*model.Worker{}
	}
	c.JSON(http.StatusOK, gin.H{"workers": ws, "count": len(ws)})
}
