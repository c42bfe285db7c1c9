package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/settlement"
)

// maxBatch bounds the number of workers one batch request may settle.
const maxBatch = 200

// SettlementHandler serves the decision engine. Every decision endpoint
// answers 200 with the structured decision, including rejections; only
// failures to decide produce an error status.
type SettlementHandler struct {
	engine *settlement.Engine
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(engine *settlement.Engine, tokens *identity.TokenIssuer, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{engine: engine, tokens: tokens, logger: logger}
}

// Register mounts the settlement routes.
func (h *SettlementHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/settlement")
	{
		s.POST("/decide", auth(h.tokens), h.Decide)
		s.POST("/payroll", auth(h.tokens, identity.RoleEmployer), h.SettlePayroll)
		s.POST("/payroll/batch", auth(h.tokens, identity.RoleEmployer), h.SettleBatch)
		s.POST("/withdrawals", auth(h.tokens, identity.RoleCustodian), h.SettleWithdrawal)

		s.GET("/commitments/:contract", auth(h.tokens), h.GetCommitment)
		s.PUT("/commitments/:contract", auth(h.tokens, identity.RoleAdmin), h.UpdateCommitment)

		s.GET("/network", h.GetNetwork)
		s.PUT("/network", auth(h.tokens, identity.RoleAdmin), h.UpdateNetwork)
	}
}

// Decide handles POST /settlement/decide.
func (h *SettlementHandler) Decide(c *gin.Context) {
	var req settlement.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, "decide")(h.engine.Decide(requestCtx(c), req))
}

// SettlePayroll handles POST /settlement/payroll.
func (h *SettlementHandler) SettlePayroll(c *gin.Context) {
	var req settlement.PayrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, "settle payroll")(h.engine.SettlePayroll(requestCtx(c), req))
}

// SettleWithdrawal handles POST /settlement/withdrawals.
func (h *SettlementHandler) SettleWithdrawal(c *gin.Context) {
	var req settlement.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, "settle withdrawal")(h.engine.SettleWithdrawal(requestCtx(c), req))
}

type batchRequest struct {
	Requests []settlement.PayrollRequest `json:"requests" binding:"required"`
}

// SettleBatch handles POST /settlement/payroll/batch.
func (h *SettlementHandler) SettleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Requests) > maxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many requests in batch", "code": "invalid_request"})
		return
	}
	results := h.engine.SettleBatch(requestCtx(c), req.Requests)
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (h *SettlementHandler) respond(c *gin.Context, op string) func(*settlement.Decision, error) {
	return func(d *settlement.Decision, err error) {
		if err != nil {
			writeError(c, h.logger, op, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// GetCommitment handles GET /settlement/commitments/:contract.
func (h *SettlementHandler) GetCommitment(c *gin.Context) {
	root, err := h.engine.Commitment(requestCtx(c), c.Param("contract"))
	if err != nil {
		writeError(c, h.logger, "get commitment", err)
		return
	}
	if root == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no commitment stored", "code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract_id": c.Param("contract"), "root": root})
}

type commitmentRequest struct {
	Root string `json:"root" binding:"required"`
}

// UpdateCommitment handles PUT /settlement/commitments/:contract.
func (h *SettlementHandler) UpdateCommitment(c *gin.Context) {
	var req commitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.engine.UpdateCommitment(requestCtx(c), c.Param("contract"), req.Root)
	if err != nil {
		writeError(c, h.logger, "update commitment", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetNetwork handles GET /settlement/network.
func (h *SettlementHandler) GetNetwork(c *gin.Context) {
	sig, observed := h.engine.NetworkStatus()
	resp := gin.H{"observed": observed, "healthy": h.engine.NetworkHealthy()}
	if observed {
		resp["gas_fee"] = sig.GasFee
		resp["latency_ms"] = sig.Latency.Milliseconds()
		resp["observed_at"] = sig.ObservedAt
	}
	c.JSON(http.StatusOK, resp)
}

type networkRequest struct {
	GasFee    uint64 `json:"gas_fee"`
	LatencyMS int64  `json:"latency_ms"`
}

// UpdateNetwork handles PUT /settlement/network.
func (h *SettlementHandler) UpdateNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.LatencyMS < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latency_ms must not be negative", "code": "invalid_request"})
		return
	}
	h.engine.UpdateNetworkStatus(requestCtx(c), model.NetworkSignal{
		GasFee:     req.GasFee,
		Latency:    time.Duration(req.LatencyMS) * time.Millisecond,
		ObservedAt: time.Now().UTC(),
	})
	h.GetNetwork(c)
}
