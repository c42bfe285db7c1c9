package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/api/handler"
	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/bridge"
	"github.com/PNWBNW/Proven-National-Worker/internal/compliance"
	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/operators"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
	"github.com/PNWBNW/Proven-National-Worker/internal/settlement"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
	"github.com/PNWBNW/Proven-National-Worker/internal/trustpool"
	"github.com/PNWBNW/Proven-National-Worker/internal/workers"
)

type testServer struct {
	router *gin.Engine
	log    *audit.MemoryLog
	mem    *transport.Memory
	tokens *identity.TokenIssuer
	ops    *operators.Service
}

// everyWorkerVerified treats every worker as registered so payroll routes
// can be exercised without the registration flow.
type everyWorkerVerified struct{}

func (everyWorkerVerified) IsVerified(context.Context, string) (bool, error) { return true, nil }

// newTestServer wires every component in memory. Without auth the routes
// run in open mode.
func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	var tokens *identity.TokenIssuer
	if withAuth {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tokens = identity.NewTokenIssuer(key, "https://settlement.test", time.Hour)
	}

	store := ledger.NewStore(ledger.NewMemoryStore())
	log := audit.NewMemoryLog()
	bus := events.NewBus(log, logger)
	mem := transport.NewMemory()
	enforcer, err := bridge.New(mem, bus, logger)
	require.NoError(t, err)

	gate := compliance.NewGate(store, bus, logger, compliance.Config{})
	pay := payroll.NewService(store, gate, enforcer, bus, logger)
	var engine *settlement.Engine
	verifier := proof.VerifierFunc(func(ctx context.Context, subject string, p []byte, k proof.Kind) (proof.Verdict, error) {
		return proof.NewMerkleVerifier(engine).Verify(ctx, subject, p, k)
	})
	custodian := trustpool.NewCustodian(store, enforcer, verifier, bus, logger)
	engine = settlement.New(store, gate, pay, custodian, proof.AlwaysValid(), everyWorkerVerified{}, log, logger, settlement.Config{})
	registry := workers.NewRegistry(store, proof.AlwaysValid(), bus, logger)
	ops := operators.NewService(operators.NewMemoryRepository(), logger)

	r := gin.New()
	r.Use(handler.Idempotency(handler.NewMemoryIdempotencyStore(time.Hour), logger))
	v1 := r.Group("/api/v1")
	handler.NewComplianceHandler(gate, tokens, logger).Register(v1)
	handler.NewTrustPoolHandler(custodian, tokens, logger).Register(v1)
	handler.NewPayrollHandler(pay, tokens, logger).Register(v1)
	handler.NewSettlementHandler(engine, tokens, logger).Register(v1)
	handler.NewWorkerHandler(registry, tokens, logger).Register(v1)
	handler.NewBridgeHandler(enforcer, tokens, logger).Register(v1)
	handler.NewAuditHandler(log, logger).Register(v1)
	if tokens != nil {
		handler.NewAuthHandler(ops, tokens, logger).Register(v1)
	}

	return &testServer{router: r, log: log, mem: mem, tokens: tokens, ops: ops}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (s *testServer) bearer(t *testing.T, role identity.Role) string {
	t.Helper()
	tok, err := s.tokens.Issue("op-"+string(role), string(role)+"-desk", role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
}

// expect performs the request and fails unless it answers with want.
func (s *testServer) expect(t *testing.T, want int, method, path string, body any, headers ...string) map[string]any {
	t.Helper()
	w, resp := s.do(t, method, path, body, headers...)
	wantStatus(t, w, want)
	return resp
}

func errForCode(code string) error {
	switch code {
	case "not_found":
		return model.ErrNotFound
	case "invalid_amount":
		return model.ErrInvalidAmount
	case "insufficient_balance":
		return model.ErrInsufficientBalance
	case "proof_invalid":
		return model.ErrProofInvalid
	case "unauthorized":
		return model.ErrUnauthorized
	case "already_processed":
		return model.ErrAlreadyProcessed
	case "policy_violation":
		return model.ErrPolicyViolation
	case "transfer_failed":
		return model.ErrTransferFailed
	}
	return errors.New(code)
}
