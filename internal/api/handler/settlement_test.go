package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
)

// Employer 3001 never paid taxes: the penalty lands and payroll is held.
func TestScenario_nonCompliantEmployer(t *testing.T) {
	s := newTestServer(t, false)

	resp := s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/employers/3001/penalty", nil)
	require.Equal(t, true, resp["applied"], resp)
	require.EqualValues(t, -5000, resp["taxes_paid"])

	resp = s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/employers/3001/compliance", nil)
	require.Equal(t, false, resp["compliant"])

	s.expect(t, http.StatusOK, http.MethodPut, "/api/v1/employers/3001/funding", map[string]any{"funds": 10000})
	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/payroll", map[string]any{
		"worker_id": "w-3001", "employer_id": "3001", "amount": 1200,
	})

	resp = s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/payroll", map[string]any{"worker_id": "w-3001"})
	require.Equal(t, "reject", resp["outcome"], resp)
	require.Equal(t, "not_compliant", resp["code"])
	assert.Empty(t, s.mem.Transfers(), "no funds may move for a non-compliant employer")

	resp = s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/payroll/w-3001", nil)
	assert.Equal(t, "pending", resp["status"])
}

// Employer 3002 paid taxes: payroll settles once and only once.
func TestScenario_compliantEmployer(t *testing.T) {
	s := newTestServer(t, false)

	s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/employers/3002/tax-payments", map[string]any{"amount": 15000})
	s.expect(t, http.StatusOK, http.MethodPut, "/api/v1/employers/3002/funding", map[string]any{"funds": 5000})
	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/payroll", map[string]any{
		"worker_id": "w-3002", "employer_id": "3002", "amount": 1200,
	})

	resp := s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/payroll", map[string]any{"worker_id": "w-3002"})
	require.Equal(t, "approve", resp["outcome"], resp)
	assert.EqualValues(t, 1200, s.mem.Total())

	resp = s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/payroll", map[string]any{"worker_id": "w-3002"})
	require.Equal(t, "reject", resp["outcome"], resp)
	require.Equal(t, "already_processed", resp["code"])

	_, resp = s.do(t, http.MethodGet, "/api/v1/employers/3002", nil)
	acct := resp["account"].(map[string]any)
	assert.EqualValues(t, 3800, acct["payroll_funds"])
}

// Worker w1 withdraws part of the pool after three co-workers approve.
func TestScenario_quorumWithdrawal(t *testing.T) {
	s := newTestServer(t, false)

	s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/trust-pool/w1/contributions", map[string]any{"amount": 500})

	resp := s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/approvals", map[string]any{"worker_id": "w1", "amount": 200})
	approvalID := resp["id"].(string)

	approvers := []string{"w2", "w3", "w4"}
	for _, a := range approvers[:2] {
		s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", map[string]any{"approver_id": a})
	}

	subject := proof.ApprovalSetSubject("w1", approvers)
	tree, err := proof.BuildTree([]string{subject})
	require.NoError(t, err)
	proofJSON, err := tree.ProveJSON(subject)
	require.NoError(t, err)
	s.expect(t, http.StatusOK, http.MethodPut, "/api/v1/settlement/commitments/quorum-w1", map[string]any{"root": tree.Root})

	withdrawal := map[string]any{"worker_id": "w1", "approval_id": approvalID, "proof": proofJSON}

	// Two of three approvals: held for quorum.
	resp = s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/withdrawals", withdrawal)
	require.Equal(t, "escalate", resp["outcome"], resp)
	require.Equal(t, "awaiting_quorum", resp["code"])

	resp = s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", map[string]any{"approver_id": "w4"})
	require.Equal(t, true, resp["complete"], resp)

	resp = s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/withdrawals", withdrawal)
	require.Equal(t, "approve", resp["outcome"], resp)

	resp = s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/trust-pool/w1", nil)
	assert.EqualValues(t, 300, resp["total_contributed"])
}

func TestSelfApproval_403(t *testing.T) {
	s := newTestServer(t, false)
	_, resp := s.do(t, http.MethodPost, "/api/v1/approvals", map[string]any{"worker_id": "w1", "amount": 10})

	resp = s.expect(t, http.StatusForbidden, http.MethodPost, "/api/v1/approvals/"+resp["id"].(string)+"/approve", map[string]any{"approver_id": "w1"})
	assert.Equal(t, "unauthorized", resp["code"])
}

func TestApprove_approverIsCallingOperator(t *testing.T) {
	s := newTestServer(t, true)
	custodian := s.bearer(t, identity.RoleCustodian)
	resp := s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/approvals",
		map[string]any{"worker_id": "w1", "amount": 10}, "Authorization", s.bearer(t, identity.RoleEmployer))
	path := "/api/v1/approvals/" + resp["id"].(string) + "/approve"

	resp = s.expect(t, http.StatusForbidden, http.MethodPost, path, map[string]any{"approver_id": "a2"}, "Authorization", custodian)
	assert.Equal(t, "unauthorized", resp["code"])

	// The same operator approving twice still counts once.
	for i := 0; i < 2; i++ {
		resp = s.expect(t, http.StatusOK, http.MethodPost, path, nil, "Authorization", custodian)
	}
	approval := resp["approval"].(map[string]any)
	assert.Equal(t, []any{"custodian-desk"}, approval["approvers"])
	assert.Equal(t, false, resp["complete"], "one operator must not complete a quorum")
}

func TestDecide_commitment(t *testing.T) {
	s := newTestServer(t, false)
	s.expect(t, http.StatusOK, http.MethodPut, "/api/v1/settlement/commitments/c1", map[string]any{"root": "root-a"})

	_, resp := s.do(t, http.MethodPost, "/api/v1/settlement/decide", map[string]any{"contract_id": "c1", "commitment": "root-a"})
	assert.Equal(t, "approve", resp["outcome"], resp)
	assert.Equal(t, "c1", resp["target"])

	_, resp = s.do(t, http.MethodPost, "/api/v1/settlement/decide", map[string]any{"contract_id": "c1", "commitment": "root-b"})
	assert.Equal(t, "reject", resp["outcome"], resp)
	assert.Equal(t, "undecided", resp["reason"])
}

func TestNetworkUpdateEscalates(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPut, "/api/v1/settlement/commitments/c1", map[string]any{"root": "root-a"})

	resp := s.expect(t, http.StatusOK, http.MethodPut, "/api/v1/settlement/network", map[string]any{"gas_fee": 150, "latency_ms": 20})
	require.Equal(t, false, resp["healthy"], resp)

	_, resp = s.do(t, http.MethodPost, "/api/v1/settlement/decide", map[string]any{"contract_id": "c1", "commitment": "root-a"})
	assert.Equal(t, "escalate", resp["outcome"], resp)
	assert.Equal(t, "network_unhealthy", resp["code"])
}

func TestSettleBatch(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPost, "/api/v1/employers/e1/tax-payments", map[string]any{"amount": 1})
	s.do(t, http.MethodPut, "/api/v1/employers/e1/funding", map[string]any{"funds": 100})
	s.do(t, http.MethodPost, "/api/v1/payroll", map[string]any{"worker_id": "a", "employer_id": "e1", "amount": 60})
	s.do(t, http.MethodPost, "/api/v1/payroll", map[string]any{"worker_id": "b", "employer_id": "e1", "amount": 60})

	resp := s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/settlement/payroll/batch", map[string]any{
		"requests": []map[string]any{{"worker_id": "a"}, {"worker_id": "b"}},
	})
	results := resp["results"].([]any)
	require.Len(t, results, 2)
	outcome := func(i int) any {
		return results[i].(map[string]any)["decision"].(map[string]any)["outcome"]
	}
	assert.Equal(t, "approve", outcome(0))
	// The second entry no longer fits the remaining funds.
	assert.Equal(t, "reject", outcome(1))
}

func TestBridgeCheck(t *testing.T) {
	s := newTestServer(t, false)

	_, resp := s.do(t, http.MethodPost, "/api/v1/bridge/check", map[string]any{
		"category": "payroll", "amount": 10, "recipient": "r",
	})
	assert.Equal(t, true, resp["allowed"], resp)

	_, resp = s.do(t, http.MethodPost, "/api/v1/bridge/check", map[string]any{
		"category": "pto_sick", "amount": 10, "recipient": "r",
	})
	assert.Equal(t, false, resp["allowed"], resp)
	assert.Equal(t, "policy_violation", resp["code"])
}

func TestInvalidAmount_400(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.expect(t, http.StatusBadRequest, http.MethodPost, "/api/v1/trust-pool/w1/contributions", map[string]any{"amount": 0})
	assert.Equal(t, "invalid_amount", resp["code"])

	s.expect(t, http.StatusNotFound, http.MethodGet, "/api/v1/trust-pool/nobody", nil)
}

func TestRegisterWorker(t *testing.T) {
	s := newTestServer(t, false)
	body := map[string]any{
		"id": "w9", "type": 1, "industry": "agriculture",
		"identity_proof": []byte("id"), "kyc_proof": []byte("kyc"),
	}
	resp := s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/workers", body)
	assert.Equal(t, true, resp["verified"], resp)

	s.expect(t, http.StatusBadRequest, http.MethodPost, "/api/v1/workers", body)
}
