package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PNWBNW/Proven-National-Worker/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

type stub struct {
	mu      sync.Mutex
	auth    []string
	idemKey []string
}

func (s *stub) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.idemKey = append(s.idemKey, r.Header.Get("Idempotency-Key"))
}

func (s *stub) last() (auth, idem string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth[len(s.auth)-1], s.idemKey[len(s.idemKey)-1]
}

func newStub(t *testing.T) (*stub, *httptest.Server) {
	t.Helper()
	s := &stub{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct-horse-battery" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":    "tok-123",
			"operator": map[string]any{"id": "op-1", "name": body["name"], "role": "government"},
		})
	})

	mux.HandleFunc("/api/v1/settlement/payroll", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subject_id":  "w2",
			"inputs_hash": "abc",
			"outcome":     "reject",
			"reason":      "not processed: employer not compliant",
			"code":        "policy_violation",
			"kind":        "payroll",
			"audit_index": 4,
		})
	})

	mux.HandleFunc("/api/v1/trust-pool/w1/contributions", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		_ = json.NewEncoder(w).Encode(map[string]any{"worker_id": "w1", "total_contributed": 500})
	})

	mux.HandleFunc("/api/v1/trust-pool/ghost", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found", "code": "not_found"})
	})

	mux.HandleFunc("/api/v1/settlement/network", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		_ = json.NewEncoder(w).Encode(map[string]any{"observed": true, "healthy": false, "gas_fee": 150, "latency_ms": 40})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_rejectsBadURL(t *testing.T) {
	_, err := client.New("not a url")
	require.Error(t, err, "invalid base URL")
}

func TestLogin_storesToken(t *testing.T) {
	s, srv := newStub(t)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	res, err := c.Login(ctx, "gov-desk", "correct-horse-battery")
	require.NoError(t, err, "Login")
	assert.Equal(t, "government", res.Operator.Role)
	assert.Equal(t, "tok-123", c.Token())

	_, err = c.Network(ctx)
	require.NoError(t, err, "Network")
	auth, _ := s.last()
	assert.Equal(t, "Bearer tok-123", auth)
}

func TestLogin_invalidCredentials(t *testing.T) {
	_, srv := newStub(t)
	c := client.MustNew(srv.URL)

	_, err := c.Login(context.Background(), "gov-desk", "wrong")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.Empty(t, c.Token(), "failed login must not set a token")
}

func TestSettlePayroll_rejectIsNotAnError(t *testing.T) {
	_, srv := newStub(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))

	d, err := c.SettlePayroll(context.Background(), client.PayrollRequest{WorkerID: "w2"})
	require.NoError(t, err, "SettlePayroll")
	assert.Equal(t, client.OutcomeReject, d.Outcome)
	assert.Equal(t, "policy_violation", d.Code)
	assert.EqualValues(t, 4, d.AuditIndex)
}

func TestBalance_notFound(t *testing.T) {
	_, srv := newStub(t)
	c := client.MustNew(srv.URL)

	_, err := c.Balance(context.Background(), "ghost")
	require.ErrorIs(t, err, client.ErrNotFound)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestIdempotencyKeys(t *testing.T) {
	s, srv := newStub(t)
	ctx := context.Background()

	plain := client.MustNew(srv.URL)
	_, err := plain.Contribute(ctx, "w1", 500)
	require.NoError(t, err)
	_, idem := s.last()
	assert.Empty(t, idem, "no key expected without WithIdempotency")

	auto := client.MustNew(srv.URL, client.WithIdempotency())
	_, err = auto.Contribute(ctx, "w1", 500)
	require.NoError(t, err)
	_, first := s.last()
	_, err = auto.Contribute(ctx, "w1", 500)
	require.NoError(t, err)
	_, second := s.last()
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second, "generated keys should be unique")

	pinned := client.WithIdempotencyKey(ctx, "contribution-w1")
	_, err = auto.Contribute(pinned, "w1", 500)
	require.NoError(t, err)
	_, idem = s.last()
	assert.Equal(t, "contribution-w1", idem)

	_, err = auto.Network(pinned)
	require.NoError(t, err)
	_, idem = s.last()
	assert.Empty(t, idem, "GET must not carry an idempotency key")
}
