package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is matched by errors.Is for any 404 response.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("settlement API %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("settlement API %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404s.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is the settlement SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	autoIdem   bool

	mu    sync.RWMutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a session token obtained elsewhere.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// WithIdempotency sends a generated Idempotency-Key with every POST that
// has no key pinned through WithIdempotencyKey.
func WithIdempotency() Option {
	return func(c *Client) error {
		c.autoIdem = true
		return nil
	}
}

type idemKey struct{}

// WithIdempotencyKey pins the Idempotency-Key sent by POSTs made with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idemKey{}, key)
}

// New creates a Client for the service at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the session token the client currently sends.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ── Operators ───────────────────────────────────────────────────────────────

// Login exchanges operator credentials for a session token and keeps it.
func (c *Client) Login(ctx context.Context, name, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"name": name, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return &out, nil
}

// CreateOperator creates an operator account. Requires the admin role.
func (c *Client) CreateOperator(ctx context.Context, name, password, role string) (*Operator, error) {
	var out Operator
	body := map[string]string{"name": name, "password": password, "role": role}
	return &out, c.call(ctx, http.MethodPost, "/operators", body, &out)
}

// ── Compliance ──────────────────────────────────────────────────────────────

// Standing returns an employer's account and threshold standing.
func (c *Client) Standing(ctx context.Context, employerID string) (*Standing, error) {
	var out Standing
	return &out, c.call(ctx, http.MethodGet, "/employers/"+url.PathEscape(employerID), nil, &out)
}

// CheckCompliance reports whether the employer is compliant.
func (c *Client) CheckCompliance(ctx context.Context, employerID string) (bool, error) {
	var out struct {
		Compliant bool `json:"compliant"`
	}
	err := c.call(ctx, http.MethodGet, "/employers/"+url.PathEscape(employerID)+"/compliance", nil, &out)
	return out.Compliant, err
}

// RecordTaxPayment records a tax payment and returns the new total.
func (c *Client) RecordTaxPayment(ctx context.Context, employerID string, amount int64) (int64, error) {
	var out struct {
		TaxesPaid int64 `json:"taxes_paid"`
	}
	err := c.call(ctx, http.MethodPost, "/employers/"+url.PathEscape(employerID)+"/tax-payments",
		map[string]int64{"amount": amount}, &out)
	return out.TaxesPaid, err
}

// EnforcePenalty applies the penalty to a non-compliant employer.
func (c *Client) EnforcePenalty(ctx context.Context, employerID string) (*PenaltyResult, error) {
	var out PenaltyResult
	return &out, c.call(ctx, http.MethodPost, "/employers/"+url.PathEscape(employerID)+"/penalty", nil, &out)
}

// UpdatePayrollFunding sets the employer's payroll funds.
func (c *Client) UpdatePayrollFunding(ctx context.Context, employerID string, funds uint64) error {
	return c.call(ctx, http.MethodPut, "/employers/"+url.PathEscape(employerID)+"/funding",
		map[string]uint64{"funds": funds}, nil)
}

// ── Trust pool ──────────────────────────────────────────────────────────────

// Balance returns a worker's trust pool record.
func (c *Client) Balance(ctx context.Context, workerID string) (*TrustPoolRecord, error) {
	var out TrustPoolRecord
	return &out, c.call(ctx, http.MethodGet, "/trust-pool/"+url.PathEscape(workerID), nil, &out)
}

// Contribute adds amount to a worker's trust pool balance.
func (c *Client) Contribute(ctx context.Context, workerID string, amount int64) (*TrustPoolRecord, error) {
	var out TrustPoolRecord
	return &out, c.call(ctx, http.MethodPost, "/trust-pool/"+url.PathEscape(workerID)+"/contributions",
		map[string]int64{"amount": amount}, &out)
}

// VerifyKYC records a KYC attestation for a child identity.
func (c *Client) VerifyKYC(ctx context.Context, id string) (*KYCRecord, error) {
	var out KYCRecord
	return &out, c.call(ctx, http.MethodPost, "/kyc/"+url.PathEscape(id), nil, &out)
}

// RevokeKYC revokes a KYC attestation.
func (c *Client) RevokeKYC(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/kyc/"+url.PathEscape(id), nil, nil)
}

// IsKYCVerified reports whether id currently holds a KYC attestation.
func (c *Client) IsKYCVerified(ctx context.Context, id string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	err := c.call(ctx, http.MethodGet, "/kyc/"+url.PathEscape(id), nil, &out)
	return out.Verified, err
}

// OpenApproval starts collecting approvers for a quorum withdrawal.
func (c *Client) OpenApproval(ctx context.Context, workerID string, amount int64) (*Approval, error) {
	var out Approval
	body := map[string]any{"worker_id": workerID, "amount": amount}
	return &out, c.call(ctx, http.MethodPost, "/approvals", body, &out)
}

// Approve adds an approver to an open approval. When the server enforces
// auth the approver is the token's operator and approverID may be empty.
func (c *Client) Approve(ctx context.Context, approvalID, approverID string) (*ApprovalStatus, error) {
	var out ApprovalStatus
	return &out, c.call(ctx, http.MethodPost, "/approvals/"+url.PathEscape(approvalID)+"/approve",
		map[string]string{"approver_id": approverID}, &out)
}

// Approval returns an approval and whether its quorum is complete.
func (c *Client) Approval(ctx context.Context, approvalID string) (*ApprovalStatus, error) {
	var out ApprovalStatus
	return &out, c.call(ctx, http.MethodGet, "/approvals/"+url.PathEscape(approvalID), nil, &out)
}

// ── Payroll ─────────────────────────────────────────────────────────────────

// AssignPayroll assigns wages from an employer to a worker.
func (c *Client) AssignPayroll(ctx context.Context, workerID, employerID string, amount int64) (*PayrollEntry, error) {
	var out PayrollEntry
	body := map[string]any{"worker_id": workerID, "employer_id": employerID, "amount": amount}
	return &out, c.call(ctx, http.MethodPost, "/payroll", body, &out)
}

// PayrollEntry returns a worker's payroll entry.
func (c *Client) PayrollEntry(ctx context.Context, workerID string) (*PayrollEntry, error) {
	var out PayrollEntry
	return &out, c.call(ctx, http.MethodGet, "/payroll/"+url.PathEscape(workerID), nil, &out)
}

// PendingPayroll lists unprocessed payroll entries.
func (c *Client) PendingPayroll(ctx context.Context) ([]PayrollEntry, error) {
	var out struct {
		Entries []PayrollEntry `json:"entries"`
	}
	err := c.call(ctx, http.MethodGet, "/payroll/pending", nil, &out)
	return out.Entries, err
}

// ── Settlement ──────────────────────────────────────────────────────────────

// Decide asks for a commitment decision.
func (c *Client) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	var out Decision
	return &out, c.call(ctx, http.MethodPost, "/settlement/decide", req, &out)
}

// SettlePayroll settles a worker's pending payroll entry.
func (c *Client) SettlePayroll(ctx context.Context, req PayrollRequest) (*Decision, error) {
	var out Decision
	return &out, c.call(ctx, http.MethodPost, "/settlement/payroll", req, &out)
}

// SettleBatch settles several payroll entries independently.
func (c *Client) SettleBatch(ctx context.Context, reqs []PayrollRequest) ([]BatchResult, error) {
	var out struct {
		Results []BatchResult `json:"results"`
	}
	err := c.call(ctx, http.MethodPost, "/settlement/payroll/batch",
		map[string]any{"requests": reqs}, &out)
	return out.Results, err
}

// SettleWithdrawal settles a trust pool withdrawal.
func (c *Client) SettleWithdrawal(ctx context.Context, req WithdrawalRequest) (*Decision, error) {
	var out Decision
	return &out, c.call(ctx, http.MethodPost, "/settlement/withdrawals", req, &out)
}

// Commitment returns the stored commitment root for a contract.
func (c *Client) Commitment(ctx context.Context, contractID string) (string, error) {
	var out struct {
		Root string `json:"root"`
	}
	err := c.call(ctx, http.MethodGet, "/settlement/commitments/"+url.PathEscape(contractID), nil, &out)
	return out.Root, err
}

// UpdateCommitment stores the commitment root for a contract.
func (c *Client) UpdateCommitment(ctx context.Context, contractID, root string) error {
	return c.call(ctx, http.MethodPut, "/settlement/commitments/"+url.PathEscape(contractID),
		map[string]string{"root": root}, nil)
}

// Network returns the service's view of the ledger network.
func (c *Client) Network(ctx context.Context) (*NetworkStatus, error) {
	var out NetworkStatus
	return &out, c.call(ctx, http.MethodGet, "/settlement/network", nil, &out)
}

// UpdateNetwork records a network observation.
func (c *Client) UpdateNetwork(ctx context.Context, gasFee uint64, latency time.Duration) (*NetworkStatus, error) {
	var out NetworkStatus
	body := map[string]any{"gas_fee": gasFee, "latency_ms": latency.Milliseconds()}
	return &out, c.call(ctx, http.MethodPut, "/settlement/network", body, &out)
}

// ── Workers and audit ───────────────────────────────────────────────────────

// RegisterWorker registers a worker identity with its proofs.
func (c *Client) RegisterWorker(ctx context.Context, req RegisterWorkerRequest) (*Worker, error) {
	var out Worker
	return &out, c.call(ctx, http.MethodPost, "/workers", req, &out)
}

// Worker returns a registered worker.
func (c *Client) Worker(ctx context.Context, id string) (*Worker, error) {
	var out Worker
	return &out, c.call(ctx, http.MethodGet, "/workers/"+url.PathEscape(id), nil, &out)
}

// AuditOverview returns the audit chain length and head hash.
func (c *Client) AuditOverview(ctx context.Context) (*AuditOverview, error) {
	var out AuditOverview
	return &out, c.call(ctx, http.MethodGet, "/audit", nil, &out)
}

// VerifyAudit asks the service to re-verify the audit chain. A broken
// chain is reported as (false, nil).
func (c *Client) VerifyAudit(ctx context.Context) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.call(ctx, http.MethodGet, "/audit/verify", nil, &out)
	return out.Valid, err
}

// AuditEntries returns up to limit entries starting at index from.
func (c *Client) AuditEntries(ctx context.Context, from, limit int) ([]AuditEntry, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Entries []AuditEntry `json:"entries"`
	}
	err := c.call(ctx, http.MethodGet, "/audit/entries?"+q.Encode(), nil, &out)
	return out.Entries, err
}

// call sends a JSON request to /api/v1 + path and decodes the response
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		if key, ok := ctx.Value(idemKey{}).(string); ok && key != "" {
			req.Header.Set("Idempotency-Key", key)
		} else if c.autoIdem {
			req.Header.Set("Idempotency-Key", uuid.NewString())
		}
	}

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return nil, apiErr
	}
	return body, nil
}
