package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP submits transfers to a settlement gateway and polls for
// confirmation of the returned transaction hash.
//
//	POST {base}/transfers            -> {"tx_hash": "..."}
//	GET  {base}/transactions/{hash}  -> {"confirmed": true, "confirmed_at": "..."}
type HTTP struct {
	base       string
	token      string
	httpClient *http.Client

	pollInterval time.Duration
	maxPolls     int
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient overrides the default client.
func WithHTTPClient(hc *http.Client) HTTPOption { return func(h *HTTP) { h.httpClient = hc } }

// WithBearerToken authenticates every gateway request.
func WithBearerToken(token string) HTTPOption { return func(h *HTTP) { h.token = token } }

// WithConfirmation sets how often and how many times confirmation is polled.
func WithConfirmation(interval time.Duration, polls int) HTTPOption {
	return func(h *HTTP) {
		h.pollInterval = interval
		h.maxPolls = polls
	}
}

// NewHTTP creates an HTTP transport for the gateway at base.
func NewHTTP(base string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		base:         strings.TrimRight(base, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		pollInterval: time.Second,
		maxPolls:     10,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

type statusResponse struct {
	Confirmed   bool      `json:"confirmed"`
	Failed      bool      `json:"failed"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ExecuteTransfer implements Transport.
func (h *HTTP) ExecuteTransfer(ctx context.Context, t Transfer) (Receipt, error) {
	if err := t.Validate(); err != nil {
		return Receipt{}, err
	}

	body, err := json.Marshal(t)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode transfer: %w", err)
	}
	var sub submitResponse
	if err := h.call(ctx, http.MethodPost, "/transfers", body, &sub); err != nil {
		return Receipt{}, fmt.Errorf("submit transfer: %w", err)
	}
	if sub.TxHash == "" {
		return Receipt{}, fmt.Errorf("%w: gateway returned empty tx hash", ErrUnconfirmed)
	}

	st, err := h.confirm(ctx, sub.TxHash)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		TxHash:      sub.TxHash,
		Reference:   t.Reference,
		Category:    t.Category,
		Amount:      t.Amount,
		ConfirmedAt: st.ConfirmedAt,
	}, nil
}

func (h *HTTP) confirm(ctx context.Context, txHash string) (*statusResponse, error) {
	path := "/transactions/" + url.PathEscape(txHash)
	for i := 0; i < h.maxPolls; i++ {
		var st statusResponse
		if err := h.call(ctx, http.MethodGet, path, nil, &st); err != nil {
			return nil, fmt.Errorf("confirm %s: %w", txHash, err)
		}
		if st.Failed {
			return nil, fmt.Errorf("%w: %s failed on ledger", ErrUnconfirmed, txHash)
		}
		if st.Confirmed {
			if st.ConfirmedAt.IsZero() {
				st.ConfirmedAt = time.Now().UTC()
			}
			return &st, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.pollInterval):
		}
	}
	return nil, fmt.Errorf("%w: %s still pending after %d polls", ErrUnconfirmed, txHash, h.maxPolls)
}

func (h *HTTP) call(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
