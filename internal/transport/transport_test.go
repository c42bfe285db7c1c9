package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

var ctx = context.Background()

func payroll(amount uint64) transport.Transfer {
	return transport.Transfer{Reference: "r1", Recipient: "w1", SubjectID: "e1", Category: model.CategoryPayroll, Amount: amount}
}

func TestMemory_recordsAndFails(t *testing.T) {
	m := transport.NewMemory()

	r, err := m.ExecuteTransfer(ctx, payroll(100))
	require.NoError(t, err)
	assert.NotEmpty(t, r.TxHash)
	assert.EqualValues(t, 100, m.Total())

	boom := errors.New("ledger offline")
	m.FailNext(boom)
	_, err = m.ExecuteTransfer(ctx, payroll(50))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, m.Transfers(), 1)
}

func TestTransfer_Validate(t *testing.T) {
	assert.ErrorIs(t, payroll(0).Validate(), model.ErrInvalidAmount)

	tr := payroll(1)
	tr.Recipient = ""
	var valErr *model.ErrValidation
	assert.ErrorAs(t, tr.Validate(), &valErr)
}

func TestHTTP_submitAndConfirm(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transfers":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var tr transport.Transfer
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&tr))
			assert.Equal(t, model.CategoryPayroll, tr.Category)
			_ = json.NewEncoder(w).Encode(map[string]string{"tx_hash": "abc"})
		case r.Method == http.MethodGet && r.URL.Path == "/transactions/abc":
			confirmed := polls.Add(1) >= 2
			_ = json.NewEncoder(w).Encode(map[string]bool{"confirmed": confirmed})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := transport.NewHTTP(srv.URL, transport.WithBearerToken("tok"), transport.WithConfirmation(time.Millisecond, 5))
	r, err := h.ExecuteTransfer(ctx, payroll(10))
	require.NoError(t, err)
	assert.Equal(t, "abc", r.TxHash)
	assert.EqualValues(t, 2, polls.Load())
}

func TestHTTP_emptyTxHashIsUnconfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx_hash":""}`))
	}))
	defer srv.Close()

	_, err := transport.NewHTTP(srv.URL).ExecuteTransfer(ctx, payroll(10))
	assert.ErrorIs(t, err, transport.ErrUnconfirmed)
}

func TestHTTP_rejectsZeroAmountWithoutCalling(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called.Store(true) }))
	defer srv.Close()

	_, err := transport.NewHTTP(srv.URL).ExecuteTransfer(ctx, payroll(0))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.False(t, called.Load())
}

func TestHTTP_failedOnLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"tx_hash":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"failed":true}`))
	}))
	defer srv.Close()

	_, err := transport.NewHTTP(srv.URL).ExecuteTransfer(ctx, payroll(10))
	assert.ErrorIs(t, err, transport.ErrUnconfirmed)
}
