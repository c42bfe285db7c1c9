package webhooks_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/webhooks"
)

var ctx = context.Background()

func TestPublish_signedDeliveryWithRetry(t *testing.T) {
	var calls atomic.Int32
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(webhooks.SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	repo := webhooks.NewMemoryRepository()
	svc := webhooks.NewService(repo, zap.NewNop())
	svc.SetRetryDelays(0, time.Millisecond, time.Millisecond)

	sub, err := svc.Subscribe(ctx, "op-1", &webhooks.CreateSubscriptionRequest{
		URL:    srv.URL,
		Events: []string{string(model.EventInvalidBridgeAttempt)},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Publish(ctx, model.Event{ID: "e1", Type: model.EventInvalidBridgeAttempt, SubjectID: "w1"}))
	svc.Wait()

	require.EqualValues(t, 2, calls.Load(), "attempts")
	assert.True(t, webhooks.VerifySignature(gotBody, sub.Secret, gotSig), "delivered signature does not verify")
	ds := repo.Deliveries()
	require.Len(t, ds, 2)
	assert.False(t, ds[0].Success)
	assert.True(t, ds[1].Success)
}

func TestPublish_skipsOtherEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	_, _ = svc.Subscribe(ctx, "op-1", &webhooks.CreateSubscriptionRequest{
		URL: srv.URL, Events: []string{string(model.EventPayrollProcessed)},
	})

	_ = svc.Publish(ctx, model.Event{Type: model.EventContributionMade})
	svc.Wait()
	assert.Zero(t, calls.Load(), "unsubscribed event delivered")
}

func TestSubscribe_rejectsUnknownEvent(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	_, err := svc.Subscribe(ctx, "op-1", &webhooks.CreateSubscriptionRequest{
		URL: "https://example.com/hook", Events: []string{"payroll_reversed"},
	})
	var valErr *model.ErrValidation
	assert.ErrorAs(t, err, &valErr)
}

func TestUnsubscribe_ownership(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	sub, _ := svc.Subscribe(ctx, "op-1", &webhooks.CreateSubscriptionRequest{
		URL: "https://example.com/hook", Events: []string{string(model.EventFundsRedeemed)},
	})

	assert.ErrorIs(t, svc.Unsubscribe(ctx, "op-2", sub.ID), model.ErrUnauthorized, "foreign delete")
	assert.NoError(t, svc.Unsubscribe(ctx, "op-1", sub.ID), "owner delete")
	assert.ErrorIs(t, svc.Unsubscribe(ctx, "op-1", sub.ID), webhooks.ErrNotFound, "second delete")
}
