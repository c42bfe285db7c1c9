package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-PNW-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// subscriptionRepo is the storage interface consumed by Service.
type subscriptionRepo interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOperator(ctx context.Context, operatorID string) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// Service manages subscriptions and delivers events to them. It is an
// events.Sink.
type Service struct {
	repo       subscriptionRepo
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	// delays[i] is the wait before attempt i+1.
	delays []time.Duration
	wg     sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(repo subscriptionRepo, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second, 25 * time.Second},
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays overrides the backoff schedule; the first element is
// the delay before the first attempt.
func (s *Service) SetRetryDelays(delays ...time.Duration) {
	s.delays = delays
}

// Subscribe creates a subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, operatorID string, req *CreateSubscriptionRequest) (*Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		OperatorID: operatorID,
		URL:        req.URL,
		Events:     req.Events,
		Secret:     secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription owned by operatorID.
func (s *Service) Unsubscribe(ctx context.Context, operatorID string, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.OperatorID != operatorID {
		return model.ErrUnauthorized
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOperator returns all subscriptions for an operator.
func (s *Service) ListByOperator(ctx context.Context, operatorID string) ([]*Subscription, error) {
	return s.repo.ListByOperator(ctx, operatorID)
}

// Publish implements events.Sink. Deliveries run in the background and
// outlive the caller's context.
func (s *Service) Publish(ctx context.Context, ev model.Event) error {
	subs, err := s.repo.ListByEvent(ctx, string(ev.Type))
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	body, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize event: %w", err)
	}

	bg := context.WithoutCancel(ctx)
	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub *Subscription) {
			defer s.wg.Done()
			s.deliver(bg, sub, ev, body)
		}(sub)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (s *Service) Wait() { s.wg.Wait() }

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, ev model.Event, body []byte) {
	signature := signPayload(body, sub.Secret)

	for attempt := 1; attempt <= len(s.delays); attempt++ {
		if d := s.delays[attempt-1]; d > 0 {
			time.Sleep(d)
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventID:        ev.ID,
			EventType:      string(ev.Type),
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}
		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
