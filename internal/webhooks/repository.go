package webhooks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository provides persistence for subscriptions and deliveries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new webhook Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectSubscription = `SELECT id, operator_id, url, events, secret, active, created_at FROM webhook_subscriptions`

// Create inserts a new subscription.
func (r *Repository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_subscriptions (id, operator_id, url, events, secret, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.OperatorID, sub.URL, sub.Events, sub.Secret, sub.Active, sub.CreatedAt,
	)
	return err
}

// GetByID retrieves a subscription by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.db.QueryRow(ctx, selectSubscription+` WHERE id = $1`, id).Scan(
		&sub.ID, &sub.OperatorID, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByOperator returns all subscriptions owned by an operator.
func (r *Repository) ListByOperator(ctx context.Context, operatorID string) ([]*Subscription, error) {
	return r.list(ctx, selectSubscription+` WHERE operator_id = $1 ORDER BY created_at DESC`, operatorID)
}

// ListByEvent returns the active subscriptions listening for an event type.
func (r *Repository) ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error) {
	return r.list(ctx, selectSubscription+` WHERE active = true AND $1 = ANY(events) ORDER BY created_at`, eventType)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.OperatorID, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Delete removes a subscription.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery records a delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_id, event_type, status_code, attempt, success, error_message, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.SubscriptionID, d.EventID, d.EventType,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

// MemoryRepository keeps subscriptions in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription
	deliveries []*Delivery
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*Subscription)}
}

// Create implements the subscription store.
func (m *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

// GetByID implements the subscription store.
func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListByOperator implements the subscription store.
func (m *MemoryRepository) ListByOperator(_ context.Context, operatorID string) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool { return s.OperatorID == operatorID }), nil
}

// ListByEvent implements the subscription store.
func (m *MemoryRepository) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	return m.filter(func(s *Subscription) bool { return s.Active && slices.Contains(s.Events, eventType) }), nil
}

func (m *MemoryRepository) filter(keep func(*Subscription) bool) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Subscription
	for _, s := range m.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Delete implements the subscription store.
func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

// RecordDelivery implements the subscription store.
func (m *MemoryRepository) RecordDelivery(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()
	cp := *d
	m.deliveries = append(m.deliveries, &cp)
	return nil
}

// Deliveries returns every recorded delivery attempt.
func (m *MemoryRepository) Deliveries() []*Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Delivery(nil), m.deliveries...)
}
