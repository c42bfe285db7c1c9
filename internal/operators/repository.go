package operators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
)

// ErrNotFound is returned when an operator lookup finds no matching record.
var ErrNotFound = errors.New("operator not found")

// ErrDuplicateName is returned when an operator name is already taken.
var ErrDuplicateName = errors.New("operator name already taken")

// Repository stores operators in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts an operator, assigning its ID and creation time.
func (r *Repository) Create(ctx context.Context, op *Operator) error {
	op.ID = uuid.New()
	op.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO operators (id, name, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		op.ID, op.Name, string(op.Role), op.PasswordHash, op.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

// GetByName looks up an operator by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (*Operator, error) {
	var op Operator
	var role string
	err := r.db.QueryRow(ctx,
		`SELECT id, name, role, password_hash, created_at FROM operators WHERE name = $1`, name,
	).Scan(&op.ID, &op.Name, &role, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	op.Role = identity.Role(role)
	return &op, nil
}

// MemoryRepository is an in-process operator store for single-node
// deployments without PostgreSQL.
type MemoryRepository struct {
	mu     sync.RWMutex
	byName map[string]*Operator
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byName: make(map[string]*Operator)}
}

// Create implements the operator store.
func (r *MemoryRepository) Create(_ context.Context, op *Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[op.Name]; exists {
		return ErrDuplicateName
	}
	op.ID = uuid.New()
	op.CreatedAt = time.Now().UTC()
	cp := *op
	r.byName[op.Name] = &cp
	return nil
}

// GetByName implements the operator store.
func (r *MemoryRepository) GetByName(_ context.Context, name string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}
