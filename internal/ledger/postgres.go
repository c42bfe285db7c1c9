package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// PostgresStore persists records in the ledger_records table.
// See migrations/001_ledger.up.sql.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Get implements Storage.
func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM ledger_records WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put implements Storage.
func (p *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := p.pool.Exec(ctx, upsertRecord, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete implements Storage.
func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM ledger_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Scan implements Scanner.
func (p *PostgresStore) Scan(ctx context.Context, prefix string) ([]Item, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM ledger_records WHERE starts_with(key, $1) ORDER BY key ASC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update implements Updater. The read and write run in one transaction
// holding a transaction-scoped advisory lock derived from the key, so
// instances sharing the database serialise on the same subject only.
func (p *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var old []byte
	found := true
	err = tx.QueryRow(ctx, `SELECT value FROM ledger_records WHERE key = $1`, key).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
	} else if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}

	value, err := fn(old, found)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, upsertRecord, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}

	p.logger.Debug("ledger record updated", zap.String("key", key))
	return nil
}

const upsertRecord = `
	INSERT INTO ledger_records (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
