package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// advisoryLockKey serialises appends across every engine instance sharing
// the database.
const advisoryLockKey = int64(2_024_061_101)

const selectEntry = `SELECT idx, timestamp, subject_id, action, actor, outcome, reason,
	code, target, inputs_hash, prev_hash, hash FROM audit_log`

// PostgresLog persists the audit chain in the audit_log table.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. The tail read and insert share one transaction
// holding the advisory lock.
func (l *PostgresLog) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	// Postgres keeps microseconds; truncate so the stored timestamp
	// re-hashes to the same value on Verify.
	entry := newEntry(prevIdx+1, time.Now().UTC().Truncate(time.Microsecond), rec, prevHash)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (idx, timestamp, subject_id, action, actor, outcome, reason,
			code, target, inputs_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.Index, entry.Timestamp, entry.SubjectID, entry.Action, entry.Actor,
		string(entry.Outcome), entry.Reason, entry.Code, entry.Target,
		entry.InputsHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
		zap.String("subject_id", entry.SubjectID),
	)
	return entry, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(l.pool.QueryRow(ctx, selectEntry+" WHERE idx = $1", index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %d: %w", index, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", index, err)
	}
	return e, nil
}

// Range implements Log.
func (l *PostgresLog) Range(ctx context.Context, from, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := l.pool.Query(ctx, selectEntry+" WHERE idx >= $1 ORDER BY idx ASC LIMIT $2", from, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Log. It streams every row in index order.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, selectEntry+" ORDER BY idx ASC")
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}
		if err := verifyChain(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var outcome string
	if err := row.Scan(
		&e.Index, &e.Timestamp, &e.SubjectID, &e.Action, &e.Actor, &outcome,
		&e.Reason, &e.Code, &e.Target, &e.InputsHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Outcome = model.Outcome(outcome)
	return e, nil
}
