package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
)

const defaultLockTimeout = 30 * time.Second

// PostgresIdempotencyStore keeps idempotency keys in sale_idempotency_keys.
// A key still marked processing after lockTimeout is treated as abandoned
// and may be taken over by the next request.
type PostgresIdempotencyStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

type idemRow struct {
	Status     int       `db:"status_code"`
	Body       []byte    `db:"response_body"`
	CreatedAt  time.Time `db:"created_at"`
	Processing bool      `db:"processing"`
}

func NewPostgresIdempotencyStore(ctx context.Context, db *sqlx.DB, lockTimeout time.Duration) (*PostgresIdempotencyStore, error) {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	store := &PostgresIdempotencyStore{db: db, lockTimeout: lockTimeout}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_idempotency_keys (key, processing, locked_at, created_at)
		VALUES ($1, true, $2, $2)
		ON CONFLICT (key) DO UPDATE SET locked_at = EXCLUDED.locked_at
		WHERE sale_idempotency_keys.processing AND sale_idempotency_keys.locked_at < $3
	`, key, now, now.Add(-s.lockTimeout))
	if err != nil {
		logger.LogError(ctx, err, "Idempotency lock failed", "key", key)
		return nil, false
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, false
	}

	var row idemRow
	err = s.db.GetContext(ctx, &row, `
		SELECT status_code, response_body, created_at, processing
		FROM sale_idempotency_keys
		WHERE key = $1
	`, key)
	if err != nil {
		logger.LogError(ctx, err, "Idempotency lookup failed", "key", key)
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     row.Status,
		Body:       row.Body,
		CreatedAt:  row.CreatedAt,
		Processing: row.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sale_idempotency_keys
		SET status_code = $2, response_body = $3, processing = false
		WHERE key = $1
	`, key, status, body)
	if err != nil {
		logger.LogError(ctx, err, "Idempotency save failed", "key", key)
	}
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sale_idempotency_keys WHERE key = $1 AND processing`, key); err != nil {
		logger.LogError(ctx, err, "Idempotency unlock failed", "key", key)
	}
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sale_idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			locked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sale_idempotency_keys_created_at_idx ON sale_idempotency_keys (created_at)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure idempotency schema: %w", err)
		}
	}
	return nil
}

// Cleanup drops finished keys older than olderThan.
func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sale_idempotency_keys WHERE created_at < $1 AND NOT processing`, cutoff)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Debug("Idempotency keys cleaned", "count", n)
	}
	return nil
}

var _ middleware.IdempotencyStore = (*PostgresIdempotencyStore)(nil)
