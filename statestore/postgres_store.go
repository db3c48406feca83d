package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStateStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresStateStore(ctx context.Context, config config.PostgresStateStoreConfig) (*PostgresStateStore, error) {
	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect state store: %w", err)
	}
	table := config.Table
	if table == "" {
		table = "sync_state"
	}
	s := &PostgresStateStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStateStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table))
	if err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (s *PostgresStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT value FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table,
	), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *PostgresStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`, s.table,
	), key, value, expiresAt(ttl))
	return err
}

func (s *PostgresStateStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	if old == "" {
		// An expired row counts as absent.
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %[1]s (key, value, expires_at, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()
			WHERE %[1]s.expires_at IS NOT NULL AND %[1]s.expires_at <= now()`, s.table,
		), key, new, expiresAt(ttl))
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET value = $3, expires_at = $4, updated_at = now()
		WHERE key = $1 AND value = $2 AND (expires_at IS NULL OR expires_at > now())`, s.table,
	), key, old, new, expiresAt(ttl))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStateStore) CompareAndDelete(ctx context.Context, key, old string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1 AND value = $2`, s.table), key, old)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
	return err
}

func (s *PostgresStateStore) Close() error {
	s.pool.Close()
	return nil
}
