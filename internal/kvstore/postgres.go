package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vaultx/internal/infra"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vaultx_kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores values in a shared table so several API replicas see the
// same history and theme.
type Postgres struct {
	db     infra.SQLExecutor
	closer func()
}

// NewPostgres ensures the table exists. The executor is usually an
// infra.SQLRunner wrapping a pgx pool.
func NewPostgres(ctx context.Context, db infra.SQLExecutor) (*Postgres, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("kvstore: migrate postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(ctx, `SELECT value FROM vaultx_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO vaultx_kv (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}

var _ Store = (*Postgres)(nil)
