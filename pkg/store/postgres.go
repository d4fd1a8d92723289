package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS visitor_state (
	visitor_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (visitor_id, key)
)`

// PostgresStore persists visitor state on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with the given DSN and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Get(ctx context.Context, visitorID, key string) (string, error) {
	const query = `SELECT value FROM visitor_state WHERE visitor_id = $1 AND key = $2`
	var value string
	if err := p.pool.QueryRow(ctx, query, visitorID, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, visitorID, key, value string) error {
	const query = `INSERT INTO visitor_state (visitor_id, key, value, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (visitor_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := p.pool.Exec(ctx, query, visitorID, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, visitorID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	const query = `DELETE FROM visitor_state WHERE visitor_id = $1 AND key = ANY($2)`
	if _, err := p.pool.Exec(ctx, query, visitorID, keys); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
