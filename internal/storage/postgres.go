package storage

import (
	"context"
	"time"

	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// DB is the query surface shared by *pgxpool.Pool and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pingRetries = 5

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	profile_picture TEXT,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	deleted_at      TIMESTAMPTZ,
	privacy         JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_locations (
	user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	accuracy   DOUBLE PRECISION,
	is_sharing BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_user_locations_fresh
	ON user_locations (updated_at) WHERE is_sharing;
`

// NewPostgresPool connects, waits for the database to answer and applies the schema.
func NewPostgresPool(ctx context.Context, url string, log logger.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres pool")
	}

	if err := waitForDB(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	return pool, nil
}

func waitForDB(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	var err error
	for attempt := 1; attempt <= pingRetries; attempt++ {
		if err = pool.Ping(ctx); err == nil {
			log.Info("Database connection successful")
			return nil
		}

		wait := time.Duration(attempt) * 200 * time.Millisecond
		log.Warn("Database ping failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		if attempt < pingRetries {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return errors.Wrapf(err, "postgres unreachable after %d attempts", pingRetries)
}
