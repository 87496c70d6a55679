package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewPool parses url and connects a pool.
func NewPool(ctx context.Context, url string, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return pool, nil
}

// Schema creates the tables both stores use.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                  TEXT PRIMARY KEY,
	external_ref        TEXT NOT NULL UNIQUE,
	username            TEXT NOT NULL,
	email               TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	password_hash       TEXT NOT NULL DEFAULT '',
	email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
	password_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	is_registered       BOOLEAN NOT NULL DEFAULT FALSE,
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	is_logged_out       BOOLEAN NOT NULL DEFAULT FALSE,
	requires_reauth     BOOLEAN NOT NULL DEFAULT FALSE,
	last_login_at       TIMESTAMPTZ,
	last_logout_at      TIMESTAMPTZ,
	last_password_check TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (lower(username));
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email));

CREATE TABLE IF NOT EXISTS saved_accounts (
	account_id          TEXT NOT NULL,
	device_id           TEXT NOT NULL,
	device_name         TEXT NOT NULL DEFAULT '',
	platform            TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	os_version          TEXT NOT NULL DEFAULT '',
	app_version         TEXT NOT NULL DEFAULT '',
	biometric_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	quick_login_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	access_count        INTEGER NOT NULL DEFAULT 1,
	first_saved_at      TIMESTAMPTZ NOT NULL,
	last_accessed_at    TIMESTAMPTZ NOT NULL,
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	deactivated_at      TIMESTAMPTZ,
	PRIMARY KEY (account_id, device_id)
);
CREATE INDEX IF NOT EXISTS saved_accounts_device_idx ON saved_accounts (device_id, last_accessed_at DESC);
`

// Migrate applies Schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func inTx(ctx context.Context, db DB, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
