package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore stores snapshot blobs in a PostgreSQL table. The table is
// configurable so the gateway can share a schema with other tooling:
//
//	CREATE TABLE wa_sessions (
//	    session_name TEXT PRIMARY KEY,
//	    data         BYTEA NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	)
type pgStore struct {
	pool    *pgxpool.Pool
	table   string
	session string
	data    string
	updated string
	timeout time.Duration
}

// PostgresConfig configures the PostgreSQL snapshot store.
type PostgresConfig struct {
	DSN            string
	TableInfo      TableInfo
	RequestTimeout time.Duration
	MaxConns       int32
}

// NewPostgres connects to PostgreSQL and verifies the connection.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	updated := cfg.TableInfo.UpdatedColumn
	if updated == "" {
		updated = "updated_at"
	}

	return &pgStore{
		pool:    pool,
		table:   pgx.Identifier{cfg.TableInfo.Table}.Sanitize(),
		session: pgx.Identifier{cfg.TableInfo.SessionColumn}.Sanitize(),
		data:    pgx.Identifier{cfg.TableInfo.DataColumn}.Sanitize(),
		updated: pgx.Identifier{updated}.Sanitize(),
		timeout: timeout,
	}, nil
}

func (s *pgStore) Close() {
	s.pool.Close()
}

func (s *pgStore) Exists(ctx context.Context, session string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, s.table, s.session)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, session).Scan(&exists); err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return exists, nil
}

// Save replaces the session's blob in a single upsert, so readers never see
// a half-written snapshot.
func (s *pgStore) Save(ctx context.Context, session, zipPath string) error {
	blob, err := os.ReadFile(zipPath)
	if err != nil {
		return fmt.Errorf("read snapshot file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, now())
		 ON CONFLICT (%s) DO UPDATE SET %s = $2, %s = now()`,
		s.table, s.session, s.data, s.updated, s.session, s.data, s.updated)
	if _, err := s.pool.Exec(ctx, query, session, blob); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *pgStore) Restore(ctx context.Context, session, zipPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, s.data, s.table, s.session)
	var blob []byte
	if err := s.pool.QueryRow(ctx, query, session).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	if err := os.WriteFile(zipPath, blob, 0o600); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, session string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, s.table, s.session)
	if _, err := s.pool.Exec(ctx, query, session); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
