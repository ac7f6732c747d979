package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"invoicely/backend/internal/kv"
)

// Store is a Postgres-backed kv.Store. Scalars and lists share a single
// kv_entries table, one row per list element keyed by (key, ordinal).
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        text NOT NULL,
			ordinal    int  NOT NULL DEFAULT 0,
			value      text NOT NULL,
			is_list    boolean NOT NULL DEFAULT false,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (key, ordinal)
		)
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND is_list = false AND ordinal = 0
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, ordinal, value, is_list, updated_at)
		VALUES ($1, 0, $2, false, now())
		ON CONFLICT (key, ordinal)
		DO UPDATE SET value = EXCLUDED.value, is_list = false, updated_at = now()
	`, key, value)
	return err
}

func (s *Store) GetList(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND is_list = true
		ORDER BY ordinal
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0, 32)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) SetList(ctx context.Context, key string, values []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return err
	}
	for i, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (key, ordinal, value, is_list, updated_at)
			VALUES ($1, $2, $3, true, now())
		`, key, i, value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}
