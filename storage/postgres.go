package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/oksnap/oksnap/config"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS kv_records (
	record_key    TEXT PRIMARY KEY,
	count         INTEGER NOT NULL DEFAULT 0,
	date          TEXT,
	level         TEXT,
	bonus_applied BOOLEAN NOT NULL DEFAULT FALSE,
	reset_time    TIMESTAMPTZ,
	expires_at    TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore implements Store against a directly connected Postgres
// database, e.g. a Supabase project's connection string instead of its
// REST endpoint.
type PostgresStore struct {
	db *sqlx.DB
}

type pgRow struct {
	RecordKey    string         `db:"record_key"`
	Count        int            `db:"count"`
	Date         sql.NullString `db:"date"`
	Level        sql.NullString `db:"level"`
	BonusApplied bool           `db:"bonus_applied"`
	ResetTime    sql.NullTime   `db:"reset_time"`
}

// InitPostgres connects and ensures the kv_records table exists.
func InitPostgres(cfg config.AppConfig) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(pgSchema); err != nil {
		return nil, fmt.Errorf("ensure kv_records table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	var row pgRow
	err := s.db.GetContext(ctx, &row,
		`SELECT record_key, count, date, level, bonus_applied, reset_time FROM kv_records WHERE record_key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec := Record{
		Count:        row.Count,
		Date:         row.Date.String,
		Level:        row.Level.String,
		BonusApplied: row.BonusApplied,
	}
	if row.ResetTime.Valid {
		rec.ResetTime = row.ResetTime.Time
	}
	return &rec, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, rec *Record, expiresAt time.Time) error {
	var resetTime, expires interface{}
	if !rec.ResetTime.IsZero() {
		resetTime = rec.ResetTime
	}
	if !expiresAt.IsZero() {
		expires = expiresAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (record_key, count, date, level, bonus_applied, reset_time, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (record_key) DO UPDATE SET
			count = EXCLUDED.count,
			date = EXCLUDED.date,
			level = EXCLUDED.level,
			bonus_applied = EXCLUDED.bonus_applied,
			reset_time = EXCLUDED.reset_time,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		key, rec.Count, rec.Date, rec.Level, rec.BonusApplied, resetTime, expires)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE record_key = $1`, key)
	return err
}
