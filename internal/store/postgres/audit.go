// Package postgres mirrors enrollment and availability audit rows into Postgres.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS enrollment_records (
	id BIGSERIAL PRIMARY KEY,
	course_id TEXT NOT NULL,
	jx0404id TEXT,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS course_availability (
	id BIGSERIAL PRIMARY KEY,
	course_id TEXT NOT NULL,
	remaining_slots INTEGER NOT NULL,
	total_slots INTEGER NOT NULL,
	jx0404id TEXT,
	checked_at TIMESTAMPTZ NOT NULL
);`

// AuditStore appends audit rows. It never reads them back.
type AuditStore struct {
	pool execCloser
}

var _ portal.EnrollmentRecorder = (*AuditStore)(nil)

// NewAuditStore connects to Postgres and creates the audit tables if needed.
func NewAuditStore(ctx context.Context, cfg Config) (*AuditStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &AuditStore{pool: pool}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewAuditStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAuditStoreWithPool(pool execCloser) (*AuditStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AuditStore{pool: pool}, nil
}

// EnsureSchema creates the audit tables.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *AuditStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordEnrollment inserts one enrollment attempt.
func (s *AuditStore) RecordEnrollment(ctx context.Context, record portal.EnrollmentRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("audit store is not configured")
	}
	if record.CourseID == "" {
		return fmt.Errorf("record course id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO enrollment_records (course_id, jx0404id, action, status, message, timestamp)
VALUES ($1,$2,$3,$4,$5,$6)`,
		record.CourseID,
		record.ClassID,
		string(record.Action),
		record.Status,
		record.Message,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert enrollment record: %w", err)
	}
	return nil
}

// RecordAvailability inserts one row per teaching class, or a single summary
// row when the course has no classes.
func (s *AuditStore) RecordAvailability(ctx context.Context, avail portal.Availability) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("audit store is not configured")
	}
	const query = `
INSERT INTO course_availability (course_id, remaining_slots, total_slots, jx0404id, checked_at)
VALUES ($1,$2,$3,$4,$5)`
	if len(avail.Classes) == 0 {
		if _, err := s.pool.Exec(ctx, query, avail.CourseID, avail.TotalRemaining, avail.TotalRemaining, "", avail.CheckedAt); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
		return nil
	}
	for _, class := range avail.Classes {
		if _, err := s.pool.Exec(ctx, query,
			avail.CourseID, class.Remaining, avail.TotalRemaining, class.ID, avail.CheckedAt,
		); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}
	return nil
}
