package sqlite

import (
	"context"
	"fmt"
	"time"
)

// Summary describes what the cache holds.
type Summary struct {
	Regular     int        `json:"regular"`
	Retake      int        `json:"retake"`
	Snapshots   int        `json:"availability_snapshots"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

// Summary counts cached courses and reports the most recent refresh.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var (
		out  Summary
		last *int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN type = 'regular' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'retake' THEN 1 ELSE 0 END), 0),
    MAX(updated_at)
FROM courses`).Scan(&out.Regular, &out.Retake, &last)
	if err != nil {
		return out, fmt.Errorf("summarize courses: %w", err)
	}
	if last != nil && *last > 0 {
		t := fromMillis(*last)
		out.LastRefresh = &t
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT checked_at) FROM course_availability`,
	).Scan(&out.Snapshots); err != nil {
		return out, fmt.Errorf("count snapshots: %w", err)
	}
	return out, nil
}

// Clear removes every cached row.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"courses", "course_schedules", "enrollment_records", "course_availability", "tasks"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
