package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// RecordEnrollment appends one enrollment attempt.
func (s *Store) RecordEnrollment(ctx context.Context, record portal.EnrollmentRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO enrollment_records (course_id, jx0404id, action, status, message, timestamp)
VALUES (?, ?, ?, ?, ?, ?)`,
		record.CourseID, record.ClassID, string(record.Action), record.Status, record.Message, millis(ts),
	); err != nil {
		return fmt.Errorf("insert enrollment record: %w", err)
	}
	return nil
}

// EnrollmentHistory lists records from the last days, newest first. A
// non-positive days returns everything.
func (s *Store) EnrollmentHistory(ctx context.Context, days int) ([]portal.EnrollmentRecord, error) {
	var cutoff int64
	if days > 0 {
		cutoff = millis(s.now().Add(-time.Duration(days) * 24 * time.Hour))
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, course_id, jx0404id, action, status, message, timestamp
FROM enrollment_records WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query enrollment history: %w", err)
	}
	defer rows.Close()

	var out []portal.EnrollmentRecord
	for rows.Next() {
		var (
			rec    portal.EnrollmentRecord
			action string
			ts     int64
		)
		if err := rows.Scan(&rec.ID, &rec.CourseID, &rec.ClassID, &action, &rec.Status, &rec.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan enrollment record: %w", err)
		}
		rec.Action = portal.EnrollmentAction(action)
		rec.Timestamp = fromMillis(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EnrollmentStats counts records by status.
func (s *Store) EnrollmentStats(ctx context.Context) (portal.EnrollmentStats, error) {
	stats := portal.EnrollmentStats{ByStatus: map[string]int{}}
	rows, err := s.db.QueryContext(ctx, `
SELECT status, COUNT(*), MAX(timestamp) FROM enrollment_records GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("query enrollment stats: %w", err)
	}
	defer rows.Close()

	var last int64
	for rows.Next() {
		var (
			status string
			count  int
			maxTS  int64
		)
		if err := rows.Scan(&status, &count, &maxTS); err != nil {
			return stats, fmt.Errorf("scan enrollment stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		if maxTS > last {
			last = maxTS
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if last > 0 {
		t := fromMillis(last)
		stats.Last = &t
	}
	return stats, nil
}
