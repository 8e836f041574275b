package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// SaveAvailability stores one row per teaching class, or a single summary row
// when the course has none.
func (s *Store) SaveAvailability(ctx context.Context, avail portal.Availability) error {
	checked := avail.CheckedAt
	if checked.IsZero() {
		checked = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
INSERT INTO course_availability
    (course_id, remaining_slots, total_slots, jx0404id, teacher, class_time, location, checked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if len(avail.Classes) == 0 {
		if _, err := tx.ExecContext(ctx, query,
			avail.CourseID, avail.TotalRemaining, avail.TotalRemaining, "", "", "", "", millis(checked),
		); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}
	for _, c := range avail.Classes {
		if _, err := tx.ExecContext(ctx, query,
			avail.CourseID, c.Remaining, avail.TotalRemaining, c.ID, c.Teacher, c.Time, c.Location, millis(checked),
		); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestAvailability rebuilds the most recent snapshot of a course.
func (s *Store) LatestAvailability(ctx context.Context, courseID string) (portal.Availability, error) {
	var latest *int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(checked_at) FROM course_availability WHERE course_id = ?`, courseID,
	).Scan(&latest); err != nil {
		return portal.Availability{}, fmt.Errorf("latest availability: %w", err)
	}
	if latest == nil {
		return portal.Availability{}, portal.ErrNoAvailability
	}
	snapshots, err := s.snapshots(ctx, `
SELECT remaining_slots, total_slots, jx0404id, teacher, class_time, location, checked_at
FROM course_availability WHERE course_id = ? AND checked_at = ? ORDER BY id`, courseID, courseID, *latest)
	if err != nil {
		return portal.Availability{}, err
	}
	if len(snapshots) == 0 {
		return portal.Availability{}, portal.ErrNoAvailability
	}
	return snapshots[0], nil
}

// AvailabilityHistory returns the snapshots of a course from the last days,
// newest first.
func (s *Store) AvailabilityHistory(ctx context.Context, courseID string, days int) ([]portal.Availability, error) {
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.snapshots(ctx, `
SELECT remaining_slots, total_slots, jx0404id, teacher, class_time, location, checked_at
FROM course_availability WHERE course_id = ? AND checked_at >= ? ORDER BY checked_at DESC, id`,
		courseID, courseID, millis(cutoff))
}

// snapshots groups consecutive rows sharing checked_at into Availability values.
func (s *Store) snapshots(ctx context.Context, query, courseID string, args ...any) ([]portal.Availability, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	type group struct {
		checked int64
		total   int
		classes []portal.TeachingClass
	}
	var groups []*group
	for rows.Next() {
		var (
			class   portal.TeachingClass
			total   int
			checked int64
		)
		if err := rows.Scan(&class.Remaining, &total, &class.ID, &class.Teacher, &class.Time, &class.Location, &checked); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		if len(groups) == 0 || groups[len(groups)-1].checked != checked {
			groups = append(groups, &group{checked: checked, total: total})
		}
		if class.ID != "" {
			class.CourseID = courseID
			g := groups[len(groups)-1]
			g.classes = append(g.classes, class)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]portal.Availability, 0, len(groups))
	for _, g := range groups {
		avail := portal.NewAvailability(courseID, g.classes, fromMillis(g.checked))
		if len(g.classes) == 0 {
			avail.TotalRemaining = g.total
			avail.Available = g.total > 0
		}
		out = append(out, avail)
	}
	return out, nil
}
