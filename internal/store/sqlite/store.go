// Package sqlite caches courses, availability, enrollment history and API
// tasks in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
)

//go:embed schema.sql
var schema string

// Store implements the portal storage interfaces on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ portal.CourseStore       = (*Store)(nil)
	_ portal.AvailabilityStore = (*Store)(nil)
	_ portal.EnrollmentStore   = (*Store)(nil)
	_ portal.TaskStore         = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

type courseDetails struct {
	Category1 string `json:"category1,omitempty"`
	Category2 string `json:"category2,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Schedule  string `json:"schedule,omitempty"`
}

// SaveCourses upserts courses and re-derives their schedule rows.
func (s *Store) SaveCourses(ctx context.Context, courses []portal.Course) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := millis(s.now())
	for _, c := range courses {
		if c.ID == "" {
			continue
		}
		keepSchedule := c.Schedule == ""
		if keepSchedule {
			prev, err := storedSchedule(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			c.Schedule = prev
		}
		details, err := json.Marshal(courseDetails{
			Category1: c.Category1,
			Category2: c.Category2,
			Kind:      c.Kind,
			Grade:     c.Grade,
			Schedule:  c.Schedule,
		})
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		updated := now
		if !c.UpdatedAt.IsZero() {
			updated = millis(c.UpdatedAt)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO courses (id, code, name, type, category, credits, details, url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    code = excluded.code,
    name = excluded.name,
    type = excluded.type,
    category = excluded.category,
    credits = excluded.credits,
    details = excluded.details,
    url = excluded.url,
    updated_at = excluded.updated_at`,
			c.ID, c.Code, c.Name, string(c.Type), c.Category1, c.Credits, string(details), c.URL, now, updated,
		); err != nil {
			return fmt.Errorf("upsert course %s: %w", c.ID, err)
		}

		if keepSchedule {
			continue
		}
		if err := replaceSchedules(ctx, tx, c.ID, c.Schedule); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveSchedule replaces the schedule text and slots of a cached course.
func (s *Store) SaveSchedule(ctx context.Context, courseID, schedule string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT details FROM courses WHERE id = ?`, courseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return portal.ErrCourseNotFound
	}
	if err != nil {
		return fmt.Errorf("get course details: %w", err)
	}
	var d courseDetails
	_ = json.Unmarshal([]byte(raw), &d)
	d.Schedule = schedule
	details, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET details = ? WHERE id = ?`, string(details), courseID); err != nil {
		return fmt.Errorf("update schedule %s: %w", courseID, err)
	}
	if err := replaceSchedules(ctx, tx, courseID, schedule); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func storedSchedule(ctx context.Context, tx *sql.Tx, courseID string) (string, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT details FROM courses WHERE id = ?`, courseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get course details: %w", err)
	}
	var d courseDetails
	_ = json.Unmarshal([]byte(raw), &d)
	return d.Schedule, nil
}

func replaceSchedules(ctx context.Context, tx *sql.Tx, courseID, schedule string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_schedules WHERE course_id = ?`, courseID); err != nil {
		return fmt.Errorf("clear schedules %s: %w", courseID, err)
	}
	for _, slot := range planner.ParseSchedule(schedule) {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO course_schedules (course_id, day_of_week, start_time, end_time, location)
VALUES (?, ?, ?, ?, ?)`,
			courseID, slot.Day, slot.Start, slot.End, slot.Location,
		); err != nil {
			return fmt.Errorf("insert schedule %s: %w", courseID, err)
		}
	}
	return nil
}

const courseColumns = `c.id, c.code, c.name, c.type, c.credits, c.details, c.url, c.updated_at`

func scanCourse(row interface{ Scan(...any) error }) (portal.Course, error) {
	var (
		c       portal.Course
		typ     string
		details string
		updated int64
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &typ, &c.Credits, &details, &c.URL, &updated); err != nil {
		return portal.Course{}, err
	}
	c.Type = portal.CourseType(typ)
	c.UpdatedAt = fromMillis(updated)
	var d courseDetails
	if err := json.Unmarshal([]byte(details), &d); err == nil {
		c.Category1, c.Category2, c.Kind, c.Grade, c.Schedule = d.Category1, d.Category2, d.Kind, d.Grade, d.Schedule
	}
	return c, nil
}

// Courses lists cached courses matching filter, ordered by type then name.
func (s *Store) Courses(ctx context.Context, filter portal.CourseFilter) ([]portal.Course, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "c.type = ?")
		args = append(args, string(filter.Type))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		where = append(where, "(c.name LIKE ? OR c.code LIKE ?)")
		like := "%" + kw + "%"
		args = append(args, like, like)
	}
	if filter.AvailableOnly {
		where = append(where, `EXISTS (
    SELECT 1 FROM course_availability a
    WHERE a.course_id = c.id
      AND a.total_slots > 0
      AND a.checked_at = (SELECT MAX(checked_at) FROM course_availability WHERE course_id = c.id))`)
	}
	query := "SELECT " + courseColumns + " FROM courses c"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.type, c.name, c.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []portal.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Course returns one cached course or portal.ErrCourseNotFound.
func (s *Store) Course(ctx context.Context, id string) (portal.Course, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses c WHERE c.id = ?", id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return portal.Course{}, portal.ErrCourseNotFound
	}
	if err != nil {
		return portal.Course{}, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// CourseSchedules returns the stored schedule slots of a course.
func (s *Store) CourseSchedules(ctx context.Context, courseID string) ([]planner.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT day_of_week, start_time, end_time, location
FROM course_schedules WHERE course_id = ? ORDER BY day_of_week, start_time`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []planner.Slot
	for rows.Next() {
		var slot planner.Slot
		if err := rows.Scan(&slot.Day, &slot.Start, &slot.End, &slot.Location); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}
