package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// CreateTask inserts a new task.
func (s *Store) CreateTask(ctx context.Context, task portal.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	created := task.Created
	if created.IsZero() {
		created = s.now()
	}
	updated := task.Updated
	if updated.IsZero() {
		updated = created
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (id, kind, course_id, course_name, status, message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.Kind), task.CourseID, task.CourseName, string(task.Status), task.Message,
		millis(created), millis(updated),
	); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask sets a task's status and message.
func (s *Store) UpdateTask(ctx context.Context, id string, status portal.TaskStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, millis(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return portal.ErrTaskNotFound
	}
	return nil
}

const taskColumns = `id, kind, course_id, course_name, status, message, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (portal.Task, error) {
	var (
		t                portal.Task
		kind, status     string
		created, updated int64
	)
	if err := row.Scan(&t.ID, &kind, &t.CourseID, &t.CourseName, &status, &t.Message, &created, &updated); err != nil {
		return portal.Task{}, err
	}
	t.Kind = portal.TaskKind(kind)
	t.Status = portal.TaskStatus(status)
	t.Created = fromMillis(created)
	t.Updated = fromMillis(updated)
	return t, nil
}

// Task returns one task or portal.ErrTaskNotFound.
func (s *Store) Task(ctx context.Context, id string) (portal.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return portal.Task{}, portal.ErrTaskNotFound
	}
	if err != nil {
		return portal.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Tasks lists the most recent tasks.
func (s *Store) Tasks(ctx context.Context, limit int) ([]portal.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []portal.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
