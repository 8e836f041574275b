// Package worker executes queued API tasks against the enrollment service.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
)

// Runner is the subset of the enrollment service a worker drives.
type Runner interface {
	Login(ctx context.Context) error
	RefreshCourses(ctx context.Context) (portal.CourseList, error)
	CheckByID(ctx context.Context, courseID string) (portal.Availability, error)
	Grab(ctx context.Context, courseID string, action portal.EnrollmentAction) (portal.SelectionResult, error)
}

// Worker consumes queue items and runs them one at a time.
type Worker struct {
	queue  portal.Queue
	tasks  portal.TaskStore
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue portal.Queue, tasks portal.TaskStore, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		tasks:  tasks,
		runner: runner,
		logger: logger,
	}
}

// Run blocks, consuming queue items until ctx finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed, worker stopping", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID), zap.String("kind", string(item.Kind)))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item portal.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.runner == nil {
		w.finish(ctx, item, portal.TaskFailed, "no enrollment service configured")
		return
	}
	if err := w.tasks.UpdateTask(ctx, item.TaskID, portal.TaskRunning, ""); err != nil {
		w.logger.Error("update task status failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}

	taskCtx := progress.WithTask(ctx, item.TaskID)
	message, err := w.execute(taskCtx, item)
	status := portal.TaskSucceeded
	if err != nil {
		status = portal.TaskFailed
		message = err.Error()
		w.logger.Warn("task failed",
			zap.String("task_id", item.TaskID),
			zap.String("kind", string(item.Kind)),
			zap.String("course_id", item.CourseID),
			zap.Error(err),
		)
	}
	w.finish(ctx, item, status, message)
}

func (w *Worker) execute(ctx context.Context, item portal.QueueItem) (string, error) {
	switch item.Kind {
	case portal.TaskLogin:
		if err := w.runner.Login(ctx); err != nil {
			return "", fmt.Errorf("login: %w", err)
		}
		return "logged in", nil
	case portal.TaskRefresh:
		list, err := w.runner.RefreshCourses(ctx)
		if err != nil {
			return "", fmt.Errorf("refresh courses: %w", err)
		}
		return fmt.Sprintf("%d regular, %d retake", len(list.Regular), len(list.Retake)), nil
	case portal.TaskCheck:
		avail, err := w.runner.CheckByID(ctx, item.CourseID)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", item.CourseID, err)
		}
		return fmt.Sprintf("%d seats remaining", avail.TotalRemaining), nil
	case portal.TaskGrab:
		result, err := w.runner.Grab(ctx, item.CourseID, portal.ActionGrab)
		if err != nil {
			return "", fmt.Errorf("grab %s: %w", item.CourseID, err)
		}
		if !result.Succeeded() {
			return "", fmt.Errorf("grab %s: %w", item.CourseID, outcomeError(result))
		}
		return fmt.Sprintf("selected class %s", result.ClassID), nil
	default:
		return "", fmt.Errorf("unknown task kind %q", item.Kind)
	}
}

func outcomeError(result portal.SelectionResult) error {
	if result.Message == "" {
		return errors.New(string(result.Outcome))
	}
	return fmt.Errorf("%s: %s", result.Outcome, result.Message)
}

// finish records the final status even when ctx was cancelled mid-task.
func (w *Worker) finish(ctx context.Context, item portal.QueueItem, status portal.TaskStatus, message string) {
	metrics.ObserveTask(string(item.Kind), string(status))
	if err := w.tasks.UpdateTask(context.WithoutCancel(ctx), item.TaskID, status, message); err != nil {
		w.logger.Error("final task status update failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
}
