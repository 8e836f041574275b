package progress

import "context"

type taskKey struct{}

// WithTask attaches a task id so components deeper in the call chain can tag
// their events.
func WithTask(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskKey{}, taskID)
}

// TaskFrom returns the task id attached by WithTask, or "".
func TaskFrom(ctx context.Context) string {
	id, _ := ctx.Value(taskKey{}).(string)
	return id
}
