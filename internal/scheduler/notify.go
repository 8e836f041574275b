package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/progress"
)

// Notification methods.
const (
	MethodConsole = "console"
	MethodEvents  = "events"
)

// Notifier delivers scheduler notifications to the configured methods.
type Notifier struct {
	enabled bool
	console bool
	events  progress.Emitter
	logger  *zap.Logger
}

// NewNotifier builds a Notifier. Unknown methods are logged and ignored.
func NewNotifier(enabled bool, methods []string, events progress.Emitter, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{enabled: enabled, logger: logger}
	for _, m := range methods {
		switch m {
		case MethodConsole:
			n.console = true
		case MethodEvents:
			n.events = events
		default:
			logger.Warn("unknown notification method", zap.String("method", m))
		}
	}
	return n
}

// Notify sends one message.
func (n *Notifier) Notify(ctx context.Context, level progress.Level, title, message string) {
	if n == nil || !n.enabled {
		return
	}
	if n.console {
		fields := []zap.Field{zap.String("title", title), zap.String("message", message)}
		switch level {
		case progress.LevelError:
			n.logger.Error("notification", fields...)
		case progress.LevelWarning:
			n.logger.Warn("notification", fields...)
		default:
			n.logger.Info("notification", append(fields, zap.String("level", string(level)))...)
		}
	}
	if n.events != nil {
		n.events.Emit(progress.Event{
			TaskID: progress.TaskFrom(ctx),
			Stage:  progress.StageNotify,
			Level:  level,
			Note:   fmt.Sprintf("%s: %s", title, message),
		})
	}
}
