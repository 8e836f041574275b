package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/progress"
)

// LogSink writes each event as a structured log line. Error and warning
// levels map onto the matching zap levels.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.Time("event_ts", evt.TS),
		}
		if evt.TaskID != "" {
			fields = append(fields, zap.String("task_id", evt.TaskID))
		}
		if evt.CourseID != "" {
			fields = append(fields, zap.String("course_id", evt.CourseID))
		}
		if evt.ClassID != "" {
			fields = append(fields, zap.String("jx0404id", evt.ClassID))
		}
		if evt.Stage == progress.StageCheck {
			fields = append(fields, zap.Int("remaining", evt.Remaining))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Level {
		case progress.LevelError:
			s.logger.Error("progress event", fields...)
		case progress.LevelWarning:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
