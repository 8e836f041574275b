package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the enrollment milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageLogin       Stage = "LOGIN"
	StageRefresh     Stage = "REFRESH"
	StageCheck       Stage = "CHECK"
	StageSelectStart Stage = "SELECT_START"
	StageCaptcha     Stage = "CAPTCHA"
	StageSelectDone  Stage = "SELECT_DONE"
	StageSelectError Stage = "SELECT_ERROR"
	StageNotify      Stage = "NOTIFY"
)

// Level grades an event for display.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one progress update.
type Event struct {
	// TaskID links the event to an API task. CLI runs leave it empty.
	TaskID string `json:"task_id,omitempty"`
	// TS is the UTC time the event happened.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	Level Level     `json:"level,omitempty"`
	// CourseID is the kcid the event concerns, when any.
	CourseID  string `json:"course_id,omitempty"`
	ClassID   string `json:"jx0404id,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	// Note carries short human-readable context such as a portal message.
	Note string        `json:"note,omitempty"`
	Dur  time.Duration `json:"dur,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageLogin, StageRefresh, StageNotify:
	case StageCheck, StageSelectStart, StageCaptcha, StageSelectDone, StageSelectError:
		if e.CourseID == "" {
			return fmt.Errorf("%s requires course id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	switch e.Level {
	case "", LevelInfo, LevelSuccess, LevelWarning, LevelError:
	default:
		return fmt.Errorf("unknown level %q", e.Level)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
