// Package enroll implements the course-selection workflows on top of the
// portal driver and the local stores.
package enroll

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/clock/system"
	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
	"github.com/JakeFAU/coursebot/internal/store/sqlite"
)

// Enrollment statuses stored with each record besides the selection outcomes.
const (
	StatusNoSeats = "no_seats"
	StatusError   = "error"
)

// Store is the local cache the service reads and writes.
type Store interface {
	portal.CourseStore
	portal.AvailabilityStore
	portal.EnrollmentStore
	SaveSchedule(ctx context.Context, courseID, schedule string) error
	Summary(ctx context.Context) (sqlite.Summary, error)
}

// Options wires a Service.
type Options struct {
	Portal portal.Portal
	Store  Store
	// Audit mirrors records to a secondary store. Optional.
	Audit  Auditor
	Events progress.Emitter
	Clock  portal.Clock
	Logger *zap.Logger
}

// Service runs refresh, check and grab operations.
type Service struct {
	portal   portal.Portal
	store    Store
	recorder *MultiRecorder
	events   progress.Emitter
	clock    portal.Clock
	logger   *zap.Logger
}

// New builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Portal == nil {
		return nil, errors.New("enroll: portal is required")
	}
	if opts.Store == nil {
		return nil, errors.New("enroll: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := opts.Events
	if events == nil {
		events = progress.Nop{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}
	return &Service{
		portal:   opts.Portal,
		store:    opts.Store,
		recorder: NewMultiRecorder(opts.Store, opts.Audit, logger),
		events:   events,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Login signs in to the portal.
func (s *Service) Login(ctx context.Context) error {
	return s.portal.Login(ctx)
}

// RefreshCourses scrapes the course list and replaces the cached copy.
func (s *Service) RefreshCourses(ctx context.Context) (portal.CourseList, error) {
	start := s.clock.Now()
	list, err := s.portal.Courses(ctx)
	if err != nil {
		s.emit(ctx, progress.Event{Stage: progress.StageRefresh, Level: progress.LevelError, Note: err.Error()})
		return portal.CourseList{}, err
	}
	if err := s.store.SaveCourses(ctx, list.All); err != nil {
		return portal.CourseList{}, fmt.Errorf("cache courses: %w", err)
	}
	s.logger.Info("course cache refreshed",
		zap.Int("regular", len(list.Regular)),
		zap.Int("retake", len(list.Retake)),
	)
	s.emit(ctx, progress.Event{
		Stage: progress.StageRefresh,
		Level: progress.LevelSuccess,
		Note:  fmt.Sprintf("%d regular, %d retake", len(list.Regular), len(list.Retake)),
		Dur:   s.clock.Now().Sub(start),
	})
	return list, nil
}

// CachedCourses lists courses from the local cache.
func (s *Service) CachedCourses(ctx context.Context, filter portal.CourseFilter) ([]portal.Course, error) {
	return s.store.Courses(ctx, filter)
}

// Course resolves a course id from the cache, refreshing once when it is
// missing.
func (s *Service) Course(ctx context.Context, courseID string) (portal.Course, error) {
	course, err := s.store.Course(ctx, courseID)
	if err == nil {
		return course, nil
	}
	if !errors.Is(err, portal.ErrCourseNotFound) {
		return portal.Course{}, err
	}
	s.logger.Info("course not cached, refreshing", zap.String("course_id", courseID))
	if _, err := s.RefreshCourses(ctx); err != nil {
		return portal.Course{}, err
	}
	return s.store.Course(ctx, courseID)
}

// Check reads live seat counts for course and stores the snapshot.
func (s *Service) Check(ctx context.Context, course portal.Course) (portal.Availability, error) {
	avail, err := s.portal.Availability(ctx, course)
	if err != nil {
		s.emit(ctx, progress.Event{
			Stage:    progress.StageCheck,
			Level:    progress.LevelError,
			CourseID: course.ID,
			Note:     err.Error(),
		})
		return portal.Availability{}, err
	}
	if err := s.recorder.RecordAvailability(ctx, avail); err != nil {
		s.logger.Warn("availability snapshot not stored", zap.String("course_id", course.ID), zap.Error(err))
	}
	if sched := planner.ClassSchedule(avail); sched != "" && sched != course.Schedule {
		err := s.store.SaveSchedule(ctx, course.ID, sched)
		if err != nil && !errors.Is(err, portal.ErrCourseNotFound) {
			s.logger.Warn("class schedule not stored", zap.String("course_id", course.ID), zap.Error(err))
		}
	}
	level := progress.LevelInfo
	if avail.Available {
		level = progress.LevelSuccess
	}
	s.emit(ctx, progress.Event{
		Stage:     progress.StageCheck,
		Level:     level,
		CourseID:  course.ID,
		Remaining: avail.TotalRemaining,
	})
	return avail, nil
}

// CheckByID resolves courseID and checks it.
func (s *Service) CheckByID(ctx context.Context, courseID string) (portal.Availability, error) {
	course, err := s.Course(ctx, courseID)
	if err != nil {
		return portal.Availability{}, err
	}
	return s.Check(ctx, course)
}

// Grab checks a course and selects it when seats remain. Every attempt is
// recorded, including those that end before a selection is submitted.
func (s *Service) Grab(ctx context.Context, courseID string, action portal.EnrollmentAction) (portal.SelectionResult, error) {
	result := portal.SelectionResult{CourseID: courseID}
	course, err := s.Course(ctx, courseID)
	if err != nil {
		s.record(ctx, result, action, StatusError, err.Error())
		return result, err
	}

	avail, err := s.Check(ctx, course)
	if err != nil {
		s.record(ctx, result, action, StatusError, err.Error())
		return result, err
	}
	return s.selectChecked(ctx, course, avail, action)
}

// selectChecked submits a selection for a course whose availability was
// just read.
func (s *Service) selectChecked(
	ctx context.Context,
	course portal.Course,
	avail portal.Availability,
	action portal.EnrollmentAction,
) (portal.SelectionResult, error) {
	result := portal.SelectionResult{CourseID: course.ID}
	if !avail.Available {
		if avail.Best != nil {
			result.ClassID = avail.Best.ID
		}
		s.record(ctx, result, action, StatusNoSeats, "no seats remaining")
		return result, portal.ErrNoSeats
	}

	result, err := s.portal.Select(ctx, course)
	result.CourseID = course.ID
	if err != nil {
		status := StatusError
		if errors.Is(err, portal.ErrNoSeats) {
			status = StatusNoSeats
		}
		s.record(ctx, result, action, status, err.Error())
		return result, err
	}
	s.record(ctx, result, action, string(result.Outcome), result.Message)
	if result.Succeeded() {
		s.logger.Info("course selected",
			zap.String("course_id", course.ID),
			zap.String("name", course.Name),
			zap.String("jx0404id", result.ClassID),
		)
	} else {
		s.logger.Warn("selection not confirmed",
			zap.String("course_id", course.ID),
			zap.String("outcome", string(result.Outcome)),
			zap.String("message", result.Message),
		)
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, result portal.SelectionResult, action portal.EnrollmentAction, status, message string) {
	metrics.ObserveEnrollment(string(action), status)
	rec := portal.EnrollmentRecord{
		CourseID:  result.CourseID,
		ClassID:   result.ClassID,
		Action:    action,
		Status:    status,
		Message:   message,
		Timestamp: s.clock.Now(),
	}
	if err := s.recorder.RecordEnrollment(ctx, rec); err != nil {
		s.logger.Warn("enrollment record not stored", zap.String("course_id", rec.CourseID), zap.Error(err))
	}
}

// Status summarizes the cache and the enrollment history.
type Status struct {
	Cache       sqlite.Summary        `json:"cache"`
	Enrollments portal.EnrollmentStats `json:"enrollments"`
	LoggedIn    bool                  `json:"logged_in"`
}

type loginReporter interface {
	LoggedIn() bool
}

// Status reports cached counts, enrollment stats and the session state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	summary, err := s.store.Summary(ctx)
	if err != nil {
		return Status{}, err
	}
	stats, err := s.store.EnrollmentStats(ctx)
	if err != nil {
		return Status{}, err
	}
	out := Status{Cache: summary, Enrollments: stats}
	if lr, ok := s.portal.(loginReporter); ok {
		out.LoggedIn = lr.LoggedIn()
	}
	return out, nil
}

// History returns enrollment records from the last days days.
func (s *Service) History(ctx context.Context, days int) ([]portal.EnrollmentRecord, error) {
	return s.store.EnrollmentHistory(ctx, days)
}

func (s *Service) emit(ctx context.Context, evt progress.Event) {
	evt.TaskID = progress.TaskFrom(ctx)
	s.events.Emit(evt)
}

// SelectNow submits a selection without reading availability first.
func (s *Service) SelectNow(ctx context.Context, courseID string, action portal.EnrollmentAction) (portal.SelectionResult, error) {
	course, err := s.Course(ctx, courseID)
	if err != nil {
		s.record(ctx, portal.SelectionResult{CourseID: courseID}, action, StatusError, err.Error())
		return portal.SelectionResult{CourseID: courseID}, err
	}
	return s.selectChecked(ctx, course, portal.Availability{CourseID: course.ID, Available: true}, action)
}
