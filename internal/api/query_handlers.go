package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
)

const (
	queryTimeout = 3 * time.Second
	checkTimeout = 45 * time.Second

	defaultTaskLimit = 50
	maxTaskLimit     = 500
	defaultHistory   = 7
	maxHistoryDays   = 365
)

// QueryHandler serves read-only endpoints over the local cache.
type QueryHandler struct {
	tasks    portal.TaskStore
	courses  CourseReader
	enroller Enroller
	logger   *zap.Logger
}

// NewQueryHandler builds a QueryHandler. Nil collaborators make their
// endpoints answer 503.
func NewQueryHandler(tasks portal.TaskStore, courses CourseReader, enroller Enroller, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{tasks: tasks, courses: courses, enroller: enroller, logger: logger}
}

type courseDetailDTO struct {
	Course       portal.Course        `json:"course"`
	Slots        []planner.Slot       `json:"slots"`
	Availability *portal.Availability `json:"availability,omitempty"`
}

// ListCourses handles GET /v1/courses?type=&keyword=&available_only=.
func (h *QueryHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	if h.courses == nil {
		writeError(w, http.StatusServiceUnavailable, "course cache not configured")
		return
	}
	q := r.URL.Query()
	filter := portal.CourseFilter{Keyword: strings.TrimSpace(q.Get("keyword"))}
	switch t := portal.CourseType(strings.ToLower(q.Get("type"))); t {
	case "", "all":
	case portal.CourseTypeRegular, portal.CourseTypeRetake:
		filter.Type = t
	default:
		writeError(w, http.StatusBadRequest, "type must be regular, retake or all")
		return
	}
	if raw := q.Get("available_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid available_only")
			return
		}
		filter.AvailableOnly = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	courses, err := h.courses.Courses(ctx, filter)
	if err != nil {
		h.logger.Error("list courses failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	if courses == nil {
		courses = []portal.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses, "count": len(courses)})
}

// GetCourse handles GET /v1/courses/{course_id}.
func (h *QueryHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	if h.courses == nil {
		writeError(w, http.StatusServiceUnavailable, "course cache not configured")
		return
	}
	courseID := chi.URLParam(r, "course_id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	course, err := h.courses.Course(ctx, courseID)
	if errors.Is(err, portal.ErrCourseNotFound) {
		writeError(w, http.StatusNotFound, "course not found")
		return
	}
	if err != nil {
		h.logger.Error("load course failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	slots, err := h.courses.CourseSchedules(ctx, courseID)
	if err != nil {
		h.logger.Error("load schedule failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	if slots == nil {
		slots = []planner.Slot{}
	}
	resp := courseDetailDTO{Course: course, Slots: slots}
	avail, err := h.courses.LatestAvailability(ctx, courseID)
	switch {
	case err == nil:
		resp.Availability = &avail
	case errors.Is(err, portal.ErrNoAvailability):
	default:
		h.logger.Warn("load availability failed", zap.String("course_id", courseID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckAvailability handles GET /v1/courses/{course_id}/availability with a
// live portal query.
func (h *QueryHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	if h.enroller == nil {
		writeError(w, http.StatusServiceUnavailable, "portal not configured")
		return
	}
	courseID := chi.URLParam(r, "course_id")
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	avail, err := h.enroller.CheckByID(ctx, courseID)
	switch {
	case errors.Is(err, portal.ErrCourseNotFound):
		writeError(w, http.StatusNotFound, "course not found")
	case errors.Is(err, portal.ErrNotAuthenticated):
		writeError(w, http.StatusBadGateway, "portal login failed")
	case err != nil:
		h.logger.Error("availability check failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "availability check failed")
	default:
		writeJSON(w, http.StatusOK, avail)
	}
}

// AvailabilityHistory handles GET /v1/courses/{course_id}/history?days=.
func (h *QueryHandler) AvailabilityHistory(w http.ResponseWriter, r *http.Request) {
	if h.courses == nil {
		writeError(w, http.StatusServiceUnavailable, "course cache not configured")
		return
	}
	days, err := parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days == 0 {
		days = maxHistoryDays
	}
	courseID := chi.URLParam(r, "course_id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	snaps, err := h.courses.AvailabilityHistory(ctx, courseID, days)
	if err != nil {
		h.logger.Error("availability history failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if snaps == nil {
		snaps = []portal.Availability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"course_id": courseID, "snapshots": snaps})
}

// ListTasks handles GET /v1/tasks?limit=.
func (h *QueryHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "task store not configured")
		return
	}
	limit, err := parseLimit(r, defaultTaskLimit, maxTaskLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	tasks, err := h.tasks.Tasks(ctx, limit)
	if err != nil {
		h.logger.Error("list tasks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []portal.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetTask handles GET /v1/tasks/{task_id}.
func (h *QueryHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "task store not configured")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	task, err := h.tasks.Task(ctx, taskID)
	if errors.Is(err, portal.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.logger.Error("load task failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListEnrollments handles GET /v1/enrollments?days=.
func (h *QueryHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	if h.enroller == nil {
		writeError(w, http.StatusServiceUnavailable, "enrollment history not configured")
		return
	}
	days, err := parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	records, err := h.enroller.History(ctx, days)
	if err != nil {
		h.logger.Error("enrollment history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []portal.EnrollmentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "records": records})
}

// Status handles GET /v1/status.
func (h *QueryHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.enroller == nil {
		writeError(w, http.StatusServiceUnavailable, "enrollment service not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	status, err := h.enroller.Status(ctx)
	if err != nil {
		h.logger.Error("status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid limit")
	}
	if v > maxLimit {
		v = maxLimit
	}
	return v, nil
}

// parseDays reads ?days=; zero means all history.
func parseDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultHistory, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid days")
	}
	if v > maxHistoryDays {
		v = maxHistoryDays
	}
	return v, nil
}
