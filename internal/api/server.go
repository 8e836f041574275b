package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/config"
	"github.com/JakeFAU/coursebot/internal/enroll"
	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/scheduler"
)

const (
	requestTimeout = 60 * time.Second
	enqueueTimeout = 5 * time.Second
)

// Enqueuer accepts work for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item portal.QueueItem) error
}

// CourseReader reads cached course details.
type CourseReader interface {
	portal.CourseStore
	CourseSchedules(ctx context.Context, courseID string) ([]planner.Slot, error)
	LatestAvailability(ctx context.Context, courseID string) (portal.Availability, error)
	AvailabilityHistory(ctx context.Context, courseID string, days int) ([]portal.Availability, error)
}

// Enroller runs synchronous enrollment queries.
type Enroller interface {
	CheckByID(ctx context.Context, courseID string) (portal.Availability, error)
	History(ctx context.Context, days int) ([]portal.EnrollmentRecord, error)
	Status(ctx context.Context) (enroll.Status, error)
}

// Scheduler manages background jobs.
type Scheduler interface {
	Status() scheduler.Status
	AddAutoEnroll(courseID string) (string, error)
	Remove(name string) bool
	Pause()
	Resume()
}

// Deps are the collaborators of a Server. Scheduler and Events are optional.
type Deps struct {
	Tasks     portal.TaskStore
	Courses   CourseReader
	Enroller  Enroller
	Queue     Enqueuer
	Scheduler Scheduler
	// Events serves the websocket stream.
	Events http.Handler
	IDs    portal.IDGenerator
	Clock  portal.Clock
}

// Server wires HTTP handlers to the worker queue and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
	query  *QueryHandler
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		query:  NewQueryHandler(deps.Tasks, deps.Courses, deps.Enroller, logger),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	if deps.Events != nil {
		r.Handle("/v1/events", deps.Events)
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/login", s.submitLogin)
			r.Post("/grab", s.submitGrab)
			r.Route("/courses", func(r chi.Router) {
				r.Get("/", s.query.ListCourses)
				r.Post("/refresh", s.submitRefresh)
				r.Route("/{course_id}", func(r chi.Router) {
					r.Get("/", s.query.GetCourse)
					r.Get("/availability", s.query.CheckAvailability)
					r.Get("/history", s.query.AvailabilityHistory)
				})
			})
			r.Get("/tasks", s.query.ListTasks)
			r.Get("/tasks/{task_id}", s.query.GetTask)
			r.Get("/enrollments", s.query.ListEnrollments)
			r.Get("/status", s.query.Status)
			r.Route("/scheduler", func(r chi.Router) {
				r.Get("/", s.schedulerStatus)
				r.Post("/auto-enroll", s.addAutoEnroll)
				r.Post("/pause", s.pauseScheduler)
				r.Post("/resume", s.resumeScheduler)
				r.Delete("/jobs/{name}", s.removeJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Tasks == nil || s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "worker pool not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type courseRequest struct {
	CourseID string `json:"course_id"`
}

func (s *Server) submitLogin(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, portal.TaskLogin, "")
}

func (s *Server) submitRefresh(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, portal.TaskRefresh, "")
}

func (s *Server) submitGrab(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	courseID := strings.TrimSpace(req.CourseID)
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "course_id required")
		return
	}
	s.submit(w, r, portal.TaskGrab, courseID)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind portal.TaskKind, courseID string) {
	taskID, err := s.enqueueTask(r.Context(), kind, courseID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("enqueue task failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) enqueueTask(ctx context.Context, kind portal.TaskKind, courseID string) (string, error) {
	if s.deps.Tasks == nil || s.deps.Queue == nil {
		return "", errors.New("worker pool not configured")
	}
	taskID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	now := s.deps.Clock.Now()
	task := portal.Task{
		ID:       taskID,
		Kind:     kind,
		CourseID: courseID,
		Status:   portal.TaskQueued,
		Created:  now,
		Updated:  now,
	}
	if courseID != "" && s.deps.Courses != nil {
		if course, err := s.deps.Courses.Course(ctx, courseID); err == nil {
			task.CourseName = course.Name
		}
	}
	if err := s.deps.Tasks.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := portal.QueueItem{
		TaskID:    taskID,
		Kind:      kind,
		CourseID:  courseID,
		Submitted: now.Unix(),
	}
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		if uerr := s.deps.Tasks.UpdateTask(ctx, taskID, portal.TaskFailed, "queue full"); uerr != nil {
			s.logger.Warn("mark task failed", zap.String("task_id", taskID), zap.Error(uerr))
		}
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return taskID, nil
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) addAutoEnroll(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	name, err := s.deps.Scheduler.AddAutoEnroll(req.CourseID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job": name})
}

func (s *Server) removeJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	name := chi.URLParam(r, "name")
	if !s.deps.Scheduler.Remove(name) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": name})
}

func (s *Server) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	s.deps.Scheduler.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) resumeScheduler(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	s.deps.Scheduler.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
