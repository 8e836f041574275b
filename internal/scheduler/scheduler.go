// Package scheduler runs the background monitoring and auto-enrollment jobs
// on a cron clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
)

// Built-in job names.
const (
	JobMonitoring      = "course_monitoring"
	JobDailyCheck      = "daily_course_check"
	AutoEnrollPrefix   = "auto_enroll_"
	defaultMaxRetries  = 30
	defaultRetryPeriod = 2 * time.Minute
)

// Job kinds reported by Status.
const (
	KindMonitoring = "monitoring"
	KindDaily      = "daily"
	KindAutoEnroll = "auto_enroll"
	KindCustom     = "custom"
)

// Enroller is the part of the enroll service the jobs call.
type Enroller interface {
	RefreshCourses(ctx context.Context) (portal.CourseList, error)
	CheckByID(ctx context.Context, courseID string) (portal.Availability, error)
	Grab(ctx context.Context, courseID string, action portal.EnrollmentAction) (portal.SelectionResult, error)
}

// Config mirrors the scheduler section of the configuration.
type Config struct {
	Location          *time.Location
	MonitoringEnabled bool
	MonitorInterval   time.Duration
	DailyHour         int
	DailyMinute       int
	RetryInterval     time.Duration
	MaxRetries        int
}

type job struct {
	name       string
	spec       string
	kind       string
	courseID   string
	entry      cron.EntryID
	run        func(ctx context.Context)
	retries    int
	maxRetries int
	// ownsWatch marks an auto-enroll job that put its course on the watch list.
	ownsWatch bool
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Spec       string     `json:"spec"`
	CourseID   string     `json:"course_id,omitempty"`
	Next       *time.Time `json:"next_run,omitempty"`
	Prev       *time.Time `json:"prev_run,omitempty"`
	Retries    int        `json:"retries,omitempty"`
	MaxRetries int        `json:"max_retries,omitempty"`
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running bool        `json:"running"`
	Paused  bool        `json:"paused"`
	Watched []string    `json:"watched"`
	Jobs    []JobStatus `json:"jobs"`
}

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	enroller Enroller
	notifier *Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	jobs      map[string]*job
	watched   map[string]bool
	available map[string]bool
	ctx       context.Context
	running   bool
	paused    atomic.Bool
}

// New builds a Scheduler. Jobs are added with Setup, AddAutoEnroll, AddCron
// and AddInterval, and start firing after Start.
func New(cfg Config, enroller Enroller, notifier *Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryPeriod
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		enroller:  enroller,
		notifier:  notifier,
		logger:    logger,
		jobs:      map[string]*job{},
		watched:   map[string]bool{},
		available: map[string]bool{},
		ctx:       context.Background(),
	}
}

// Setup registers the monitoring and daily refresh jobs.
func (s *Scheduler) Setup() error {
	if s.cfg.MonitoringEnabled && s.cfg.MonitorInterval > 0 {
		if err := s.add(&job{name: JobMonitoring, kind: KindMonitoring, run: s.monitor},
			everySpec(s.cfg.MonitorInterval)); err != nil {
			return err
		}
	}
	spec := fmt.Sprintf("%d %d * * *", s.cfg.DailyMinute, s.cfg.DailyHour)
	return s.add(&job{name: JobDailyCheck, kind: KindDaily, run: s.dailyRefresh}, spec)
}

// Watch adds courses to the monitoring set.
func (s *Scheduler) Watch(courseIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range courseIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.watched[id] = true
		}
	}
}

// AddAutoEnroll schedules repeated grab attempts for courseID and returns
// the job name.
func (s *Scheduler) AddAutoEnroll(courseID string) (string, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return "", errors.New("scheduler: course id is required")
	}
	name := AutoEnrollPrefix + courseID
	j := &job{
		name:       name,
		kind:       KindAutoEnroll,
		courseID:   courseID,
		maxRetries: s.cfg.MaxRetries,
	}
	j.run = func(ctx context.Context) { s.autoEnroll(ctx, j) }
	s.mu.Lock()
	prev, hadJob := s.jobs[name]
	j.ownsWatch = !s.watched[courseID] || (hadJob && prev.ownsWatch)
	s.mu.Unlock()
	if err := s.add(j, everySpec(s.cfg.RetryInterval)); err != nil {
		return "", err
	}
	s.Watch(courseID)
	s.logger.Info("auto enrollment scheduled",
		zap.String("course_id", courseID),
		zap.Duration("interval", s.cfg.RetryInterval),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)
	return name, nil
}

// AddCron registers fn under name with a standard five-field cron spec. An
// existing job with the same name is replaced.
func (s *Scheduler) AddCron(name, spec string, fn func(ctx context.Context)) error {
	return s.add(&job{name: name, kind: KindCustom, run: fn}, spec)
}

// AddInterval registers fn to run every d.
func (s *Scheduler) AddInterval(name string, d time.Duration, fn func(ctx context.Context)) error {
	if d <= 0 {
		return fmt.Errorf("scheduler: interval for %s must be > 0", name)
	}
	return s.add(&job{name: name, kind: KindCustom, run: fn}, everySpec(d))
}

func (s *Scheduler) add(j *job, spec string) error {
	if j.name == "" {
		return errors.New("scheduler: job name is required")
	}
	if j.run == nil {
		return fmt.Errorf("scheduler: job %s has no function", j.name)
	}
	j.spec = spec
	name := j.name
	id, err := s.cron.AddFunc(spec, func() { s.fire(name) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", j.name, err)
	}
	j.entry = id

	s.mu.Lock()
	old, replaced := s.jobs[j.name]
	s.jobs[j.name] = j
	s.mu.Unlock()
	if replaced {
		s.cron.Remove(old.entry)
		s.logger.Info("job replaced", zap.String("job", j.name))
	}
	return nil
}

// Remove deletes a job. It reports whether the job existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
		if j.ownsWatch {
			delete(s.watched, j.courseID)
		}
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(j.entry)
		s.logger.Info("job removed", zap.String("job", name))
	}
	return ok
}

// Pause makes every job skip its body until Resume.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume undoes Pause.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Paused reports whether jobs are paused.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Start begins firing jobs. ctx is handed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.running = true
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Status().Jobs)))
}

// Stop halts the cron clock and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Status lists the jobs sorted by name.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Status{Running: s.running, Paused: s.paused.Load()}
	for id := range s.watched {
		out.Watched = append(out.Watched, id)
	}
	sort.Strings(out.Watched)
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entry)
		js := JobStatus{
			Name:       j.name,
			Kind:       j.kind,
			Spec:       j.spec,
			CourseID:   j.courseID,
			Retries:    j.retries,
			MaxRetries: j.maxRetries,
		}
		if !entry.Next.IsZero() {
			next := entry.Next
			js.Next = &next
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			js.Prev = &prev
		}
		out.Jobs = append(out.Jobs, js)
	}
	sort.Slice(out.Jobs, func(i, k int) bool { return out.Jobs[i].Name < out.Jobs[k].Name })
	return out
}

// RunNow runs a job body immediately on the calling goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: job %s not found", name)
	}
	s.fire(name)
	return nil
}

func (s *Scheduler) fire(name string) {
	if s.Paused() {
		s.logger.Debug("job skipped while paused", zap.String("job", name))
		return
	}
	s.mu.Lock()
	j, ok := s.jobs[name]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok {
		return
	}
	start := time.Now()
	j.run(ctx)
	s.logger.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// monitor checks every watched course and notifies when seats open up.
func (s *Scheduler) monitor(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		avail, err := s.enroller.CheckByID(ctx, id)
		if err != nil {
			s.logger.Warn("monitoring check failed", zap.String("course_id", id), zap.Error(err))
			continue
		}
		s.mu.Lock()
		was := s.available[id]
		s.available[id] = avail.Available
		s.mu.Unlock()
		if avail.Available && !was {
			s.notifier.Notify(ctx, progress.LevelInfo, "Seats available",
				fmt.Sprintf("course %s has %d seats", id, avail.TotalRemaining))
		}
	}
}

func (s *Scheduler) dailyRefresh(ctx context.Context) {
	list, err := s.enroller.RefreshCourses(ctx)
	if err != nil {
		s.notifier.Notify(ctx, progress.LevelError, "Course refresh failed", err.Error())
		return
	}
	s.notifier.Notify(ctx, progress.LevelInfo, "Courses refreshed",
		fmt.Sprintf("%d regular, %d retake", len(list.Regular), len(list.Retake)))
}

func (s *Scheduler) autoEnroll(ctx context.Context, j *job) {
	result, err := s.enroller.Grab(ctx, j.courseID, portal.ActionScheduled)

	s.mu.Lock()
	j.retries++
	attempt := j.retries
	s.mu.Unlock()

	switch {
	case err == nil && result.Succeeded():
		s.notifier.Notify(ctx, progress.LevelSuccess, "Course selected",
			fmt.Sprintf("course %s selected after %d attempts", j.courseID, attempt))
		s.Remove(j.name)
		return
	case attempt >= j.maxRetries:
		reason := "not confirmed"
		if err != nil {
			reason = err.Error()
		}
		s.notifier.Notify(ctx, progress.LevelError, "Auto enrollment stopped",
			fmt.Sprintf("course %s gave up after %d attempts: %s", j.courseID, attempt, reason))
		s.Remove(j.name)
		return
	case errors.Is(err, portal.ErrNoSeats):
		s.logger.Debug("no seats yet", zap.String("course_id", j.courseID), zap.Int("attempt", attempt))
	case err != nil:
		s.notifier.Notify(ctx, progress.LevelWarning, "Auto enrollment attempt failed",
			fmt.Sprintf("course %s attempt %d: %v", j.courseID, attempt, err))
	default:
		s.notifier.Notify(ctx, progress.LevelWarning, "Auto enrollment attempt failed",
			fmt.Sprintf("course %s attempt %d: %s", j.courseID, attempt, result.Outcome))
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}
