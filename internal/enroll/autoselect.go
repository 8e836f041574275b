package enroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
)

// Per-course results of a bulk selection run.
const (
	ResultSelected    = "selected"
	ResultWouldSelect = "would_select"
	ResultFailed      = "failed"
	ResultNoSeats     = "no_seats"
	ResultSkipped     = "skipped"
	ResultError       = "error"
)

// ErrNoCourses is returned when nothing is cached or nothing passes the
// filters.
var ErrNoCourses = errors.New("enroll: no candidate courses")

// AutoSelectOptions controls AutoSelectAll.
type AutoSelectOptions struct {
	planner.AutoSelectOptions
	// MaxCourses stops the run after this many successful selections. It is
	// ignored in dry runs. Zero means no limit.
	MaxCourses int
	// MinSlots is the fewest remaining seats worth trying for.
	MinSlots int
	// Delay is slept after every submitted selection.
	Delay   time.Duration
	DryRun  bool
	Refresh bool
}

// CourseResult is the outcome for one candidate.
type CourseResult struct {
	Course    portal.Course `json:"course"`
	Remaining int           `json:"remaining"`
	Result    string        `json:"result"`
	Message   string        `json:"message,omitempty"`
}

// Report totals a bulk selection run.
type Report struct {
	Total     int            `json:"total"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []CourseResult `json:"results"`
}

// Observer is told about each processed candidate. done counts candidates
// handled so far out of total.
type Observer func(done, total int, result CourseResult)

// AutoSelectAll tries every candidate course in priority order.
func (s *Service) AutoSelectAll(ctx context.Context, opts AutoSelectOptions, observe Observer) (Report, error) {
	if observe == nil {
		observe = func(int, int, CourseResult) {}
	}
	if opts.MinSlots <= 0 {
		opts.MinSlots = 1
	}

	if opts.Refresh {
		if _, err := s.RefreshCourses(ctx); err != nil {
			return Report{}, err
		}
	}
	courses, err := s.store.Courses(ctx, portal.CourseFilter{})
	if err != nil {
		return Report{}, err
	}
	if len(courses) == 0 {
		return Report{}, fmt.Errorf("%w: cache is empty, refresh first", ErrNoCourses)
	}
	candidates := planner.AutoSelectCandidates(courses, opts.AutoSelectOptions)
	if len(candidates.Courses) == 0 && len(candidates.Skipped) == 0 {
		return Report{}, fmt.Errorf("%w: filters matched nothing", ErrNoCourses)
	}

	report := Report{Total: len(candidates.Courses) + len(candidates.Skipped)}
	done := 0
	add := func(r CourseResult) {
		report.Results = append(report.Results, r)
		done++
		observe(done, report.Total, r)
	}
	for _, c := range candidates.Skipped {
		report.Skipped++
		add(CourseResult{Course: c, Result: ResultSkipped, Message: "retake skipped"})
	}

	for _, course := range candidates.Courses {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !opts.DryRun && opts.MaxCourses > 0 && report.Succeeded >= opts.MaxCourses {
			s.logger.Info("selection target reached", zap.Int("max_courses", opts.MaxCourses))
			break
		}
		add(s.autoSelectOne(ctx, course, opts, &report))
	}
	s.logger.Info("auto selection finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Bool("dry_run", opts.DryRun),
	)
	return report, nil
}

func (s *Service) autoSelectOne(ctx context.Context, course portal.Course, opts AutoSelectOptions, report *Report) CourseResult {
	out := CourseResult{Course: course}
	avail, err := s.Check(ctx, course)
	if err != nil {
		report.Failed++
		out.Result = ResultError
		out.Message = err.Error()
		return out
	}
	report.Attempted++
	out.Remaining = avail.TotalRemaining

	if !avail.Available || avail.TotalRemaining < opts.MinSlots {
		report.Skipped++
		out.Result = ResultNoSeats
		return out
	}
	if opts.DryRun {
		report.Succeeded++
		out.Result = ResultWouldSelect
		return out
	}

	result, err := s.selectChecked(ctx, course, avail, portal.ActionAutoSelect)
	switch {
	case err == nil && result.Succeeded():
		report.Succeeded++
		out.Result = ResultSelected
		out.Message = result.Message
	case err != nil:
		report.Failed++
		out.Result = ResultFailed
		out.Message = err.Error()
	default:
		report.Failed++
		out.Result = ResultFailed
		out.Message = firstNonEmpty(result.Message, string(result.Outcome))
	}
	if opts.Delay > 0 {
		s.sleep(ctx, opts.Delay)
	}
	return out
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
