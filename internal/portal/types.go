// Package portal defines core types shared across the course-registration subsystems.
package portal

import (
	"strings"
	"time"
)

// CourseType distinguishes regular selections from retake (重修) selections.
type CourseType string

// Course types as exposed by the selection pages.
const (
	CourseTypeRegular CourseType = "regular"
	CourseTypeRetake  CourseType = "retake"
)

// Course is a row of the selectable-course list.
type Course struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Category1 string     `json:"category1,omitempty"`
	Category2 string     `json:"category2,omitempty"`
	Credits   string     `json:"credits,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	Grade     string     `json:"grade,omitempty"`
	Type      CourseType `json:"type"`
	URL       string     `json:"url,omitempty"`
	Schedule  string     `json:"schedule,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Retake reports whether the course is selected through the retake flow.
func (c Course) Retake() bool {
	return c.Type == CourseTypeRetake
}

// Matches reports whether keyword appears in the course name, code or kind.
func (c Course) Matches(keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false
	}
	return strings.Contains(c.Name, keyword) ||
		strings.Contains(c.Code, keyword) ||
		strings.Contains(c.Kind, keyword)
}

// CourseList groups scraped courses by selection flow.
type CourseList struct {
	Regular []Course `json:"regular"`
	Retake  []Course `json:"retake"`
	All     []Course `json:"all"`
}

// NewCourseList partitions courses into regular and retake groups.
func NewCourseList(courses []Course) CourseList {
	list := CourseList{All: courses}
	for _, c := range courses {
		if c.Retake() {
			list.Retake = append(list.Retake, c)
			continue
		}
		list.Regular = append(list.Regular, c)
	}
	return list
}

// TeachingClass is one section (教学班) of a course, identified by jx0404id.
type TeachingClass struct {
	ID        string `json:"jx0404id"`
	CourseID  string `json:"course_id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Teacher   string `json:"teacher,omitempty"`
	Time      string `json:"time,omitempty"`
	Location  string `json:"location,omitempty"`
	Remaining int    `json:"remaining"`
}

// Availability summarizes the seats left across all classes of a course.
type Availability struct {
	CourseID       string          `json:"course_id"`
	Available      bool            `json:"available"`
	TotalRemaining int             `json:"total_remaining"`
	Classes        []TeachingClass `json:"classes"`
	Best           *TeachingClass  `json:"best_class,omitempty"`
	CheckedAt      time.Time       `json:"checked_at"`
}

// NewAvailability derives the totals and best class from the given classes.
func NewAvailability(courseID string, classes []TeachingClass, checkedAt time.Time) Availability {
	avail := Availability{
		CourseID:  courseID,
		Classes:   classes,
		CheckedAt: checkedAt,
	}
	if best, ok := BestClass(classes); ok {
		avail.Best = &best
	}
	for _, c := range classes {
		if c.Remaining > 0 {
			avail.TotalRemaining += c.Remaining
		}
	}
	avail.Available = avail.TotalRemaining > 0
	return avail
}

// BestClass returns the class with the most remaining seats. Ties keep the
// first class in page order.
func BestClass(classes []TeachingClass) (TeachingClass, bool) {
	if len(classes) == 0 {
		return TeachingClass{}, false
	}
	best := classes[0]
	for _, c := range classes[1:] {
		if c.Remaining > best.Remaining {
			best = c
		}
	}
	return best, true
}

// Outcome classifies what the portal said after a selection submit.
type Outcome string

// Selection outcomes.
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeCaptchaError Outcome = "captcha_error"
	OutcomeFailed       Outcome = "failed"
	OutcomeUnknown      Outcome = "unknown"
)

// SelectionResult is the result of one Select call.
type SelectionResult struct {
	CourseID    string  `json:"course_id"`
	ClassID     string  `json:"jx0404id,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Message     string  `json:"message,omitempty"`
	Attempts    int     `json:"attempts"`
	CaptchaCode string  `json:"captcha_code,omitempty"`
}

// Succeeded reports whether the portal confirmed the selection.
func (r SelectionResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// EnrollmentAction names what triggered an enrollment attempt.
type EnrollmentAction string

// Enrollment actions stored with each record.
const (
	ActionGrab       EnrollmentAction = "grab"
	ActionAutoSelect EnrollmentAction = "auto_select"
	ActionTestSelect EnrollmentAction = "test_select"
	ActionScheduled  EnrollmentAction = "scheduled"
)

// EnrollmentRecord is one row of the enrollment history.
type EnrollmentRecord struct {
	ID        int64            `json:"id,omitempty"`
	CourseID  string           `json:"course_id"`
	ClassID   string           `json:"jx0404id,omitempty"`
	Action    EnrollmentAction `json:"action"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EnrollmentStats aggregates enrollment history by status.
type EnrollmentStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Last     *time.Time     `json:"last,omitempty"`
}

// TaskKind names the asynchronous operations accepted by the worker pool.
type TaskKind string

// Supported task kinds.
const (
	TaskLogin   TaskKind = "login"
	TaskRefresh TaskKind = "refresh"
	TaskGrab    TaskKind = "grab"
	TaskCheck   TaskKind = "check"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is a queued operation submitted through the API.
type Task struct {
	ID         string     `json:"id"`
	Kind       TaskKind   `json:"kind"`
	CourseID   string     `json:"course_id,omitempty"`
	CourseName string     `json:"course_name,omitempty"`
	Status     TaskStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Created    time.Time  `json:"created_at"`
	Updated    time.Time  `json:"updated_at"`
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	Kind      TaskKind
	CourseID  string
	Submitted int64
}

// CaptchaAnswer is a recognized captcha code.
type CaptchaAnswer struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine"`
	Manual     bool    `json:"manual,omitempty"`
}

// CourseFilter narrows cached course listings.
type CourseFilter struct {
	Type          CourseType
	Keyword       string
	AvailableOnly bool
}
