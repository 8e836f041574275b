package portal

import (
	"context"
	"time"
)

// Credentials are the portal account used for login.
type Credentials struct {
	Username string
	Password string
}

// Portal drives the registration site.
type Portal interface {
	Login(ctx context.Context) error
	Courses(ctx context.Context) (CourseList, error)
	Availability(ctx context.Context, course Course) (Availability, error)
	Select(ctx context.Context, course Course) (SelectionResult, error)
	Close()
}

// CourseStore caches scraped courses.
type CourseStore interface {
	SaveCourses(ctx context.Context, courses []Course) error
	Courses(ctx context.Context, filter CourseFilter) ([]Course, error)
	Course(ctx context.Context, id string) (Course, error)
}

// AvailabilityStore keeps seat-count snapshots.
type AvailabilityStore interface {
	SaveAvailability(ctx context.Context, avail Availability) error
	LatestAvailability(ctx context.Context, courseID string) (Availability, error)
}

// EnrollmentRecorder accepts enrollment and availability audit rows.
type EnrollmentRecorder interface {
	RecordEnrollment(ctx context.Context, record EnrollmentRecord) error
}

// EnrollmentStore records and reports enrollment history.
type EnrollmentStore interface {
	EnrollmentRecorder
	EnrollmentHistory(ctx context.Context, days int) ([]EnrollmentRecord, error)
	EnrollmentStats(ctx context.Context) (EnrollmentStats, error)
}

// TaskStore persists API task metadata.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	UpdateTask(ctx context.Context, id string, status TaskStatus, message string) error
	Task(ctx context.Context, id string) (Task, error)
	Tasks(ctx context.Context, limit int) ([]Task, error)
}

// CaptchaSolver turns a captcha image into a code.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (CaptchaAnswer, error)
}

// Queue provides enqueue/dequeue semantics for tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for content-addressed artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
