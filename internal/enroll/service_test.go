package enroll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
	"github.com/JakeFAU/coursebot/internal/scrape"
	"github.com/JakeFAU/coursebot/internal/store/sqlite"
)

var baseTime = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return baseTime }

type fakePortal struct {
	mu          sync.Mutex
	courses     []portal.Course
	remaining   map[string]int
	outcomes    map[string]portal.Outcome
	selectErr   map[string]error
	bodies      map[string][]byte
	courseCalls int
	selected    []string
}

func newFakePortal(courses ...portal.Course) *fakePortal {
	return &fakePortal{
		courses:   courses,
		remaining: map[string]int{},
		outcomes:  map[string]portal.Outcome{},
		selectErr: map[string]error{},
		bodies:    map[string][]byte{},
	}
}

func (f *fakePortal) Login(context.Context) error { return nil }

func (f *fakePortal) LoggedIn() bool { return true }

func (f *fakePortal) Courses(context.Context) (portal.CourseList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courseCalls++
	return portal.NewCourseList(f.courses), nil
}

func (f *fakePortal) Availability(_ context.Context, c portal.Course) (portal.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body, ok := f.bodies[c.ID]; ok {
		return scrape.Availability(c.ID, body, baseTime)
	}
	n, ok := f.remaining[c.ID]
	if !ok {
		return portal.Availability{}, errors.New("endpoint down")
	}
	return portal.NewAvailability(c.ID, []portal.TeachingClass{{ID: "J-" + c.ID, CourseID: c.ID, Remaining: n}}, baseTime), nil
}

func (f *fakePortal) Select(_ context.Context, c portal.Course) (portal.SelectionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, c.ID)
	if err := f.selectErr[c.ID]; err != nil {
		return portal.SelectionResult{}, err
	}
	outcome := f.outcomes[c.ID]
	if outcome == "" {
		outcome = portal.OutcomeSuccess
	}
	return portal.SelectionResult{CourseID: c.ID, ClassID: "J-" + c.ID, Outcome: outcome, Attempts: 1}, nil
}

func (f *fakePortal) Close() {}

func (f *fakePortal) Selected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.selected...)
}

type fakeAudit struct {
	mu           sync.Mutex
	enrollments  []portal.EnrollmentRecord
	availability []portal.Availability
	err          error
}

func (a *fakeAudit) RecordEnrollment(_ context.Context, r portal.EnrollmentRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enrollments = append(a.enrollments, r)
	return a.err
}

func (a *fakeAudit) RecordAvailability(_ context.Context, av portal.Availability) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.availability = append(a.availability, av)
	return a.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

var (
	algebra   = portal.Course{ID: "K1", Code: "M1", Name: "Algebra", Type: portal.CourseTypeRegular}
	biology   = portal.Course{ID: "K2", Code: "B1", Name: "Biology", Type: portal.CourseTypeRegular}
	chemistry = portal.Course{ID: "K3", Code: "C1", Name: "Chemistry", Type: portal.CourseTypeRetake}
	drawing   = portal.Course{ID: "K4", Code: "D1", Name: "Drawing", Type: portal.CourseTypeRegular}
)

type fixture struct {
	svc    *Service
	portal *fakePortal
	store  *sqlite.Store
	audit  *fakeAudit
	events *recordingEmitter
}

func newFixture(t *testing.T, p *fakePortal) fixture {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := fixture{portal: p, store: store, audit: &fakeAudit{}, events: &recordingEmitter{}}
	f.svc, err = New(Options{
		Portal: p,
		Store:  store,
		Audit:  f.audit,
		Events: f.events,
		Clock:  fixedClock{},
	})
	require.NoError(t, err)
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Portal: newFakePortal()})
	require.Error(t, err)
}

func TestRefreshAndCachedCourses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakePortal(algebra, chemistry))
	list, err := f.svc.RefreshCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Regular, 1)
	require.Len(t, list.Retake, 1)

	cached, err := f.svc.CachedCourses(context.Background(), portal.CourseFilter{Type: portal.CourseTypeRetake})
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, "K3", cached[0].ID)
	require.Equal(t, []progress.Stage{progress.StageRefresh}, f.events.Stages())
}

func TestCheckStoresClassSchedule(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra, biology)
	p.bodies["K1"] = []byte(`{"aaData":[
		{"jx0404id":"J1","kch":"M1","kcmc":"Algebra","skls":"张三","sksj":"周一1-2节 周三3-4节","skdd":"理科楼101","syrs":"0"},
		{"jx0404id":"J2","kch":"M1","kcmc":"Algebra","skls":"李四","sksj":"星期五5-6节","skdd":"理科楼202","syrs":"4"}
	]}`)
	f := newFixture(t, p)
	ctx := context.Background()
	_, err := f.svc.RefreshCourses(ctx)
	require.NoError(t, err)

	slots, err := f.store.CourseSchedules(ctx, "K1")
	require.NoError(t, err)
	require.Empty(t, slots)

	avail, err := f.svc.CheckByID(ctx, "K1")
	require.NoError(t, err)
	require.True(t, avail.Available)
	require.Equal(t, "J2", avail.Best.ID)

	slots, err = f.store.CourseSchedules(ctx, "K1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, 5, slots[0].Day)
	require.Equal(t, "14:00", slots[0].Start)
	require.Equal(t, "理科楼202", slots[0].Location)

	_, err = f.svc.RefreshCourses(ctx)
	require.NoError(t, err)
	course, err := f.svc.Course(ctx, "K1")
	require.NoError(t, err)
	require.Equal(t, "周五5-6节[理科楼202]", course.Schedule)
}

func TestGrabSelectsAndRecords(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra)
	p.remaining["K1"] = 4
	f := newFixture(t, p)

	ctx := progress.WithTask(context.Background(), "task-1")
	result, err := f.svc.Grab(ctx, "K1", portal.ActionGrab)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, "J-K1", result.ClassID)
	require.Equal(t, 1, p.courseCalls, "missing course triggers one refresh")

	history, err := f.svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "success", history[0].Status)
	require.Equal(t, portal.ActionGrab, history[0].Action)
	require.Equal(t, baseTime, history[0].Timestamp)

	require.Len(t, f.audit.enrollments, 1)
	require.Len(t, f.audit.availability, 1)

	latest, err := f.store.LatestAvailability(context.Background(), "K1")
	require.NoError(t, err)
	require.Equal(t, 4, latest.TotalRemaining)

	stages := f.events.Stages()
	require.Contains(t, stages, progress.StageCheck)
	for _, evt := range f.events.events {
		if evt.Stage == progress.StageCheck {
			require.Equal(t, "task-1", evt.TaskID)
			require.Equal(t, 4, evt.Remaining)
		}
	}
}

func TestGrabNoSeats(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra)
	p.remaining["K1"] = 0
	f := newFixture(t, p)

	_, err := f.svc.Grab(context.Background(), "K1", portal.ActionScheduled)
	require.ErrorIs(t, err, portal.ErrNoSeats)
	require.Empty(t, p.Selected())

	history, err := f.svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, StatusNoSeats, history[0].Status)
}

func TestGrabUnknownCourse(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakePortal(algebra))
	_, err := f.svc.Grab(context.Background(), "missing", portal.ActionGrab)
	require.ErrorIs(t, err, portal.ErrCourseNotFound)

	history, err := f.svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, StatusError, history[0].Status)
}

func TestGrabSelectFailure(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra, biology)
	p.remaining["K1"] = 2
	p.remaining["K2"] = 2
	p.outcomes["K1"] = portal.OutcomeFailed
	p.selectErr["K2"] = portal.ErrCaptchaRejected
	f := newFixture(t, p)

	result, err := f.svc.Grab(context.Background(), "K1", portal.ActionGrab)
	require.NoError(t, err)
	require.False(t, result.Succeeded())

	_, err = f.svc.Grab(context.Background(), "K2", portal.ActionGrab)
	require.ErrorIs(t, err, portal.ErrCaptchaRejected)

	stats, err := f.store.EnrollmentStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.ByStatus["failed"])
	require.Equal(t, 1, stats.ByStatus[StatusError])
}

func TestSelectNowSkipsAvailability(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra)
	f := newFixture(t, p)

	result, err := f.svc.SelectNow(context.Background(), "K1", portal.ActionTestSelect)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, []string{"K1"}, p.Selected())
	require.Empty(t, f.audit.availability)
}

func TestAutoSelectAll(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra, biology, chemistry, drawing)
	p.remaining["K1"] = 3
	p.remaining["K2"] = 0
	p.remaining["K4"] = 5
	p.outcomes["K4"] = portal.OutcomeFailed
	f := newFixture(t, p)

	var (
		seen  []string
		total int
	)
	report, err := f.svc.AutoSelectAll(context.Background(), AutoSelectOptions{
		AutoSelectOptions: planner.AutoSelectOptions{CourseType: "all", SkipRetakes: true},
		Refresh:           true,
	}, func(done, n int, r CourseResult) {
		seen = append(seen, r.Course.ID+":"+r.Result)
		total = n
		require.Equal(t, len(seen), done)
	})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, []string{"K3:skipped", "K1:selected", "K2:no_seats", "K4:failed"}, seen)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 2, report.Skipped)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{"K1", "K4"}, p.Selected())
}

func TestAutoSelectAllDryRunAndLimits(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra, biology, drawing)
	p.remaining["K1"] = 1
	p.remaining["K2"] = 2
	p.remaining["K4"] = 9
	f := newFixture(t, p)
	_, err := f.svc.RefreshCourses(context.Background())
	require.NoError(t, err)

	report, err := f.svc.AutoSelectAll(context.Background(), AutoSelectOptions{
		MinSlots:   2,
		MaxCourses: 1,
		DryRun:     true,
	}, nil)
	require.NoError(t, err)
	require.Empty(t, p.Selected())
	require.Equal(t, 2, report.Succeeded, "max courses does not stop a dry run")
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, ResultNoSeats, report.Results[0].Result)
	require.Equal(t, ResultWouldSelect, report.Results[1].Result)

	report, err = f.svc.AutoSelectAll(context.Background(), AutoSelectOptions{MaxCourses: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Results, 1)
	require.Equal(t, []string{"K1"}, p.Selected())
}

func TestAutoSelectAllEmptyCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakePortal())
	_, err := f.svc.AutoSelectAll(context.Background(), AutoSelectOptions{}, nil)
	require.ErrorIs(t, err, ErrNoCourses)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	p := newFakePortal(algebra, chemistry)
	p.remaining["K1"] = 0
	f := newFixture(t, p)
	_, _ = f.svc.Grab(context.Background(), "K1", portal.ActionGrab)

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.LoggedIn)
	require.Equal(t, 1, status.Cache.Regular)
	require.Equal(t, 1, status.Cache.Retake)
	require.Equal(t, 1, status.Enrollments.ByStatus[StatusNoSeats])
}

func TestMultiRecorderLogsAuditFailures(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	audit := &fakeAudit{err: errors.New("pg down")}
	rec := NewMultiRecorder(store, audit, zap.New(core))

	require.NoError(t, rec.RecordEnrollment(context.Background(), portal.EnrollmentRecord{
		CourseID: "K1", Action: portal.ActionGrab, Status: "success", Timestamp: baseTime,
	}))
	require.NoError(t, rec.RecordAvailability(context.Background(),
		portal.NewAvailability("K1", nil, baseTime)))
	require.Equal(t, 2, logs.Len())
	require.Len(t, audit.enrollments, 1)

	withoutAudit := NewMultiRecorder(store, nil, nil)
	require.NoError(t, withoutAudit.RecordEnrollment(context.Background(), portal.EnrollmentRecord{
		CourseID: "K2", Action: portal.ActionGrab, Status: "failed", Timestamp: baseTime,
	}))
}
