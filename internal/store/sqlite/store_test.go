package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursebot/internal/portal"
)

var baseTime = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return baseTime }
	return s
}

func testCourses() []portal.Course {
	return []portal.Course{
		{
			ID: "K001", Code: "MATH101", Name: "高等数学", Credits: "4", Kind: "必修",
			Category1: "专业", Type: portal.CourseTypeRegular, Schedule: "周一1-2节[理科楼101] 周三3-4节",
		},
		{ID: "K002", Code: "ENG201", Name: "大学英语", Credits: "2", Type: portal.CourseTypeRegular},
		{ID: "K003", Code: "PHY110", Name: "大学物理", Credits: "3", Type: portal.CourseTypeRetake},
		{Name: "no id"},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestSaveAndQueryCourses(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCourses(ctx, testCourses()))

	all, err := s.Courses(ctx, portal.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	retakes, err := s.Courses(ctx, portal.CourseFilter{Type: portal.CourseTypeRetake})
	require.NoError(t, err)
	require.Len(t, retakes, 1)
	require.Equal(t, "K003", retakes[0].ID)

	byKeyword, err := s.Courses(ctx, portal.CourseFilter{Keyword: "ENG"})
	require.NoError(t, err)
	require.Len(t, byKeyword, 1)
	require.Equal(t, "K002", byKeyword[0].ID)

	course, err := s.Course(ctx, "K001")
	require.NoError(t, err)
	require.Equal(t, "高等数学", course.Name)
	require.Equal(t, "必修", course.Kind)
	require.Equal(t, "专业", course.Category1)
	require.Equal(t, baseTime, course.UpdatedAt)

	_, err = s.Course(ctx, "missing")
	require.ErrorIs(t, err, portal.ErrCourseNotFound)
}

func TestSaveCoursesUpsertsAndRebuildsSchedules(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCourses(ctx, testCourses()))

	slots, err := s.CourseSchedules(ctx, "K001")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Equal(t, 1, slots[0].Day)
	require.Equal(t, "08:00", slots[0].Start)
	require.Equal(t, "理科楼101", slots[0].Location)

	updated := testCourses()[0]
	updated.Name = "高等数学A"
	updated.Schedule = "周五5-6节"
	require.NoError(t, s.SaveCourses(ctx, []portal.Course{updated}))

	course, err := s.Course(ctx, "K001")
	require.NoError(t, err)
	require.Equal(t, "高等数学A", course.Name)

	slots, err = s.CourseSchedules(ctx, "K001")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, 5, slots[0].Day)
	require.Equal(t, "14:00", slots[0].Start)
}

func TestSaveScheduleSurvivesCatalogRefresh(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCourses(ctx, testCourses()))

	slots, err := s.CourseSchedules(ctx, "K002")
	require.NoError(t, err)
	require.Empty(t, slots)

	require.NoError(t, s.SaveSchedule(ctx, "K002", "周二3-4节[外语楼201]"))
	require.ErrorIs(t, s.SaveSchedule(ctx, "missing", "周一1-2节"), portal.ErrCourseNotFound)

	// a catalog refresh carries no class times
	require.NoError(t, s.SaveCourses(ctx, testCourses()))

	course, err := s.Course(ctx, "K002")
	require.NoError(t, err)
	require.Equal(t, "周二3-4节[外语楼201]", course.Schedule)

	slots, err = s.CourseSchedules(ctx, "K002")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, 2, slots[0].Day)
	require.Equal(t, "外语楼201", slots[0].Location)
}

func TestAvailabilityRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCourses(ctx, testCourses()))

	_, err := s.LatestAvailability(ctx, "K001")
	require.ErrorIs(t, err, portal.ErrNoAvailability)

	first := portal.NewAvailability("K001", []portal.TeachingClass{
		{ID: "J1", Remaining: 0, Teacher: "张老师"},
	}, baseTime.Add(-time.Hour))
	second := portal.NewAvailability("K001", []portal.TeachingClass{
		{ID: "J1", Remaining: 2, Teacher: "张老师"},
		{ID: "J2", Remaining: 5, Teacher: "李老师", Location: "101"},
	}, baseTime)
	require.NoError(t, s.SaveAvailability(ctx, first))
	require.NoError(t, s.SaveAvailability(ctx, second))
	require.NoError(t, s.SaveAvailability(ctx, portal.NewAvailability("K002", nil, baseTime)))

	latest, err := s.LatestAvailability(ctx, "K001")
	require.NoError(t, err)
	require.True(t, latest.Available)
	require.Equal(t, 7, latest.TotalRemaining)
	require.Len(t, latest.Classes, 2)
	require.NotNil(t, latest.Best)
	require.Equal(t, "J2", latest.Best.ID)
	require.Equal(t, "101", latest.Best.Location)
	require.Equal(t, baseTime, latest.CheckedAt)

	empty, err := s.LatestAvailability(ctx, "K002")
	require.NoError(t, err)
	require.False(t, empty.Available)
	require.Empty(t, empty.Classes)

	history, err := s.AvailabilityHistory(ctx, "K001", 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 7, history[0].TotalRemaining)
	require.Equal(t, 0, history[1].TotalRemaining)

	open, err := s.Courses(ctx, portal.CourseFilter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "K001", open[0].ID)
}

func TestEnrollmentHistoryAndStats(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	records := []portal.EnrollmentRecord{
		{CourseID: "K001", ClassID: "J1", Action: portal.ActionGrab, Status: "success", Timestamp: baseTime.Add(-time.Hour)},
		{CourseID: "K002", Action: portal.ActionAutoSelect, Status: "no_seats", Timestamp: baseTime.Add(-30 * time.Minute)},
		{CourseID: "K003", Action: portal.ActionGrab, Status: "failed", Timestamp: baseTime.Add(-72 * time.Hour)},
	}
	for _, r := range records {
		require.NoError(t, s.RecordEnrollment(ctx, r))
	}

	recent, err := s.EnrollmentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "K002", recent[0].CourseID)
	require.Equal(t, portal.ActionAutoSelect, recent[0].Action)

	all, err := s.EnrollmentHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	stats, err := s.EnrollmentStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.ByStatus["success"])
	require.NotNil(t, stats.Last)
	require.Equal(t, baseTime.Add(-30*time.Minute), *stats.Last)
}

func TestTasks(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	require.Error(t, s.CreateTask(ctx, portal.Task{}))
	require.NoError(t, s.CreateTask(ctx, portal.Task{
		ID: "t1", Kind: portal.TaskGrab, CourseID: "K001", Status: portal.TaskQueued, Created: baseTime.Add(-time.Minute),
	}))
	require.NoError(t, s.CreateTask(ctx, portal.Task{ID: "t2", Kind: portal.TaskRefresh, Status: portal.TaskQueued}))

	require.NoError(t, s.UpdateTask(ctx, "t1", portal.TaskSucceeded, "done"))
	require.ErrorIs(t, s.UpdateTask(ctx, "nope", portal.TaskFailed, ""), portal.ErrTaskNotFound)

	task, err := s.Task(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, portal.TaskSucceeded, task.Status)
	require.Equal(t, "done", task.Message)
	require.Equal(t, baseTime, task.Updated)

	_, err = s.Task(ctx, "nope")
	require.ErrorIs(t, err, portal.ErrTaskNotFound)

	tasks, err := s.Tasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "t2", tasks[0].ID)
}

func TestSummaryAndClear(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Regular)
	require.Nil(t, summary.LastRefresh)

	require.NoError(t, s.SaveCourses(ctx, testCourses()))
	require.NoError(t, s.SaveAvailability(ctx, portal.NewAvailability("K001", nil, baseTime)))

	summary, err = s.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Regular)
	require.Equal(t, 1, summary.Retake)
	require.Equal(t, 1, summary.Snapshots)
	require.NotNil(t, summary.LastRefresh)

	require.NoError(t, s.Clear(ctx))
	courses, err := s.Courses(ctx, portal.CourseFilter{})
	require.NoError(t, err)
	require.Empty(t, courses)
}
