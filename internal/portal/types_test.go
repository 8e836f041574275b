package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAvailabilityPicksBestClass(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	avail := NewAvailability("K1", []TeachingClass{
		{ID: "a", Remaining: 2},
		{ID: "b", Remaining: 7},
		{ID: "c", Remaining: 7},
		{ID: "d", Remaining: -1},
	}, now)

	require.True(t, avail.Available)
	require.Equal(t, 16, avail.TotalRemaining)
	require.NotNil(t, avail.Best)
	require.Equal(t, "b", avail.Best.ID)
	require.Equal(t, now, avail.CheckedAt)
}

func TestNewAvailabilityEmpty(t *testing.T) {
	t.Parallel()

	avail := NewAvailability("K1", nil, time.Time{})
	require.False(t, avail.Available)
	require.Nil(t, avail.Best)
	require.Zero(t, avail.TotalRemaining)
}

func TestNewCourseListPartitions(t *testing.T) {
	t.Parallel()

	list := NewCourseList([]Course{
		{ID: "1", Type: CourseTypeRegular},
		{ID: "2", Type: CourseTypeRetake},
		{ID: "3", Type: CourseTypeRegular},
	})
	require.Len(t, list.All, 3)
	require.Len(t, list.Regular, 2)
	require.Len(t, list.Retake, 1)
	require.Equal(t, "2", list.Retake[0].ID)
}

func TestCourseMatches(t *testing.T) {
	t.Parallel()

	c := Course{Name: "高等数学", Code: "MATH101", Kind: "必修"}
	require.True(t, c.Matches("数学"))
	require.True(t, c.Matches("MATH"))
	require.True(t, c.Matches("必修"))
	require.False(t, c.Matches("  "))
	require.False(t, c.Matches("物理"))
}
