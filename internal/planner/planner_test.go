package planner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursebot/internal/portal"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	slots := ParseSchedule("周一3-4节[教学楼101] 周三9-10节 周八1-2节")
	require.Len(t, slots, 2)

	require.Equal(t, Slot{
		Day: 1, StartPeriod: 3, EndPeriod: 4,
		Start: "10:00", End: "14:00", Location: "教学楼101",
	}, slots[0])
	require.Equal(t, 3, slots[1].Day)
	require.Equal(t, "19:00", slots[1].Start)
	require.Equal(t, "21:00", slots[1].End)
	require.Empty(t, slots[1].Location)

	require.Empty(t, ParseSchedule(""))
}

func TestParseScheduleWeekdayForms(t *testing.T) {
	t.Parallel()

	slots := ParseSchedule("星期二 5-6节 周天1-2节[体育馆]")
	require.Len(t, slots, 2)
	require.Equal(t, 2, slots[0].Day)
	require.Equal(t, "14:00", slots[0].Start)
	require.Equal(t, 7, slots[1].Day)
	require.Equal(t, "周日1-2节[体育馆]", slots[1].String())

	for _, text := range []string{"周一3-4节[教学楼101]", "周五9-10节"} {
		parsed := ParseSchedule(text)
		require.Len(t, parsed, 1)
		require.Equal(t, text, parsed[0].String())
	}
}

func TestClassSchedule(t *testing.T) {
	t.Parallel()

	avail := portal.NewAvailability("K1", []portal.TeachingClass{
		{ID: "J1", Time: "周一1-2节 周三3-4节", Location: "理科楼101", Remaining: 0},
		{ID: "J2", Time: "待定", Remaining: 8},
	}, time.Time{})
	require.Equal(t, "J2", avail.Best.ID)
	require.Equal(t, "周一1-2节[理科楼101] 周三3-4节[理科楼101]", ClassSchedule(avail))

	avail = portal.NewAvailability("K1", []portal.TeachingClass{
		{ID: "J1", Time: "周二1-2节[A101]", Location: "B202", Remaining: 1},
	}, time.Time{})
	require.Equal(t, "周二1-2节[A101]", ClassSchedule(avail))

	require.Empty(t, ClassSchedule(portal.Availability{CourseID: "K1"}))
	require.Empty(t, ClassSchedule(portal.NewAvailability("K1", []portal.TeachingClass{{ID: "J1"}}, time.Time{})))
}

func TestPeriodTime(t *testing.T) {
	t.Parallel()

	cases := map[int]string{
		1:  "08:00",
		4:  "11:00",
		5:  "14:00",
		8:  "17:00",
		9:  "19:00",
		12: "22:00",
	}
	for period, want := range cases {
		require.Equal(t, want, PeriodTime(period), "period %d", period)
	}
}

func TestConflicts(t *testing.T) {
	t.Parallel()

	slots := map[string][]Slot{
		"A": ParseSchedule("周一1-2节"),
		"B": ParseSchedule("周一2-3节"),
		"C": ParseSchedule("周一3-4节 周二1-2节"),
	}
	conflicts := Conflicts(slots, []string{"A", "B", "C"})
	require.Len(t, conflicts, 2)
	require.Equal(t, "A", conflicts[0].CourseA)
	require.Equal(t, "B", conflicts[0].CourseB)
	require.Equal(t, "B", conflicts[1].CourseA)
	require.Equal(t, "C", conflicts[1].CourseB)

	// A ends at 10:00 exactly when C starts.
	require.False(t, slots["A"][0].Overlaps(slots["C"][0]))
	require.False(t, slots["A"][0].Overlaps(slots["C"][1]))
}

func sampleCourses() []portal.Course {
	return []portal.Course{
		{ID: "1", Name: "高等数学", Kind: "必修", Type: portal.CourseTypeRegular},
		{ID: "2", Name: "大学英语", Kind: "公共选修", Type: portal.CourseTypeRegular},
		{ID: "3", Name: "数学建模", Kind: "选修", Type: portal.CourseTypeRegular},
		{ID: "4", Name: "线性代数", Kind: "必修", Type: portal.CourseTypeRetake},
		{ID: "5", Name: "体育", Kind: "公共", Type: portal.CourseTypeRegular},
	}
}

func ids(courses []portal.Course) []string {
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.ID)
	}
	return out
}

func TestPlanFiltersAndScores(t *testing.T) {
	t.Parallel()

	rules := Rules{
		CourseTypes:      []string{"regular"},
		ExcludeKeywords:  []string{"体育"},
		PriorityTypes:    map[string]float64{"professional": 2},
		PriorityKeywords: map[string]float64{"数学": 1.5},
	}
	plan := Plan(sampleCourses(), rules)
	require.Len(t, plan, 3)
	require.Equal(t, "1", plan[0].Course.ID)
	require.InDelta(t, 4.5, plan[0].Priority, 1e-9)
	require.Equal(t, "3", plan[1].Course.ID)
	require.InDelta(t, 2.5, plan[1].Priority, 1e-9)
	require.Equal(t, "2", plan[2].Course.ID)
	require.InDelta(t, 1.0, plan[2].Priority, 1e-9)
}

func TestPlanKeywordsAndCap(t *testing.T) {
	t.Parallel()

	plan := Plan(sampleCourses(), Rules{Keywords: []string{"数学", "代数"}, MaxCourses: 2})
	require.Len(t, plan, 2)
	require.Equal(t, "1", plan[0].Course.ID)
	require.Equal(t, "3", plan[1].Course.ID)
}

func TestMatchesType(t *testing.T) {
	t.Parallel()

	courses := sampleCourses()
	require.True(t, MatchesType(courses[0], "professional"))
	require.False(t, MatchesType(courses[1], "professional"))
	require.True(t, MatchesType(courses[1], "public"))
	require.True(t, MatchesType(courses[3], "retake"))
	require.False(t, MatchesType(courses[3], "professional"))
	require.True(t, MatchesType(courses[3], "all"))
	require.False(t, MatchesType(courses[0], "bogus"))
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
course_types: [regular]
keywords: [数学]
priority_keywords:
  数学: 2
max_courses: 3
min_slots: 1
`), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Equal(t, []string{"regular"}, rules.CourseTypes)
	require.Equal(t, 2.0, rules.PriorityKeywords["数学"])
	require.Equal(t, 3, rules.MaxCourses)

	_, err = ParseRules([]byte("max_courses: -1"))
	require.Error(t, err)
	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestAutoSelectCandidates(t *testing.T) {
	t.Parallel()

	got := AutoSelectCandidates(sampleCourses(), AutoSelectOptions{
		CourseType:       "all",
		SkipRetakes:      true,
		PriorityKeywords: []string{"英语"},
		ExcludeKeywords:  []string{"体育"},
	})
	require.Equal(t, []string{"2", "1", "3"}, ids(got.Courses))
	require.Equal(t, []string{"4"}, ids(got.Skipped))

	public := AutoSelectCandidates(sampleCourses(), AutoSelectOptions{CourseType: "public"})
	require.Equal(t, []string{"2", "3", "5"}, ids(public.Courses))
}
