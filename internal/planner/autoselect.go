package planner

import (
	"sort"

	"github.com/JakeFAU/coursebot/internal/portal"
)

const (
	priorityKeywordBonus = 10.0
	professionalBonus    = 5.0
)

// AutoSelectOptions narrows and orders the courses tried by bulk selection.
type AutoSelectOptions struct {
	// CourseType is professional, public or all.
	CourseType       string
	SkipRetakes      bool
	PriorityKeywords []string
	ExcludeKeywords  []string
}

// Candidates is the ordered list of courses to try plus those skipped up
// front.
type Candidates struct {
	Courses []portal.Course
	Skipped []portal.Course
}

// AutoSelectCandidates filters courses and orders them so that priority
// keyword matches come first, then professional courses.
func AutoSelectCandidates(courses []portal.Course, opts AutoSelectOptions) Candidates {
	type ranked struct {
		course portal.Course
		score  float64
	}
	var (
		out     Candidates
		ordered []ranked
	)
	for _, c := range courses {
		if !MatchesType(c, opts.CourseType) {
			continue
		}
		if nameContainsAny(c.Name, opts.ExcludeKeywords) {
			continue
		}
		if opts.SkipRetakes && c.Retake() {
			out.Skipped = append(out.Skipped, c)
			continue
		}
		score := 0.0
		for _, kw := range opts.PriorityKeywords {
			if nameContainsAny(c.Name, []string{kw}) {
				score += priorityKeywordBonus
			}
		}
		if MatchesType(c, "professional") {
			score += professionalBonus
		}
		ordered = append(ordered, ranked{course: c, score: score})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].score > ordered[j].score })
	out.Courses = make([]portal.Course, 0, len(ordered))
	for _, r := range ordered {
		out.Courses = append(out.Courses, r.course)
	}
	return out
}
