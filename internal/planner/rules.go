package planner

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// Rules are the user's selection preferences, usually loaded from YAML.
type Rules struct {
	CourseTypes      []string           `yaml:"course_types"`
	Keywords         []string           `yaml:"keywords"`
	ExcludeKeywords  []string           `yaml:"exclude_keywords"`
	PriorityTypes    map[string]float64 `yaml:"priority_types"`
	PriorityKeywords map[string]float64 `yaml:"priority_keywords"`
	MaxCourses       int                `yaml:"max_courses"`
	MinSlots         int                `yaml:"min_slots"`
}

// LoadRules reads a rules file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules. JSON input is accepted too since it is
// valid YAML.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if rules.MaxCourses < 0 || rules.MinSlots < 0 {
		return Rules{}, fmt.Errorf("max_courses and min_slots must not be negative")
	}
	return rules, nil
}

// Scored is a course with its plan priority and parsed schedule.
type Scored struct {
	Course   portal.Course `json:"course"`
	Priority float64       `json:"priority"`
	Slots    []Slot        `json:"slots,omitempty"`
}

// Plan filters courses by rules and orders them by descending priority.
// Every course starts at 1.0 and gains the scores of its matching type and
// keywords. Equal priorities keep input order.
func Plan(courses []portal.Course, rules Rules) []Scored {
	out := make([]Scored, 0, len(courses))
	for _, c := range courses {
		if !rules.admits(c) {
			continue
		}
		out = append(out, Scored{
			Course:   c,
			Priority: rules.score(c),
			Slots:    ParseSchedule(c.Schedule),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if rules.MaxCourses > 0 && len(out) > rules.MaxCourses {
		out = out[:rules.MaxCourses]
	}
	return out
}

func (r Rules) admits(c portal.Course) bool {
	if len(r.CourseTypes) > 0 {
		ok := false
		for _, t := range r.CourseTypes {
			if MatchesType(c, t) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(r.Keywords) > 0 && !nameContainsAny(c.Name, r.Keywords) {
		return false
	}
	return !nameContainsAny(c.Name, r.ExcludeKeywords)
}

func (r Rules) score(c portal.Course) float64 {
	priority := 1.0
	for t, s := range r.PriorityTypes {
		if MatchesType(c, t) {
			priority += s
		}
	}
	for kw, s := range r.PriorityKeywords {
		if strings.Contains(c.Name, kw) {
			priority += s
		}
	}
	return priority
}

// MatchesType reports whether c belongs to the named type. Besides the
// portal's own regular and retake types it understands professional (必修 or
// 专业 courses) and public/elective (选修 or 公共 courses). "all" and the
// empty string match everything.
func MatchesType(c portal.Course, name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return true
	case string(portal.CourseTypeRegular):
		return c.Type == portal.CourseTypeRegular
	case string(portal.CourseTypeRetake), "重修":
		return c.Type == portal.CourseTypeRetake
	case "professional", "必修":
		return !c.Retake() && courseLabelsContain(c, "必修", "专业")
	case "public", "elective", "选修":
		return !c.Retake() && courseLabelsContain(c, "选修", "公共")
	default:
		return false
	}
}

func courseLabelsContain(c portal.Course, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(c.Kind, n) || strings.Contains(c.Category1, n) || strings.Contains(c.Category2, n) {
			return true
		}
	}
	return false
}

func nameContainsAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
