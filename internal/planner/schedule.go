// Package planner parses class schedules and ranks courses for selection.
package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/coursebot/internal/portal"
)

var schedulePattern = regexp.MustCompile(`(?:周|星期)([一二三四五六日天])\s*(\d+)-(\d+)节(?:\[([^\]]+)\])?`)

var weekdays = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6, "日": 7, "天": 7,
}

var dayNames = [...]string{"", "一", "二", "三", "四", "五", "六", "日"}

// Slot is one weekly meeting of a class.
type Slot struct {
	Day         int    `json:"day_of_week"`
	StartPeriod int    `json:"start_period"`
	EndPeriod   int    `json:"end_period"`
	Start       string `json:"start_time"`
	End         string `json:"end_time"`
	Location    string `json:"location,omitempty"`
}

// ParseSchedule extracts every "周一3-4节[教学楼101]" style slot from text.
// "星期一 3-4节" is accepted too.
func ParseSchedule(text string) []Slot {
	matches := schedulePattern.FindAllStringSubmatch(text, -1)
	slots := make([]Slot, 0, len(matches))
	for _, m := range matches {
		day := weekdays[m[1]]
		start, err1 := strconv.Atoi(m[2])
		end, err2 := strconv.Atoi(m[3])
		if day == 0 || err1 != nil || err2 != nil {
			continue
		}
		slots = append(slots, Slot{
			Day:         day,
			StartPeriod: start,
			EndPeriod:   end,
			Start:       PeriodTime(start),
			End:         PeriodTime(end + 1),
			Location:    m[4],
		})
	}
	return slots
}

// String formats the slot the way ParseSchedule reads it.
func (s Slot) String() string {
	day := ""
	if s.Day >= 1 && s.Day < len(dayNames) {
		day = dayNames[s.Day]
	}
	out := fmt.Sprintf("周%s%d-%d节", day, s.StartPeriod, s.EndPeriod)
	if s.Location != "" {
		out += "[" + s.Location + "]"
	}
	return out
}

// ClassSchedule derives a course schedule from a seat check: the class time
// of the best class, or of the first class with one, with the class location
// filled in where the time carries none. It returns "" when no class time
// parses.
func ClassSchedule(avail portal.Availability) string {
	classes := make([]portal.TeachingClass, 0, len(avail.Classes)+1)
	if avail.Best != nil {
		classes = append(classes, *avail.Best)
	}
	classes = append(classes, avail.Classes...)
	for _, c := range classes {
		slots := ParseSchedule(c.Time)
		if len(slots) == 0 {
			continue
		}
		parts := make([]string, 0, len(slots))
		for _, slot := range slots {
			if slot.Location == "" {
				slot.Location = strings.TrimSpace(c.Location)
			}
			parts = append(parts, slot.String())
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// PeriodTime returns the HH:MM start of a teaching period. Mornings start at
// 08:00, afternoons (period 5) at 14:00 and evenings (period 9) at 19:00, with
// one hour per period.
func PeriodTime(period int) string {
	minutes := periodMinutes(period)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func periodMinutes(period int) int {
	switch {
	case period <= 4:
		return 8*60 + (period-1)*60
	case period <= 8:
		return 14*60 + (period-5)*60
	default:
		return 19*60 + (period-9)*60
	}
}

func clockMinutes(hhmm string) int {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0
	}
	return h*60 + m
}

// Overlaps reports whether two slots share a day and overlapping time.
func (s Slot) Overlaps(other Slot) bool {
	if s.Day != other.Day {
		return false
	}
	return clockMinutes(s.Start) < clockMinutes(other.End) &&
		clockMinutes(other.Start) < clockMinutes(s.End)
}

// Conflict pairs two overlapping slots of different courses.
type Conflict struct {
	CourseA string `json:"course_a"`
	SlotA   Slot   `json:"slot_a"`
	CourseB string `json:"course_b"`
	SlotB   Slot   `json:"slot_b"`
}

// Conflicts returns every overlapping pair across the given courses. Slots
// of the same course are not compared with each other.
func Conflicts(slots map[string][]Slot, order []string) []Conflict {
	var out []Conflict
	for i, a := range order {
		for _, b := range order[i+1:] {
			for _, sa := range slots[a] {
				for _, sb := range slots[b] {
					if sa.Overlaps(sb) {
						out = append(out, Conflict{CourseA: a, SlotA: sa, CourseB: b, SlotB: sb})
					}
				}
			}
		}
	}
	return out
}
