// Package ui renders command output as terminal tables and progress bars.
package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/coursebot/internal/enroll"
	"github.com/JakeFAU/coursebot/internal/planner"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/scheduler"
)

const timeLayout = "2006-01-02 15:04:05"

// NewTable returns a rounded table that renders to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Courses renders a course listing. Availability is optional and keyed by
// course id.
func Courses(w io.Writer, courses []portal.Course, avail map[string]portal.Availability) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Courses (%d)", len(courses)))
	header := table.Row{"#", "ID", "Code", "Name", "Credits", "Type", "Kind"}
	if avail != nil {
		header = append(header, "Seats")
	}
	t.AppendHeader(header)
	for i, c := range courses {
		row := table.Row{i + 1, c.ID, c.Code, c.Name, c.Credits, typeLabel(c.Type), c.Kind}
		if avail != nil {
			if a, ok := avail[c.ID]; ok {
				row = append(row, a.TotalRemaining)
			} else {
				row = append(row, "-")
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

// Availability renders the teaching classes of one course.
func Availability(w io.Writer, course portal.Course, avail portal.Availability) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("%s %s: %d seats", course.ID, course.Name, avail.TotalRemaining))
	t.AppendHeader(table.Row{"Class", "Teacher", "Time", "Location", "Remaining"})
	for _, c := range avail.Classes {
		t.AppendRow(table.Row{c.ID, c.Teacher, c.Time, c.Location, c.Remaining})
	}
	if avail.Best != nil {
		t.AppendFooter(table.Row{"best", avail.Best.ID, "", "", avail.Best.Remaining})
	}
	t.Render()
}

// Selection renders the result of one selection attempt.
func Selection(w io.Writer, result portal.SelectionResult) {
	t := NewTable(w)
	t.AppendRows([]table.Row{
		{"Course", result.CourseID},
		{"Class", result.ClassID},
		{"Outcome", result.Outcome},
		{"Message", result.Message},
		{"Captcha attempts", result.Attempts},
	})
	t.Render()
}

// History renders enrollment records.
func History(w io.Writer, records []portal.EnrollmentRecord) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Enrollment history (%d)", len(records)))
	t.AppendHeader(table.Row{"Time", "Course", "Class", "Action", "Status", "Message"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Timestamp.Local().Format(timeLayout), r.CourseID, r.ClassID, r.Action, r.Status, r.Message,
		})
	}
	t.Render()
}

// Status renders the cache summary and enrollment stats.
func Status(w io.Writer, st enroll.Status) {
	t := NewTable(w)
	t.SetTitle("coursebot status")
	last := "never"
	if st.Cache.LastRefresh != nil {
		last = st.Cache.LastRefresh.Local().Format(timeLayout)
	}
	t.AppendRows([]table.Row{
		{"Logged in", st.LoggedIn},
		{"Regular courses", st.Cache.Regular},
		{"Retake courses", st.Cache.Retake},
		{"Availability snapshots", st.Cache.Snapshots},
		{"Last refresh", last},
		{"Enrollment attempts", st.Enrollments.Total},
	})
	for _, status := range sortedKeys(st.Enrollments.ByStatus) {
		t.AppendRow(table.Row{"  " + status, st.Enrollments.ByStatus[status]})
	}
	t.Render()
}

// Scheduler renders scheduler jobs.
func Scheduler(w io.Writer, st scheduler.Status) {
	t := NewTable(w)
	state := "stopped"
	switch {
	case st.Running && st.Paused:
		state = "paused"
	case st.Running:
		state = "running"
	}
	t.SetTitle(fmt.Sprintf("Scheduler %s, watching %d courses", state, len(st.Watched)))
	t.AppendHeader(table.Row{"Job", "Kind", "Spec", "Course", "Next run", "Retries"})
	for _, j := range st.Jobs {
		retries := ""
		if j.MaxRetries > 0 {
			retries = fmt.Sprintf("%d/%d", j.Retries, j.MaxRetries)
		}
		t.AppendRow(table.Row{j.Name, j.Kind, j.Spec, j.CourseID, formatTime(j.Next), retries})
	}
	t.Render()
}

// Plan renders scored courses.
func Plan(w io.Writer, scored []planner.Scored) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Plan (%d courses)", len(scored)))
	t.AppendHeader(table.Row{"#", "Priority", "ID", "Name", "Type", "Schedule"})
	for i, s := range scored {
		t.AppendRow(table.Row{
			i + 1, fmt.Sprintf("%.1f", s.Priority), s.Course.ID, s.Course.Name, typeLabel(s.Course.Type), slotsLabel(s.Slots),
		})
	}
	t.Render()
}

// Conflicts renders overlapping slots.
func Conflicts(w io.Writer, conflicts []planner.Conflict) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Schedule conflicts (%d)", len(conflicts)))
	t.AppendHeader(table.Row{"Course", "Slot", "Course", "Slot"})
	for _, c := range conflicts {
		t.AppendRow(table.Row{c.CourseA, slotLabel(c.SlotA), c.CourseB, slotLabel(c.SlotB)})
	}
	t.Render()
}

// Report renders the outcome of a bulk selection run.
func Report(w io.Writer, r enroll.Report) {
	t := NewTable(w)
	t.SetTitle("Auto-select results")
	t.AppendHeader(table.Row{"ID", "Name", "Seats", "Result", "Message"})
	for _, res := range r.Results {
		t.AppendRow(table.Row{res.Course.ID, res.Course.Name, res.Remaining, res.Result, res.Message})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("total %d", r.Total),
		fmt.Sprintf("attempted %d", r.Attempted),
		fmt.Sprintf("succeeded %d", r.Succeeded),
		fmt.Sprintf("skipped %d", r.Skipped),
		fmt.Sprintf("failed %d", r.Failed),
	})
	t.Render()
}

var weekdays = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func slotLabel(s planner.Slot) string {
	day := "?"
	if s.Day > 0 && s.Day < len(weekdays) {
		day = weekdays[s.Day]
	}
	label := fmt.Sprintf("%s %s-%s", day, s.Start, s.End)
	if s.Location != "" {
		label += " @" + s.Location
	}
	return label
}

func slotsLabel(slots []planner.Slot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, slotLabel(s))
	}
	return strings.Join(parts, "; ")
}

func typeLabel(t portal.CourseType) string {
	if t == portal.CourseTypeRetake {
		return "retake"
	}
	return "regular"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
