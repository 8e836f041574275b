package scrape

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/coursebot/internal/portal"
)

type availabilityPayload struct {
	AAData []availabilityRow `json:"aaData"`
}

type availabilityRow struct {
	ClassID  string    `json:"jx0404id"`
	Code     string    `json:"kch"`
	Name     string    `json:"kcmc"`
	Teacher  string    `json:"skls"`
	Time     string    `json:"sksj"`
	Location string    `json:"skdd"`
	Left     flexCount `json:"syrs"`

	// Some deployments return the unabbreviated keys.
	TeacherAlt  string `json:"teacher"`
	TimeAlt     string `json:"time"`
	LocationAlt string `json:"location"`
}

// flexCount accepts seat counts encoded either as numbers or strings.
type flexCount int

func (f *flexCount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fv, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("seat count %q: %w", raw, err)
		}
		n = int(fv)
	}
	*f = flexCount(n)
	return nil
}

// Availability parses an xsxkBxxk / xsxkGgxxkxk JSON response into per-class
// seat counts.
func Availability(courseID string, body []byte, checkedAt time.Time) (portal.Availability, error) {
	var payload availabilityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return portal.Availability{}, fmt.Errorf("decode availability: %w", err)
	}
	classes := make([]portal.TeachingClass, 0, len(payload.AAData))
	for _, row := range payload.AAData {
		if row.ClassID == "" {
			continue
		}
		classes = append(classes, portal.TeachingClass{
			ID:        row.ClassID,
			CourseID:  courseID,
			Code:      row.Code,
			Name:      row.Name,
			Teacher:   cleanText(firstNonEmpty(row.Teacher, row.TeacherAlt)),
			Time:      cleanText(firstNonEmpty(row.Time, row.TimeAlt)),
			Location:  cleanText(firstNonEmpty(row.Location, row.LocationAlt)),
			Remaining: int(row.Left),
		})
	}
	return portal.NewAvailability(courseID, classes, checkedAt), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
