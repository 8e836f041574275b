package scrape

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/coursebot/internal/portal"
)

const minCourseCells = 7

// CourseList parses table#dataList on the course overview page. Rows with
// fewer than seven cells or without a kcid are skipped.
func CourseList(html string) (portal.CourseList, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return portal.CourseList{}, fmt.Errorf("parse course list: %w", err)
	}
	var courses []portal.Course
	doc.Find("table#dataList tr").Each(func(_ int, row *goquery.Selection) {
		if course, ok := courseFromRow(row); ok {
			courses = append(courses, course)
		}
	})
	return portal.NewCourseList(courses), nil
}

func courseFromRow(row *goquery.Selection) (portal.Course, bool) {
	cells := row.Find("td")
	if cells.Length() < minCourseCells {
		return portal.Course{}, false
	}
	text := func(i int) string {
		return cleanText(cells.Eq(i).Text())
	}
	href, _ := cells.Last().Find("a[href]").First().Attr("href")
	id := QueryParam(href, "kcid")
	if id == "" {
		return portal.Course{}, false
	}
	course := portal.Course{
		ID:        id,
		Category1: text(0),
		Category2: text(1),
		Code:      text(2),
		Name:      text(3),
		Credits:   text(4),
		Kind:      text(5),
		Grade:     text(6),
		Type:      portal.CourseTypeRegular,
		URL:       href,
	}
	if IsRetakeLink(href) {
		course.Type = portal.CourseTypeRetake
	}
	return course, true
}

// IsRetakeLink reports whether a course link opens the retake selection flow.
func IsRetakeLink(href string) bool {
	return strings.Contains(href, "comeInGgxxkxk_Ybdx") && strings.Contains(href, "cxcktype=1")
}

// QueryParam returns the named query parameter from an absolute or relative
// link, or the empty string.
func QueryParam(href, name string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
