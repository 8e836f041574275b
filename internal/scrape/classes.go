package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/coursebot/internal/portal"
)

const (
	minClassCells  = 10
	operationCell  = 10
	emptyTableText = "对不起"
)

var (
	xsxkFunPattern  = regexp.MustCompile(`xsxkFun\('([^']+)','([^']+)','[^']*'\)`)
	xsxkOperPattern = regexp.MustCompile(`xsxkOper\('([^']+)','[^']*','[^']*','([^']+)','[^']*'\)`)
)

// SelectLink pulls the jx0404id and kcid out of a selection link's href or
// onclick JavaScript. Both the xsxkFun and xsxkOper call shapes are supported.
func SelectLink(js string) (classID, courseID string, ok bool) {
	for _, re := range []*regexp.Regexp{xsxkFunPattern, xsxkOperPattern} {
		if m := re.FindStringSubmatch(js); len(m) == 3 {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

// ClassRow is a parsed row of the #dataView class table together with the
// JavaScript behind its selection link.
type ClassRow struct {
	Class portal.TeachingClass
	Link  string
}

// ClassTable parses the #dataView table shown on a course's class page. The
// "对不起" placeholder row yields no rows and no error. Rows whose selection
// link cannot be parsed are dropped.
func ClassTable(html string) ([]ClassRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse class table: %w", err)
	}
	table := doc.Find("#dataView").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("class table not found")
	}
	if strings.Contains(table.Find("td.dataTables_empty").Text(), emptyTableText) {
		return nil, nil
	}
	var rows []ClassRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if row, ok := classFromRow(tr); ok {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

func classFromRow(tr *goquery.Selection) (ClassRow, bool) {
	cells := tr.Find("td")
	if cells.Length() < minClassCells || cells.Filter(".dataTables_empty").Length() > 0 {
		return ClassRow{}, false
	}
	text := func(i int) string {
		return cleanText(cells.Eq(i).Text())
	}
	op := cells.Last()
	if cells.Length() > operationCell {
		op = cells.Eq(operationCell)
	}
	link := op.Find("a").First()
	js, _ := link.Attr("href")
	if onclick, ok := link.Attr("onclick"); ok && !strings.Contains(js, "xsxk") {
		js = onclick
	}
	classID, courseID, ok := SelectLink(js)
	if !ok {
		return ClassRow{}, false
	}
	return ClassRow{
		Class: portal.TeachingClass{
			ID:        classID,
			CourseID:  courseID,
			Code:      text(0),
			Name:      text(1),
			Teacher:   text(4),
			Remaining: parseRemaining(text(8)),
		},
		Link: js,
	}, true
}

// parseRemaining treats anything that is not a plain number as zero seats.
func parseRemaining(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// BestRow picks the row with the most remaining seats. Rows with no seats
// are never chosen.
func BestRow(rows []ClassRow) (ClassRow, bool) {
	var (
		best  ClassRow
		found bool
	)
	for _, r := range rows {
		if r.Class.Remaining <= 0 {
			continue
		}
		if !found || r.Class.Remaining > best.Class.Remaining {
			best = r
			found = true
		}
	}
	return best, found
}
