// Package scrape extracts courses, seat counts and selection links from the
// registration portal's HTML pages and JSON endpoints.
package scrape

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/coursebot/internal/portal"
)

const noRoundMarker = "未查询到选课轮次数据"

// Round-code patterns in the order they are tried. The strict form matches
// the usual upper-case code; the later ones catch template variations.
var roundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`xsxkOpen\('([A-Z0-9]+)'\)`),
	regexp.MustCompile(`xsxkOpen\('([^']+)'\)`),
	regexp.MustCompile(`jx0502zbid=([A-Z0-9]+)`),
	regexp.MustCompile(`zbid=([A-Z0-9]+)`),
}

// NoSelectionRound reports whether the round overview says no round is open.
func NoSelectionRound(html string) bool {
	return strings.Contains(html, noRoundMarker)
}

// RoundCode extracts the jx0502zbid of the open selection round.
func RoundCode(html string) (string, error) {
	if NoSelectionRound(html) {
		return "", portal.ErrNoSelectionRound
	}
	for _, re := range roundPatterns {
		if m := re.FindStringSubmatch(html); len(m) == 2 && m[1] != "" {
			return m[1], nil
		}
	}
	return "", portal.ErrNoSelectionRound
}
