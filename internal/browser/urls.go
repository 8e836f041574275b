package browser

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// Paths on the registration site.
const (
	loginPath        = "/jsxsd/"
	mainPath         = "/jsxsd/framework/xsMain.jsp"
	roundPath        = "/jsxsd/xsxk/xklc_view"
	indexPath        = "/jsxsd/xsxk/xsxk_index?jx0502zbid="
	fallbackListPath = "/jsxsd/xsxk/xsxk_xdxx?xkjzsj=&sfkkkc=1"
)

// URLs builds portal addresses relative to a base such as
// "http://jwxt.ybu.edu.cn".
type URLs struct {
	Base string
}

func (u URLs) join(path string) string {
	return strings.TrimRight(u.Base, "/") + path
}

// Login is the login form.
func (u URLs) Login() string { return u.join(loginPath) }

// Main is the student home frame. It is only served to a signed-in session.
func (u URLs) Main() string { return u.join(mainPath) }

// Round lists the open selection rounds.
func (u URLs) Round() string { return u.join(roundPath) }

// Index opens the selection frame for a round.
func (u URLs) Index(roundCode string) string {
	return u.join(indexPath + url.QueryEscape(roundCode))
}

// FallbackCourses is the plain course list used when the frame yields nothing.
func (u URLs) FallbackCourses() string { return u.join(fallbackListPath) }

// Availability is the JSON endpoint listing a course's teaching classes.
func (u URLs) Availability(c portal.Course) string {
	id := url.QueryEscape(c.ID)
	if c.Retake() {
		return u.join("/jsxsd/xsxkkc/xsxkGgxxkxk?skls=&skxq=&skjc=&sfym=false&sfct=false&szjylb=&sfxx=true&xkkcid=" +
			id + "&iskbxk=")
	}
	return u.join("/jsxsd/xsxkkc/xsxkBxxk?xkkcid=" + id + "&skls=&skxq=&skjc=&sfct=false&iskbxk=&kx=")
}

// SelectPage shows a course's classes with their selection links.
func (u URLs) SelectPage(c portal.Course) string {
	id := url.QueryEscape(c.ID)
	if c.Retake() {
		return u.join("/jsxsd/xsxkkc/comeInGgxxkxk_Ybdx?kcid=" + id + "&isdyfxkc=0")
	}
	return u.join("/jsxsd/xsxkkc/comeInBxxk_Ybdx?kcid=" + id + "&isdyfxkc=0")
}

// Resolve makes ref absolute against the base.
func (u URLs) Resolve(ref string) string {
	base, err := url.Parse(u.Base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// sessionMarkers appear on pages rendered for a signed-in student.
var sessionMarkers = []string{"退出系统", "学生姓名"}

// Authenticated reports whether the page reached after submitting the login
// form belongs to a signed-in session. The bare form page at /jsxsd/ does not.
func Authenticated(pageURL string) bool {
	if strings.Contains(strings.ToLower(pageURL), "login") {
		return false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	path := strings.Trim(u.Path, "/")
	return strings.HasPrefix(path, "jsxsd/")
}

// SessionActive reports whether the home frame at pageURL was served to a
// signed-in student: no bounce to a login page and a session marker in html.
func SessionActive(pageURL, html string) bool {
	if strings.Contains(strings.ToLower(pageURL), "login") {
		return false
	}
	for _, marker := range sessionMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}
