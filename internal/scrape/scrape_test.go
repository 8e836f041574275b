package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/coursebot/internal/portal"
)

func TestRoundCodePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want string
	}{
		{"strict", `<a href="javascript:xsxkOpen('A1B2C3')">进入选课</a>`, "A1B2C3"},
		{"loose", `<a onclick="xsxkOpen('ab-12')">进入</a>`, "ab-12"},
		{"query param", `<iframe src="/jsxsd/xsxk/xsxk_index?jx0502zbid=ZB77"></iframe>`, "ZB77"},
		{"short param", `<a href="x?zbid=Q9">go</a>`, "Q9"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := RoundCode(tt.html)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRoundCodeNoRound(t *testing.T) {
	t.Parallel()

	_, err := RoundCode(`<td>未查询到选课轮次数据</td><a href="javascript:xsxkOpen('X1')">`)
	require.ErrorIs(t, err, portal.ErrNoSelectionRound)

	_, err = RoundCode(`<html><body>nothing here</body></html>`)
	require.ErrorIs(t, err, portal.ErrNoSelectionRound)
}

const courseListHTML = `
<table id="dataList">
  <tr><th>类别</th><th>类别</th><th>课程号</th><th>课程名</th><th>学分</th><th>性质</th><th>年级</th><th>操作</th></tr>
  <tr>
    <td>专业课</td><td>核心</td><td>MATH101</td><td> 高等数学 </td><td>4</td><td>必修</td><td>2023</td>
    <td><a href="/jsxsd/xsxkkc/comeInBxxk_Ybdx?kcid=K001&isdyfxkc=0">选课</a></td>
  </tr>
  <tr>
    <td>公共课</td><td></td><td>ENG201</td><td>大学英语</td><td>2</td><td>必修</td><td>2022</td>
    <td><a href="/jsxsd/xsxkkc/comeInGgxxkxk_Ybdx?kcid=K002&cxcktype=1">重修</a></td>
  </tr>
  <tr>
    <td>公共课</td><td></td><td>PE100</td><td>体育</td><td>1</td><td>选修</td><td>2023</td>
    <td><a href="/jsxsd/xsxkkc/comeInGgxxkxk_Ybdx?kcid=K003">选课</a></td>
  </tr>
  <tr><td>short</td><td>row</td></tr>
  <tr>
    <td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td>f</td><td>g</td><td><a href="/no-id">x</a></td>
  </tr>
</table>`

func TestCourseList(t *testing.T) {
	t.Parallel()

	list, err := CourseList(courseListHTML)
	require.NoError(t, err)
	require.Len(t, list.All, 3)
	require.Len(t, list.Regular, 2)
	require.Len(t, list.Retake, 1)

	first := list.All[0]
	require.Equal(t, "K001", first.ID)
	require.Equal(t, "MATH101", first.Code)
	require.Equal(t, "高等数学", first.Name)
	require.Equal(t, "专业课", first.Category1)
	require.Equal(t, "4", first.Credits)
	require.Equal(t, "必修", first.Kind)
	require.Equal(t, "2023", first.Grade)
	require.Equal(t, portal.CourseTypeRegular, first.Type)

	require.Equal(t, "K002", list.Retake[0].ID)
	require.True(t, list.Retake[0].Retake())
	// Ggxxkxk without cxcktype=1 stays a regular course.
	require.Equal(t, portal.CourseTypeRegular, list.All[2].Type)
}

func TestQueryParam(t *testing.T) {
	t.Parallel()

	require.Equal(t, "K1", QueryParam("/a?kcid=K1&x=2", "kcid"))
	require.Equal(t, "", QueryParam("", "kcid"))
	require.Equal(t, "", QueryParam("/a?x=1", "kcid"))
}

func TestAvailabilityParsesMixedCounts(t *testing.T) {
	t.Parallel()

	body := []byte(`{"aaData":[
		{"jx0404id":"C1","kch":"MATH101","kcmc":"高等数学","skls":"张三","sksj":"周一1-2节","skdd":"A101","syrs":"3"},
		{"jx0404id":"C2","skls":"李四","syrs":12},
		{"jx0404id":"C3","syrs":""},
		{"jx0404id":"","syrs":"99"}
	]}`)
	now := time.Unix(1700000000, 0)

	avail, err := Availability("K001", body, now)
	require.NoError(t, err)
	require.Len(t, avail.Classes, 3)
	require.True(t, avail.Available)
	require.Equal(t, 15, avail.TotalRemaining)
	require.Equal(t, "C2", avail.Best.ID)
	require.Equal(t, "张三", avail.Classes[0].Teacher)
	require.Equal(t, "K001", avail.Classes[0].CourseID)
	require.Equal(t, now, avail.CheckedAt)
}

func TestAvailabilityEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	avail, err := Availability("K1", []byte(`{"aaData":[]}`), time.Time{})
	require.NoError(t, err)
	require.False(t, avail.Available)

	_, err = Availability("K1", []byte(`<html>login</html>`), time.Time{})
	require.Error(t, err)
}

func classRowHTML(code, teacher, remaining, link string) string {
	return `<tr><td>` + code + `</td><td>高等数学</td><td>1</td><td>4</td><td>` + teacher +
		`</td><td>周一</td><td>A101</td><td>60</td><td>` + remaining +
		`</td><td>否</td><td><a href="` + link + `">选课</a></td></tr>`
}

func TestClassTable(t *testing.T) {
	t.Parallel()

	html := `<table id="dataView"><thead><tr><th>课程号</th></tr></thead><tbody>` +
		classRowHTML("MATH101", "张三", "2", "javascript:xsxkFun('J1','K001','0')") +
		classRowHTML("MATH101", "李四", "9", "javascript:xsxkOper('J2','a','b','K001','c')") +
		classRowHTML("MATH101", "王五", "满", "javascript:xsxkFun('J3','K001','0')") +
		classRowHTML("MATH101", "赵六", "5", "javascript:void(0)") +
		`</tbody></table>`

	rows, err := ClassTable(html)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "J1", rows[0].Class.ID)
	require.Equal(t, "K001", rows[0].Class.CourseID)
	require.Equal(t, "张三", rows[0].Class.Teacher)
	require.Equal(t, 2, rows[0].Class.Remaining)
	require.Equal(t, 0, rows[2].Class.Remaining)

	best, ok := BestRow(rows)
	require.True(t, ok)
	require.Equal(t, "J2", best.Class.ID)
	require.Contains(t, best.Link, "xsxkOper")
}

func TestClassTableEmptyAndMissing(t *testing.T) {
	t.Parallel()

	rows, err := ClassTable(`<table id="dataView"><tr><td class="dataTables_empty">对不起，查询不到任何相关数据</td></tr></table>`)
	require.NoError(t, err)
	require.Empty(t, rows)

	_, err = ClassTable(`<div>no table</div>`)
	require.Error(t, err)

	_, ok := BestRow([]ClassRow{{Class: portal.TeachingClass{ID: "x", Remaining: 0}}})
	require.False(t, ok)
}

func TestSelectLink(t *testing.T) {
	t.Parallel()

	classID, courseID, ok := SelectLink("javascript:xsxkFun('202320241001','K9','1');")
	require.True(t, ok)
	require.Equal(t, "202320241001", classID)
	require.Equal(t, "K9", courseID)

	classID, courseID, ok = SelectLink("xsxkOper('J7','','','K7','')")
	require.True(t, ok)
	require.Equal(t, "J7", classID)
	require.Equal(t, "K7", courseID)

	_, _, ok = SelectLink("alert('x')")
	require.False(t, ok)
}

func TestClassifyOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, portal.OutcomeSuccess, ClassifyOutcome("选课成功", ""))
	require.Equal(t, portal.OutcomeSuccess, ClassifyOutcome("", "该课程已选"))
	require.Equal(t, portal.OutcomeCaptchaError, ClassifyOutcome("验证码错误!", ""))
	require.Equal(t, portal.OutcomeCaptchaError, ClassifyOutcome("页面", "验证码已过期"))
	require.Equal(t, portal.OutcomeFailed, ClassifyOutcome("选课失败：时间冲突", ""))
	require.Equal(t, portal.OutcomeUnknown, ClassifyOutcome("<html></html>", ""))
	require.Equal(t, portal.OutcomeUnknown, ClassifyOutcome("请输入验证码", ""))
}

func TestNoSelectionRound(t *testing.T) {
	t.Parallel()

	require.True(t, NoSelectionRound("<td>未查询到选课轮次数据</td>"))
	require.False(t, NoSelectionRound("<td>xsxkOpen('A')</td>"))
}
