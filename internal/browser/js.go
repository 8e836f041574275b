package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Selector lists tried in order on the selection pages.
var (
	captchaUISelectors = []string{
		"#verifyCodeDiv",
		`iframe[src*="xsxk_xdxx"]`,
		`input[name="verifyCode"], #verifyCode`,
	}
	captchaImageSelectors = []string{
		`img[id*="yzm"], img[src*="yzm"]`,
		"#verifyCodeDiv img",
		`img[src*="captcha"]`,
		`img[src*="verify"]`,
		`img[onclick*="refresh"], img[onclick*="change"]`,
	}
	captchaSubmitSelectors = []string{
		"#changeVerifyCode",
		`a[name="changeVerifyCode"]`,
		`a[onclick*="changeVerifyCode"]`,
		"#verifyCodeDiv input[type=submit]",
		"#verifyCodeDiv button[type=submit]",
	}
	captchaRefreshSelectors = []string{
		"#kaptchaImage",
		"#verifyCodeDiv img",
		`img[src*="kaptcha"]`,
		`img[src*="captcha"]`,
		`img[onclick*="refresh"]`,
		`img[onclick*="change"]`,
	}
	loginCaptchaSelectors = []string{
		"#SafeCodeImg",
		`img[src*="verifycode"]`,
		`img[src*="verifyCode"]`,
	}
)

// Login form fields.
const (
	accountSelector  = `input[name="userAccount"]`
	passwordSelector = `input[name="userPassword"]`
	loginCodeInput   = `input[name="verifyCode"]`
	loginSubmit      = `input[type="submit"], button[type="submit"], #btnSubmit`
	classRowsReady   = `document.querySelectorAll('#dataView tbody tr').length > 0`
)

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}

func jsStringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = jsString(v)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// firstVisibleJS evaluates to the first selector that matches a visible
// element, or "".
func firstVisibleJS(selectors []string) string {
	return fmt.Sprintf(`(function(){
  var sels = %s;
  for (var i = 0; i < sels.length; i++) {
    var el = document.querySelector(sels[i]);
    if (el && (el.offsetParent !== null || el.getClientRects().length > 0)) { return sels[i]; }
  }
  return "";
})()`, jsStringArray(selectors))
}

// anyPresentJS evaluates to true when any selector matches.
func anyPresentJS(selectors []string) string {
	return fmt.Sprintf(`(function(){
  var sels = %s;
  for (var i = 0; i < sels.length; i++) {
    if (document.querySelector(sels[i])) { return true; }
  }
  return false;
})()`, jsStringArray(selectors))
}

// clickFirstJS clicks the first matching element. When nothing matches it
// calls fallback, a global function name, if that exists.
func clickFirstJS(selectors []string, fallback string) string {
	call := "false"
	if fallback != "" {
		call = fmt.Sprintf(`(typeof window[%[1]s] === "function" ? (window[%[1]s](), true) : false)`, jsString(fallback))
	}
	return fmt.Sprintf(`(function(){
  var sels = %s;
  for (var i = 0; i < sels.length; i++) {
    var el = document.querySelector(sels[i]);
    if (el) { el.click(); return true; }
  }
  return %s;
})()`, jsStringArray(selectors), call)
}

// callIfDefinedJS calls a global function when the page defines it.
func callIfDefinedJS(name string) string {
	return fmt.Sprintf(`(function(){
  if (typeof window[%[1]s] === "function") { window[%[1]s](); return true; }
  return false;
})()`, jsString(name))
}

// clickClassLinkJS clicks the selection link whose href or onclick mentions
// classID.
func clickClassLinkJS(classID string) string {
	return fmt.Sprintf(`(function(){
  var id = %s;
  var links = document.querySelectorAll('#dataView a');
  for (var i = 0; i < links.length; i++) {
    var a = links[i];
    var js = (a.getAttribute('href') || '') + ' ' + (a.getAttribute('onclick') || '');
    if (js.indexOf(id) >= 0) { a.click(); return true; }
  }
  return false;
})()`, jsString(classID))
}

// fillCaptchaJS writes the hidden selection fields and the code into the
// verification form.
func fillCaptchaJS(classID, courseID, code string) string {
	return fmt.Sprintf(`(function(){
  var set = function(name, value) {
    var el = document.getElementById(name) || document.querySelector('[name="' + name + '"]');
    if (el) { el.value = value; }
  };
  set('yzmxkJx0404id', %s);
  set('yzmxkKcid', %s);
  set('yzmxkXkzy', '');
  set('yzmxkTrjf', '');
  set('yzmxkCfbs', 'null');
  var input = document.querySelector('input[name="verifyCode"], #verifyCode');
  if (!input) { return false; }
  input.value = %s;
  input.dispatchEvent(new Event('input', {bubbles: true}));
  return true;
})()`, jsString(classID), jsString(courseID), jsString(code))
}

// openCourseListJS ticks the "only open courses" box inside #mainFrame and
// reloads the list. It evaluates to false when the frame is not reachable.
const openCourseListJS = `(function(){
  var frame = document.getElementById('mainFrame');
  if (!frame || !frame.contentWindow) { return false; }
  try {
    var doc = frame.contentWindow.document;
    var box = doc.getElementById('sfkkkc');
    if (box && !box.checked) { box.checked = true; }
    if (typeof frame.contentWindow.doKkkc === 'function') { frame.contentWindow.doKkkc(); }
    return true;
  } catch (e) {
    return false;
  }
})()`

// frameHTMLJS evaluates to the rendered HTML of #mainFrame, or "".
const frameHTMLJS = `(function(){
  var frame = document.getElementById('mainFrame');
  try {
    return frame && frame.contentDocument ? frame.contentDocument.documentElement.outerHTML : "";
  } catch (e) {
    return "";
  }
})()`

// frameSrcJS evaluates to the src attribute of #mainFrame, or "".
const frameSrcJS = `(function(){
  var frame = document.getElementById('mainFrame');
  return frame ? (frame.getAttribute('src') || "") : "";
})()`

// openCourseListTopJS is openCourseListJS for a page loaded outside the frame.
const openCourseListTopJS = `(function(){
  var box = document.getElementById('sfkkkc');
  if (box && !box.checked) { box.checked = true; }
  if (typeof window.doKkkc === 'function') { window.doKkkc(); return true; }
  return false;
})()`

// iframeCaptchaSrcJS evaluates to the captcha image src inside the
// verification iframe, or "".
var iframeCaptchaSrcJS = fmt.Sprintf(`(function(){
  var frame = document.querySelector('iframe[src*="xsxk_xdxx"]');
  if (!frame) { return ""; }
  try {
    var doc = frame.contentDocument;
    var sels = %s;
    for (var i = 0; i < sels.length; i++) {
      var img = doc.querySelector(sels[i]);
      if (img) { return img.src || img.getAttribute('src') || ""; }
    }
  } catch (e) {}
  return "";
})()`, jsStringArray(captchaImageSelectors))
