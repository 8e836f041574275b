package scrape

import (
	"strings"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// ClassifyOutcome interprets the page text and any captured alert text after
// a selection submit. Success words are checked before error words.
func ClassifyOutcome(pageText, alertText string) portal.Outcome {
	text := alertText + "\n" + pageText
	switch {
	case strings.Contains(text, "成功") || strings.Contains(text, "已选"):
		return portal.OutcomeSuccess
	case strings.Contains(text, "验证码") &&
		(strings.Contains(text, "错误") || strings.Contains(text, "过期")):
		return portal.OutcomeCaptchaError
	case strings.Contains(text, "失败") || strings.Contains(text, "冲突") || strings.Contains(text, "已满"):
		return portal.OutcomeFailed
	default:
		return portal.OutcomeUnknown
	}
}
