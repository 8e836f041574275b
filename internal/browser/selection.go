package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/coursebot/internal/fetcher/colly"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
	"github.com/JakeFAU/coursebot/internal/scrape"
)

const rowsWait = 10 * time.Second

// Select picks the class of course with the most remaining seats and submits
// it, solving the verification captcha when the portal asks for one.
func (b *Browser) Select(ctx context.Context, course portal.Course) (portal.SelectionResult, error) {
	result := portal.SelectionResult{CourseID: course.ID}
	if err := b.ensureLogin(ctx); err != nil {
		return result, err
	}
	tabCtx, done, err := b.tab(ctx)
	if err != nil {
		return result, err
	}
	defer done()

	dialogs := &dialogLog{}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			dialogs.add(e.Message)
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					b.deps.Logger.Debug("dialog accept failed", zap.Error(err))
				}
			}()
		}
	})

	start := time.Now()
	b.emit(ctx, progress.Event{Stage: progress.StageSelectStart, Level: progress.LevelInfo, CourseID: course.ID})

	row, err := b.chooseClass(tabCtx, course)
	if err != nil {
		b.selectError(ctx, course.ID, "", err)
		return result, err
	}
	result.ClassID = row.Class.ID
	b.deps.Logger.Info("class chosen",
		zap.String("course_id", course.ID),
		zap.String("jx0404id", row.Class.ID),
		zap.Int("remaining", row.Class.Remaining),
	)

	var clicked bool
	if err := b.run(tabCtx, chromedp.Evaluate(clickClassLinkJS(row.Class.ID), &clicked)); err != nil {
		b.selectError(ctx, course.ID, row.Class.ID, err)
		return result, fmt.Errorf("click selection link: %w", err)
	}
	if !clicked {
		b.selectError(ctx, course.ID, row.Class.ID, portal.ErrSelectLinkMissing)
		return result, portal.ErrSelectLinkMissing
	}
	if err := b.sleep(tabCtx, b.cfg.SettleDelay); err != nil {
		return result, err
	}

	result, err = b.submitSelection(ctx, tabCtx, course, row, dialogs)
	result.CourseID = course.ID
	result.ClassID = row.Class.ID
	if err != nil {
		b.selectError(ctx, course.ID, row.Class.ID, err)
		return result, err
	}
	level := progress.LevelWarning
	if result.Succeeded() {
		level = progress.LevelSuccess
	}
	b.emit(ctx, progress.Event{
		Stage:     progress.StageSelectDone,
		Level:     level,
		CourseID:  course.ID,
		ClassID:   row.Class.ID,
		Remaining: row.Class.Remaining,
		Note:      string(result.Outcome),
		Dur:       time.Since(start),
	})
	return result, nil
}

// chooseClass loads the class page and returns the row with most seats.
func (b *Browser) chooseClass(tabCtx context.Context, course portal.Course) (scrape.ClassRow, error) {
	if _, _, err := b.open(tabCtx, "select_page", b.urls.SelectPage(course)); err != nil {
		return scrape.ClassRow{}, err
	}

	var ready bool
	waitCtx, cancel := context.WithTimeout(tabCtx, rowsWait)
	err := chromedp.Run(waitCtx, chromedp.Poll(classRowsReady, &ready, chromedp.WithPollingInterval(250*time.Millisecond)))
	cancel()
	if err != nil || !ready {
		var called bool
		if err := b.run(tabCtx, chromedp.Evaluate(callIfDefinedJS("queryKxkcList"), &called)); err != nil {
			return scrape.ClassRow{}, fmt.Errorf("reload class list: %w", err)
		}
		if err := b.sleep(tabCtx, b.cfg.SettleDelay); err != nil {
			return scrape.ClassRow{}, err
		}
	}

	var html string
	if err := b.run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return scrape.ClassRow{}, fmt.Errorf("read class table: %w", err)
	}
	b.dump(tabCtx, "class_table_"+course.ID, html)

	rows, err := scrape.ClassTable(html)
	if err != nil {
		return scrape.ClassRow{}, err
	}
	if len(rows) == 0 {
		return scrape.ClassRow{}, fmt.Errorf("%w: no classes listed", portal.ErrNoSeats)
	}
	best, ok := scrape.BestRow(rows)
	if !ok {
		return scrape.ClassRow{}, portal.ErrNoSeats
	}
	return best, nil
}

// submitSelection finishes a selection after the link was clicked.
func (b *Browser) submitSelection(
	ctx, tabCtx context.Context,
	course portal.Course,
	row scrape.ClassRow,
	dialogs *dialogLog,
) (portal.SelectionResult, error) {
	result := portal.SelectionResult{}

	var captchaShown bool
	if err := b.run(tabCtx, chromedp.Evaluate(anyPresentJS(captchaUISelectors), &captchaShown)); err != nil {
		return result, fmt.Errorf("find captcha: %w", err)
	}
	if !captchaShown {
		text, err := b.bodyText(tabCtx)
		if err != nil {
			return result, err
		}
		result.Outcome = scrape.ClassifyOutcome(text, dialogs.text())
		result.Message = firstLine(dialogs.text(), text)
		return result, nil
	}

	if b.deps.Solver == nil {
		return result, fmt.Errorf("%w: no captcha solver configured", portal.ErrCaptchaUnsolved)
	}

	for attempt := 1; attempt <= b.cfg.CaptchaAttempts; attempt++ {
		result.Attempts = attempt
		image, err := b.captchaImage(tabCtx, course)
		if err != nil {
			return result, err
		}
		answer, err := b.deps.Solver.Solve(ctx, image)
		if err != nil {
			return result, err
		}
		result.CaptchaCode = answer.Code
		b.emit(ctx, progress.Event{
			Stage:    progress.StageCaptcha,
			Level:    progress.LevelInfo,
			CourseID: course.ID,
			ClassID:  row.Class.ID,
			Note:     answer.Engine,
		})

		dialogs.reset()
		var filled, submitted bool
		err = b.run(tabCtx,
			chromedp.Evaluate(fillCaptchaJS(row.Class.ID, course.ID, answer.Code), &filled),
			chromedp.Evaluate(clickFirstJS(captchaSubmitSelectors, "changeVerifyCode"), &submitted),
		)
		if err != nil {
			return result, fmt.Errorf("submit captcha: %w", err)
		}
		if !filled || !submitted {
			return result, fmt.Errorf("%w: verification form not found", portal.ErrCaptchaUnsolved)
		}
		if err := b.sleep(tabCtx, b.cfg.SettleDelay); err != nil {
			return result, err
		}

		text, err := b.bodyText(tabCtx)
		if err != nil {
			return result, err
		}
		alert := dialogs.text()
		result.Outcome = scrape.ClassifyOutcome(text, alert)
		result.Message = firstLine(alert, text)
		if result.Outcome != portal.OutcomeCaptchaError {
			return result, nil
		}

		b.deps.Logger.Info("captcha rejected",
			zap.String("course_id", course.ID),
			zap.Int("attempt", attempt),
		)
		var refreshed bool
		if err := b.run(tabCtx, chromedp.Evaluate(clickFirstJS(captchaRefreshSelectors, ""), &refreshed)); err != nil {
			return result, fmt.Errorf("refresh captcha: %w", err)
		}
		if err := b.sleep(tabCtx, time.Second); err != nil {
			return result, err
		}
	}
	return result, portal.ErrCaptchaRejected
}

// captchaImage screenshots the first visible captcha image. When the image
// lives in the verification iframe its src is downloaded instead.
func (b *Browser) captchaImage(tabCtx context.Context, course portal.Course) ([]byte, error) {
	var selector string
	if err := b.run(tabCtx, chromedp.Evaluate(firstVisibleJS(captchaImageSelectors), &selector)); err != nil {
		return nil, fmt.Errorf("find captcha image: %w", err)
	}
	if selector != "" {
		var image []byte
		if err := b.run(tabCtx, chromedp.Screenshot(selector, &image, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("capture captcha: %w", err)
		}
		return image, nil
	}

	var src string
	if err := b.run(tabCtx, chromedp.Evaluate(iframeCaptchaSrcJS, &src)); err != nil {
		return nil, fmt.Errorf("find captcha iframe: %w", err)
	}
	if src == "" {
		return nil, fmt.Errorf("%w: captcha image not found", portal.ErrCaptchaUnsolved)
	}
	cookies, err := b.browserCookies(tabCtx)
	if err != nil {
		return nil, err
	}
	resp, err := b.deps.Fetcher.Fetch(tabCtx, collyfetcher.Request{
		URL:     b.urls.Resolve(src),
		Cookies: toHTTP(fromNetwork(cookies)),
		Referer: b.urls.SelectPage(course),
	})
	if err != nil {
		return nil, fmt.Errorf("download captcha: %w", err)
	}
	return resp.Body, nil
}

func (b *Browser) bodyText(tabCtx context.Context) (string, error) {
	var text string
	if err := b.run(tabCtx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

func (b *Browser) selectError(ctx context.Context, courseID, classID string, err error) {
	b.emit(ctx, progress.Event{
		Stage:    progress.StageSelectError,
		Level:    progress.LevelError,
		CourseID: courseID,
		ClassID:  classID,
		Note:     err.Error(),
	})
}

// dialogLog collects JavaScript alert messages raised on a tab.
type dialogLog struct {
	mu       sync.Mutex
	messages []string
}

func (d *dialogLog) add(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

func (d *dialogLog) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = nil
}

func (d *dialogLog) text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.messages, "\n")
}

// firstLine returns the first non-blank line of the given texts, trimmed to
// a log-friendly length.
func firstLine(texts ...string) string {
	const maxLen = 200
	for _, t := range texts {
		for _, line := range strings.Split(t, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if r := []rune(line); len(r) > maxLen {
				line = string(r[:maxLen])
			}
			return line
		}
	}
	return ""
}
