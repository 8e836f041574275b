package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/scrape"
)

// Courses scrapes the selectable courses of the open round.
func (b *Browser) Courses(ctx context.Context) (portal.CourseList, error) {
	if err := b.ensureLogin(ctx); err != nil {
		return portal.CourseList{}, err
	}
	tabCtx, done, err := b.tab(ctx)
	if err != nil {
		return portal.CourseList{}, err
	}
	defer done()

	start := time.Now()
	roundHTML, _, err := b.open(tabCtx, "round", b.urls.Round())
	if err != nil {
		return portal.CourseList{}, err
	}
	code, err := scrape.RoundCode(roundHTML)
	if err != nil {
		return portal.CourseList{}, err
	}
	b.deps.Logger.Info("selection round found", zap.String("round", code))

	if _, _, err := b.open(tabCtx, "index", b.urls.Index(code)); err != nil {
		return portal.CourseList{}, err
	}
	html, err := b.courseFrameHTML(tabCtx)
	if err != nil {
		return portal.CourseList{}, err
	}
	list, err := scrape.CourseList(html)
	if err != nil || len(list.All) == 0 {
		b.deps.Logger.Info("course frame empty, trying fallback list", zap.Error(err))
		fallback, _, ferr := b.open(tabCtx, "course_list_fallback", b.urls.FallbackCourses())
		if ferr != nil {
			return portal.CourseList{}, ferr
		}
		if list, err = scrape.CourseList(fallback); err != nil {
			return portal.CourseList{}, err
		}
	}

	now := b.deps.Clock.Now()
	stamped := make([]portal.Course, len(list.All))
	for i, c := range list.All {
		c.UpdatedAt = now
		stamped[i] = c
	}
	list = portal.NewCourseList(stamped)

	b.deps.Logger.Info("courses scraped",
		zap.Int("regular", len(list.Regular)),
		zap.Int("retake", len(list.Retake)),
		zap.Duration("took", time.Since(start)),
	)
	return list, nil
}

// courseFrameHTML opens the course list inside #mainFrame and returns its
// rendered HTML. When the frame document is not scriptable the frame source
// is loaded directly.
func (b *Browser) courseFrameHTML(tabCtx context.Context) (string, error) {
	var opened bool
	if err := b.run(tabCtx, chromedp.Evaluate(openCourseListJS, &opened)); err != nil {
		return "", fmt.Errorf("open course frame: %w", err)
	}
	if err := b.sleep(tabCtx, b.cfg.FrameWait); err != nil {
		return "", err
	}

	var html string
	if opened {
		if err := b.run(tabCtx, chromedp.Evaluate(frameHTMLJS, &html)); err != nil {
			return "", fmt.Errorf("read course frame: %w", err)
		}
	}
	if html != "" {
		b.dump(tabCtx, "course_frame", html)
		return html, nil
	}

	var src string
	if err := b.run(tabCtx, chromedp.Evaluate(frameSrcJS, &src)); err != nil {
		return "", fmt.Errorf("read frame src: %w", err)
	}
	if src == "" {
		return "", nil
	}
	if _, _, err := b.open(tabCtx, "course_frame_src", b.urls.Resolve(src)); err != nil {
		return "", err
	}
	var reloaded bool
	if err := b.run(tabCtx, chromedp.Evaluate(openCourseListTopJS, &reloaded)); err != nil {
		return "", fmt.Errorf("reload course list: %w", err)
	}
	if reloaded {
		if err := b.sleep(tabCtx, b.cfg.FrameWait); err != nil {
			return "", err
		}
	}
	if err := b.run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read course list: %w", err)
	}
	b.dump(tabCtx, "course_frame", html)
	return html, nil
}
