package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/coursebot/internal/fetcher/colly"
	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/scrape"
)

// Availability fetches the seat counts of course through its JSON endpoint.
// An unparsable answer usually means the session expired, so the browser
// logs in again and retries once.
func (b *Browser) Availability(ctx context.Context, course portal.Course) (portal.Availability, error) {
	if course.ID == "" {
		return portal.Availability{}, fmt.Errorf("%w: empty course id", portal.ErrCourseNotFound)
	}
	if len(b.sessionCookies()) == 0 {
		saved, err := loadCookies(b.cfg.CookiesFile)
		if err != nil {
			b.deps.Logger.Warn("ignoring saved cookies", zap.Error(err))
		}
		if len(saved) == 0 {
			if err := b.Login(ctx); err != nil {
				return portal.Availability{}, err
			}
		} else {
			b.mu.Lock()
			b.cookies = saved
			b.mu.Unlock()
		}
	}

	avail, err := b.fetchAvailability(ctx, course)
	if err != nil && errors.Is(err, errSessionExpired) {
		b.deps.Logger.Info("availability answer unreadable, logging in again", zap.String("course_id", course.ID))
		b.setSession(nil, false)
		if lerr := b.Login(ctx); lerr != nil {
			return portal.Availability{}, lerr
		}
		avail, err = b.fetchAvailability(ctx, course)
	}
	metrics.ObserveAvailability(course.ID, avail.TotalRemaining, err)
	if err != nil {
		return portal.Availability{}, err
	}
	return avail, nil
}

var errSessionExpired = errors.New("browser: session expired")

func (b *Browser) fetchAvailability(ctx context.Context, course portal.Course) (portal.Availability, error) {
	target := b.urls.Availability(course)
	if b.deps.Pacer != nil {
		if err := b.deps.Pacer.Wait(ctx, target); err != nil {
			return portal.Availability{}, err
		}
	}
	resp, err := b.deps.Fetcher.Fetch(ctx, collyfetcher.Request{
		URL:     target,
		Cookies: toHTTP(b.sessionCookies()),
		Referer: b.urls.SelectPage(course),
		XHR:     true,
	})
	if err != nil {
		metrics.ObservePortalRequest("availability", "error")
		return portal.Availability{}, fmt.Errorf("fetch availability %s: %w", course.ID, err)
	}
	metrics.ObservePortalRequest("availability", "ok")
	avail, err := scrape.Availability(course.ID, resp.Body, b.deps.Clock.Now())
	if err != nil {
		b.dump(ctx, "availability_"+course.ID, string(resp.Body))
		return portal.Availability{}, fmt.Errorf("%w: %v", errSessionExpired, err)
	}
	return avail, nil
}
