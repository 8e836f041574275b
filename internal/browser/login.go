package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
)

// Login restores saved cookies and signs in when they are no longer valid.
// Attempts are retried up to Config.LoginRetries times.
func (b *Browser) Login(ctx context.Context) error {
	b.loginMu.Lock()
	defer b.loginMu.Unlock()

	tabCtx, done, err := b.tab(ctx)
	if err != nil {
		return err
	}
	defer done()

	saved, err := loadCookies(b.cfg.CookiesFile)
	if err != nil {
		b.deps.Logger.Warn("ignoring saved cookies", zap.Error(err))
	}
	if len(saved) > 0 {
		if err := b.run(tabCtx, network.SetCookies(toCookieParams(saved))); err != nil {
			b.deps.Logger.Warn("restoring cookies failed", zap.Error(err))
		} else if b.sessionRestored(tabCtx) {
			b.deps.Logger.Info("session restored from cookies")
			return b.finishLogin(ctx, tabCtx, 0)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= b.cfg.LoginRetries; attempt++ {
		err := b.loginAttempt(tabCtx)
		if err == nil {
			return b.finishLogin(ctx, tabCtx, attempt)
		}
		lastErr = err
		b.deps.Logger.Warn("login attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.cfg.LoginRetries),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	b.setSession(nil, false)
	b.emit(ctx, progress.Event{Stage: progress.StageLogin, Level: progress.LevelError, Note: lastErr.Error()})
	return fmt.Errorf("login failed after %d attempts: %w", b.cfg.LoginRetries, lastErr)
}

func (b *Browser) loginAttempt(tabCtx context.Context) error {
	if _, _, err := b.open(tabCtx, "login", b.urls.Login()); err != nil {
		return err
	}
	if b.cfg.Username == "" || b.cfg.Password == "" {
		return fmt.Errorf("%w: no credentials configured", portal.ErrNotAuthenticated)
	}

	if err := b.run(tabCtx,
		chromedp.WaitVisible(accountSelector, chromedp.ByQuery),
		chromedp.SetValue(accountSelector, b.cfg.Username, chromedp.ByQuery),
		chromedp.SetValue(passwordSelector, b.cfg.Password, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill login form: %w", err)
	}

	if err := b.fillLoginCaptcha(tabCtx); err != nil {
		return err
	}

	if err := b.run(tabCtx, chromedp.Click(loginSubmit, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := b.sleep(tabCtx, b.cfg.SettleDelay); err != nil {
		return err
	}
	var html, location string
	if err := b.run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("read login result: %w", err)
	}
	b.dump(tabCtx, "login_result", html)
	if !Authenticated(location) {
		return fmt.Errorf("%w: still on %s", portal.ErrNotAuthenticated, location)
	}
	return nil
}

// sessionRestored loads the home frame and reports whether the portal still
// recognizes the restored cookies.
func (b *Browser) sessionRestored(tabCtx context.Context) bool {
	html, location, err := b.open(tabCtx, "session_check", b.urls.Main())
	if err != nil {
		b.deps.Logger.Debug("session check failed", zap.Error(err))
		return false
	}
	return SessionActive(location, html)
}

func (b *Browser) fillLoginCaptcha(tabCtx context.Context) error {
	var selector string
	if err := b.run(tabCtx, chromedp.Evaluate(firstVisibleJS(loginCaptchaSelectors), &selector)); err != nil {
		return fmt.Errorf("find login captcha: %w", err)
	}
	if selector == "" {
		return nil
	}
	if b.deps.Solver == nil {
		return fmt.Errorf("%w: login requires a captcha solver", portal.ErrCaptchaUnsolved)
	}
	var image []byte
	if err := b.run(tabCtx, chromedp.Screenshot(selector, &image, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("capture login captcha: %w", err)
	}
	answer, err := b.deps.Solver.Solve(tabCtx, image)
	if err != nil {
		return err
	}
	if err := b.run(tabCtx, chromedp.SetValue(loginCodeInput, answer.Code, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill login captcha: %w", err)
	}
	return nil
}

func (b *Browser) finishLogin(ctx, tabCtx context.Context, attempt int) error {
	cookies, err := b.browserCookies(tabCtx)
	if err != nil {
		b.deps.Logger.Warn("reading cookies failed", zap.Error(err))
	}
	stored := fromNetwork(cookies)
	b.setSession(stored, true)
	if err := saveCookies(b.cfg.CookiesFile, stored); err != nil {
		b.deps.Logger.Warn("saving cookies failed", zap.Error(err))
	}
	b.deps.Logger.Info("logged in", zap.Int("attempt", attempt), zap.Int("cookies", len(stored)))
	b.emit(ctx, progress.Event{Stage: progress.StageLogin, Level: progress.LevelSuccess, Note: "logged in"})
	return nil
}

// browserCookies reads every cookie the browser holds.
func (b *Browser) browserCookies(tabCtx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := b.run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return cookies, nil
}
