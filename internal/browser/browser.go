// Package browser drives the registration portal with headless Chrome.
//
// A single browser process is shared by every operation so the session
// cookies set at login carry over. Each operation opens its own tab, and a
// semaphore bounds how many tabs run at once. JSON endpoints skip the browser
// and go through the colly fetcher with the session cookies.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/coursebot/internal/fetcher/colly"
	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/progress"
	"github.com/JakeFAU/coursebot/internal/snapshot"
)

const (
	defaultNavTimeout  = 30 * time.Second
	defaultFrameWait   = 5 * time.Second
	defaultSettleDelay = 2 * time.Second
)

// Config controls the browser session.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	UserAgent    string
	Headless     bool
	Proxy        string
	NavTimeout   time.Duration
	MaxParallel  int
	CookiesFile  string
	LoginRetries int
	// CaptchaAttempts bounds submissions per Select when the portal rejects
	// the code.
	CaptchaAttempts int
	// FrameWait is how long the course frame gets to render after doKkkc.
	FrameWait time.Duration
	// SettleDelay is the pause after clicks that trigger navigation.
	SettleDelay time.Duration
	DebugDumps  bool
}

// Fetcher issues cookie-authenticated HTTP requests.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Pacer delays requests to the portal host.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Deps are the collaborators of a Browser. Only Fetcher is required.
type Deps struct {
	Fetcher Fetcher
	Solver  portal.CaptchaSolver
	Pacer   Pacer
	Dumps   *snapshot.Store
	Events  progress.Emitter
	Clock   portal.Clock
	Logger  *zap.Logger
}

// Browser implements portal.Portal.
type Browser struct {
	cfg  Config
	urls URLs
	deps Deps

	limiter     chan struct{}
	allocCtx    context.Context
	allocCancel context.CancelFunc

	startOnce     sync.Once
	startErr      error
	browserCtx    context.Context
	browserCancel context.CancelFunc

	loginMu  sync.Mutex
	mu       sync.RWMutex
	closed   bool
	loggedIn bool
	cookies  []storedCookie
}

var errBrowserClosed = errors.New("browser: closed")

var _ portal.Portal = (*Browser)(nil)

// New prepares a Browser. Chrome is launched on first use.
func New(cfg Config, deps Deps) (*Browser, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("browser: base url is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("browser: fetcher is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if cfg.FrameWait <= 0 {
		cfg.FrameWait = defaultFrameWait
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.LoginRetries <= 0 {
		cfg.LoginRetries = 1
	}
	if cfg.CaptchaAttempts <= 0 {
		cfg.CaptchaAttempts = 1
	}
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Browser{
		cfg:         cfg,
		urls:        URLs{Base: cfg.BaseURL},
		deps:        deps,
		limiter:     limiter,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(1280, 900),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	return opts
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.mu.Lock()
	b.closed = true
	cancel := b.browserCancel
	b.browserCancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.allocCancel()
}

// LoggedIn reports whether the last login attempt succeeded.
func (b *Browser) LoggedIn() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loggedIn
}

func (b *Browser) start() error {
	b.startOnce.Do(func() {
		if b.isClosed() {
			b.startErr = errBrowserClosed
			return
		}
		ctx, cancel := chromedp.NewContext(b.allocCtx)
		if err := chromedp.Run(ctx); err != nil {
			cancel()
			b.startErr = fmt.Errorf("start chrome: %w", err)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			cancel()
			b.startErr = errBrowserClosed
			return
		}
		b.browserCtx, b.browserCancel = ctx, cancel
	})
	return b.startErr
}

func (b *Browser) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Browser) sharedContext() (context.Context, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || b.browserCtx == nil {
		return nil, errBrowserClosed
	}
	return b.browserCtx, nil
}

// tab opens a new tab in the shared browser. The tab closes when done is
// called or ctx ends.
func (b *Browser) tab(ctx context.Context) (tabCtx context.Context, done func(), err error) {
	if err := b.start(); err != nil {
		return nil, nil, err
	}
	shared, err := b.sharedContext()
	if err != nil {
		return nil, nil, err
	}
	if err := b.acquire(ctx); err != nil {
		return nil, nil, err
	}
	tabCtx, cancel := chromedp.NewContext(shared)
	stop := context.AfterFunc(ctx, cancel)
	done = func() {
		stop()
		cancel()
		b.release()
	}
	if err := chromedp.Run(tabCtx); err != nil {
		done()
		return nil, nil, fmt.Errorf("open tab: %w", err)
	}
	return tabCtx, done, nil
}

// run executes actions on a tab under the navigation timeout.
func (b *Browser) run(tabCtx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(tabCtx, b.cfg.NavTimeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// open paces, navigates and returns the rendered HTML and final URL.
func (b *Browser) open(tabCtx context.Context, kind, target string) (html, location string, err error) {
	if b.deps.Pacer != nil {
		if err := b.deps.Pacer.Wait(tabCtx, target); err != nil {
			return "", "", err
		}
	}
	err = b.run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		metrics.ObservePortalRequest(kind, "error")
		return "", "", fmt.Errorf("open %s: %w", kind, err)
	}
	metrics.ObservePortalRequest(kind, "ok")
	b.dump(tabCtx, kind, html)
	return html, location, nil
}

func (b *Browser) dump(ctx context.Context, step, html string) {
	if !b.cfg.DebugDumps || b.deps.Dumps == nil {
		return
	}
	if path, err := b.deps.Dumps.DumpHTML(ctx, step, html); err != nil {
		b.deps.Logger.Debug("debug dump failed", zap.String("step", step), zap.Error(err))
	} else {
		b.deps.Logger.Debug("debug dump written", zap.String("path", path))
	}
}

func (b *Browser) emit(ctx context.Context, evt progress.Event) {
	evt.TaskID = progress.TaskFrom(ctx)
	b.deps.Events.Emit(evt)
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser tab wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) sessionCookies() []storedCookie {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]storedCookie(nil), b.cookies...)
}

func (b *Browser) setSession(cookies []storedCookie, loggedIn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookies = cookies
	b.loggedIn = loggedIn
}

// ensureLogin logs in unless a previous login in this process succeeded.
func (b *Browser) ensureLogin(ctx context.Context) error {
	if b.LoggedIn() {
		return nil
	}
	return b.Login(ctx)
}

func (b *Browser) sleep(tabCtx context.Context, d time.Duration) error {
	return chromedp.Run(tabCtx, chromedp.Sleep(d))
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
