// Package app builds and holds the long-lived services shared by every
// command: stores, the browser session, the progress hub, the enrollment
// service and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/api"
	"github.com/JakeFAU/coursebot/internal/browser"
	"github.com/JakeFAU/coursebot/internal/captcha"
	"github.com/JakeFAU/coursebot/internal/clock/system"
	"github.com/JakeFAU/coursebot/internal/config"
	"github.com/JakeFAU/coursebot/internal/dispatcher"
	"github.com/JakeFAU/coursebot/internal/enroll"
	collyfetcher "github.com/JakeFAU/coursebot/internal/fetcher/colly"
	"github.com/JakeFAU/coursebot/internal/id/uuid"
	"github.com/JakeFAU/coursebot/internal/logging"
	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/policy/ratelimit"
	"github.com/JakeFAU/coursebot/internal/progress"
	"github.com/JakeFAU/coursebot/internal/progress/sinks"
	queueMemory "github.com/JakeFAU/coursebot/internal/queue/memory"
	"github.com/JakeFAU/coursebot/internal/scheduler"
	"github.com/JakeFAU/coursebot/internal/snapshot"
	"github.com/JakeFAU/coursebot/internal/store/postgres"
	"github.com/JakeFAU/coursebot/internal/store/sqlite"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Options adjust how an App is built for one command.
type Options struct {
	ConfigPath string
	// Headless overrides browser.headless when set.
	Headless *bool
	// DebugDumps forces page dumps on.
	DebugDumps bool
	// Logger replaces the configured logger.
	Logger *zap.Logger
}

// App holds the shared services.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *sqlite.Store
	Audit     *postgres.AuditStore
	Dumps     *snapshot.Store
	Browser   *browser.Browser
	Captcha   *captcha.Solver
	Hub       *progress.Hub
	Events    *sinks.Broadcaster
	Enroll    *enroll.Service
	Scheduler *scheduler.Scheduler

	closeLog  func() error
	closeOnce sync.Once
}

// New loads configuration from opts.ConfigPath and builds an App.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg, opts)
}

// NewWithConfig builds an App from an already loaded configuration. Chrome
// is not launched until the first portal operation.
func NewWithConfig(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.Headless != nil {
		cfg.Browser.Headless = *opts.Headless
	}
	if opts.DebugDumps {
		cfg.Browser.DebugDumps = true
	}

	a := &App{Config: cfg, Logger: opts.Logger, closeLog: func() error { return nil }}
	if a.Logger == nil {
		logger, closeLog, err := logging.NewWithFile(cfg.Logging.Development, cfg.Logging.JSONLPath)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.Logger = logger
		a.closeLog = closeLog
	}
	metrics.Init()

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPortal(); err != nil {
		a.Close()
		return nil, err
	}

	svc, err := enroll.New(a.enrollOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init enroll service: %w", err)
	}
	a.Enroll = svc
	a.Scheduler = scheduler.New(a.schedulerConfig(), svc,
		scheduler.NewNotifier(
			cfg.Scheduler.Notifications.Enabled,
			cfg.Scheduler.Notifications.Methods,
			a.Hub,
			a.Logger.Named("notify"),
		),
		a.Logger.Named("scheduler"),
	)
	a.Logger.Debug("application services initialized",
		zap.String("sqlite", cfg.Storage.SQLitePath),
		zap.Bool("audit", a.Audit != nil),
		zap.Bool("headless", cfg.Browser.Headless),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	store, err := sqlite.Open(ctx, a.Config.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open course cache: %w", err)
	}
	a.Store = store

	if dsn := a.Config.Storage.PostgresDSN; dsn != "" {
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		audit, err := postgres.NewAuditStore(connCtx, postgres.Config{DSN: dsn})
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		a.Audit = audit
	}

	dumps, err := snapshot.New(snapshot.Config{BaseDir: a.Config.Browser.DebugDir})
	if err != nil {
		return fmt.Errorf("open debug dir: %w", err)
	}
	a.Dumps = dumps
	return nil
}

func (a *App) initPortal() error {
	cfg := a.Config
	a.Events = sinks.NewBroadcaster(a.Logger.Named("events"))
	hubSinks := []progress.Sink{sinks.NewLogSink(a.Logger.Named("progress")), a.Events}
	if promSink := progressMetrics(a.Logger); promSink != nil {
		hubSinks = append(hubSinks, promSink)
	}
	a.Hub = progress.NewHub(progress.Config{Logger: a.Logger.Named("hub")}, hubSinks...)

	solver, err := captcha.New(cfg.Captcha, a.Logger.Named("captcha"))
	if err != nil {
		return fmt.Errorf("init captcha solver: %w", err)
	}
	a.Captcha = solver
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Portal.UserAgent,
		Timeout:   cfg.NavTimeout(),
		Proxy:     cfg.Browser.Proxy,
	})
	pacer := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Browser.RequestsPerSecond})

	b, err := browser.New(browser.Config{
		BaseURL:         cfg.Portal.BaseURL,
		Username:        cfg.Portal.Username,
		Password:        cfg.Portal.Password,
		UserAgent:       cfg.Portal.UserAgent,
		Headless:        cfg.Browser.Headless,
		Proxy:           cfg.Browser.Proxy,
		NavTimeout:      cfg.NavTimeout(),
		MaxParallel:     cfg.Browser.MaxParallel,
		CookiesFile:     cfg.Browser.CookiesFile,
		LoginRetries:    cfg.Browser.LoginRetries,
		CaptchaAttempts: cfg.Captcha.MaxAttempts,
		DebugDumps:      cfg.Browser.DebugDumps,
	}, browser.Deps{
		Fetcher: fetcher,
		Solver:  solver,
		Pacer:   pacer,
		Dumps:   a.Dumps,
		Events:  a.Hub,
		Clock:   system.NewIn(cfg.Location()),
		Logger:  a.Logger.Named("browser"),
	})
	if err != nil {
		return fmt.Errorf("init browser: %w", err)
	}
	a.Browser = b
	return nil
}

func (a *App) enrollOptions() enroll.Options {
	opts := enroll.Options{
		Portal: a.Browser,
		Store:  a.Store,
		Events: a.Hub,
		Clock:  system.New(),
		Logger: a.Logger.Named("enroll"),
	}
	if a.Audit != nil {
		opts.Audit = a.Audit
	}
	return opts
}

func (a *App) schedulerConfig() scheduler.Config {
	s := a.Config.Scheduler
	return scheduler.Config{
		Location:          a.Config.Location(),
		MonitoringEnabled: s.Monitoring.Enabled,
		MonitorInterval:   time.Duration(s.Monitoring.IntervalMinutes) * time.Minute,
		DailyHour:         s.Monitoring.CourseCheckHour,
		DailyMinute:       s.Monitoring.CourseCheckMinute,
		RetryInterval:     time.Duration(s.AutoEnrollment.RetryIntervalMinutes) * time.Minute,
		MaxRetries:        s.AutoEnrollment.MaxRetries,
	}
}

var (
	progressSinkOnce sync.Once
	progressSink     *sinks.PrometheusSink
)

// progressMetrics registers the progress collectors once per process.
func progressMetrics(logger *zap.Logger) *sinks.PrometheusSink {
	progressSinkOnce.Do(func() {
		s, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Warn("progress metrics disabled", zap.Error(err))
			return
		}
		progressSink = s
	})
	return progressSink
}

// APIServer builds the HTTP API over the shared services and q.
func (a *App) APIServer(q api.Enqueuer) *api.Server {
	return api.NewServer(api.Deps{
		Tasks:     a.Store,
		Courses:   a.Store,
		Enroller:  a.Enroll,
		Queue:     q,
		Scheduler: a.Scheduler,
		Events:    a.Events,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, a.Config, a.Logger.Named("api"))
}

// Serve runs the worker pool, the scheduler and the HTTP API until ctx ends
// or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Unattended()

	q := queueMemory.NewQueue(a.Config.Server.QueueDepth)
	dispatch := dispatcher.NewPool(a.Config.Server.Workers, q, a.Store, a.Enroll, a.Logger.Named("worker"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.APIServer(dispatch).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := a.Scheduler.Setup(); err != nil {
		return fmt.Errorf("scheduler setup: %w", err)
	}
	a.Scheduler.Start(ctx)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.Logger.Info("dispatcher started", zap.Int("workers", a.Config.Server.Workers))
		dispatch.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server started", zap.Int("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.Logger.Error("http server error", zap.Error(serveErr))
	}
	a.Logger.Info("shutdown initiated")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.Scheduler.Stop(shutdownCtx); err != nil {
		a.Logger.Warn("scheduler stop", zap.Error(err))
	}
	q.Close()
	<-dispatchDone
	a.Logger.Info("shutdown complete")
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Unattended turns off the interactive captcha prompt for runs with nobody
// at the terminal.
func (a *App) Unattended() {
	if a.Captcha != nil {
		a.Captcha.SetManualFallback(false)
	}
}

// Close shuts every service down. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.Browser != nil {
			a.Browser.Close()
		}
		if a.Hub != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.Hub.Close(ctx); err != nil {
				a.Logger.Warn("progress hub close", zap.Error(err))
			}
			cancel()
		}
		if a.Audit != nil {
			a.Audit.Close()
		}
		if a.Store != nil {
			if err := a.Store.Close(); err != nil {
				a.Logger.Warn("close course cache", zap.Error(err))
			}
		}
		if a.Logger != nil {
			_ = a.Logger.Sync()
		}
		if err := a.closeLog(); err != nil {
			a.Logger.Warn("close log file", zap.Error(err))
		}
	})
}
