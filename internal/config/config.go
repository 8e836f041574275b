// Package config loads and validates coursebot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Portal    PortalConfig    `mapstructure:"portal"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PortalConfig identifies the registration site and the account used on it.
type PortalConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	UserAgent string `mapstructure:"user_agent"`
}

// BrowserConfig configures the chromedp session.
type BrowserConfig struct {
	Headless          bool    `mapstructure:"headless"`
	NavTimeoutSec     int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	CookiesFile       string  `mapstructure:"cookies_file"`
	DebugDir          string  `mapstructure:"debug_dir"`
	DebugDumps        bool    `mapstructure:"debug_dumps"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Proxy             string  `mapstructure:"proxy"`
	LoginRetries      int     `mapstructure:"login_retries"`
}

// CaptchaConfig selects the recognition mode and engines.
type CaptchaConfig struct {
	Mode           string   `mapstructure:"mode"`
	Engines        []string `mapstructure:"engines"`
	RemoteEndpoint string   `mapstructure:"remote_endpoint"`
	MinConfidence  float64  `mapstructure:"min_confidence"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	SampleDir      string   `mapstructure:"sample_dir"`
}

// StorageConfig sets the local cache path and the optional Postgres audit mirror.
type StorageConfig struct {
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// SchedulerConfig mirrors the background job settings.
type SchedulerConfig struct {
	Timezone       string               `mapstructure:"timezone"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	AutoEnrollment AutoEnrollmentConfig `mapstructure:"auto_enrollment"`
	Notifications  NotificationsConfig  `mapstructure:"notifications"`
}

// MonitoringConfig controls the periodic availability monitor and daily refresh.
type MonitoringConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	IntervalMinutes   int  `mapstructure:"interval_minutes"`
	CourseCheckHour   int  `mapstructure:"course_check_hour"`
	CourseCheckMinute int  `mapstructure:"course_check_minute"`
}

// AutoEnrollmentConfig controls per-course retry jobs.
type AutoEnrollmentConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	RetryIntervalMinutes int  `mapstructure:"retry_interval_minutes"`
	MaxRetries           int  `mapstructure:"max_retries"`
}

// NotificationsConfig selects where scheduler notifications go.
type NotificationsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Methods []string `mapstructure:"methods"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	QueueDepth int `mapstructure:"queue_depth"`
	Workers    int `mapstructure:"workers"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the JSON-lines action log.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	JSONLPath   string `mapstructure:"jsonl_path"`
}

// legacyEnv maps the historical environment variables onto config keys.
var legacyEnv = map[string]string{
	"YBU_USER":   "portal.username",
	"YBU_PASS":   "portal.password",
	"HEADLESS":   "browser.headless",
	"OCR_ENGINE": "captcha.engines",
	"PROXY":      "browser.proxy",
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("COURSEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	applyLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyLegacyEnv(v *viper.Viper) {
	for env, key := range legacyEnv {
		value, ok := os.LookupEnv(env)
		if !ok || value == "" {
			continue
		}
		if key == "captcha.engines" {
			v.Set(key, strings.Split(value, ","))
			continue
		}
		v.Set(key, value)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.base_url", "http://jwxt.ybu.edu.cn")
	v.SetDefault("portal.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.max_parallel", 1)
	v.SetDefault("browser.cookies_file", "cookies.json")
	v.SetDefault("browser.debug_dir", "debug")
	v.SetDefault("browser.debug_dumps", false)
	v.SetDefault("browser.requests_per_second", 2.0)
	v.SetDefault("browser.login_retries", 3)
	v.SetDefault("captcha.mode", "manual")
	v.SetDefault("captcha.engines", []string{"remote"})
	v.SetDefault("captcha.min_confidence", 0.5)
	v.SetDefault("captcha.max_attempts", 3)
	v.SetDefault("storage.sqlite_path", "ybu_courses.db")
	v.SetDefault("scheduler.timezone", "Asia/Shanghai")
	v.SetDefault("scheduler.monitoring.enabled", true)
	v.SetDefault("scheduler.monitoring.interval_minutes", 5)
	v.SetDefault("scheduler.monitoring.course_check_hour", 6)
	v.SetDefault("scheduler.monitoring.course_check_minute", 0)
	v.SetDefault("scheduler.auto_enrollment.enabled", false)
	v.SetDefault("scheduler.auto_enrollment.retry_interval_minutes", 2)
	v.SetDefault("scheduler.auto_enrollment.max_retries", 30)
	v.SetDefault("scheduler.notifications.enabled", true)
	v.SetDefault("scheduler.notifications.methods", []string{"console"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.queue_depth", 64)
	v.SetDefault("server.workers", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.jsonl_path", "ybu_agent.jsonl")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Portal.BaseURL) == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Browser.LoginRetries <= 0 {
		return fmt.Errorf("browser.login_retries must be > 0")
	}
	switch c.Captcha.Mode {
	case "auto", "manual":
	default:
		return fmt.Errorf("captcha.mode must be auto or manual, got %q", c.Captcha.Mode)
	}
	if c.Captcha.MinConfidence < 0 || c.Captcha.MinConfidence >= 1 {
		return fmt.Errorf("captcha.min_confidence must be in [0,1)")
	}
	if c.Captcha.MaxAttempts <= 0 {
		return fmt.Errorf("captcha.max_attempts must be > 0")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	m := c.Scheduler.Monitoring
	if m.Enabled && m.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.monitoring.interval_minutes must be > 0")
	}
	if m.CourseCheckHour < 0 || m.CourseCheckHour > 23 || m.CourseCheckMinute < 0 || m.CourseCheckMinute > 59 {
		return fmt.Errorf("scheduler.monitoring course check time is out of range")
	}
	if c.Scheduler.AutoEnrollment.RetryIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.auto_enrollment.retry_interval_minutes must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout converts the navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// Location resolves the scheduler timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasCredentials reports whether both username and password are configured.
func (c Config) HasCredentials() bool {
	return c.Portal.Username != "" && c.Portal.Password != ""
}
