package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alertreport/models"
)

const (
	ProviderAPI      = "api"
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
	ProviderSMTP     = "smtp"
	ProviderSlack    = "slack"
)

// Config is the complete, immutable run configuration. Build it once with
// Load and pass it to the components that need it.
type Config struct {
	Alerts    AlertsConfig
	Report    ReportConfig
	Timeframe TimeframeConfig
	Email     EmailConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Features  Features
	LogLevel  string
}

type AlertsConfig struct {
	URL      string
	APIKey   string
	Tags     []string
	Timezone string
	PageSize int
}

type ReportConfig struct {
	Timezone      string
	TimeFormat    string
	WindowedLabel string
}

// TimeframeConfig describes the optional recurring schedule. Days use
// Monday=0 .. Sunday=6; Start and End are "HH:MM" or "HH:MM:SS".
type TimeframeConfig struct {
	Enabled  bool
	Days     []int
	Start    string
	End      string
	Timezone string
}

type EmailConfig struct {
	Provider string
	Subject  string
	From     string
	FromName string
	To       []string
	Cc       []string
	Bcc      []string

	APIBaseURL    string
	APIEndpoint   string
	APIToken      string
	APIAuthHeader string

	SendGridAPIKey string
	SendGridHost   string

	ResendAPIKey  string
	ResendBaseURL string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string

	SlackWebhookURL string

	MaxRetries int
}

type HTTPConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type ServerConfig struct {
	Port      string
	JWTSecret string
}

// Defaults returns a Config with every optional setting filled in.
func Defaults() Config {
	return Config{
		Alerts: AlertsConfig{
			Timezone: "UTC",
			PageSize: 100,
		},
		Report: ReportConfig{
			Timezone:      "UTC",
			TimeFormat:    "%Y-%m-%d %H:%M:%S %Z",
			WindowedLabel: "Workday alerts",
		},
		Email: EmailConfig{
			Provider:      ProviderAPI,
			Subject:       "Weekly alert report",
			APIAuthHeader: "API_KEY",
			SendGridHost:  "https://api.sendgrid.com",
			SMTPPort:      "587",
		},
		HTTP: HTTPConfig{
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
			RetryMaxDelay:  8 * time.Second,
		},
		Redis: RedisConfig{
			LockTTL: 30 * time.Minute,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		file, err := ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		file.apply(&cfg)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Alerts.URL = GetEnv("OG_API_ALERTS_URL", cfg.Alerts.URL)
	cfg.Alerts.APIKey = GetEnv("OG_API_KEY", cfg.Alerts.APIKey)
	cfg.Alerts.Tags = GetEnvList("OG_ALERT_TAGS", cfg.Alerts.Tags)
	cfg.Alerts.Timezone = GetEnv("OG_TIMEZONE", cfg.Alerts.Timezone)
	cfg.Alerts.PageSize = GetEnvInt("OG_PAGE_SIZE", cfg.Alerts.PageSize)

	cfg.Report.Timezone = GetEnv("REPORT_TIMEZONE", cfg.Report.Timezone)
	cfg.Report.TimeFormat = GetEnv("EMAIL_TIME_FORMAT", cfg.Report.TimeFormat)
	cfg.Report.WindowedLabel = GetEnv("REPORT_WINDOWED_LABEL", cfg.Report.WindowedLabel)

	cfg.Timeframe.Enabled = GetEnvBool("USE_TIMEFRAMES", cfg.Timeframe.Enabled)
	if days := GetEnvList("TIMEFRAME_DAYS", nil); days != nil {
		cfg.Timeframe.Days = parseDays(days)
	}
	cfg.Timeframe.Start = GetEnv("TIMEFRAME_START", cfg.Timeframe.Start)
	cfg.Timeframe.End = GetEnv("TIMEFRAME_END", cfg.Timeframe.End)
	cfg.Timeframe.Timezone = GetEnv("TIMEFRAME_TIMEZONE", cfg.Timeframe.Timezone)

	e := &cfg.Email
	e.Provider = strings.ToLower(GetEnv("EMAIL_PROVIDER", e.Provider))
	e.Subject = GetEnv("EMAIL_SUBJECT", e.Subject)
	e.From = GetEnv("EMAIL_FROM", e.From)
	e.FromName = GetEnv("EMAIL_FROM_NAME", e.FromName)
	e.To = GetEnvList("EMAIL_TO", e.To)
	e.Cc = GetEnvList("EMAIL_CC", e.Cc)
	e.Bcc = GetEnvList("EMAIL_BCC", e.Bcc)
	e.APIBaseURL = GetEnv("EMAIL_API_BASE_URL", e.APIBaseURL)
	e.APIEndpoint = GetEnv("EMAIL_API_ENDPOINT", e.APIEndpoint)
	e.APIToken = GetEnv("EMAIL_API_TOKEN", e.APIToken)
	e.APIAuthHeader = GetEnv("EMAIL_API_AUTH_HEADER", e.APIAuthHeader)
	e.SendGridAPIKey = GetEnv("SENDGRID_API_KEY", e.SendGridAPIKey)
	e.SendGridHost = GetEnv("SENDGRID_HOST", e.SendGridHost)
	e.ResendAPIKey = GetEnv("RESEND_API_KEY", e.ResendAPIKey)
	e.ResendBaseURL = GetEnv("RESEND_BASE_URL", e.ResendBaseURL)
	e.SMTPHost = GetEnv("SMTP_HOST", e.SMTPHost)
	e.SMTPPort = GetEnv("SMTP_PORT", e.SMTPPort)
	e.SMTPUsername = GetEnv("SMTP_USERNAME", e.SMTPUsername)
	e.SMTPPassword = GetEnv("SMTP_PASSWORD", e.SMTPPassword)
	e.SlackWebhookURL = GetEnv("SLACK_WEBHOOK_URL", e.SlackWebhookURL)
	e.MaxRetries = GetEnvInt("EMAIL_MAX_RETRIES", e.MaxRetries)

	cfg.HTTP.Timeout = GetEnvDuration("HTTP_TIMEOUT", cfg.HTTP.Timeout)
	cfg.HTTP.MaxRetries = GetEnvInt("HTTP_MAX_RETRIES", cfg.HTTP.MaxRetries)
	cfg.HTTP.RetryBaseDelay = GetEnvDuration("HTTP_RETRY_BASE_DELAY", cfg.HTTP.RetryBaseDelay)
	cfg.HTTP.RetryMaxDelay = GetEnvDuration("HTTP_RETRY_MAX_DELAY", cfg.HTTP.RetryMaxDelay)

	cfg.Database.URL = GetEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Redis.URL = GetEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.LockTTL = GetEnvDuration("RUN_LOCK_TTL", cfg.Redis.LockTTL)

	cfg.Server.Port = GetEnv("PORT", cfg.Server.Port)
	cfg.Server.JWTSecret = GetEnv("JWT_SECRET", cfg.Server.JWTSecret)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)

	features := LoadFeatures()
	features.TimeframesEnabled = cfg.Timeframe.Enabled
	features.StrictDispatch = GetEnvBool("STRICT_DISPATCH", cfg.Features.StrictDispatch)
	features.LedgerEnabled = cfg.Database.URL != ""
	features.LockEnabled = cfg.Redis.URL != ""
	cfg.Features = features
}

// parseDays keeps unparsable entries as -1 so Validate can report them.
func parseDays(values []string) []int {
	days := make([]int, 0, len(values))
	for _, v := range values {
		d, err := strconv.Atoi(v)
		if err != nil {
			d = -1
		}
		days = append(days, d)
	}
	return days
}

// Validate checks everything a run needs before any network call is made.
func (c Config) Validate() error {
	var errs []error

	if c.Alerts.URL == "" {
		errs = append(errs, errors.New("OG_API_ALERTS_URL is required"))
	} else if _, err := url.ParseRequestURI(c.Alerts.URL); err != nil {
		errs = append(errs, fmt.Errorf("OG_API_ALERTS_URL is invalid: %w", err))
	}
	if c.Alerts.APIKey == "" {
		errs = append(errs, errors.New("OG_API_KEY is required"))
	}
	if c.Alerts.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("OG_PAGE_SIZE must be positive, got %d", c.Alerts.PageSize))
	}
	if _, err := time.LoadLocation(c.Alerts.Timezone); err != nil || c.Alerts.Timezone == "" {
		errs = append(errs, fmt.Errorf("OG_TIMEZONE %q is not a valid timezone", c.Alerts.Timezone))
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil || c.Report.Timezone == "" {
		errs = append(errs, fmt.Errorf("REPORT_TIMEZONE %q is not a valid timezone", c.Report.Timezone))
	}
	if c.Timeframe.Enabled {
		if _, err := c.Schedule(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Email.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (e EmailConfig) validate() error {
	switch e.Provider {
	case ProviderAPI:
		if e.APIBaseURL == "" && e.APIEndpoint == "" {
			return errors.New("EMAIL_API_BASE_URL is required for the api provider")
		}
	case ProviderSendGrid:
		if e.SendGridAPIKey == "" || e.From == "" {
			return errors.New("SENDGRID_API_KEY and EMAIL_FROM are required for the sendgrid provider")
		}
	case ProviderResend:
		if e.ResendAPIKey == "" || e.From == "" {
			return errors.New("RESEND_API_KEY and EMAIL_FROM are required for the resend provider")
		}
	case ProviderSMTP:
		if e.SMTPHost == "" || e.From == "" {
			return errors.New("SMTP_HOST and EMAIL_FROM are required for the smtp provider")
		}
	case ProviderSlack:
		if e.SlackWebhookURL == "" {
			return errors.New("SLACK_WEBHOOK_URL is required for the slack provider")
		}
		return nil
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", e.Provider)
	}
	if len(e.To) == 0 {
		return errors.New("EMAIL_TO must list at least one recipient")
	}
	return nil
}

// Schedule returns the recurring schedule, or nil when timeframes are disabled.
// The schedule timezone defaults to the report timezone.
func (c Config) Schedule() (*models.RecurringSchedule, error) {
	if !c.Timeframe.Enabled {
		return nil, nil
	}
	tf := c.Timeframe

	tzName := tf.Timezone
	if tzName == "" {
		tzName = c.Report.Timezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil || tzName == "" {
		return nil, fmt.Errorf("timeframe timezone %q is not valid", tzName)
	}

	if len(tf.Days) == 0 {
		return nil, errors.New("TIMEFRAME_DAYS must list at least one weekday (0=Monday .. 6=Sunday)")
	}
	for _, d := range tf.Days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("TIMEFRAME_DAYS entry %d is outside 0..6", d)
		}
	}

	start, err := ParseTimeOfDay(tf.Start)
	if err != nil {
		return nil, fmt.Errorf("TIMEFRAME_START: %w", err)
	}
	end, err := ParseTimeOfDay(tf.End)
	if err != nil {
		return nil, fmt.Errorf("TIMEFRAME_END: %w", err)
	}
	// Schedules that cross midnight are not supported.
	if start.Seconds() > end.Seconds() {
		return nil, fmt.Errorf("timeframe start %s is after end %s", start, end)
	}

	days := make([]int, len(tf.Days))
	copy(days, tf.Days)
	return &models.RecurringSchedule{
		Weekdays: days,
		Start:    start,
		End:      end,
		Location: loc,
	}, nil
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (models.TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.ClockOf(t), nil
		}
	}
	return models.TimeOfDay{}, fmt.Errorf("invalid time of day %q, want HH:MM or HH:MM:SS", s)
}

// EmailEndpoint joins the email API base URL and endpoint path.
func (e EmailConfig) EmailEndpoint() string {
	return e.APIBaseURL + e.APIEndpoint
}
