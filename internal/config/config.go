// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// FailureMode controls how the visit loop reacts to a detected logged-out state.
type FailureMode string

const (
	// FailureModeStop aborts the remaining URLs on the first authentication failure.
	FailureModeStop FailureMode = "stop"
	// FailureModeContinue records the failure and keeps visiting.
	FailureModeContinue FailureMode = "continue"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Visit    VisitConfig    `mapstructure:"visit" yaml:"visit"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// VisitConfig describes the batch of profile visits performed per run.
type VisitConfig struct {
	ProfileURLs   []string      `mapstructure:"profile_urls" yaml:"profile_urls"`
	CookieFile    string        `mapstructure:"cookie_file" yaml:"cookie_file"`
	TargetOrigin  string        `mapstructure:"target_origin" yaml:"target_origin"`
	MinDelay      time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	OnAuthFailure FailureMode   `mapstructure:"on_auth_failure" yaml:"on_auth_failure"`
}

// NotifyConfig configures the outbound webhook sink.
type NotifyConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig tunes the HTTP control surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ScheduleConfig configures the daily run trigger.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Cron    string `mapstructure:"cron" yaml:"cron"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "linkvisitor")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.shutdown_timeout", "10s")

	// -- Visit --
	v.SetDefault("visit.cookie_file", "cookies.json")
	v.SetDefault("visit.target_origin", "https://www.linkedin.com")
	v.SetDefault("visit.min_delay", "5s")
	v.SetDefault("visit.max_delay", "10s")
	v.SetDefault("visit.on_auth_failure", string(FailureModeStop))

	// -- Notify --
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.timeout", "10s")

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Schedule --
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 9 * * *")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The cookie file is commonly exported to the user's home directory.
	expanded, err := homedir.Expand(cfg.Visit.CookieFile)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie_file path %q: %w", cfg.Visit.CookieFile, err)
	}
	cfg.Visit.CookieFile = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// The cookie file itself is deliberately not checked here: a missing or
// malformed cookie source fails the run, not config loading.
func (c *Config) Validate() error {
	if c.Visit.TargetOrigin == "" {
		return fmt.Errorf("visit.target_origin is a required configuration field")
	}
	if c.Visit.MinDelay < 0 || c.Visit.MaxDelay < 0 {
		return fmt.Errorf("visit delays must not be negative")
	}
	if c.Visit.MinDelay > c.Visit.MaxDelay {
		return fmt.Errorf("visit.min_delay must not exceed visit.max_delay")
	}
	switch c.Visit.OnAuthFailure {
	case FailureModeStop, FailureModeContinue:
	default:
		return fmt.Errorf("visit.on_auth_failure must be %q or %q", FailureModeStop, FailureModeContinue)
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify.enabled is true")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is a required configuration field")
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is required when schedule.enabled is true")
	}
	return nil
}
