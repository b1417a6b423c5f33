package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Target  TargetConfig  `mapstructure:"target" yaml:"target"`
	Driver  DriverConfig  `mapstructure:"driver" yaml:"driver"`
	State   StateConfig   `mapstructure:"state" yaml:"state"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the browser instance the driver attaches to.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	PostLoadWait    time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// EvalRateLimit caps DOM evaluate calls per second during polling.
	EvalRateLimit float64 `mapstructure:"eval_rate_limit" yaml:"eval_rate_limit"`
}

// TargetConfig identifies the attendance page the driver operates against.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// DriverConfig tunes the task loop, retry controller and wait primitives.
type DriverConfig struct {
	MaxAttempts   uint          `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ItemDelay     time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
	DialogTimeout time.Duration `mapstructure:"dialog_timeout" yaml:"dialog_timeout"`
	TableTimeout  time.Duration `mapstructure:"table_timeout" yaml:"table_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SubmitWait    time.Duration `mapstructure:"submit_wait" yaml:"submit_wait"`
}

// StateConfig locates the local state database.
type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopunch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigate_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.eval_rate_limit", 20.0)

	// -- Target --
	v.SetDefault("target.url", "https://dpt.cch.org.tw/EIP/Main/Resident/MonthSettlement")

	// -- Driver --
	v.SetDefault("driver.max_attempts", 3)
	v.SetDefault("driver.retry_delay", "2s")
	v.SetDefault("driver.item_delay", "1s")
	v.SetDefault("driver.dialog_timeout", "5s")
	v.SetDefault("driver.table_timeout", "5s")
	v.SetDefault("driver.poll_interval", "200ms")
	v.SetDefault("driver.settle_delay", "500ms")
	v.SetDefault("driver.submit_wait", "3s")

	// -- State --
	v.SetDefault("state.path", "autopunch.db")
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	if c.Driver.MaxAttempts == 0 {
		return fmt.Errorf("driver.max_attempts must be a positive integer")
	}
	if c.Driver.PollInterval <= 0 {
		return fmt.Errorf("driver.poll_interval must be a positive duration")
	}
	if c.Browser.EvalRateLimit <= 0 {
		return fmt.Errorf("browser.eval_rate_limit must be positive")
	}
	return nil
}
