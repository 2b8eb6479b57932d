package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel      = "info"
	DefaultDBPath        = "botjobs.db"
	DefaultTimezone      = "UTC"
	DefaultRetentionDays = 30
	DefaultResyncTimeout = 30 * time.Second
	DefaultRunTimeout    = 5 * time.Minute
	DefaultMetricsAddr   = ":9090"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. The config file at configPath (optional)
// 3. BOTJOBS_* environment variables
//
// Validation is batch-style: the whole struct is checked at once and every
// violation is reported together.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOTJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; env and defaults may be enough.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)

	// Registered empty so the BOTJOBS_TELEGRAM_* env variables are picked
	// up even without a config file.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", 0)
	v.SetDefault("telegram.bot_id", 0)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("scheduler.timezone", DefaultTimezone)
	v.SetDefault("scheduler.retention_days", DefaultRetentionDays)
	v.SetDefault("scheduler.resync_timeout", DefaultResyncTimeout)

	v.SetDefault("runner.run_timeout", DefaultRunTimeout)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", DefaultMetricsAddr)

	v.SetDefault("messages.error_unauthorized", "You are not authorized to use this command.")
	v.SetDefault("messages.error_general", "An error occurred. Please try again later.")
	v.SetDefault("messages.no_jobs", "No scheduled jobs found.")
	v.SetDefault("messages.job_added", "Job scheduled.")
	v.SetDefault("messages.job_removed", "Job removed.")
	v.SetDefault("messages.job_updated", "Job updated.")
	v.SetDefault("messages.job_queued", "Job queued for immediate execution.")
}
