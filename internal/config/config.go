// Package config provides configuration loading, validation, and management
// for botjobs. It handles reading from YAML files, environment variables,
// default values, and validating configuration parameters.
package config

import (
	"time"
)

// Config defines the application configuration parameters for all components
// of botjobs, including logging, Telegram settings, the job scheduler, the
// execution runner, and database configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds Telegram connectivity and tenancy settings.
// BotID is the numeric identifier of the bot account; every scheduled job
// and run row is filtered by it, so multiple bots can share one database.
type TelegramConfig struct {
	Token       string `mapstructure:"token"    validate:"required"`
	AdminUserID int64  `mapstructure:"admin_id" validate:"required,gt=0"`
	BotID       int64  `mapstructure:"bot_id"   validate:"required,gt=0"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig controls job dispatch behavior.
type SchedulerConfig struct {
	Timezone      string        `mapstructure:"timezone"       validate:"required"`
	RetentionDays int           `mapstructure:"retention_days" validate:"min=1,max=365"`
	ResyncTimeout time.Duration `mapstructure:"resync_timeout" validate:"min=1s,max=5m"`
}

// RunnerConfig controls job execution behavior.
type RunnerConfig struct {
	RunTimeout time.Duration `mapstructure:"run_timeout" validate:"min=1s,max=1h"`
}

// MetricsConfig controls the metrics/health HTTP listener.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing reply strings for the admin commands.
type MessagesConfig struct {
	ErrorUnauthorizedMsg string `mapstructure:"error_unauthorized"`
	ErrorGeneralMsg      string `mapstructure:"error_general"`
	NoJobsMsg            string `mapstructure:"no_jobs"`
	JobAddedMsg          string `mapstructure:"job_added"`
	JobRemovedMsg        string `mapstructure:"job_removed"`
	JobUpdatedMsg        string `mapstructure:"job_updated"`
	JobQueuedMsg         string `mapstructure:"job_queued"`
}
