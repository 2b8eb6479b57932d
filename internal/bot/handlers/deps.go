package handlers

import (
	"log/slog"

	"botjobs/internal/config"
	"botjobs/internal/jobs"
	"botjobs/internal/jobsvc"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Service  *jobsvc.Service
	Registry *jobs.Registry
}
