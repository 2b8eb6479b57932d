package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
// It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot
// commands. Every job administration command is admin-only.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	adminMiddleware := []tgbot.Middleware{Logging(deps), AdminOnly(deps)}

	command := func(pattern string, handler tgbot.HandlerFunc) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     handler,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		}
	}

	handlers["/jobs"] = command("jobs", NewJobsListHandler(deps))
	handlers["/job_add"] = command("job_add", NewJobAddHandler(deps))
	handlers["/job_del"] = command("job_del", NewJobDeleteHandler(deps))
	handlers["/job_enable"] = command("job_enable", NewJobEnableHandler(deps, true))
	handlers["/job_disable"] = command("job_disable", NewJobEnableHandler(deps, false))
	handlers["/job_run"] = command("job_run", NewJobRunHandler(deps))
	handlers["/job_runs"] = command("job_runs", NewJobRunsHandler(deps))

	return handlers
}
