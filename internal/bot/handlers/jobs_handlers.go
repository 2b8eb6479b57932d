package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"botjobs/internal/database"
	"botjobs/internal/jobsvc"
	"botjobs/internal/scheduler"
)

// reply sends text back to the chat the update came from.
func reply(ctx context.Context, deps HandlerDeps, bot *tgbot.Bot, chatID int64, text string) {
	_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// commandArgs splits the message text into whitespace-separated arguments,
// dropping the leading /command token.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// NewJobsListHandler creates the /jobs handler. It lists every definition
// with its schedule, state, and next dispatch preview.
func NewJobsListHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "jobs_list")

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		defs, err := deps.Service.List(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to list jobs", "error", err)
			reply(ctx, deps, bot, chatID, deps.Config.Messages.ErrorGeneralMsg)
			return
		}
		if len(defs) == 0 {
			var b strings.Builder
			b.WriteString(deps.Config.Messages.NoJobsMsg)
			if ids := deps.Registry.Identifiers(); len(ids) > 0 {
				b.WriteString("\n\nAvailable identifiers:\n")
				sort.Strings(ids)
				for _, id := range ids {
					b.WriteString("  " + id + "\n")
				}
			}
			reply(ctx, deps, bot, chatID, strings.TrimRight(b.String(), "\n"))
			return
		}

		var b strings.Builder
		b.WriteString("Scheduled jobs:\n")
		now := time.Now()
		for _, def := range defs {
			state := "enabled"
			if !def.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(&b, "\n%s - %s\n  schedule: %s (%s)\n", def.Name, def.Identifier, def.Schedule, state)
			if def.Enabled {
				if next, err := scheduler.NextRun(def.Schedule, now); err == nil {
					fmt.Fprintf(&b, "  next run: %s\n", next.Format(time.RFC3339))
				}
			}
			if def.LastRunAt.Valid {
				fmt.Fprintf(&b, "  last run: %s\n", def.LastRunAt.Time.Format(time.RFC3339))
			}
		}

		reply(ctx, deps, bot, chatID, b.String())
	}
}

// parseAddArgs parses the /job_add syntax:
//
//	/job_add <name> <identifier> <cron expr> | <params json> | <chat ids>
//
// The params and chat segments are optional. When no chat IDs are given the
// originating chat becomes the single target.
func parseAddArgs(text string, defaultChat int64) (jobsvc.AddRequest, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "/job_add"))
	segments := strings.Split(rest, "|")

	head := strings.Fields(segments[0])
	if len(head) < 3 {
		return jobsvc.AddRequest{}, fmt.Errorf("usage: /job_add <name> <identifier> <cron expr> | <params json> | <chat ids>")
	}

	req := jobsvc.AddRequest{
		Name:       head[0],
		Identifier: head[1],
		Schedule:   strings.Join(head[2:], " "),
		Params:     "{}",
		ChatIDs:    []int64{defaultChat},
	}

	if len(segments) > 1 {
		if params := strings.TrimSpace(segments[1]); params != "" {
			req.Params = params
		}
	}

	if len(segments) > 2 {
		if chats := strings.TrimSpace(segments[2]); chats != "" {
			req.ChatIDs = req.ChatIDs[:0]
			for _, tok := range strings.Split(chats, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
				if err != nil {
					return jobsvc.AddRequest{}, fmt.Errorf("invalid chat id %q", tok)
				}
				req.ChatIDs = append(req.ChatIDs, id)
			}
		}
	}

	return req, nil
}

// NewJobAddHandler creates the /job_add handler.
func NewJobAddHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "job_add")

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		req, err := parseAddArgs(update.Message.Text, chatID)
		if err != nil {
			reply(ctx, deps, bot, chatID, err.Error())
			return
		}

		def, err := deps.Service.Add(ctx, req)
		switch {
		case errors.Is(err, jobsvc.ErrValidation):
			reply(ctx, deps, bot, chatID, err.Error())
			return
		case errors.Is(err, database.ErrJobExists):
			reply(ctx, deps, bot, chatID, fmt.Sprintf("A job named %q already exists.", req.Name))
			return
		case err != nil:
			log.ErrorContext(ctx, "Failed to add job", "name", req.Name, "error", err)
			reply(ctx, deps, bot, chatID, deps.Config.Messages.ErrorGeneralMsg)
			return
		}

		msg := deps.Config.Messages.JobAddedMsg
		if next, err := scheduler.NextRun(def.Schedule, time.Now()); err == nil {
			msg = fmt.Sprintf("%s Next run: %s", msg, next.Format(time.RFC3339))
		}
		reply(ctx, deps, bot, chatID, msg)
	}
}

// NewJobDeleteHandler creates the /job_del handler.
func NewJobDeleteHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "job_del")

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		args := commandArgs(update.Message.Text)
		if len(args) != 1 {
			reply(ctx, deps, bot, chatID, "usage: /job_del <name>")
			return
		}

		err := deps.Service.Remove(ctx, args[0])
		switch {
		case errors.Is(err, database.ErrJobNotFound):
			reply(ctx, deps, bot, chatID, fmt.Sprintf("No job named %q.", args[0]))
			return
		case err != nil:
			log.ErrorContext(ctx, "Failed to delete job", "name", args[0], "error", err)
			reply(ctx, deps, bot, chatID, deps.Config.Messages.ErrorGeneralMsg)
			return
		}

		reply(ctx, deps, bot, chatID, deps.Config.Messages.JobRemovedMsg)
	}
}

// NewJobEnableHandler creates the /job_enable and /job_disable handlers.
func NewJobEnableHandler(deps HandlerDeps, enabled bool) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "job_enable", "enabled", enabled)

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		args := commandArgs(update.Message.Text)
		if len(args) != 1 {
			usage := "usage: /job_enable <name>"
			if !enabled {
				usage = "usage: /job_disable <name>"
			}
			reply(ctx, deps, bot, chatID, usage)
			return
		}

		err := deps.Service.SetEnabled(ctx, args[0], enabled)
		switch {
		case errors.Is(err, database.ErrJobNotFound):
			reply(ctx, deps, bot, chatID, fmt.Sprintf("No job named %q.", args[0]))
			return
		case err != nil:
			log.ErrorContext(ctx, "Failed to toggle job", "name", args[0], "error", err)
			reply(ctx, deps, bot, chatID, deps.Config.Messages.ErrorGeneralMsg)
			return
		}

		reply(ctx, deps, bot, chatID, deps.Config.Messages.JobUpdatedMsg)
	}
}

// NewJobRunHandler creates the /job_run handler for immediate out-of-schedule
// dispatch.
func NewJobRunHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "job_run")

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		args := commandArgs(update.Message.Text)
		if len(args) != 1 {
			reply(ctx, deps, bot, chatID, "usage: /job_run <name>")
			return
		}

		reply(ctx, deps, bot, chatID, deps.Config.Messages.JobQueuedMsg)

		err := deps.Service.RunNow(ctx, args[0])
		switch {
		case errors.Is(err, database.ErrJobNotFound):
			reply(ctx, deps, bot, chatID, fmt.Sprintf("No job named %q.", args[0]))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// Interruption propagated from the runner; shutdown is underway.
			log.WarnContext(ctx, "Immediate run interrupted", "name", args[0], "error", err)
		case err != nil:
			log.ErrorContext(ctx, "Immediate run failed", "name", args[0], "error", err)
			reply(ctx, deps, bot, chatID, fmt.Sprintf("Job %q failed: %v", args[0], err))
		}
	}
}

// NewJobRunsHandler creates the /job_runs handler showing run history.
func NewJobRunsHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "job_runs")

	return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		args := commandArgs(update.Message.Text)
		name := ""
		limit := 10
		if len(args) > 0 {
			name = args[0]
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				reply(ctx, deps, bot, chatID, "usage: /job_runs [name] [limit]")
				return
			}
			limit = n
		}

		runs, err := deps.Service.Runs(ctx, name, limit)
		switch {
		case errors.Is(err, database.ErrJobNotFound):
			reply(ctx, deps, bot, chatID, fmt.Sprintf("No job named %q.", name))
			return
		case err != nil:
			log.ErrorContext(ctx, "Failed to list runs", "name", name, "error", err)
			reply(ctx, deps, bot, chatID, deps.Config.Messages.ErrorGeneralMsg)
			return
		}

		if len(runs) == 0 {
			reply(ctx, deps, bot, chatID, "No runs recorded.")
			return
		}

		var b strings.Builder
		b.WriteString("Recent runs:\n")
		for _, run := range runs {
			fmt.Fprintf(&b, "\n%s - %s", run.Identifier, run.Status)
			if run.StartedAt.Valid {
				fmt.Fprintf(&b, " @ %s", run.StartedAt.Time.Format(time.RFC3339))
			}
			if run.Error.Valid {
				fmt.Fprintf(&b, "\n  error: %s", run.Error.String)
			}
		}

		reply(ctx, deps, bot, chatID, b.String())
	}
}
