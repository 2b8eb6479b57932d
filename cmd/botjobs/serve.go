package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"botjobs/internal/bot"
	"botjobs/internal/bot/handlers"
	"botjobs/internal/jobsvc"
	"botjobs/internal/metrics"
	"botjobs/internal/runner"
	"botjobs/internal/scheduler"
	"botjobs/internal/telegram"
)

// serveCmd represents the serve command, the main entry point for running
// the scheduler and the Telegram admin surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and Telegram bot",
	Long: `Start the job scheduler and the Telegram bot listener.
All enabled job definitions are loaded from the database and dispatched on
their cron schedules until the process receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		exitCode := serve(ctx)
		stop()
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

// serve initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func serve(ctx context.Context) int {
	core, err := buildCore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer core.close()

	cfg, log := core.cfg, core.log
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// Cross-check the configured tenancy ID against the live bot account so
	// one bot never reads another bot's job definitions.
	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	if me.ID != cfg.Telegram.BotID {
		log.Error("Configured bot_id does not match the token's bot account",
			"configured", cfg.Telegram.BotID, "actual", me.ID)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	notifier := telegram.NewNotifier(tg, log)
	core.registry.Pool().MustRegister("notifier", notifier)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("botjobs")
	}

	exec := runner.New(log, core.store, core.registry, notifier, m, cfg.Runner.RunTimeout)

	sched, err := scheduler.NewScheduler(log, core.store, exec, m, cfg.Scheduler.Timezone)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	svc := jobsvc.New(log, core.store, core.registry, sched, cfg.Scheduler.ResyncTimeout)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Service:  svc,
		Registry: core.registry,
	}
	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, core.db, core.store, tg, sched, m)

	log.Info("Starting botjobs...", "version", Version)
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
