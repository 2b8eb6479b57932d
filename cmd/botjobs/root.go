package main

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "botjobs",
	Short: "botjobs - persisted job scheduler with a Telegram admin surface",
	Long: `botjobs runs named jobs on cron schedules, records every run, and
exposes job administration over Telegram commands and this CLI.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
}
