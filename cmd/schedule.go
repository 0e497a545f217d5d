/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/azure/tagged-resource-cleanup/config"
	"github.com/azure/tagged-resource-cleanup/scheduler"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run cleanup passes on a cron schedule until interrupted",
	Long: `The schedule command keeps running and triggers a cleanup pass on a six-field cron
expression (seconds first). The default runs every two minutes. A pass that is still
running when the next one is due causes that tick to be skipped.

SIGINT or SIGTERM stops the scheduler once the active pass has finished.

Examples:
  # Every two minutes
  tagged-resource-cleanup schedule

  # Every night at 02:00
  tagged-resource-cleanup schedule --schedule "0 0 2 * * *"`,
	Run: func(cmd *cobra.Command, args []string) {
		job, cfg := newCleanupJob()

		cleanupScheduler, err := scheduler.NewScheduler(cfg.Schedule, job, log)
		if err != nil {
			log.Fatalf("Invalid schedule: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := cleanupScheduler.Start(ctx); err != nil {
			log.Fatalf("Scheduler stopped: %v", err)
		}
		log.Info("Scheduler stopped")
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.PersistentFlags().StringP("schedule", "s", config.DefaultSchedule, "Six-field cron expression with seconds")
	viper.BindPFlag("schedule", scheduleCmd.PersistentFlags().Lookup("schedule"))
}
