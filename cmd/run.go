/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one cleanup pass over the subscription",
	Long: `The run command performs a single cleanup pass and exits:

1. Lists every resource group in the subscription
2. Lists the resources of each group
3. Deletes each resource tagged with the configured key and value, waiting for the delete to finish
4. Emails the configured recipient once for every resource that was deleted

Failures on individual resources are logged and do not stop the pass. Use this command
when an external scheduler (cron, a Kubernetes CronJob) triggers the job.

Examples:
  # One pass using settings from the environment
  tagged-resource-cleanup run

  # One pass with settings from an env file and Resource Graph enumeration
  tagged-resource-cleanup run --envFile ./cleanup.env --enumerator resourcegraph`,
	Run: func(cmd *cobra.Command, args []string) {
		job, _ := newCleanupJob()

		summary, err := job.Run(cmd.Context())
		if err != nil {
			log.Fatalf("Cleanup run failed: %v", err)
		}

		log.Infof("Deleted %d of %d matching resources, %d email alerts sent", summary.Deleted, summary.Matched, summary.Notified)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
