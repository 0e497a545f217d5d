/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/azure/tagged-resource-cleanup/config"
)

var log = logrus.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tagged-resource-cleanup",
	Short: "Delete Azure resources tagged as test resources and email an alert for each deletion",
	Long: `Scans every resource group in an Azure subscription, deletes each resource carrying
the configured tag (Environment=Test by default) and emails the configured recipient once
per successful deletion.

Settings are read from the environment (SubscriptionId, ClientId, TenantId, SmtpServer,
SmtpPort, SmtpUsername, SmtpPassword, EmailRecipient, ...), an optional env file and an
optional JSON or YAML config file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "JSON or YAML config file path")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	rootCmd.PersistentFlags().String("envFile", "", "Env file with KEY=VALUE settings, the process environment takes precedence")
	viper.BindPFlag("envFile", rootCmd.PersistentFlags().Lookup("envFile"))
	rootCmd.PersistentFlags().StringP("verbosity", "v", "info", "Log level (trace, debug, info, warn, error)")
	viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbosity"))
	rootCmd.PersistentFlags().BoolP("structuredLogs", "j", false, "Output logs as JSON")
	viper.BindPFlag("structuredLogs", rootCmd.PersistentFlags().Lookup("structuredLogs"))

	rootCmd.PersistentFlags().String("tagKey", config.DefaultTagKey, "Tag key marking a resource for deletion (default Environment, set TagKey=Test explicitly to match on a key named Test)")
	viper.BindPFlag("tagKey", rootCmd.PersistentFlags().Lookup("tagKey"))
	rootCmd.PersistentFlags().String("tagValue", config.DefaultTagValue, "Tag value marking a resource for deletion")
	viper.BindPFlag("tagValue", rootCmd.PersistentFlags().Lookup("tagValue"))
	rootCmd.PersistentFlags().String("cloud", config.DefaultCloud, "Azure cloud (AzurePublic, AzureChina, AzureUSGovernment)")
	viper.BindPFlag("cloud", rootCmd.PersistentFlags().Lookup("cloud"))
	rootCmd.PersistentFlags().StringP("enumerator", "e", config.DefaultEnumerator, "Resource enumeration backend (arm or resourcegraph)")
	viper.BindPFlag("enumerator", rootCmd.PersistentFlags().Lookup("enumerator"))
}

func initConfig() {
	if err := config.LoadEnvFile(viper.GetString("envFile")); err != nil {
		log.Fatalf("Error loading env file: %v", err)
	}
	if err := config.ReadConfigFile(viper.GetViper(), viper.GetString("config")); err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	if err := config.BindEnvironment(viper.GetViper()); err != nil {
		log.Fatalf("Error binding environment: %v", err)
	}
}

func configureLogging(cmd *cobra.Command) {
	logVerbosity := viper.GetString("verbosity")
	logLevel, err := logrus.ParseLevel(logVerbosity)
	if err != nil {
		log.Fatalf("Invalid log level: %s", logVerbosity)
	}
	log.SetLevel(logLevel)
	log.SetFormatter(&logrus.TextFormatter{})
	if viper.GetBool("structuredLogs") {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	for key, value := range viper.GetViper().AllSettings() {
		if config.IsSecret(key) {
			value = "****"
		}
		log.Debugf("Command Flag: %s = %v", key, value)
	}
}
