/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/viper"

	"github.com/azure/tagged-resource-cleanup/azure"
	"github.com/azure/tagged-resource-cleanup/cleanup"
	"github.com/azure/tagged-resource-cleanup/config"
	"github.com/azure/tagged-resource-cleanup/notify"
)

// newCleanupJob validates the configuration and wires the Azure clients and the
// notifier. Any failure terminates the process before a resource is touched.
func newCleanupJob() (*cleanup.CleanupJob, *config.Config) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	templates, err := notify.NewMessageTemplates(cfg.EmailSubjectTemplate, cfg.EmailBodyTemplate)
	if err != nil {
		log.Fatalf("Invalid email template: %v", err)
	}

	cloudConfiguration, err := azure.CloudConfiguration(cfg.Cloud)
	if err != nil {
		log.Fatalf("Error selecting cloud: %v", err)
	}

	cred, err := azure.NewCredential(azure.CredentialSettings{
		ClientID:              cfg.ClientID,
		TenantID:              cfg.TenantID,
		ClientSecret:          cfg.ClientSecret,
		ClientCertificatePath: cfg.ClientCertificatePath,
	}, cloudConfiguration, log)
	if err != nil {
		log.Fatalf("Error creating credential: %v", err)
	}

	clientOptions := azure.NewClientOptions(cloudConfiguration)
	resourceClient, err := azure.NewResourceClient(cfg.SubscriptionID, cred, clientOptions, log)
	if err != nil {
		log.Fatalf("Error creating resource client: %v", err)
	}

	var client azure.IResourceClient = resourceClient
	if cfg.Enumerator == config.EnumeratorResourceGraph {
		client, err = azure.NewResourceGraphClient(cfg.SubscriptionID, cred, clientOptions, resourceClient, log)
		if err != nil {
			log.Fatalf("Error creating resource graph client: %v", err)
		}
	}
	log.Debugf("Enumerating resources with %s", cfg.Enumerator)

	notifier := notify.NewEmailNotifier(cfg.Smtp, log)

	return cleanup.NewCleanupJob(cfg, client, notifier, templates, log), cfg
}
