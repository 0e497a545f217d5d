package azure

import (
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/sirupsen/logrus"
)

type CredentialSettings struct {
	ClientID              string
	TenantID              string
	ClientSecret          string
	ClientCertificatePath string
}

type CredentialKind string

const (
	CredentialKindClientSecret      CredentialKind = "ClientSecret"
	CredentialKindClientCertificate CredentialKind = "ClientCertificate"
	CredentialKindManagedIdentity   CredentialKind = "ManagedIdentity"
)

// SelectCredentialKind picks the non-interactive flow the settings allow. A client
// secret wins over a certificate; with neither the job relies on the host identity.
func SelectCredentialKind(settings CredentialSettings) CredentialKind {
	if settings.ClientSecret != "" {
		return CredentialKindClientSecret
	}
	if settings.ClientCertificatePath != "" {
		return CredentialKindClientCertificate
	}
	return CredentialKindManagedIdentity
}

func NewCredential(settings CredentialSettings, cloudConfiguration cloud.Configuration, logger *logrus.Logger) (azcore.TokenCredential, error) {
	clientOptions := azcore.ClientOptions{Cloud: cloudConfiguration}

	kind := SelectCredentialKind(settings)
	logger.Debugf("Using %s credential for client %s in tenant %s", kind, settings.ClientID, settings.TenantID)

	switch kind {
	case CredentialKindClientSecret:
		return azidentity.NewClientSecretCredential(settings.TenantID, settings.ClientID, settings.ClientSecret, &azidentity.ClientSecretCredentialOptions{
			ClientOptions: clientOptions,
		})

	case CredentialKindClientCertificate:
		certificateData, err := os.ReadFile(settings.ClientCertificatePath)
		if err != nil {
			return nil, fmt.Errorf("reading client certificate %s: %w", settings.ClientCertificatePath, err)
		}
		certificates, key, err := azidentity.ParseCertificates(certificateData, nil)
		if err != nil {
			return nil, fmt.Errorf("parsing client certificate %s: %w", settings.ClientCertificatePath, err)
		}
		return azidentity.NewClientCertificateCredential(settings.TenantID, settings.ClientID, certificates, key, &azidentity.ClientCertificateCredentialOptions{
			ClientOptions: clientOptions,
		})

	default:
		managedIdentity, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ClientOptions: clientOptions,
			ID:            azidentity.ClientID(settings.ClientID),
		})
		if err != nil {
			return nil, fmt.Errorf("creating managed identity credential: %w", err)
		}
		defaultCredential, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			ClientOptions: clientOptions,
			TenantID:      settings.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating default azure credential: %w", err)
		}
		return azidentity.NewChainedTokenCredential([]azcore.TokenCredential{managedIdentity, defaultCredential}, nil)
	}
}
