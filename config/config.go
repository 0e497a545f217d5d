package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const (
	DefaultTagKey               = "Environment"
	DefaultTagValue             = "Test"
	DefaultCloud                = "AzurePublic"
	DefaultEnumerator           = EnumeratorARM
	DefaultSchedule             = "0 */2 * * * *"
	DefaultEmailSubjectTemplate = "Resource Deleted: {{ .Name }}"
	DefaultEmailBodyTemplate    = "Resource {{ .Name }} of type {{ .Type }} was deleted."
)

const (
	EnumeratorARM           = "arm"
	EnumeratorResourceGraph = "resourcegraph"
)

// Setting ties a viper key to the environment variable it is read from.
type Setting struct {
	Key      string
	Env      string
	Required bool
	Secret   bool
}

var Settings = []Setting{
	{Key: "subscriptionId", Env: "SubscriptionId", Required: true},
	{Key: "tagKey", Env: "TagKey"},
	{Key: "tagValue", Env: "TagValue"},
	{Key: "clientId", Env: "ClientId", Required: true},
	{Key: "tenantId", Env: "TenantId", Required: true},
	{Key: "clientSecret", Env: "ClientSecret", Secret: true},
	{Key: "clientCertificatePath", Env: "ClientCertificatePath"},
	{Key: "cloud", Env: "Cloud"},
	{Key: "enumerator", Env: "Enumerator"},
	{Key: "smtpServer", Env: "SmtpServer", Required: true},
	{Key: "smtpPort", Env: "SmtpPort", Required: true},
	{Key: "smtpUsername", Env: "SmtpUsername", Required: true},
	{Key: "smtpPassword", Env: "SmtpPassword", Required: true, Secret: true},
	{Key: "emailRecipient", Env: "EmailRecipient", Required: true},
	{Key: "emailSubjectTemplate", Env: "EmailSubjectTemplate"},
	{Key: "emailBodyTemplate", Env: "EmailBodyTemplate"},
	{Key: "schedule", Env: "Schedule"},
}

// IsSecret reports whether key names a credential that must not be logged. Keys are
// matched case-insensitively since viper lower-cases them.
func IsSecret(key string) bool {
	for _, setting := range Settings {
		if setting.Secret && strings.EqualFold(setting.Key, key) {
			return true
		}
	}
	return false
}

type Config struct {
	SubscriptionID        string
	TagKey                string
	TagValue              string
	ClientID              string
	TenantID              string
	ClientSecret          string
	ClientCertificatePath string
	Cloud                 string
	Enumerator            string
	Smtp                  SmtpConfig
	EmailRecipient        string
	EmailSubjectTemplate  string
	EmailBodyTemplate     string
	Schedule              string
}

type SmtpConfig struct {
	Server   string
	Port     int
	Username string
	Password string
}

// BindEnvironment binds every setting to its environment variable and registers defaults.
func BindEnvironment(v *viper.Viper) error {
	for _, setting := range Settings {
		if err := v.BindEnv(setting.Key, setting.Env); err != nil {
			return fmt.Errorf("binding %s to %s: %w", setting.Key, setting.Env, err)
		}
	}

	v.SetDefault("tagKey", DefaultTagKey)
	v.SetDefault("tagValue", DefaultTagValue)
	v.SetDefault("cloud", DefaultCloud)
	v.SetDefault("enumerator", DefaultEnumerator)
	v.SetDefault("schedule", DefaultSchedule)
	v.SetDefault("emailSubjectTemplate", DefaultEmailSubjectTemplate)
	v.SetDefault("emailBodyTemplate", DefaultEmailBodyTemplate)
	return nil
}

// Load builds the configuration from viper and rejects it when any required value
// is absent or malformed. The returned error names every offending setting.
func Load(v *viper.Viper) (*Config, error) {
	var err error
	for _, setting := range Settings {
		if setting.Required && strings.TrimSpace(v.GetString(setting.Key)) == "" {
			err = multierr.Append(err, fmt.Errorf("missing required setting %s (env %s)", setting.Key, setting.Env))
		}
	}

	// Ports are decimal: cast.ToIntE would read "025" as octal and accept "0x24B".
	port := 0
	if rawPort := v.Get("smtpPort"); rawPort != nil && strings.TrimSpace(cast.ToString(rawPort)) != "" {
		parsed, parseErr := strconv.Atoi(strings.TrimSpace(cast.ToString(rawPort)))
		if parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid smtpPort %q: %w", cast.ToString(rawPort), parseErr))
		} else if parsed < 1 || parsed > 65535 {
			err = multierr.Append(err, fmt.Errorf("invalid smtpPort %d: must be between 1 and 65535", parsed))
		} else {
			port = parsed
		}
	}

	enumerator := strings.ToLower(v.GetString("enumerator"))
	if enumerator != EnumeratorARM && enumerator != EnumeratorResourceGraph {
		err = multierr.Append(err, fmt.Errorf("invalid enumerator %q: must be %s or %s", enumerator, EnumeratorARM, EnumeratorResourceGraph))
	}

	if strings.TrimSpace(v.GetString("tagKey")) == "" {
		err = multierr.Append(err, fmt.Errorf("tagKey must not be empty"))
	}

	if err != nil {
		return nil, err
	}

	return &Config{
		SubscriptionID:        v.GetString("subscriptionId"),
		TagKey:                v.GetString("tagKey"),
		TagValue:              v.GetString("tagValue"),
		ClientID:              v.GetString("clientId"),
		TenantID:              v.GetString("tenantId"),
		ClientSecret:          v.GetString("clientSecret"),
		ClientCertificatePath: v.GetString("clientCertificatePath"),
		Cloud:                 v.GetString("cloud"),
		Enumerator:            enumerator,
		Smtp: SmtpConfig{
			Server:   v.GetString("smtpServer"),
			Port:     port,
			Username: v.GetString("smtpUsername"),
			Password: v.GetString("smtpPassword"),
		},
		EmailRecipient:       v.GetString("emailRecipient"),
		EmailSubjectTemplate: v.GetString("emailSubjectTemplate"),
		EmailBodyTemplate:    v.GetString("emailBodyTemplate"),
		Schedule:             v.GetString("schedule"),
	}, nil
}
