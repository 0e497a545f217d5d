package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadEnvFile loads KEY=VALUE pairs into the process environment. Variables that
// are already set win over the file.
func LoadEnvFile(path string) error {
	envFilePath, err := ParsePath(path)
	if err != nil {
		return fmt.Errorf("resolving env file path %s: %w", path, err)
	}
	if envFilePath == "" {
		return nil
	}
	if err := godotenv.Load(envFilePath); err != nil {
		return fmt.Errorf("loading env file %s: %w", envFilePath, err)
	}
	return nil
}

// ReadConfigFile merges a JSON or YAML settings file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	configFilePath, err := ParsePath(path)
	if err != nil {
		return fmt.Errorf("resolving config file path %s: %w", path, err)
	}
	if configFilePath == "" {
		return nil
	}
	v.SetConfigFile(configFilePath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFilePath, err)
	}
	return nil
}
