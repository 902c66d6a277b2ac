package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"converge/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/converge"
	configFileName = "config.yaml"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from a single directory. The directory
// should contain config.yaml and the controller definitions directory.
// A missing config.yaml yields the defaults. The result is validated.
func LoadConfig(configPath string) (ConvergeConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config.resolve(configPath), nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return ConvergeConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ConvergeConfig{}, NewConfigurationError(configFilePath, "parse", err.Error())
	}
	if err := Validate(config); err != nil {
		return ConvergeConfig{}, NewConfigurationError(configFilePath, "validation", err.Error())
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config.resolve(configPath), nil
}

func (c ConvergeConfig) resolve(configPath string) ConvergeConfig {
	if c.ControllersDir != "" && !filepath.IsAbs(c.ControllersDir) {
		c.ControllersDir = filepath.Join(configPath, c.ControllersDir)
	}
	return c
}
