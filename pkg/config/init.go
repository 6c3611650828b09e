package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the settings file name inside the settings directory
const DefaultConfigFile = "settings.yaml"

// WriteDefaultConfig writes the effective configuration to path, or to the
// settings directory when path is empty. Values already loaded from a file
// or the environment are written as they are; every other key gets its default.
func WriteDefaultConfig(path string) (string, error) {
	if path == "" {
		path = BuildSettingsPath(DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("error writing config: %w", err)
	}

	return path, nil
}
