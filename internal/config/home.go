package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetHome returns the filestage home directory, creating it if needed.
// Priority order:
//  1. FILESTAGE_HOME environment variable (if set)
//  2. .filestage under the current working directory
func GetHome() (string, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		home = filepath.Join(cwd, ".filestage")
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create filestage home directory: %w", err)
	}
	return home, nil
}

// LockPath returns the instance lock file held by a running server.
func LockPath(home string) string {
	return filepath.Join(home, "filestage.lock")
}

// Load resolves the effective configuration for a command and returns it
// with the home directory. Sources, lowest priority first: defaults, the
// YAML file (explicitPath or <home>/config.yaml), .env in the working
// directory, FILESTAGE_* environment variables. CLI flags are merged by
// the caller.
func Load(explicitPath string) (*Config, string, error) {
	// Before GetHome so that .env can set FILESTAGE_HOME
	if err := LoadEnvFile(".env"); err != nil {
		return nil, "", err
	}

	home, err := GetHome()
	if err != nil {
		return nil, "", err
	}

	var cfg *Config
	if explicitPath != "" {
		cfg, err = LoadConfig(explicitPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", explicitPath, err)
		}
	} else {
		cfg, err = LoadConfigFromDir(home)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	cfg.ResolvePaths(home)
	return cfg, home, nil
}
