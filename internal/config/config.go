// Package config loads lca's configuration from the user's config file,
// environment, and flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	WorkingDir    string `yaml:"working_dir"`
	MaxIterations int    `yaml:"max_iterations"`
	AllowAll      bool   `yaml:"allow_all"`
	HistoryFile   string `yaml:"history_file"`
	SessionDB     string `yaml:"session_db"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:      "ollama",
		WorkingDir:    ".",
		MaxIterations: 10,
		HistoryFile:   filepath.Join(userDir(), "history.txt"),
		SessionDB:     filepath.Join(userDir(), "context.db"),
	}
}

// DefaultPath returns the user-scoped config file location.
func DefaultPath() string {
	return filepath.Join(userDir(), "config.yaml")
}

// userDir is ~/.lca, falling back to the working directory when HOME is
// unset.
func userDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lca"
	}
	return filepath.Join(home, ".lca")
}

// Load reads the config file at path (DefaultPath when empty; a missing
// file is not an error) and applies LCA_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LCA_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("LCA_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LCA_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LCA_WORKING_DIR"); v != "" {
		c.WorkingDir = v
	}
	if v := os.Getenv("LCA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("LCA_ALLOW_ALL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowAll = b
		}
	}
}
