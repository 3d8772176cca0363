// Package project handles per-project configuration kept in a .forager
// directory at the project root. It layers on top of the user-level
// config: settings here win for goals run against this project.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ForagerDir is the directory name for per-project configuration.
	ForagerDir = ".forager"
	// ConfigFile is the name of the project configuration file.
	ConfigFile = "config.json"
	// RulesFile holds free-form planning rules injected into prompts.
	RulesFile = "rules"
)

// Config holds per-project overrides. Pointer fields distinguish "not
// set" from an explicit false/zero.
type Config struct {
	MaxCandidatePlans int   `json:"max_candidate_plans,omitempty"`
	UseWorktrees      *bool `json:"use_worktrees,omitempty"`
	LearningEnabled   *bool `json:"learning_enabled,omitempty"`
}

func configPath(root string) string {
	return filepath.Join(root, ForagerDir, ConfigFile)
}

func rulesPath(root string) string {
	return filepath.Join(root, ForagerDir, RulesFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(root string) bool {
	_, err := os.Stat(configPath(root))
	return !os.IsNotExist(err)
}

// LoadConfig reads the project configuration from disk.
// Returns nil and no error if the config file does not exist.
func LoadConfig(root string) (*Config, error) {
	path := configPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the project configuration, creating the .forager
// directory if needed.
func SaveConfig(root string, cfg *Config) error {
	dir := filepath.Join(root, ForagerDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ForagerDir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}
	if err := os.WriteFile(configPath(root), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}

// LoadRules reads the project's planning rules. Returns an empty string
// and no error if the file does not exist.
func LoadRules(root string) (string, error) {
	path := rulesPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return string(data), nil
}
