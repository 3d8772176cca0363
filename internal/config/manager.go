package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/karimjebali/forager/internal/resources"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider string `json:"llm_provider,omitempty"` // openai, anthropic
	APIKey      string `json:"api_key,omitempty"`      // The API key for the selected provider
	Model       string `json:"model,omitempty"`        // Default model name
	BaseURL     string `json:"base_url,omitempty"`     // Optional override for API base URL

	MaxCandidatePlans int  `json:"max_candidate_plans,omitempty"` // Plans generated per goal
	LearningEnabled   bool `json:"learning_enabled"`              // Record execution experiences
	SelfImprovement   bool `json:"self_improvement"`              // Run the optimizer hook on maintenance
	UseWorktrees      bool `json:"use_worktrees"`                 // Git worktree isolation for sandboxes

	DataDir     string `json:"data_dir,omitempty"`     // Knowledge base location (empty = in-memory)
	SandboxDir  string `json:"sandbox_dir,omitempty"`  // Sandbox workspace root (empty = temp dir)
	MaxMemories int    `json:"max_memories,omitempty"` // Working memory capacity per goal

	ResourceLimits *resources.Limits `json:"resource_limits,omitempty"` // nil = defaults
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		MaxCandidatePlans: 3,
		LearningEnabled:   true,
		SelfImprovement:   true,
		UseWorktrees:      true,
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	return &Manager{
		configDir: filepath.Join(configDir, "forager"),
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns the defaults and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	if cfg.MaxCandidatePlans <= 0 {
		cfg.MaxCandidatePlans = 3
	}
	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	// The config can hold an API key, so keep it owner-only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
