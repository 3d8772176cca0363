package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	m := &Manager{configDir: t.TempDir()}

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxCandidatePlans != 3 {
		t.Errorf("MaxCandidatePlans = %d, want 3", cfg.MaxCandidatePlans)
	}
	if !cfg.LearningEnabled || !cfg.UseWorktrees {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := &Manager{configDir: filepath.Join(t.TempDir(), "forager")}

	cfg := Default()
	cfg.LLMProvider = "anthropic"
	cfg.Model = "claude-sonnet-4-20250514"
	cfg.MaxCandidatePlans = 5
	cfg.LearningEnabled = false

	if err := m.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !m.Exists() {
		t.Fatal("Exists() = false after save")
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLMProvider != "anthropic" || loaded.Model != cfg.Model {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.MaxCandidatePlans != 5 {
		t.Errorf("MaxCandidatePlans = %d, want 5", loaded.MaxCandidatePlans)
	}
	if loaded.LearningEnabled {
		t.Error("LearningEnabled should round-trip as false")
	}
}

func TestLoadSanitizesPlanCount(t *testing.T) {
	m := &Manager{configDir: t.TempDir()}
	cfg := Default()
	cfg.MaxCandidatePlans = 0
	if err := m.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MaxCandidatePlans != 3 {
		t.Errorf("MaxCandidatePlans = %d, want sanitized 3", loaded.MaxCandidatePlans)
	}
}
