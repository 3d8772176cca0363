package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/karimjebali/forager/internal/config"
	"github.com/karimjebali/forager/internal/engine"
	"github.com/karimjebali/forager/internal/history"
	"github.com/karimjebali/forager/internal/knowledge"
	"github.com/karimjebali/forager/internal/planner"
	"github.com/karimjebali/forager/internal/project"
	"github.com/karimjebali/forager/internal/providers"
	"github.com/karimjebali/forager/internal/sandbox"
	"github.com/karimjebali/forager/internal/tools"
)

type runtimeEnv struct {
	Engine      *engine.Engine
	Events      chan engine.Event
	History     *history.Store // nil when no data dir is configured
	ProjectRoot string
	knowledge   *knowledge.Base
	tmpDir      string
}

func (r *runtimeEnv) Close(ctx context.Context) {
	if err := r.Engine.Stop(ctx); err != nil {
		log.Printf("WARNING: engine stop: %v", err)
	}
	if r.knowledge != nil {
		if err := r.knowledge.Close(); err != nil {
			log.Printf("WARNING: knowledge close: %v", err)
		}
	}
	if r.tmpDir != "" {
		os.RemoveAll(r.tmpDir)
	}
}

// applyEnvOverrides layers FORAGER_* environment variables (typically
// from .env) over the persisted config. Environment wins.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("FORAGER_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("FORAGER_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("FORAGER_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("FORAGER_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FORAGER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FORAGER_SANDBOX_DIR"); v != "" {
		cfg.SandboxDir = v
	}

	// Provider-native key variables as a fallback.
	if cfg.APIKey == "" {
		switch cfg.LLMProvider {
		case "anthropic":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, projectFlag string) (*runtimeEnv, error) {
	projectRoot := projectFlag
	if projectRoot == "" {
		var err error
		projectRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	absProject, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	if info, err := os.Stat(absProject); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project path is not a valid directory: %s", absProject)
	}
	log.Printf("Project root: %s", absProject)

	cfgManager, err := config.NewManager()
	var cfg *config.Config
	if err == nil {
		cfg, err = cfgManager.Load()
		if err != nil {
			log.Printf("WARNING: failed to load user config: %v", err)
			cfg = config.Default()
		} else if cfgManager.Exists() {
			log.Printf("User config loaded from: %s", cfgManager.GetConfigPath())
		}
	} else {
		log.Printf("WARNING: failed to initialize config manager: %v", err)
		cfg = config.Default()
	}
	applyEnvOverrides(cfg)

	// Per-project .forager/config.json wins over the user-level config.
	if pcfg, err := project.LoadConfig(absProject); err != nil {
		log.Printf("WARNING: failed to load project config: %v", err)
	} else if pcfg != nil {
		if pcfg.MaxCandidatePlans > 0 {
			cfg.MaxCandidatePlans = pcfg.MaxCandidatePlans
		}
		if pcfg.UseWorktrees != nil {
			cfg.UseWorktrees = *pcfg.UseWorktrees
		}
		if pcfg.LearningEnabled != nil {
			cfg.LearningEnabled = *pcfg.LearningEnabled
		}
	}

	env := &runtimeEnv{ProjectRoot: absProject}

	sandboxDir := cfg.SandboxDir
	if sandboxDir == "" {
		sandboxDir, err = os.MkdirTemp("", "forager-sandboxes-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
		}
		env.tmpDir = sandboxDir
	}

	sandboxes, err := sandbox.NewManager(sandboxDir, absProject)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox manager: %w", err)
	}
	runner := sandbox.NewDefaultRunner(sandbox.DefaultRunnerConfig())
	registry := tools.Builtin(runner)

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		env.knowledge, err = knowledge.Open(ctx, filepath.Join(cfg.DataDir, "knowledge.db"))
		env.History = history.NewStore(cfg.DataDir)
	} else {
		env.knowledge, err = knowledge.OpenInMemory(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}

	proj := planner.DescribeProject(absProject)
	log.Printf("Project type: %s", proj.Kind)

	var plnr engine.Planner
	client, model, err := providers.NewLLMClient(*cfg)
	if err != nil {
		log.Printf("WARNING: no LLM available (%v), using heuristic planning", err)
		plnr = planner.NewHeuristicPlanner(registry, proj)
	} else {
		log.Printf("LLM provider ready: %s (%s)", cfg.LLMProvider, model)
		plnr = planner.NewLLMPlanner(client, registry, env.knowledge, proj)
	}

	engCfg := engine.DefaultConfig()
	engCfg.MaxCandidatePlans = cfg.MaxCandidatePlans
	engCfg.LearningEnabled = cfg.LearningEnabled
	engCfg.SelfImprovement = cfg.SelfImprovement
	engCfg.UseWorktrees = cfg.UseWorktrees
	engCfg.ProjectDir = absProject
	if cfg.MaxMemories > 0 {
		engCfg.MaxMemoryEntries = cfg.MaxMemories
	}
	if cfg.ResourceLimits != nil {
		engCfg.ResourceLimits = *cfg.ResourceLimits
	}

	env.Events = make(chan engine.Event, 256)
	eng, err := engine.New(engCfg, engine.Deps{
		Planner:   plnr,
		Tools:     registry,
		Sandboxes: sandboxes,
		Knowledge: env.knowledge,
		Hook:      engine.ChannelHook{Ch: env.Events},
	})
	if err != nil {
		env.knowledge.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	env.Engine = eng
	return env, nil
}
