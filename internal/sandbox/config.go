package sandbox

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode selects how sandboxed commands are executed.
type Mode string

const (
	// ModeDocker runs commands in throwaway Docker containers.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host. The workspace directory
	// still isolates file mutations, but the process itself is unconfined.
	ModeHost Mode = "host"
	// ModeAuto uses Docker when available and falls back to host execution.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 2 * time.Minute

// RunnerConfig holds command-execution settings for sandbox runners.
type RunnerConfig struct {
	Mode        Mode
	DockerImage string        // image override for docker mode
	CPU         string        // CPU limit, e.g. "2"
	Memory      string        // memory limit, e.g. "1g"
	CmdTimeout  time.Duration // default command timeout (0 = built-in default)
}

// DefaultRunnerConfig builds a config from FORAGER_* environment variables.
func DefaultRunnerConfig() RunnerConfig {
	mode := ModeAuto
	switch strings.ToLower(os.Getenv("FORAGER_SANDBOX_MODE")) {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "auto", "":
	default:
		log.Printf("[sandbox] WARNING: unknown FORAGER_SANDBOX_MODE %q, using auto",
			os.Getenv("FORAGER_SANDBOX_MODE"))
	}

	cmdTimeout := defaultCmdTimeout
	if v := os.Getenv("FORAGER_CMD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			log.Printf("[sandbox] WARNING: invalid FORAGER_CMD_TIMEOUT %q, using %s", v, defaultCmdTimeout)
		}
	}

	return RunnerConfig{
		Mode:        mode,
		DockerImage: os.Getenv("FORAGER_DOCKER_IMAGE"),
		CPU:         envOrDefault("FORAGER_DOCKER_CPU", "2"),
		Memory:      envOrDefault("FORAGER_DOCKER_MEMORY", "1g"),
		CmdTimeout:  cmdTimeout,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsDockerAvailable reports whether the Docker daemon is reachable.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	return cmd.Run() == nil
}

// NewDefaultRunner selects a runner according to the config mode, degrading
// to host execution when Docker is requested but unavailable.
func NewDefaultRunner(cfg RunnerConfig) Runner {
	ctx := context.Background()

	switch cfg.Mode {
	case ModeHost:
		log.Printf("[sandbox] WARNING: host runner selected; commands run unconfined")
		return &HostRunner{cfg: cfg}
	case ModeDocker, ModeAuto:
		if !IsDockerAvailable(ctx) {
			if cfg.Mode == ModeDocker {
				log.Printf("[sandbox] WARNING: docker mode requested but daemon unreachable, falling back to host runner")
			}
			return &HostRunner{cfg: cfg}
		}
		r, err := NewDockerRunner(cfg)
		if err != nil {
			log.Printf("[sandbox] WARNING: docker runner unavailable (%v), falling back to host runner", err)
			return &HostRunner{cfg: cfg}
		}
		return r
	default:
		return &HostRunner{cfg: cfg}
	}
}
