package sandbox

import (
	"context"
	"time"
)

// Result captures the output of a command run inside a sandbox workspace.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner executes commands inside a sandbox workspace. Implementations
// should isolate the command from the host; the host runner exists as a
// fallback when no container runtime is available.
type Runner interface {
	// RunCmd runs a command with the workspace as its working directory.
	// A timeout <= 0 uses the runner's configured default.
	RunCmd(ctx context.Context, workspace, name string, args []string, timeout time.Duration) (Result, error)
}
