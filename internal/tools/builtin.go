package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karimjebali/forager/internal/resources"
	"github.com/karimjebali/forager/internal/sandbox"
)

const (
	defaultShellTimeout = 60 * time.Second
	maxShellTimeout     = 5 * time.Minute
	maxOutputChars      = 8000
	maxListEntries      = 500
)

var shellAllowedCommands = []string{
	// Build tools
	"go", "gofmt",
	"npm", "npx", "yarn", "pnpm",
	"python", "python3", "pip", "pip3", "pytest",
	"cargo", "rustc",
	"make", "cmake",

	// File operations
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail",
	"ls", "find",
	"wc", "grep", "sort", "uniq", "diff",

	// Version control
	"git",

	// Shell
	"sh", "bash",

	// Utilities
	"echo", "printf", "date", "which", "env",
	"tar", "gzip", "gunzip", "jq",
}

// Builtin returns the standard tool set: shell execution plus basic
// file operations, all scoped to the sandbox workspace.
func Builtin(runner sandbox.Runner) Registry {
	reg := make(Registry)
	reg.Register(newShellExecTool(runner))
	reg.Register(newReadFileTool())
	reg.Register(newWriteFileTool())
	reg.Register(newListFilesTool())
	return reg
}

// resolvePath joins a workspace-relative path and rejects escapes above
// the workspace root.
func resolvePath(workspace, rel string) (string, error) {
	abs := filepath.Clean(filepath.Join(workspace, rel))
	root := filepath.Clean(workspace)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the sandbox workspace", rel)
	}
	return abs, nil
}

type shellResult struct {
	Cmd      string `json:"cmd"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
	Status   string `json:"status"`
}

func newShellExecTool(runner sandbox.Runner) Tool {
	return Tool{
		ID:          "shell_exec",
		Description: "Runs an allowlisted command inside the sandbox workspace. Supports build tools, file operations, git, and common shell utilities.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"cmd": {"type":"string","description":"Command name (must be in allowlist)"},
				"args": {"type":"array","items":{"type":"string"},"description":"Command arguments"},
				"timeout_seconds": {"type":"integer","minimum":1,"maximum":300,"description":"Maximum seconds to allow the command to run (default: 60)"}
			},
			"required": ["cmd"]
		}`,
		EstimatedResources: resources.Usage{CPUPercent: 10, MemoryMB: 256},
		Retryable:          false,
		Fn: func(ctx context.Context, workspace string, args map[string]any) (string, error) {
			cmd, _ := args["cmd"].(string)

			allowed := false
			for _, a := range shellAllowedCommands {
				if cmd == a {
					allowed = true
					break
				}
			}
			if !allowed {
				out, _ := json.Marshal(shellResult{
					Cmd:      cmd,
					ExitCode: 1,
					Stderr:   fmt.Sprintf("command %q is not in the allowlist", cmd),
					Status:   "failed",
				})
				return string(out), nil
			}

			var cmdArgs []string
			if raw, ok := args["args"].([]any); ok {
				for _, v := range raw {
					if s, ok := v.(string); ok {
						cmdArgs = append(cmdArgs, s)
					}
				}
			}

			timeout := defaultShellTimeout
			if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs) * time.Second
				if timeout > maxShellTimeout {
					timeout = maxShellTimeout
				}
			}

			res, err := runner.RunCmd(ctx, workspace, cmd, cmdArgs, timeout)

			sr := shellResult{
				Cmd:      strings.TrimSpace(cmd + " " + strings.Join(cmdArgs, " ")),
				ExitCode: res.Code,
				Stdout:   truncate(res.Stdout),
				Stderr:   truncate(res.Stderr),
				TimedOut: res.TimedOut || errors.Is(err, context.DeadlineExceeded),
				Status:   "ok",
			}
			if sr.TimedOut || res.Code != 0 {
				sr.Status = "failed"
			}

			out, marshalErr := json.Marshal(sr)
			if marshalErr != nil {
				return "", marshalErr
			}
			if sr.Status == "failed" {
				return string(out), fmt.Errorf("command failed with exit code %d", res.Code)
			}
			return string(out), nil
		},
	}
}

func truncate(s string) string {
	if len(s) > maxOutputChars {
		return s[:maxOutputChars] + "\n... output truncated ..."
	}
	return s
}

func newReadFileTool() Tool {
	return Tool{
		ID:                 "read_file",
		Description:        "Reads the content of a file from the sandbox workspace. Path is relative to the workspace root.",
		SchemaJSON:         `{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root"}},"required":["path"]}`,
		EstimatedResources: resources.Usage{CPUPercent: 1, MemoryMB: 16},
		Retryable:          true,
		Fn: func(ctx context.Context, workspace string, args map[string]any) (string, error) {
			rel, _ := args["path"].(string)
			path, err := resolvePath(workspace, rel)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", rel, err)
			}
			return string(data), nil
		},
	}
}

func newWriteFileTool() Tool {
	return Tool{
		ID:                 "write_file",
		Description:        "Writes content to a file in the sandbox workspace, creating parent directories as needed.",
		SchemaJSON:         `{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root"},"content":{"type":"string","description":"File content to write"}},"required":["path","content"]}`,
		EstimatedResources: resources.Usage{CPUPercent: 1, MemoryMB: 16, StorageMB: 1},
		Retryable:          true,
		Fn: func(ctx context.Context, workspace string, args map[string]any) (string, error) {
			rel, _ := args["path"].(string)
			content, _ := args["content"].(string)

			path, err := resolvePath(workspace, rel)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return "", fmt.Errorf("failed to create parent dirs for %s: %w", rel, err)
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", rel, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
		},
	}
}

func newListFilesTool() Tool {
	return Tool{
		ID:                 "list_files",
		Description:        "Lists files in the sandbox workspace recursively, relative to the workspace root.",
		SchemaJSON:         `{"type":"object","properties":{"path":{"type":"string","description":"Subdirectory to list (default: workspace root)"}},"required":[]}`,
		EstimatedResources: resources.Usage{CPUPercent: 1, MemoryMB: 16},
		Retryable:          true,
		Fn: func(ctx context.Context, workspace string, args map[string]any) (string, error) {
			rel, _ := args["path"].(string)
			root, err := resolvePath(workspace, rel)
			if err != nil {
				return "", err
			}

			var entries []string
			err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if info.IsDir() {
					if info.Name() == ".git" {
						return filepath.SkipDir
					}
					return nil
				}
				r, relErr := filepath.Rel(workspace, path)
				if relErr != nil {
					return nil
				}
				entries = append(entries, r)
				if len(entries) >= maxListEntries {
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				return "", fmt.Errorf("failed to list %s: %w", rel, err)
			}
			return strings.Join(entries, "\n"), nil
		},
	}
}
