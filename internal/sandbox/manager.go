// Package sandbox creates and destroys the isolated execution workspaces
// that candidate plans run in. Each sandbox is a dedicated temporary
// directory, optionally backed by a git worktree on its own branch so
// concurrent candidates never observe each other's file mutations.
package sandbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox describes one isolated workspace.
type Sandbox struct {
	ID            string `json:"id"`
	WorkspacePath string `json:"workspace_path"`
	GitWorktree   bool   `json:"git_worktree"`
	Isolated      bool   `json:"isolated"`
}

// Manager owns the set of active sandboxes.
type Manager struct {
	basePath string
	repoDir  string // directory whose version control backs worktree isolation

	mu     sync.Mutex
	active map[string]Sandbox
}

// NewManager creates a manager rooted at basePath. An empty basePath uses a
// directory under the system temp dir; an empty repoDir uses the process
// working directory.
func NewManager(basePath, repoDir string) (*Manager, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "forager-sandboxes")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox base dir: %w", err)
	}
	if repoDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		repoDir = wd
	}
	return &Manager{
		basePath: basePath,
		repoDir:  repoDir,
		active:   make(map[string]Sandbox),
	}, nil
}

// Create allocates a fresh sandbox with a unique id and its own workspace
// directory. When useWorktree is set and the repo dir is under version
// control, the workspace is additionally a git worktree checked out to a
// branch named after the sandbox id. If git is unavailable or the repo dir
// is not a repository, isolation silently degrades to plain directory
// isolation with a logged warning.
//
// Workspace creation failure is fatal for this sandbox only; it never
// affects sibling sandboxes.
func (m *Manager) Create(ctx context.Context, useWorktree bool) (Sandbox, error) {
	id := uuid.NewString()
	workspace := filepath.Join(m.basePath, id)

	if err := os.MkdirAll(workspace, 0755); err != nil {
		return Sandbox{}, fmt.Errorf("failed to create sandbox workspace: %w", err)
	}

	sb := Sandbox{
		ID:            id,
		WorkspacePath: workspace,
		Isolated:      true,
	}

	if useWorktree {
		if err := m.addWorktree(ctx, workspace, id); err != nil {
			log.Printf("[sandbox] WARNING: worktree isolation unavailable for %s: %v", id, err)
		} else {
			sb.GitWorktree = true
		}
	}

	m.mu.Lock()
	m.active[id] = sb
	m.mu.Unlock()

	log.Printf("[sandbox] created %s (worktree=%t)", id, sb.GitWorktree)
	return sb, nil
}

// addWorktree checks the workspace out as a new git worktree on branch
// sandbox/<id>. The workspace directory already exists, so git is pointed
// at it directly.
func (m *Manager) addWorktree(ctx context.Context, workspace, id string) error {
	if !isGitRepo(ctx, m.repoDir) {
		return fmt.Errorf("%s is not under version control", m.repoDir)
	}

	branch := "sandbox/" + id
	// git refuses to add a worktree into an existing directory unless forced.
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "--force", workspace, "-b", branch)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree add failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func isGitRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// Cleanup tears one sandbox down. Worktree removal is best-effort (a stale
// worktree registration is only noise), but a workspace directory that
// cannot be removed is a resource leak and the error is propagated; the
// sandbox then stays in the active set so a later CleanupAll can retry.
func (m *Manager) Cleanup(ctx context.Context, sb Sandbox) error {
	log.Printf("[sandbox] cleaning up %s", sb.ID)

	if sb.GitWorktree {
		cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", sb.WorkspacePath)
		cmd.Dir = m.repoDir
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Printf("[sandbox] WARNING: worktree removal for %s: %s: %v",
				sb.ID, strings.TrimSpace(string(out)), err)
		}
	}

	if err := os.RemoveAll(sb.WorkspacePath); err != nil {
		return fmt.Errorf("failed to remove sandbox workspace %s: %w", sb.WorkspacePath, err)
	}

	m.mu.Lock()
	delete(m.active, sb.ID)
	m.mu.Unlock()
	return nil
}

// CleanupAll cleans every active sandbox. Per-sandbox failures are logged
// and do not abort cleanup of the rest.
func (m *Manager) CleanupAll(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]Sandbox, 0, len(m.active))
	for _, sb := range m.active {
		snapshot = append(snapshot, sb)
	}
	m.mu.Unlock()

	for _, sb := range snapshot {
		if err := m.Cleanup(ctx, sb); err != nil {
			log.Printf("[sandbox] failed to clean up %s: %v", sb.ID, err)
		}
	}
}

// ActiveCount returns the number of currently active sandboxes.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
