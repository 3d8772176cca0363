package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Seed copies the contents of srcDir into the sandbox workspace so a plan
// starts from a snapshot of the project instead of an empty directory.
// Entries matched by the project's .gitignore are skipped, as is the .git
// directory itself; worktree-backed sandboxes already carry the checkout
// and never need seeding.
func (m *Manager) Seed(sb Sandbox, srcDir string) error {
	if sb.GitWorktree {
		return nil
	}
	if srcDir == "" {
		srcDir = m.repoDir
	}

	matcher := loadIgnoreMatcher(srcDir)

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(sb.WorkspacePath, rel)
		if info.IsDir() {
			return os.MkdirAll(dst, info.Mode().Perm())
		}
		// Symlinks and other irregular files are not worth chasing into a
		// throwaway workspace.
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, dst, info.Mode().Perm())
	})
}

// loadIgnoreMatcher compiles the project's .gitignore, returning nil when
// there is none.
func loadIgnoreMatcher(srcDir string) *ignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(srcDir, ".gitignore"))
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	return ignore.CompileIgnoreLines(lines...)
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
