// Package workspace identifies what kind of project a directory holds
// so planners can pick sensible build and test commands.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// Kind is a detected project flavor.
type Kind string

const (
	KindGo      Kind = "go"
	KindNode    Kind = "node"
	KindPython  Kind = "python"
	KindRust    Kind = "rust"
	KindUnknown Kind = "unknown"
)

// manifest files checked in order; first hit wins.
var manifests = []struct {
	file string
	kind Kind
}{
	{"go.mod", KindGo},
	{"package.json", KindNode},
	{"pyproject.toml", KindPython},
	{"requirements.txt", KindPython},
	{"Cargo.toml", KindRust},
}

// minExtensionHits is how many matching source files the extension
// fallback needs before it trusts the guess.
const minExtensionHits = 3

// Detect classifies the project at root. Manifest files take priority;
// otherwise the root's file extensions are counted.
func Detect(root string) Kind {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.kind
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return KindUnknown
	}

	counts := map[Kind]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".go":
			counts[KindGo]++
		case ".ts", ".tsx", ".js", ".jsx":
			counts[KindNode]++
		case ".py":
			counts[KindPython]++
		case ".rs":
			counts[KindRust]++
		}
	}

	best, bestCount := KindUnknown, 0
	for kind, n := range counts {
		if n > bestCount {
			best, bestCount = kind, n
		}
	}
	if bestCount < minExtensionHits {
		return KindUnknown
	}
	return best
}

// BuildCommand returns the conventional build command for a project
// kind, or an empty command name when there is none.
func (k Kind) BuildCommand() (string, []string) {
	switch k {
	case KindGo:
		return "go", []string{"build", "./..."}
	case KindNode:
		return "npm", []string{"run", "build"}
	case KindRust:
		return "cargo", []string{"build"}
	default:
		return "", nil
	}
}

// TestCommand returns the conventional test command for a project kind.
func (k Kind) TestCommand() (string, []string) {
	switch k {
	case KindGo:
		return "go", []string{"test", "./..."}
	case KindNode:
		return "npm", []string{"test"}
	case KindPython:
		return "pytest", nil
	case KindRust:
		return "cargo", []string{"test"}
	default:
		return "", nil
	}
}

// LintCommand returns the conventional lint command for a project kind.
func (k Kind) LintCommand() (string, []string) {
	switch k {
	case KindGo:
		return "gofmt", []string{"-l", "."}
	case KindNode:
		return "npm", []string{"run", "lint"}
	case KindRust:
		return "cargo", []string{"clippy"}
	default:
		return "", nil
	}
}
