package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetectManifestFirst(t *testing.T) {
	tests := []struct {
		manifest string
		want     Kind
	}{
		{"go.mod", KindGo},
		{"package.json", KindNode},
		{"pyproject.toml", KindPython},
		{"requirements.txt", KindPython},
		{"Cargo.toml", KindRust},
	}
	for _, tt := range tests {
		t.Run(tt.manifest, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.manifest)
			if got := Detect(dir); got != tt.want {
				t.Errorf("Detect = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectExtensionFallback(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.py", "b.py", "c.py", "util.js")
	if got := Detect(dir); got != KindPython {
		t.Errorf("Detect = %s, want python", got)
	}
}

func TestDetectTooFewFilesIsUnknown(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.rs", "b.rs")
	if got := Detect(dir); got != KindUnknown {
		t.Errorf("Detect = %s, want unknown", got)
	}
}

func TestDetectEmptyDir(t *testing.T) {
	if got := Detect(t.TempDir()); got != KindUnknown {
		t.Errorf("Detect = %s, want unknown", got)
	}
}

func TestCommandsForUnknownKind(t *testing.T) {
	if name, _ := KindUnknown.BuildCommand(); name != "" {
		t.Errorf("unknown kind should have no build command, got %q", name)
	}
	if name, _ := KindUnknown.TestCommand(); name != "" {
		t.Errorf("unknown kind should have no test command, got %q", name)
	}
}
