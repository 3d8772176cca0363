// Package history persists finished goal runs to disk so results
// survive restarts. Records are scoped per project by a path hash.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karimjebali/forager/internal/comparator"
)

// Record is one finished goal run.
type Record struct {
	GoalID      string `json:"goal_id"`
	ProjectPath string `json:"project_path"`
	ProjectHash string `json:"project_hash"`
	Description string `json:"description"`
	State       string `json:"state"`
	SubmittedAt int64  `json:"submitted_at"`
	FinishedAt  int64  `json:"finished_at"`

	ToolResults int                       `json:"tool_results"`
	Ranked      []comparator.ScoredResult `json:"ranked,omitempty"`
}

// Meta is a lightweight record for listings.
type Meta struct {
	GoalID      string `json:"goal_id"`
	Description string `json:"description"`
	State       string `json:"state"`
	FinishedAt  int64  `json:"finished_at"`
}

// Store handles persistence of goal run records.
type Store struct {
	basePath string
}

// NewStore creates a store rooted at dataPath (typically the data dir).
func NewStore(dataPath string) *Store {
	return &Store{basePath: filepath.Join(dataPath, "history")}
}

// ProjectHash generates a consistent hash for a project path, used to
// scope records to a specific project.
func (s *Store) ProjectHash(projectPath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(projectPath)))
	return hex.EncodeToString(hash[:])[:12]
}

// Save persists one goal run.
func (s *Store) Save(rec *Record) error {
	if rec.GoalID == "" {
		return fmt.Errorf("record needs a goal id")
	}
	if rec.ProjectHash == "" {
		rec.ProjectHash = s.ProjectHash(rec.ProjectPath)
	}

	dir := filepath.Join(s.basePath, rec.ProjectHash)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	filename := filepath.Join(dir, rec.GoalID+".json")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

// Load retrieves a specific goal run.
func (s *Store) Load(goalID, projectPath string) (*Record, error) {
	filename := filepath.Join(s.basePath, s.ProjectHash(projectPath), goalID+".json")

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// List returns all goal runs for a project, newest first.
func (s *Store) List(projectPath string) ([]Meta, error) {
	dir := filepath.Join(s.basePath, s.ProjectHash(projectPath))

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Meta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history directory: %w", err)
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		metas = append(metas, Meta{
			GoalID:      rec.GoalID,
			Description: rec.Description,
			State:       rec.State,
			FinishedAt:  rec.FinishedAt,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].FinishedAt > metas[j].FinishedAt
	})
	return metas, nil
}

// Delete removes a goal run record.
func (s *Store) Delete(goalID, projectPath string) error {
	filename := filepath.Join(s.basePath, s.ProjectHash(projectPath), goalID+".json")
	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}
