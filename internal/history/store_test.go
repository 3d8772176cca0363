package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/karimjebali/forager/internal/comparator"
)

func TestStore(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewStore(tmpDir)
	projectPath := "/path/to/my/project"

	rec := &Record{
		GoalID:      "goal-1",
		ProjectPath: projectPath,
		Description: "Run the test suite",
		State:       "completed",
		SubmittedAt: 1000,
		FinishedAt:  2000,
		ToolResults: 4,
		Ranked: []comparator.ScoredResult{
			{Result: comparator.ExecutionResult{PlanID: "p1", Success: true}, Score: 95, Rank: 1},
		},
	}

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	hash := store.ProjectHash(projectPath)
	expectedPath := filepath.Join(tmpDir, "history", hash, "goal-1.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("Expected record file to exist at %s", expectedPath)
	}

	loaded, err := store.Load(rec.GoalID, projectPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.GoalID != rec.GoalID {
		t.Errorf("Expected GoalID %s, got %s", rec.GoalID, loaded.GoalID)
	}
	if len(loaded.Ranked) != 1 || loaded.Ranked[0].Result.PlanID != "p1" {
		t.Errorf("ranked results not round-tripped: %+v", loaded.Ranked)
	}

	list, err := store.List(projectPath)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 record in list, got %d", len(list))
	}
	if list[0].Description != rec.Description {
		t.Errorf("Expected description %q, got %q", rec.Description, list[0].Description)
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	store := NewStore(t.TempDir())
	projectPath := "/proj"

	for i, finished := range []int64{100, 300, 200} {
		rec := &Record{
			GoalID:      []string{"a", "b", "c"}[i],
			ProjectPath: projectPath,
			State:       "completed",
			FinishedAt:  finished,
		}
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	list, err := store.List(projectPath)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(list))
	}
	if list[0].GoalID != "b" || list[2].GoalID != "a" {
		t.Errorf("list not sorted newest-first: %+v", list)
	}
}

func TestListEmptyProject(t *testing.T) {
	store := NewStore(t.TempDir())
	list, err := store.List("/nowhere")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected empty list, got %d records", len(list))
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	rec := &Record{GoalID: "g", ProjectPath: "/proj", State: "failed"}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("g", "/proj"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load("g", "/proj"); err == nil {
		t.Error("Load should fail after Delete")
	}
}
