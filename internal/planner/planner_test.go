package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karimjebali/forager/internal/engine"
	"github.com/karimjebali/forager/internal/sandbox"
	"github.com/karimjebali/forager/internal/tools"
	"github.com/karimjebali/forager/internal/workspace"
)

type fakeLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	idx := len(f.prompts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type stubRunner struct{}

func (stubRunner) RunCmd(_ context.Context, _, _ string, _ []string, _ time.Duration) (sandbox.Result, error) {
	return sandbox.Result{Stdout: "ok"}, nil
}

func testRegistry() tools.Registry {
	return tools.Builtin(stubRunner{})
}

const validPlanJSON = `[
  {
    "id": "step_1",
    "tool_id": "list_files",
    "description": "Survey the workspace",
    "parameters": {"path": "."},
    "estimated_resources": {"cpu_percent": 3, "memory_mb": 32, "network_mb": 0},
    "dependencies": []
  },
  {
    "id": "step_2",
    "tool_id": "shell_exec",
    "description": "Run tests",
    "parameters": {"cmd": "go", "args": ["test", "./..."]},
    "dependencies": ["step_1"]
  }
]`

func TestCreatePlansParsesCompletion(t *testing.T) {
	llm := &fakeLLM{responses: []string{validPlanJSON}}
	p := NewLLMPlanner(llm, testRegistry(), nil, Project{})

	goal := engine.Goal{ID: "g1", Description: "run the tests", Priority: engine.PriorityMedium}
	plans, err := p.CreatePlans(context.Background(), goal, nil, 1)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	plan := plans[0]
	if plan.GoalID != "g1" {
		t.Errorf("GoalID = %q, want g1", plan.GoalID)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
	if plan.Steps[0].EstimatedResources.MemoryMB != 32 {
		t.Errorf("step 1 memory = %d, want 32", plan.Steps[0].EstimatedResources.MemoryMB)
	}
	// Missing estimated_resources takes the defaults.
	if got := plan.Steps[1].EstimatedResources; got.CPUPercent != 5 || got.MemoryMB != 50 {
		t.Errorf("step 2 defaults = %+v, want cpu 5 / mem 50", got)
	}
	if plan.EstimatedResources.MemoryMB != 82 {
		t.Errorf("plan memory total = %d, want 82", plan.EstimatedResources.MemoryMB)
	}
	if plan.EstimatedDurationMS <= 0 {
		t.Error("expected positive duration estimate")
	}
}

func TestCreatePlansStripsCodeFences(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"Here is the plan:\n```json\n" + validPlanJSON + "\n```\nGood luck!",
	}}
	p := NewLLMPlanner(llm, testRegistry(), nil, Project{})

	plans, err := p.CreatePlans(context.Background(), engine.Goal{ID: "g1", Description: "x"}, nil, 1)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 1 || len(plans[0].Steps) != 2 {
		t.Fatalf("fenced plan not parsed: %+v", plans)
	}
}

func TestCreatePlansMultipleCandidates(t *testing.T) {
	llm := &fakeLLM{responses: []string{validPlanJSON, validPlanJSON, validPlanJSON}}
	p := NewLLMPlanner(llm, testRegistry(), nil, Project{})

	plans, err := p.CreatePlans(context.Background(), engine.Goal{ID: "g1", Description: "x"}, nil, 3)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0].ID == plans[1].ID {
		t.Error("candidate plans share an id")
	}
	if len(llm.prompts) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(llm.prompts))
	}
}

func TestCreatePlansFallsBackOnLLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider unavailable")}
	p := NewLLMPlanner(llm, testRegistry(), nil, Project{})

	goal := engine.Goal{ID: "g1", Description: "build and test the project"}
	plans, err := p.CreatePlans(context.Background(), goal, nil, 2)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 fallback plan, got %d", len(plans))
	}
	if len(plans[0].Steps) < 2 {
		t.Fatalf("fallback plan too small: %d steps", len(plans[0].Steps))
	}
}

func TestCreatePlansFallsBackOnGarbage(t *testing.T) {
	llm := &fakeLLM{responses: []string{"I cannot produce a plan for that."}}
	p := NewLLMPlanner(llm, testRegistry(), nil, Project{})

	plans, err := p.CreatePlans(context.Background(), engine.Goal{ID: "g1", Description: "tidy up"}, nil, 1)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected heuristic fallback plan, got %d plans", len(plans))
	}
}

func TestParsePlanRejectsMissingToolID(t *testing.T) {
	_, err := parsePlan(engine.Goal{ID: "g"}, `[{"id": "s1", "description": "no tool"}]`)
	if err == nil {
		t.Fatal("expected error for step without tool_id")
	}
}

func TestParsePlanAssignsStepIDs(t *testing.T) {
	plan, err := parsePlan(engine.Goal{ID: "g"}, `[{"tool_id": "read_file", "parameters": {"path": "a"}}]`)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if plan.Steps[0].ID != "step_1" {
		t.Errorf("step id = %q, want step_1", plan.Steps[0].ID)
	}
}

func TestEvaluateCriterion(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     bool
	}{
		{name: "plain true", response: "true", want: true},
		{name: "verbose true", response: "The criterion is true.", want: true},
		{name: "yes prefix", response: "Yes, all steps completed.", want: true},
		{name: "met", response: "The criterion has been met.", want: true},
		{name: "not met", response: "The criterion is not met.", want: false},
		{name: "plain false", response: "false", want: false},
		{name: "error is conservative", err: errors.New("timeout"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{responses: []string{tt.response}, err: tt.err}
			p := NewLLMPlanner(llm, testRegistry(), nil, Project{})
			ec := &engine.ExecutionContext{
				ToolResults: []engine.ToolExecutionResult{{ToolID: "ok", Success: true}},
			}
			if got := p.EvaluateCriterion(context.Background(), "tests pass", ec); got != tt.want {
				t.Errorf("EvaluateCriterion = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestHeuristicPlannerKeywords(t *testing.T) {
	p := NewHeuristicPlanner(testRegistry(), Project{Kind: workspace.KindUnknown})

	goal := engine.Goal{ID: "g1", Description: "Build the project and run the tests"}
	plans, err := p.CreatePlans(context.Background(), goal, nil, 3)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("heuristic planner should emit one plan, got %d", len(plans))
	}
	steps := plans[0].Steps
	if len(steps) != 3 {
		t.Fatalf("expected survey+build+test steps, got %d", len(steps))
	}
	if steps[0].ToolID != "list_files" {
		t.Errorf("first step = %s, want list_files", steps[0].ToolID)
	}
	// Steps chain linearly.
	if len(steps[1].Dependencies) != 1 || steps[1].Dependencies[0] != steps[0].ID {
		t.Errorf("step 2 dependencies = %v, want [%s]", steps[1].Dependencies, steps[0].ID)
	}
}

func TestHeuristicPlannerUsesProjectKind(t *testing.T) {
	p := NewHeuristicPlanner(testRegistry(), Project{Kind: workspace.KindRust})

	plans, err := p.CreatePlans(context.Background(), engine.Goal{ID: "g1", Description: "build it"}, nil, 1)
	if err != nil {
		t.Fatalf("CreatePlans: %v", err)
	}
	build := plans[0].Steps[1]
	if build.Parameters["cmd"] != "cargo" {
		t.Errorf("build cmd = %v, want cargo", build.Parameters["cmd"])
	}
}

func TestHeuristicEvaluateCriterion(t *testing.T) {
	p := NewHeuristicPlanner(testRegistry(), Project{Kind: workspace.KindUnknown})

	if p.EvaluateCriterion(context.Background(), "anything", nil) {
		t.Error("nil context should not satisfy a criterion")
	}
	ok := &engine.ExecutionContext{ToolResults: []engine.ToolExecutionResult{{Success: true}}}
	if !p.EvaluateCriterion(context.Background(), "anything", ok) {
		t.Error("all-success context should satisfy the criterion")
	}
	mixed := &engine.ExecutionContext{ToolResults: []engine.ToolExecutionResult{{Success: true}, {Success: false}}}
	if p.EvaluateCriterion(context.Background(), "anything", mixed) {
		t.Error("failed step should block the criterion")
	}
}
