package planner

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/karimjebali/forager/internal/engine"
	"github.com/karimjebali/forager/internal/resources"
	"github.com/karimjebali/forager/internal/tools"
)

// HeuristicPlanner builds basic plans from keyword matching against the
// goal description. It needs no LLM and is used both standalone (when no
// provider is configured) and as the LLM planner's fallback.
type HeuristicPlanner struct {
	tools tools.Registry
	proj  Project
}

func NewHeuristicPlanner(reg tools.Registry, proj Project) *HeuristicPlanner {
	return &HeuristicPlanner{tools: reg, proj: proj}
}

// CreatePlans produces a single basic plan regardless of n. The plan
// always starts by surveying the workspace, then adds build and test
// steps when the goal mentions them.
func (p *HeuristicPlanner) CreatePlans(_ context.Context, goal engine.Goal, _ *engine.ExecutionContext, _ int) ([]engine.Plan, error) {
	desc := strings.ToLower(goal.Description)

	var steps []engine.PlanStep
	add := func(toolID, description string, params map[string]any, est resources.Usage) {
		if _, ok := p.tools.Get(toolID); !ok {
			return
		}
		step := engine.PlanStep{
			ID:                 uuid.NewString(),
			ToolID:             toolID,
			Description:        description,
			Parameters:         params,
			EstimatedResources: est,
		}
		if len(steps) > 0 {
			step.Dependencies = []string{steps[len(steps)-1].ID}
		}
		steps = append(steps, step)
	}

	add("list_files", "Survey the workspace contents",
		map[string]any{"path": "."},
		resources.Usage{CPUPercent: 2, MemoryMB: 16})

	if strings.Contains(desc, "build") || strings.Contains(desc, "compile") {
		name, cmdArgs := p.proj.Kind.BuildCommand()
		if name == "" {
			name = "make"
		}
		add("shell_exec", "Build the project",
			shellParams(name, cmdArgs, 120),
			resources.Usage{CPUPercent: 50, MemoryMB: 512})
	}
	if strings.Contains(desc, "test") {
		name, cmdArgs := p.proj.Kind.TestCommand()
		if name == "" {
			name, cmdArgs = "go", []string{"test", "./..."}
		}
		add("shell_exec", "Run the test suite",
			shellParams(name, cmdArgs, 300),
			resources.Usage{CPUPercent: 50, MemoryMB: 512})
	}
	if len(steps) <= 1 {
		add("shell_exec", "Record the goal for manual follow-up",
			map[string]any{"cmd": "echo", "args": []any{goal.Description}},
			resources.Usage{CPUPercent: 2, MemoryMB: 16})
	}

	if len(steps) == 0 {
		// Registry has none of the builtin tools; emit nothing rather
		// than a plan that cannot validate.
		log.Printf("[planner] WARNING: heuristic planner found no usable tools for goal %s", goal.ID)
		return nil, nil
	}

	plan := engine.Plan{
		ID:     uuid.NewString(),
		GoalID: goal.ID,
		Steps:  steps,
	}
	var total resources.Usage
	for _, s := range steps {
		total.CPUPercent += s.EstimatedResources.CPUPercent
		total.MemoryMB += s.EstimatedResources.MemoryMB
		total.NetworkMB += s.EstimatedResources.NetworkMB
	}
	plan.EstimatedResources = total
	plan.EstimatedDurationMS = estimateDurationMS(steps)

	log.Printf("[planner] heuristic plan for goal %s: %d steps", goal.ID, len(steps))
	return []engine.Plan{plan}, nil
}

// shellParams builds shell_exec parameters from a command, arguments,
// and a timeout in seconds.
func shellParams(name string, args []string, timeoutSecs float64) map[string]any {
	params := map[string]any{"cmd": name, "timeout_seconds": timeoutSecs}
	if len(args) > 0 {
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a
		}
		params["args"] = anyArgs
	}
	return params
}

// EvaluateCriterion without a model cannot judge arbitrary criteria, so
// it is conservative: the criterion counts as met only when every tool
// result so far succeeded and at least one step ran.
func (p *HeuristicPlanner) EvaluateCriterion(_ context.Context, _ string, ec *engine.ExecutionContext) bool {
	if ec == nil || len(ec.ToolResults) == 0 {
		return false
	}
	for _, r := range ec.ToolResults {
		if !r.Success {
			return false
		}
	}
	return true
}
