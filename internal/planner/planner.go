// Package planner turns goals into candidate plans. The primary
// implementation asks an LLM to decompose the goal into tool
// invocations; a heuristic planner serves as the no-LLM fallback and as
// the degraded mode when the model call fails.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/karimjebali/forager/internal/engine"
	"github.com/karimjebali/forager/internal/knowledge"
	"github.com/karimjebali/forager/internal/project"
	"github.com/karimjebali/forager/internal/resources"
	"github.com/karimjebali/forager/internal/tools"
	"github.com/karimjebali/forager/internal/workspace"
)

// Project describes the target project for planning: the detected kind
// picks default build/test commands, and rules (from .forager/rules)
// are injected verbatim into planning prompts.
type Project struct {
	Kind  workspace.Kind
	Rules string
}

// DescribeProject inspects the project root. An empty root yields an
// unknown project with no rules.
func DescribeProject(root string) Project {
	proj := Project{Kind: workspace.KindUnknown}
	if root == "" {
		return proj
	}
	proj.Kind = workspace.Detect(root)
	rules, err := project.LoadRules(root)
	if err != nil {
		log.Printf("[planner] WARNING: failed to load project rules: %v", err)
	} else {
		proj.Rules = rules
	}
	return proj
}

// LLMPlanner produces plans via an LLM completion client.
type LLMPlanner struct {
	client    engine.LLMClient
	tools     tools.Registry
	knowledge *knowledge.Base // optional
	proj      Project
	fallback  *HeuristicPlanner
}

// NewLLMPlanner creates a planner backed by client. kb may be nil.
func NewLLMPlanner(client engine.LLMClient, reg tools.Registry, kb *knowledge.Base, proj Project) *LLMPlanner {
	return &LLMPlanner{
		client:    client,
		tools:     reg,
		knowledge: kb,
		proj:      proj,
		fallback:  NewHeuristicPlanner(reg, proj),
	}
}

// CreatePlans asks the model for up to n distinct candidate plans. Each
// candidate is one completion; a failed or unparseable completion is
// skipped. If nothing usable comes back, the heuristic fallback supplies
// a single basic plan.
func (p *LLMPlanner) CreatePlans(ctx context.Context, goal engine.Goal, ec *engine.ExecutionContext, n int) ([]engine.Plan, error) {
	if n <= 0 {
		n = 1
	}

	relevant := p.relevantKnowledge(ctx, goal)

	var plans []engine.Plan
	for i := 0; i < n; i++ {
		prompt := p.buildPlanPrompt(goal, ec, relevant, i+1, n)

		raw, err := p.client.Complete(ctx, prompt)
		if err != nil {
			log.Printf("[planner] WARNING: candidate %d completion failed: %v", i+1, err)
			continue
		}

		plan, err := parsePlan(goal, raw)
		if err != nil {
			log.Printf("[planner] WARNING: candidate %d unparseable: %v", i+1, err)
			continue
		}
		plans = append(plans, plan)
	}

	if len(plans) == 0 {
		log.Printf("[planner] no usable LLM plans for goal %s, using heuristic fallback", goal.ID)
		return p.fallback.CreatePlans(ctx, goal, ec, 1)
	}
	return plans, nil
}

func (p *LLMPlanner) relevantKnowledge(ctx context.Context, goal engine.Goal) []knowledge.Entry {
	if p.knowledge == nil {
		return nil
	}
	entries, err := p.knowledge.Query(ctx, goal.Description, "", 5)
	if err != nil {
		log.Printf("[planner] WARNING: knowledge query failed: %v", err)
		return nil
	}
	return entries
}

func (p *LLMPlanner) buildPlanPrompt(goal engine.Goal, ec *engine.ExecutionContext, relevant []knowledge.Entry, candidate, total int) string {
	var knowledgeSummary strings.Builder
	for _, e := range relevant {
		fmt.Fprintf(&knowledgeSummary, "- %s: %s\n", e.Category, e.Content)
	}
	if knowledgeSummary.Len() == 0 {
		knowledgeSummary.WriteString("(none)\n")
	}

	var resourceLine, historyLine string
	if ec != nil {
		resourceLine = fmt.Sprintf("- CPU Usage: %.0f%%\n- Memory Usage: %dMB\n",
			ec.AvailableResources.CPUUsagePercent, ec.AvailableResources.MemoryUsageMB)
		historyLine = fmt.Sprintf("- Previous Steps: %d\n", len(ec.ToolResults))
	}

	variantHint := ""
	if total > 1 {
		variantHint = fmt.Sprintf("\nThis is candidate %d of %d. Propose an approach distinct from the obvious first choice when possible.\n", candidate, total)
	}

	rulesSection := ""
	if p.proj.Rules != "" {
		rulesSection = fmt.Sprintf("\nProject Rules:\n%s\n", p.proj.Rules)
	}

	return fmt.Sprintf(`You are a planning system. Create an execution plan to achieve the following goal.

Goal: %s
Priority: %s
Success Criteria: %s
Project Type: %s
%s
Available Tools:
%s
Relevant Knowledge:
%s
Current Context:
%s%s%s
Return a JSON array of steps. Each step must have:
- id: unique step identifier
- tool_id: ID of the tool to use
- description: what this step does
- parameters: object with tool parameters
- estimated_resources: { "cpu_percent": number, "memory_mb": number, "network_mb": number }
- dependencies: array of step IDs this depends on

Return ONLY the JSON array.`,
		goal.Description,
		goal.Priority,
		strings.Join(goal.SuccessCriteria, ", "),
		p.proj.Kind,
		rulesSection,
		p.tools.Describe(),
		knowledgeSummary.String(),
		resourceLine,
		historyLine,
		variantHint,
	)
}

// EvaluateCriterion asks the model whether a success criterion holds.
// Failures are conservative: not met.
func (p *LLMPlanner) EvaluateCriterion(ctx context.Context, criterion string, ec *engine.ExecutionContext) bool {
	completed := 0
	var lastResults []string
	errorCount := 0
	if ec != nil {
		completed = len(ec.ToolResults)
		for i := len(ec.ToolResults) - 1; i >= 0 && len(lastResults) < 3; i-- {
			r := ec.ToolResults[i]
			lastResults = append(lastResults, fmt.Sprintf("%s: %t", r.ToolID, r.Success))
			if r.Error != "" {
				errorCount++
			}
		}
	}

	prompt := fmt.Sprintf(`Evaluate if the following success criterion is met based on the execution context.

Success Criterion: %s

Execution Context:
- Completed Steps: %d
- Last Tool Results: %s
- Recent Errors: %d

Respond with ONLY "true" or "false".`,
		criterion, completed, strings.Join(lastResults, ", "), errorCount)

	resp, err := p.client.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[planner] WARNING: criterion evaluation failed, assuming not met: %v", err)
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(resp))
	met := strings.Contains(answer, "true") ||
		strings.HasPrefix(answer, "yes") ||
		(strings.Contains(answer, "met") && !strings.Contains(answer, "not met"))
	log.Printf("[planner] criterion %q evaluated: %t", criterion, met)
	return met
}

// stepJSON mirrors the step shape the model is asked to emit.
type stepJSON struct {
	ID                 string         `json:"id"`
	ToolID             string         `json:"tool_id"`
	Description        string         `json:"description"`
	Parameters         map[string]any `json:"parameters"`
	EstimatedResources *resourceJSON  `json:"estimated_resources"`
	Dependencies       []string       `json:"dependencies"`
}

type resourceJSON struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   uint64  `json:"memory_mb"`
	NetworkMB  float64 `json:"network_mb"`
}

// parsePlan decodes a model completion into a plan. Code fences and
// surrounding prose are tolerated; the steps must form a JSON array.
func parsePlan(goal engine.Goal, raw string) (engine.Plan, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return engine.Plan{}, fmt.Errorf("no JSON array in completion")
	}

	var stepsJSON []stepJSON
	if err := json.Unmarshal([]byte(payload), &stepsJSON); err != nil {
		return engine.Plan{}, fmt.Errorf("failed to parse plan steps: %w", err)
	}
	if len(stepsJSON) == 0 {
		return engine.Plan{}, fmt.Errorf("plan has no steps")
	}

	plan := engine.Plan{
		ID:     uuid.NewString(),
		GoalID: goal.ID,
	}
	var total resources.Usage
	for i, sj := range stepsJSON {
		if sj.ToolID == "" {
			return engine.Plan{}, fmt.Errorf("step %d missing tool_id", i)
		}
		step := engine.PlanStep{
			ID:           sj.ID,
			ToolID:       sj.ToolID,
			Description:  sj.Description,
			Parameters:   sj.Parameters,
			Dependencies: sj.Dependencies,
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step_%d", i+1)
		}
		if sj.EstimatedResources != nil {
			step.EstimatedResources = resources.Usage{
				CPUPercent: sj.EstimatedResources.CPUPercent,
				MemoryMB:   sj.EstimatedResources.MemoryMB,
				NetworkMB:  sj.EstimatedResources.NetworkMB,
			}
		} else {
			step.EstimatedResources = resources.Usage{CPUPercent: 5, MemoryMB: 50}
		}
		total.CPUPercent += step.EstimatedResources.CPUPercent
		total.MemoryMB += step.EstimatedResources.MemoryMB
		total.NetworkMB += step.EstimatedResources.NetworkMB

		plan.Steps = append(plan.Steps, step)
	}
	plan.EstimatedResources = total
	plan.EstimatedDurationMS = estimateDurationMS(plan.Steps)
	return plan, nil
}

// extractJSONArray pulls the outermost JSON array from a completion that
// may be wrapped in code fences or prose.
func extractJSONArray(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// estimateDurationMS is a rough per-step duration model: shell work is
// slow, file operations are fast, plus fixed planning overhead.
func estimateDurationMS(steps []engine.PlanStep) int64 {
	var totalSecs int64 = 5 // planning overhead
	for _, step := range steps {
		switch step.ToolID {
		case "read_file", "list_files":
			totalSecs += 2
		case "write_file":
			totalSecs += 3
		case "shell_exec":
			totalSecs += 10
		default:
			totalSecs += 5
		}
		totalSecs += 2 // dependency resolution overhead
	}
	return totalSecs * 1000
}
