package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karimjebali/forager/internal/comparator"
	"github.com/karimjebali/forager/internal/resources"
)

// Priority orders goals from least to most urgent.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// MarshalJSON renders the priority by name; these types cross an IPC
// boundary where numeric enums are ambiguous.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "low":
		*p = PriorityLow
	case "medium":
		*p = PriorityMedium
	case "high":
		*p = PriorityHigh
	case "critical":
		*p = PriorityCritical
	default:
		return fmt.Errorf("unknown priority %q", s)
	}
	return nil
}

// ConstraintKind discriminates the constraint variants.
type ConstraintKind string

const (
	ConstraintResourceLimit    ConstraintKind = "resource_limit"
	ConstraintTimeLimit        ConstraintKind = "time_limit"
	ConstraintQualityThreshold ConstraintKind = "quality_threshold"
	ConstraintCustom           ConstraintKind = "custom"
)

// Constraint is a named, typed restriction attached at goal creation.
// Only the fields relevant to its Kind are populated.
type Constraint struct {
	Name      string         `json:"name"`
	Kind      ConstraintKind `json:"kind"`
	Resource  string         `json:"resource,omitempty"`
	Limit     float64        `json:"limit,omitempty"`
	Seconds   int64          `json:"seconds,omitempty"`
	Metric    string         `json:"metric,omitempty"`
	Threshold float64        `json:"threshold,omitempty"`
	Key       string         `json:"key,omitempty"`
	Value     string         `json:"value,omitempty"`
}

// Goal is a user-specified objective submitted for execution. Immutable
// after submission.
type Goal struct {
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	Priority        Priority     `json:"priority"`
	Deadline        int64        `json:"deadline,omitempty"` // Unix timestamp, 0 = none
	Constraints     []Constraint `json:"constraints,omitempty"`
	SuccessCriteria []string     `json:"success_criteria,omitempty"`
	CreatedAt       int64        `json:"created_at"`
}

// GoalState is the goal lifecycle state machine.
type GoalState string

const (
	StateSubmitted GoalState = "submitted"
	StatePlanning  GoalState = "planning"
	StateExecuting GoalState = "executing"
	StateComparing GoalState = "comparing"
	StateCompleted GoalState = "completed"
	StateFailed    GoalState = "failed"
	StateCancelled GoalState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s GoalState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ToolExecutionResult is one tool invocation's outcome. Immutable once
// produced.
type ToolExecutionResult struct {
	ToolID          string          `json:"tool_id"`
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	ResourcesUsed   resources.Usage `json:"resources_used"`
}

// ContextEntry is one event in a goal's context memory.
type ContextEntry struct {
	Timestamp int64           `json:"timestamp"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ExecutionContext is the live state for a goal. It is owned exclusively
// by the orchestrator goroutine; Status hands out snapshots.
type ExecutionContext struct {
	Goal               Goal                      `json:"goal"`
	State              GoalState                 `json:"state"`
	AvailableResources resources.State           `json:"available_resources"`
	AvailableTools     []string                  `json:"available_tools,omitempty"`
	ToolResults        []ToolExecutionResult     `json:"tool_results,omitempty"`
	ContextMemory      []ContextEntry            `json:"context_memory,omitempty"`
	RankedResults      []comparator.ScoredResult `json:"ranked_results,omitempty"`
	UpdatedAt          int64                     `json:"updated_at"`
}

// snapshot returns a caller-safe copy.
func (ec *ExecutionContext) snapshot() *ExecutionContext {
	cp := *ec
	cp.AvailableTools = append([]string(nil), ec.AvailableTools...)
	cp.ToolResults = append([]ToolExecutionResult(nil), ec.ToolResults...)
	cp.ContextMemory = append([]ContextEntry(nil), ec.ContextMemory...)
	cp.RankedResults = append([]comparator.ScoredResult(nil), ec.RankedResults...)
	return &cp
}

// Plan is an ordered sequence of tool invocations believed to achieve a
// goal. Multiple candidate plans compete for the same goal.
type Plan struct {
	ID                  string          `json:"id"`
	GoalID              string          `json:"goal_id"`
	Steps               []PlanStep      `json:"steps"`
	EstimatedDurationMS int64           `json:"estimated_duration_ms,omitempty"`
	EstimatedResources  resources.Usage `json:"estimated_resources"`
}

// PlanStep is one tool invocation within a plan.
type PlanStep struct {
	ID                 string          `json:"id"`
	ToolID             string          `json:"tool_id"`
	Description        string          `json:"description"`
	Parameters         map[string]any  `json:"parameters,omitempty"`
	EstimatedResources resources.Usage `json:"estimated_resources"`
	Dependencies       []string        `json:"dependencies,omitempty"`
}

// Planner produces candidate plans for a goal and evaluates success
// criteria. Implementations must be safe for concurrent use.
type Planner interface {
	// CreatePlans returns up to n candidate plans. Zero plans fails the
	// goal.
	CreatePlans(ctx context.Context, goal Goal, ec *ExecutionContext, n int) ([]Plan, error)
	// EvaluateCriterion reports whether a success criterion is met.
	// Evaluation failures are conservative: not met.
	EvaluateCriterion(ctx context.Context, criterion string, ec *ExecutionContext) bool
}

// LLMClient is the minimal completion surface providers implement. The
// planner builds on it; the engine itself never calls it directly.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds engine tunables.
type Config struct {
	MaxCandidatePlans   int
	LearningEnabled     bool
	SelfImprovement     bool
	UseWorktrees        bool
	ProjectDir          string // seed source for non-worktree sandboxes, "" = no seeding
	WatchWorkspaces     bool
	MaxMemoryEntries    int
	MaintenanceInterval time.Duration
	ResourceLimits      resources.Limits
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidatePlans:   3,
		LearningEnabled:     true,
		SelfImprovement:     true,
		UseWorktrees:        true,
		WatchWorkspaces:     false,
		MaxMemoryEntries:    1000,
		MaintenanceInterval: 30 * time.Second,
		ResourceLimits:      resources.DefaultLimits(),
	}
}
