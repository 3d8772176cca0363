package engine

import (
	"context"

	"github.com/karimjebali/forager/internal/comparator"
)

// Event is one engine lifecycle notification for a UI or IPC layer.
type Event struct {
	Kind string // "goal_submitted", "state_changed", "plan_created", "step_started", "step_completed", "progress", "comparison", "goal_finished"
	Data any
}

// ChannelHook bridges engine → consumer channel. The channel should be
// buffered; a full channel drops the event rather than stalling a
// worker.
type ChannelHook struct{ Ch chan<- Event }

func (h ChannelHook) send(ev Event) {
	select {
	case h.Ch <- ev:
	default:
	}
}

func (h ChannelHook) OnGoalSubmitted(_ context.Context, goal Goal) {
	h.send(Event{Kind: "goal_submitted", Data: map[string]any{
		"goal_id":     goal.ID,
		"description": goal.Description,
		"priority":    goal.Priority.String(),
	}})
}

func (h ChannelHook) OnStateChanged(_ context.Context, goalID string, state GoalState) {
	h.send(Event{Kind: "state_changed", Data: map[string]any{
		"goal_id": goalID,
		"state":   string(state),
	}})
}

func (h ChannelHook) OnPlanCreated(_ context.Context, goalID string, plan Plan) {
	h.send(Event{Kind: "plan_created", Data: map[string]any{
		"goal_id":               goalID,
		"plan_id":               plan.ID,
		"total_steps":           len(plan.Steps),
		"estimated_duration_ms": plan.EstimatedDurationMS,
	}})
}

func (h ChannelHook) OnStepStarted(_ context.Context, goalID, planID string, stepIndex, totalSteps int, description string) {
	h.send(Event{Kind: "step_started", Data: map[string]any{
		"goal_id":     goalID,
		"plan_id":     planID,
		"step_index":  stepIndex,
		"total_steps": totalSteps,
		"description": description,
	}})
}

func (h ChannelHook) OnStepCompleted(_ context.Context, goalID, planID string, stepIndex int, result ToolExecutionResult) {
	h.send(Event{Kind: "step_completed", Data: map[string]any{
		"goal_id":           goalID,
		"plan_id":           planID,
		"step_index":        stepIndex,
		"success":           result.Success,
		"execution_time_ms": result.ExecutionTimeMS,
		"error":             result.Error,
	}})
}

func (h ChannelHook) OnProgress(_ context.Context, goalID string, completedSteps, totalSteps int) {
	percent := 0
	if totalSteps > 0 {
		percent = completedSteps * 100 / totalSteps
	}
	h.send(Event{Kind: "progress", Data: map[string]any{
		"goal_id":          goalID,
		"completed_steps":  completedSteps,
		"total_steps":      totalSteps,
		"progress_percent": percent,
	}})
}

func (h ChannelHook) OnComparison(_ context.Context, goalID string, ranked []comparator.ScoredResult) {
	h.send(Event{Kind: "comparison", Data: map[string]any{
		"goal_id":    goalID,
		"candidates": len(ranked),
	}})
}

func (h ChannelHook) OnGoalFinished(_ context.Context, goalID string, state GoalState, winner *comparator.ScoredResult) {
	data := map[string]any{
		"goal_id": goalID,
		"state":   string(state),
	}
	if winner != nil {
		data["winner_plan_id"] = winner.Result.PlanID
		data["winner_score"] = winner.Score
	}
	h.send(Event{Kind: "goal_finished", Data: data})
}
