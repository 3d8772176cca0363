package engine

import (
	"context"

	"github.com/karimjebali/forager/internal/comparator"
)

// Hook receives engine lifecycle callbacks. Callbacks fire from worker
// goroutines and must be safe for concurrent use; they should return
// quickly.
type Hook interface {
	OnGoalSubmitted(ctx context.Context, goal Goal)
	OnStateChanged(ctx context.Context, goalID string, state GoalState)
	OnPlanCreated(ctx context.Context, goalID string, plan Plan)
	OnStepStarted(ctx context.Context, goalID, planID string, stepIndex, totalSteps int, description string)
	OnStepCompleted(ctx context.Context, goalID, planID string, stepIndex int, result ToolExecutionResult)
	OnProgress(ctx context.Context, goalID string, completedSteps, totalSteps int)
	OnComparison(ctx context.Context, goalID string, ranked []comparator.ScoredResult)
	OnGoalFinished(ctx context.Context, goalID string, state GoalState, winner *comparator.ScoredResult)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnGoalSubmitted(context.Context, Goal)                           {}
func (NopHook) OnStateChanged(context.Context, string, GoalState)               {}
func (NopHook) OnPlanCreated(context.Context, string, Plan)                     {}
func (NopHook) OnStepStarted(context.Context, string, string, int, int, string) {}
func (NopHook) OnStepCompleted(context.Context, string, string, int, ToolExecutionResult) {
}
func (NopHook) OnProgress(context.Context, string, int, int)                    {}
func (NopHook) OnComparison(context.Context, string, []comparator.ScoredResult) {}
func (NopHook) OnGoalFinished(context.Context, string, GoalState, *comparator.ScoredResult) {
}
