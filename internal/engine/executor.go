package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/karimjebali/forager/internal/comparator"
	"github.com/karimjebali/forager/internal/knowledge"
	"github.com/karimjebali/forager/internal/resources"
	"github.com/karimjebali/forager/internal/sandbox"
)

// post delivers a worker message to the orchestrator goroutine, dropping
// it if the engine already shut down.
func (e *Engine) post(msg any) {
	select {
	case e.reqCh <- msg:
	case <-e.loopExited:
	}
}

func (e *Engine) setState(ctx context.Context, goalID string, state GoalState) {
	e.post(stateMsg{goalID: goalID, state: state})
	e.hook.OnStateChanged(ctx, goalID, state)
}

// executeGoal drives one goal through the state machine. It runs on its
// own goroutine and reports all mutations back to the orchestrator.
func (e *Engine) executeGoal(ctx context.Context, goal Goal) {
	e.recordKnowledge(ctx, knowledge.CategoryGoalOutcome,
		fmt.Sprintf("Goal submitted: %s", goal.Description),
		map[string]string{"goal_id": goal.ID, "priority": goal.Priority.String()},
		goalImportance(goal.Priority))

	e.setState(ctx, goal.ID, StatePlanning)

	ec, _ := e.Status(goal.ID)
	plans, err := e.planner.CreatePlans(ctx, goal, ec, e.cfg.MaxCandidatePlans)
	if err != nil {
		log.Printf("[engine] planning failed for goal %s: %v", goal.ID, err)
	}
	if len(plans) == 0 {
		e.memory.Add("planning_failed", map[string]string{"goal_id": goal.ID}, 0.8)
		e.finishGoal(ctx, goal, StateFailed, nil)
		return
	}

	for i := range plans {
		if plans[i].ID == "" {
			plans[i].ID = fmt.Sprintf("%s-plan-%d", goal.ID, i+1)
		}
		plans[i].GoalID = goal.ID
	}

	e.setState(ctx, goal.ID, StateExecuting)
	for _, plan := range plans {
		e.hook.OnPlanCreated(ctx, goal.ID, plan)
		log.Printf("[engine] goal %s: candidate %s with %d steps", goal.ID, plan.ID, len(plan.Steps))
	}

	// One sandbox per candidate; candidates run concurrently and never
	// share filesystem state.
	results := make([]comparator.ExecutionResult, len(plans))
	boxes := make([]*sandbox.Sandbox, len(plans))

	var g errgroup.Group
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			results[i], boxes[i] = e.runCandidate(ctx, goal, plan)
			return nil
		})
	}
	g.Wait()

	e.setState(ctx, goal.ID, StateComparing)
	ranked := e.comp.CompareAndRank(results)
	e.hook.OnComparison(ctx, goal.ID, ranked)

	// Rank 1 is the head of CompareAndRank's output.
	var best *comparator.ScoredResult
	if len(ranked) > 0 {
		best = &ranked[0]
	}
	e.cleanupLosers(boxes, best)

	state := StateFailed
	switch {
	case ctx.Err() != nil:
		state = StateCancelled
	case best != nil && anySuccess(ranked):
		state = StateCompleted
	}

	e.finishGoalRanked(ctx, goal, state, ranked, best)
}

func anySuccess(ranked []comparator.ScoredResult) bool {
	for _, r := range ranked {
		if r.Result.Success {
			return true
		}
	}
	return false
}

// cleanupLosers tears down every candidate sandbox except the winner's.
// The winner's workspace survives for inspection until Stop.
func (e *Engine) cleanupLosers(boxes []*sandbox.Sandbox, best *comparator.ScoredResult) {
	for _, sb := range boxes {
		if sb == nil {
			continue
		}
		if best != nil && sb.ID == best.Result.SandboxID {
			continue
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := e.sandboxes.Cleanup(cleanupCtx, *sb); err != nil {
			log.Printf("[engine] WARNING: failed to clean up sandbox %s: %v", sb.ID, err)
		}
		cancel()
	}
}

func (e *Engine) finishGoal(ctx context.Context, goal Goal, state GoalState, best *comparator.ScoredResult) {
	e.finishGoalRanked(ctx, goal, state, nil, best)
}

func (e *Engine) finishGoalRanked(ctx context.Context, goal Goal, state GoalState, ranked []comparator.ScoredResult, best *comparator.ScoredResult) {
	e.post(finishedMsg{goalID: goal.ID, state: state, ranked: ranked})
	e.hook.OnGoalFinished(ctx, goal.ID, state, best)

	importance := knowledge.ImportanceFailed
	switch state {
	case StateCompleted:
		importance = knowledge.ImportanceSuccess
		if best != nil && best.Result.StepsFailed > 0 {
			importance = knowledge.ImportancePartial
		}
	case StateCancelled:
		importance = knowledge.ImportanceCancelled
	}
	e.recordKnowledge(ctx, knowledge.CategoryGoalOutcome,
		fmt.Sprintf("Goal %s: %s", state, goal.Description),
		map[string]string{"goal_id": goal.ID, "state": string(state)},
		importance)

	e.memory.Add("goal_finished", map[string]string{
		"goal_id": goal.ID,
		"state":   string(state),
	}, importance)

	log.Printf("[engine] goal %s finished: %s", goal.ID, state)
}

// candidateSummary is the output payload attached to an ExecutionResult.
type candidateSummary struct {
	StepsCompleted int             `json:"steps_completed"`
	StepsFailed    int             `json:"steps_failed"`
	EarlyExit      bool            `json:"early_exit,omitempty"`
	LastResult     json.RawMessage `json:"last_result,omitempty"`
}

// runCandidate executes one plan inside its own sandbox and reduces the
// step outcomes to an ExecutionResult. All failures are candidate-local:
// they land in the result's error field, never abort siblings.
func (e *Engine) runCandidate(ctx context.Context, goal Goal, plan Plan) (comparator.ExecutionResult, *sandbox.Sandbox) {
	start := time.Now()

	sb, err := e.sandboxes.Create(ctx, e.cfg.UseWorktrees)
	if err != nil {
		return comparator.ExecutionResult{
			PlanID: plan.ID,
			Error:  fmt.Sprintf("sandbox creation failed: %v", err),
		}, nil
	}

	if e.cfg.ProjectDir != "" {
		if err := e.sandboxes.Seed(sb, e.cfg.ProjectDir); err != nil {
			log.Printf("[engine] WARNING: failed to seed sandbox %s: %v", sb.ID, err)
		}
	}

	if e.cfg.WatchWorkspaces {
		w, err := sandbox.WatchWorkspace(sb, func(sandboxID, relPath string, _ fsnotify.Op) {
			e.memory.Add("workspace_change", map[string]string{
				"sandbox_id": sandboxID,
				"path":       relPath,
			}, 0.3)
		})
		if err != nil {
			log.Printf("[engine] WARNING: workspace watcher unavailable for %s: %v", sb.ID, err)
		} else {
			defer w.Close()
		}
	}

	summary := candidateSummary{}
	var lastErr string

	for i, step := range plan.Steps {
		// Cooperative cancellation: checked between steps, never mid-step.
		if ctx.Err() != nil {
			break
		}

		e.hook.OnStepStarted(ctx, goal.ID, plan.ID, i, len(plan.Steps), step.Description)
		log.Printf("[engine] goal %s: step %d/%d: %s", goal.ID, i+1, len(plan.Steps), step.Description)

		result := e.executeStep(ctx, sb, step)

		if result.Success {
			summary.StepsCompleted++
			summary.LastResult = result.Result
		} else {
			summary.StepsFailed++
			lastErr = result.Error
		}

		entry := ContextEntry{
			Timestamp: time.Now().Unix(),
			Event:     fmt.Sprintf("step_%d_executed", i),
		}
		if data, err := json.Marshal(result); err == nil {
			entry.Data = data
		}
		e.post(stepMsg{goalID: goal.ID, result: result, entry: entry})

		e.memory.Add("step_executed", map[string]any{
			"goal_id": goal.ID,
			"plan_id": plan.ID,
			"tool_id": step.ToolID,
			"success": result.Success,
		}, 0.5)
		e.learning.RecordExperience(goal.Description, step.ToolID, result.Success,
			result.ExecutionTimeMS, result.ResourcesUsed)

		expImportance := knowledge.ImportanceExperience
		if !result.Success {
			// Failures are more important to remember.
			expImportance = knowledge.ImportanceKeyInsight
		}
		e.recordKnowledge(ctx, knowledge.CategoryExperience,
			fmt.Sprintf("Tool %s %s for goal: %s", step.ToolID, outcomeWord(result.Success), goal.Description),
			map[string]string{"goal_id": goal.ID, "tool_id": step.ToolID},
			expImportance)

		e.hook.OnStepCompleted(ctx, goal.ID, plan.ID, i, result)
		e.hook.OnProgress(ctx, goal.ID, i+1, len(plan.Steps))

		if result.Success && len(goal.SuccessCriteria) > 0 && e.criteriaMet(ctx, goal) {
			log.Printf("[engine] goal %s: success criteria met after step %d, skipping remaining steps", goal.ID, i+1)
			summary.EarlyExit = true
			break
		}
	}

	output, _ := json.Marshal(summary)
	return comparator.ExecutionResult{
		PlanID:          plan.ID,
		SandboxID:       sb.ID,
		Success:         summary.StepsCompleted > 0 && summary.StepsFailed == 0,
		Output:          output,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		StepsCompleted:  summary.StepsCompleted,
		StepsFailed:     summary.StepsFailed,
		Error:           lastErr,
	}, &sb
}

func outcomeWord(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}

// criteriaMet reports whether every success criterion of the goal holds
// for the current execution context.
func (e *Engine) criteriaMet(ctx context.Context, goal Goal) bool {
	ec, ok := e.Status(goal.ID)
	if !ok {
		return false
	}
	for _, criterion := range goal.SuccessCriteria {
		if !e.planner.EvaluateCriterion(ctx, criterion, ec) {
			return false
		}
	}
	return true
}

// executeStep runs a single tool invocation under resource gating. A
// denied reservation surfaces as a failed step, not an engine error.
func (e *Engine) executeStep(ctx context.Context, sb sandbox.Sandbox, step PlanStep) ToolExecutionResult {
	tool, ok := e.tools.Get(step.ToolID)
	if !ok {
		return ToolExecutionResult{
			ToolID: step.ToolID,
			Error:  fmt.Sprintf("unknown tool %s", step.ToolID),
		}
	}

	if err := tool.ValidateArgs(step.Parameters); err != nil {
		return ToolExecutionResult{
			ToolID: step.ToolID,
			Error:  err.Error(),
		}
	}

	est := step.EstimatedResources
	if est == (resources.Usage{}) {
		est = tool.EstimatedResources
	}

	if err := e.resMgr.Reserve(est); err != nil {
		log.Printf("[engine] WARNING: resource reservation denied for %s: %v", step.ToolID, err)
		return ToolExecutionResult{
			ToolID:        step.ToolID,
			Error:         fmt.Sprintf("resource reservation denied: %v", err),
			ResourcesUsed: est,
		}
	}

	start := time.Now()
	out, err := tool.Fn(ctx, sb.WorkspacePath, step.Parameters)
	if err != nil && ClassifyToolError(err, tool.Retryable) == RetryClassRetryable && ctx.Err() == nil {
		log.Printf("[engine] retrying tool %s after transient failure: %v", step.ToolID, err)
		out, err = tool.Fn(ctx, sb.WorkspacePath, step.Parameters)
	}
	elapsed := time.Since(start).Milliseconds()

	// The estimate stands in for measured usage until tools self-report.
	e.resMgr.Release(est, est)

	result := ToolExecutionResult{
		ToolID:          step.ToolID,
		Success:         err == nil,
		Result:          rawJSON(out),
		ExecutionTimeMS: elapsed,
		ResourcesUsed:   est,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// rawJSON passes valid JSON output through untouched and quotes
// anything else as a JSON string.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return quoted
}

// recordKnowledge is best-effort: knowledge failures are telemetry, not
// correctness, so they are logged and swallowed.
func (e *Engine) recordKnowledge(_ context.Context, category, content string, metadata map[string]string, importance float64) {
	if e.knowledge == nil {
		return
	}
	// A cancelled goal still gets its outcome recorded, so don't inherit
	// the goal context here.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.knowledge.Add(ctx, category, content, metadata, importance); err != nil {
		log.Printf("[engine] WARNING: failed to record knowledge: %v", err)
	}
}
