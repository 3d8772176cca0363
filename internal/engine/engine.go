// Package engine implements the autonomous goal-execution orchestrator:
// goals become candidate plans, candidates run concurrently in isolated
// sandboxes under resource gating, outcomes are scored and ranked, and
// every tool invocation feeds the learning system.
//
// A single goroutine owns all goal state. Submissions, cancellations,
// status queries and worker progress reports arrive over one channel;
// callers hold only the Engine handle and never share locks with the
// orchestrator.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karimjebali/forager/internal/comparator"
	"github.com/karimjebali/forager/internal/knowledge"
	"github.com/karimjebali/forager/internal/learning"
	"github.com/karimjebali/forager/internal/memory"
	"github.com/karimjebali/forager/internal/resources"
	"github.com/karimjebali/forager/internal/sandbox"
	"github.com/karimjebali/forager/internal/tools"
)

// Deps are the engine's external collaborators.
type Deps struct {
	Planner   Planner
	Tools     tools.Registry
	Sandboxes *sandbox.Manager
	Knowledge *knowledge.Base // optional; nil disables the knowledge base
	Hook      Hook            // optional; nil installs NopHook
}

// Engine is the goal-execution service handle. Construct once with New
// and pass by reference; all methods are safe for concurrent use.
type Engine struct {
	cfg       Config
	planner   Planner
	tools     tools.Registry
	sandboxes *sandbox.Manager
	knowledge *knowledge.Base
	hook      Hook

	resMgr   *resources.Manager
	comp     *comparator.Comparator
	learning *learning.System
	memory   *memory.Working

	rootCtx    context.Context
	rootCancel context.CancelFunc

	reqCh      chan any
	quit       chan struct{}
	loopExited chan struct{}

	workers  sync.WaitGroup
	stopOnce sync.Once
}

// goalRun is the orchestrator goroutine's private record for one goal.
type goalRun struct {
	ec     *ExecutionContext
	cancel context.CancelFunc
}

// Requests and worker progress messages carried on reqCh. Only the
// orchestrator goroutine touches goal state; everyone else sends these.
type (
	submitReq struct {
		goal  Goal
		reply chan submitResp
	}
	submitResp struct {
		id  string
		err error
	}
	statusReq struct {
		goalID string
		reply  chan *ExecutionContext
	}
	listReq struct {
		reply chan []Goal
	}
	cancelReq struct {
		goalID string
		reply  chan error
	}

	stateMsg struct {
		goalID string
		state  GoalState
	}
	stepMsg struct {
		goalID string
		result ToolExecutionResult
		entry  ContextEntry
	}
	finishedMsg struct {
		goalID string
		state  GoalState
		ranked []comparator.ScoredResult
	}
)

// New constructs the engine and starts its orchestrator goroutine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Planner == nil {
		return nil, fmt.Errorf("engine requires a planner")
	}
	if deps.Sandboxes == nil {
		return nil, fmt.Errorf("engine requires a sandbox manager")
	}
	if len(deps.Tools) == 0 {
		return nil, fmt.Errorf("engine requires at least one tool")
	}
	if cfg.MaxCandidatePlans <= 0 {
		cfg.MaxCandidatePlans = 3
	}
	if cfg.MaxMemoryEntries <= 0 {
		cfg.MaxMemoryEntries = memory.DefaultMaxEntries
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 30 * time.Second
	}

	hook := deps.Hook
	if hook == nil {
		hook = NopHook{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		planner:    deps.Planner,
		tools:      deps.Tools,
		sandboxes:  deps.Sandboxes,
		knowledge:  deps.Knowledge,
		hook:       hook,
		resMgr:     resources.NewManager(cfg.ResourceLimits),
		comp:       comparator.New(),
		learning:   learning.NewSystem(cfg.LearningEnabled, cfg.SelfImprovement),
		memory:     memory.NewWorking(cfg.MaxMemoryEntries),
		rootCtx:    ctx,
		rootCancel: cancel,
		reqCh:      make(chan any, 64),
		quit:       make(chan struct{}),
		loopExited: make(chan struct{}),
	}

	go e.run()
	return e, nil
}

// Submit accepts a goal and starts executing it in the background,
// returning the assigned goal id.
func (e *Engine) Submit(ctx context.Context, goal Goal) (string, error) {
	reply := make(chan submitResp, 1)
	select {
	case e.reqCh <- submitReq{goal: goal, reply: reply}:
	case <-e.loopExited:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp.id, resp.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Status returns a read-only snapshot of a goal's execution context.
func (e *Engine) Status(goalID string) (*ExecutionContext, bool) {
	reply := make(chan *ExecutionContext, 1)
	select {
	case e.reqCh <- statusReq{goalID: goalID, reply: reply}:
	case <-e.loopExited:
		return nil, false
	}
	ec := <-reply
	return ec, ec != nil
}

// List returns all known goals in submission order.
func (e *Engine) List() []Goal {
	reply := make(chan []Goal, 1)
	select {
	case e.reqCh <- listReq{reply: reply}:
	case <-e.loopExited:
		return nil
	}
	return <-reply
}

// Cancel requests cooperative cancellation of a goal. In-flight steps
// run to completion; no further steps are dispatched and the goal's
// sandboxes are torn down.
func (e *Engine) Cancel(goalID string) error {
	reply := make(chan error, 1)
	select {
	case e.reqCh <- cancelReq{goalID: goalID, reply: reply}:
	case <-e.loopExited:
		return ErrStopped
	}
	return <-reply
}

// Stop shuts the engine down: cancels every active goal, waits for
// workers (bounded by ctx), and tears down all remaining sandboxes.
func (e *Engine) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		log.Printf("[engine] stopping")
		e.rootCancel()

		done := make(chan struct{})
		go func() {
			e.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("engine stop: %w", ctx.Err())
		}

		close(e.quit)
		<-e.loopExited

		e.sandboxes.CleanupAll(context.Background())
	})
	return err
}

// Memory exposes the engine's working memory for inspection.
func (e *Engine) Memory() *memory.Working { return e.memory }

// Learning exposes the learning system for strategy queries.
func (e *Engine) Learning() *learning.System { return e.learning }

// Resources reports the live resource state.
func (e *Engine) Resources() resources.State { return e.resMgr.State() }

// run is the orchestrator goroutine: the sole owner of goal state.
func (e *Engine) run() {
	defer close(e.loopExited)

	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	goals := make(map[string]*goalRun)
	var order []string

	for {
		select {
		case <-e.quit:
			return

		case <-ticker.C:
			e.maintain()

		case req := <-e.reqCh:
			switch r := req.(type) {
			case submitReq:
				id, err := e.handleSubmit(goals, &order, r.goal)
				r.reply <- submitResp{id: id, err: err}

			case statusReq:
				if run, ok := goals[r.goalID]; ok {
					r.reply <- run.ec.snapshot()
				} else {
					r.reply <- nil
				}

			case listReq:
				out := make([]Goal, 0, len(order))
				for _, id := range order {
					out = append(out, goals[id].ec.Goal)
				}
				r.reply <- out

			case cancelReq:
				r.reply <- e.handleCancel(goals, r.goalID)

			case stateMsg:
				if run, ok := goals[r.goalID]; ok && !run.ec.State.Terminal() {
					run.ec.State = r.state
					run.ec.AvailableResources = e.resMgr.State()
					run.ec.UpdatedAt = time.Now().Unix()
				}

			case stepMsg:
				if run, ok := goals[r.goalID]; ok {
					run.ec.ToolResults = append(run.ec.ToolResults, r.result)
					run.ec.ContextMemory = append(run.ec.ContextMemory, r.entry)
					run.ec.AvailableResources = e.resMgr.State()
					run.ec.UpdatedAt = time.Now().Unix()
				}

			case finishedMsg:
				if run, ok := goals[r.goalID]; ok {
					run.ec.State = r.state
					run.ec.RankedResults = r.ranked
					run.ec.UpdatedAt = time.Now().Unix()
				}
			}
		}
	}
}

func (e *Engine) handleSubmit(goals map[string]*goalRun, order *[]string, goal Goal) (string, error) {
	if goal.Description == "" {
		return "", fmt.Errorf("goal description must not be empty")
	}
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if _, exists := goals[goal.ID]; exists {
		return "", fmt.Errorf("goal %s already submitted", goal.ID)
	}
	if goal.Priority == 0 {
		goal.Priority = PriorityMedium
	}
	goal.CreatedAt = time.Now().Unix()

	ec := &ExecutionContext{
		Goal:               goal,
		State:              StateSubmitted,
		AvailableResources: e.resMgr.State(),
		AvailableTools:     e.tools.IDs(),
		UpdatedAt:          goal.CreatedAt,
	}

	var workerCtx context.Context
	var cancel context.CancelFunc
	if goal.Deadline > 0 {
		workerCtx, cancel = context.WithDeadline(e.rootCtx, time.Unix(goal.Deadline, 0))
	} else {
		workerCtx, cancel = context.WithCancel(e.rootCtx)
	}

	goals[goal.ID] = &goalRun{ec: ec, cancel: cancel}
	*order = append(*order, goal.ID)

	log.Printf("[engine] goal submitted: %s (%s)", goal.ID, goal.Description)
	e.memory.Add("goal_submitted", map[string]string{
		"goal_id":     goal.ID,
		"description": goal.Description,
	}, goalImportance(goal.Priority))

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer cancel()
		e.hook.OnGoalSubmitted(workerCtx, goal)
		e.executeGoal(workerCtx, goal)
	}()

	return goal.ID, nil
}

func (e *Engine) handleCancel(goals map[string]*goalRun, goalID string) error {
	run, ok := goals[goalID]
	if !ok {
		return &GoalNotFoundError{GoalID: goalID}
	}
	if run.ec.State.Terminal() {
		return &GoalFinishedError{GoalID: goalID, State: run.ec.State}
	}
	log.Printf("[engine] cancelling goal %s", goalID)
	run.cancel()
	return nil
}

// maintain runs the periodic upkeep: learning log truncation (and the
// self-improvement hook) plus knowledge pruning. Pruning touches disk,
// so it runs off the orchestrator goroutine.
func (e *Engine) maintain() {
	e.learning.Update()

	if e.knowledge != nil {
		e.workers.Add(1)
		go func() {
			defer e.workers.Done()
			ctx, cancel := context.WithTimeout(e.rootCtx, 10*time.Second)
			defer cancel()
			if n, err := e.knowledge.Prune(ctx); err != nil {
				log.Printf("[engine] WARNING: knowledge pruning failed: %v", err)
			} else if n > 0 {
				log.Printf("[engine] pruned %d knowledge entries", n)
			}
		}()
	}
}

// goalImportance maps priority to the importance recorded with the
// goal's memory and knowledge entries.
func goalImportance(p Priority) float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityMedium:
		return 0.5
	default:
		return 0.25
	}
}
