// Command forager runs the goal-execution engine, either interactively
// or in one-shot mode with a goal given on the command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/karimjebali/forager/internal/engine"
	"github.com/karimjebali/forager/internal/history"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("forager", flag.ExitOnError)
	projectFlag := fs.String("project", "", "Path to the project root (default: current directory)")
	goalFlag := fs.String("goal", "", "Run a single goal and exit")
	criteriaFlag := fs.String("criteria", "", "Comma-separated success criteria for -goal")
	priorityFlag := fs.String("priority", "medium", "Goal priority: low, medium, high, critical")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parsing failed: %v", err)
	}

	ctx := context.Background()
	env, err := prepareRuntimeEnv(ctx, *projectFlag)
	if err != nil {
		log.Fatalf("failed to prepare runtime environment: %v", err)
	}

	go consumeEvents(env)

	var exitCode int
	if *goalFlag != "" {
		exitCode = runOnce(ctx, env, *goalFlag, *criteriaFlag, *priorityFlag)
	} else {
		runREPL(ctx, env)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	env.Close(stopCtx)
	os.Exit(exitCode)
}

func runOnce(ctx context.Context, env *runtimeEnv, description, criteria, priority string) int {
	goal := engine.Goal{
		Description: description,
		Priority:    parsePriority(priority),
	}
	if criteria != "" {
		for _, c := range strings.Split(criteria, ",") {
			if c = strings.TrimSpace(c); c != "" {
				goal.SuccessCriteria = append(goal.SuccessCriteria, c)
			}
		}
	}

	id, err := env.Engine.Submit(ctx, goal)
	if err != nil {
		log.Printf("goal submission failed: %v", err)
		return 1
	}

	ec := awaitGoal(env.Engine, id)
	if ec == nil {
		log.Printf("goal %s vanished", id)
		return 1
	}
	printGoalSummary(ec)
	if ec.State == engine.StateCompleted {
		return 0
	}
	return 1
}

func awaitGoal(eng *engine.Engine, id string) *engine.ExecutionContext {
	for {
		ec, ok := eng.Status(id)
		if !ok {
			return nil
		}
		if ec.State.Terminal() {
			return ec
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func runREPL(ctx context.Context, env *runtimeEnv) {
	fmt.Println("forager interactive mode. Type 'help' for commands.")
	s := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("forager> ")
		if !s.Scan() {
			break
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "quit", "exit":
			return

		case "help":
			fmt.Println(`commands:
  goal <description>   submit a goal
  status <goal-id>     show a goal's execution context
  list                 list all goals
  cancel <goal-id>     cancel a running goal
  resources            show resource usage
  history              list past goal runs for this project
  quit                 shut down and exit`)

		case "goal":
			if rest == "" {
				fmt.Println("usage: goal <description>")
				continue
			}
			id, err := env.Engine.Submit(ctx, engine.Goal{Description: rest})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("goal submitted: %s\n", id)

		case "status":
			if rest == "" {
				fmt.Println("usage: status <goal-id>")
				continue
			}
			ec, ok := env.Engine.Status(rest)
			if !ok {
				fmt.Printf("goal not found: %s\n", rest)
				continue
			}
			printGoalSummary(ec)

		case "list":
			goals := env.Engine.List()
			if len(goals) == 0 {
				fmt.Println("no goals submitted")
				continue
			}
			for _, g := range goals {
				ec, _ := env.Engine.Status(g.ID)
				state := "unknown"
				if ec != nil {
					state = string(ec.State)
				}
				fmt.Printf("  %s  [%s] %s\n", g.ID, state, g.Description)
			}

		case "cancel":
			if rest == "" {
				fmt.Println("usage: cancel <goal-id>")
				continue
			}
			if err := env.Engine.Cancel(rest); err != nil {
				fmt.Printf("error: %v\n", err)
			} else {
				fmt.Printf("cancellation requested: %s\n", rest)
			}

		case "history":
			if env.History == nil {
				fmt.Println("history disabled (set data_dir or FORAGER_DATA_DIR to enable)")
				continue
			}
			metas, err := env.History.List(env.ProjectRoot)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if len(metas) == 0 {
				fmt.Println("no recorded goal runs")
				continue
			}
			for _, m := range metas {
				fmt.Printf("  %s  %s  [%s] %s\n",
					m.GoalID, time.Unix(m.FinishedAt, 0).Format("2006-01-02 15:04"), m.State, m.Description)
			}

		case "resources":
			st := env.Engine.Resources()
			fmt.Printf("cpu: %.1f%%  memory: %dMB  network: %.1fMbps  storage: %dMB\n",
				st.CPUUsagePercent, st.MemoryUsageMB, st.NetworkUsageMbps, st.StorageUsageMB)

		default:
			fmt.Printf("unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func printGoalSummary(ec *engine.ExecutionContext) {
	fmt.Printf("goal %s: %s\n", ec.Goal.ID, ec.State)
	fmt.Printf("  description: %s\n", ec.Goal.Description)
	fmt.Printf("  tool results: %d\n", len(ec.ToolResults))
	for i, r := range ec.RankedResults {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("  %s #%d plan=%s score=%.1f success=%t steps=%d/%d\n",
			marker, r.Rank, r.Result.PlanID, r.Score, r.Result.Success,
			r.Result.StepsCompleted, r.Result.StepsCompleted+r.Result.StepsFailed)
	}
}

// consumeEvents renders engine lifecycle events as log lines and, when
// a history store is configured, persists finished goals.
func consumeEvents(env *runtimeEnv) {
	for ev := range env.Events {
		data, _ := ev.Data.(map[string]any)
		switch ev.Kind {
		case "state_changed":
			log.Printf("[event] goal %v -> %v", data["goal_id"], data["state"])
		case "plan_created":
			log.Printf("[event] goal %v plan %v (%v steps)", data["goal_id"], data["plan_id"], data["total_steps"])
		case "progress":
			log.Printf("[event] goal %v progress %v%%", data["goal_id"], data["progress_percent"])
		case "goal_finished":
			if winner, ok := data["winner_plan_id"]; ok {
				log.Printf("[event] goal %v finished: %v (winner %v, score %.1f)",
					data["goal_id"], data["state"], winner, data["winner_score"])
			} else {
				log.Printf("[event] goal %v finished: %v", data["goal_id"], data["state"])
			}
			recordHistory(env, data)
		}
	}
}

func recordHistory(env *runtimeEnv, data map[string]any) {
	if env.History == nil {
		return
	}
	goalID, _ := data["goal_id"].(string)
	ec, ok := env.Engine.Status(goalID)
	if !ok {
		return
	}
	rec := &history.Record{
		GoalID:      ec.Goal.ID,
		ProjectPath: env.ProjectRoot,
		Description: ec.Goal.Description,
		State:       string(ec.State),
		SubmittedAt: ec.Goal.CreatedAt,
		FinishedAt:  ec.UpdatedAt,
		ToolResults: len(ec.ToolResults),
		Ranked:      ec.RankedResults,
	}
	if err := env.History.Save(rec); err != nil {
		log.Printf("WARNING: failed to record goal history: %v", err)
	}
}

func parsePriority(s string) engine.Priority {
	switch strings.ToLower(s) {
	case "low":
		return engine.PriorityLow
	case "high":
		return engine.PriorityHigh
	case "critical":
		return engine.PriorityCritical
	default:
		return engine.PriorityMedium
	}
}
