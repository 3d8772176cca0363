// Package comparator scores and ranks the outcomes of competing plan
// executions. Scoring is a deterministic pure function of each result, so
// the ranking does not depend on candidate completion order.
package comparator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ExecutionResult is the aggregate outcome of one candidate plan run inside
// its sandbox. One is produced per candidate regardless of success.
type ExecutionResult struct {
	PlanID          string          `json:"plan_id"`
	SandboxID       string          `json:"sandbox_id"`
	Success         bool            `json:"success"`
	Output          json.RawMessage `json:"output"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	StepsCompleted  int             `json:"steps_completed"`
	StepsFailed     int             `json:"steps_failed"`
	Error           string          `json:"error,omitempty"`
	Cost            *float64        `json:"cost,omitempty"`
}

// ScoredResult wraps an ExecutionResult with its computed score, 1-based
// rank, and the human-readable reasons behind the score. Ranks are assigned
// after sorting and are never set independently.
type ScoredResult struct {
	Result  ExecutionResult `json:"result"`
	Score   float64         `json:"score"`
	Rank    int             `json:"rank"`
	Reasons []string        `json:"reasons"`
}

type Comparator struct{}

func New() *Comparator { return &Comparator{} }

// CompareAndRank scores every result and returns them sorted by descending
// score with ranks 1..N. The input slice is not modified.
func (c *Comparator) CompareAndRank(results []ExecutionResult) []ScoredResult {
	scored := make([]ScoredResult, 0, len(results))
	for _, r := range results {
		score, reasons := c.score(r)
		scored = append(scored, ScoredResult{Result: r, Score: score, Reasons: reasons})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

// score computes the additive score for one result. Contributions:
// success +50 (failure +10), completion rate x30, time bonus 10/5/0 at the
// 30s/60s thresholds, cost bonus 10/5/0 at the $0.01/$0.05 thresholds.
func (c *Comparator) score(r ExecutionResult) (float64, []string) {
	var score float64
	var reasons []string

	if r.Success {
		score += 50
		reasons = append(reasons, "Task completed successfully")
	} else {
		score += 10
		if r.Error != "" {
			reasons = append(reasons, fmt.Sprintf("Failed: %s", r.Error))
		}
	}

	total := r.StepsCompleted + r.StepsFailed
	var completionRate float64
	if total > 0 {
		completionRate = float64(r.StepsCompleted) / float64(total)
	}
	score += completionRate * 30
	if completionRate > 0 {
		reasons = append(reasons, fmt.Sprintf("Completed %d/%d steps (%.0f%%)",
			r.StepsCompleted, total, completionRate*100))
	}

	var timeBonus float64
	switch {
	case r.ExecutionTimeMS < 30000:
		timeBonus = 10
	case r.ExecutionTimeMS < 60000:
		timeBonus = 5
	}
	score += timeBonus
	if timeBonus > 0 {
		reasons = append(reasons, fmt.Sprintf("Fast execution (%.1fs)",
			float64(r.ExecutionTimeMS)/1000))
	}

	// A NaN cost would poison the score and make the sort non-total, so a
	// malformed cost is treated as "no cost recorded".
	if r.Cost != nil && !math.IsNaN(*r.Cost) {
		cost := *r.Cost
		var costBonus float64
		switch {
		case cost < 0.01:
			costBonus = 10
		case cost < 0.05:
			costBonus = 5
		}
		score += costBonus
		if costBonus > 0 {
			reasons = append(reasons, fmt.Sprintf("Low cost ($%.4f)", cost))
		}
	}

	return score, reasons
}

// GetBestResult ranks the results and returns the rank-1 entry, or nil if
// the input is empty.
func (c *Comparator) GetBestResult(results []ExecutionResult) *ScoredResult {
	scored := c.CompareAndRank(results)
	if len(scored) == 0 {
		return nil
	}
	return &scored[0]
}

// FormatComparison renders a human-readable report of ranked results.
// Presentation only; not part of the scoring contract.
func (c *Comparator) FormatComparison(scored []ScoredResult) string {
	var b strings.Builder
	b.WriteString("=== Parallel Execution Results ===\n\n")

	for _, s := range scored {
		fmt.Fprintf(&b, "Rank #%d - Plan %s (Score: %.1f)\n", s.Rank, s.Result.PlanID, s.Score)
		fmt.Fprintf(&b, "  Sandbox: %s\n", s.Result.SandboxID)
		fmt.Fprintf(&b, "  Success: %t | Time: %.1fs | Steps: %d/%d\n",
			s.Result.Success,
			float64(s.Result.ExecutionTimeMS)/1000,
			s.Result.StepsCompleted,
			s.Result.StepsCompleted+s.Result.StepsFailed)

		if s.Result.Cost != nil && !math.IsNaN(*s.Result.Cost) {
			fmt.Fprintf(&b, "  Cost: $%.4f\n", *s.Result.Cost)
		}

		b.WriteString("  Reasons:\n")
		for _, reason := range s.Reasons {
			fmt.Fprintf(&b, "    - %s\n", reason)
		}

		if s.Result.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Result.Error)
		}
		b.WriteString("\n")
	}

	return b.String()
}
