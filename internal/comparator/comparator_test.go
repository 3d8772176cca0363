package comparator

import (
	"math"
	"strings"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestScoreContributions(t *testing.T) {
	c := New()

	tests := []struct {
		name      string
		result    ExecutionResult
		wantScore float64
	}{
		{
			name: "successful fast cheap run",
			result: ExecutionResult{
				Success:         true,
				StepsCompleted:  8,
				StepsFailed:     2,
				ExecutionTimeMS: 10000,
				Cost:            floatPtr(0.005),
			},
			// 50 + 0.8*30 + 10 + 10
			wantScore: 94,
		},
		{
			name: "total failure with no steps",
			result: ExecutionResult{
				Success:         false,
				ExecutionTimeMS: 90000,
			},
			wantScore: 10,
		},
		{
			name: "success with medium time bonus",
			result: ExecutionResult{
				Success:         true,
				StepsCompleted:  5,
				StepsFailed:     0,
				ExecutionTimeMS: 45000,
			},
			// 50 + 30 + 5
			wantScore: 85,
		},
		{
			name: "moderate cost bonus",
			result: ExecutionResult{
				Success:         true,
				StepsCompleted:  1,
				ExecutionTimeMS: 1000,
				Cost:            floatPtr(0.02),
			},
			// 50 + 30 + 10 + 5
			wantScore: 95,
		},
		{
			name: "expensive run gets no cost bonus",
			result: ExecutionResult{
				Success:         true,
				StepsCompleted:  1,
				ExecutionTimeMS: 1000,
				Cost:            floatPtr(0.5),
			},
			wantScore: 90,
		},
		{
			name: "NaN cost treated as no cost recorded",
			result: ExecutionResult{
				Success:         true,
				StepsCompleted:  1,
				ExecutionTimeMS: 1000,
				Cost:            floatPtr(math.NaN()),
			},
			wantScore: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored := c.CompareAndRank([]ExecutionResult{tt.result})
			if len(scored) != 1 {
				t.Fatalf("got %d scored results, want 1", len(scored))
			}
			if scored[0].Score != tt.wantScore {
				t.Errorf("score = %v, want %v (reasons: %v)",
					scored[0].Score, tt.wantScore, scored[0].Reasons)
			}
			if math.IsNaN(scored[0].Score) {
				t.Error("score must never be NaN")
			}
		})
	}
}

func TestRanksAreSequentialAndScoresNonIncreasing(t *testing.T) {
	c := New()

	results := []ExecutionResult{
		{PlanID: "slow-failure", Success: false, ExecutionTimeMS: 120000},
		{PlanID: "fast-success", Success: true, StepsCompleted: 4, ExecutionTimeMS: 5000, Cost: floatPtr(0.001)},
		{PlanID: "partial", Success: false, StepsCompleted: 2, StepsFailed: 2, ExecutionTimeMS: 20000},
		{PlanID: "slow-success", Success: true, StepsCompleted: 3, ExecutionTimeMS: 70000},
	}

	scored := c.CompareAndRank(results)
	if len(scored) != len(results) {
		t.Fatalf("got %d scored results, want %d", len(scored), len(results))
	}
	for i, s := range scored {
		if s.Rank != i+1 {
			t.Errorf("rank at position %d = %d, want %d", i, s.Rank, i+1)
		}
		if i > 0 && scored[i-1].Score < s.Score {
			t.Errorf("scores not non-increasing: %v then %v", scored[i-1].Score, s.Score)
		}
	}
	if scored[0].Result.PlanID != "fast-success" {
		t.Errorf("top result = %s, want fast-success", scored[0].Result.PlanID)
	}
}

func TestGetBestResult(t *testing.T) {
	c := New()

	if best := c.GetBestResult(nil); best != nil {
		t.Errorf("GetBestResult(empty) = %+v, want nil", best)
	}

	results := []ExecutionResult{
		{PlanID: "a", Success: false},
		{PlanID: "b", Success: true, StepsCompleted: 1, ExecutionTimeMS: 1000},
	}
	best := c.GetBestResult(results)
	if best == nil {
		t.Fatal("GetBestResult returned nil for non-empty input")
	}
	if best.Rank != 1 {
		t.Errorf("best rank = %d, want 1", best.Rank)
	}
	if best.Result.PlanID != "b" {
		t.Errorf("best plan = %s, want b", best.Result.PlanID)
	}
}

func TestFailureReasonsIncludeError(t *testing.T) {
	c := New()
	scored := c.CompareAndRank([]ExecutionResult{
		{PlanID: "x", Success: false, Error: "tool exploded"},
	})
	found := false
	for _, reason := range scored[0].Reasons {
		if strings.Contains(reason, "tool exploded") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons %v should include the captured error", scored[0].Reasons)
	}
}

func TestFormatComparison(t *testing.T) {
	c := New()
	scored := c.CompareAndRank([]ExecutionResult{
		{PlanID: "p1", SandboxID: "s1", Success: true, StepsCompleted: 2, ExecutionTimeMS: 2500},
	})
	report := c.FormatComparison(scored)
	for _, want := range []string{"Rank #1", "Plan p1", "Sandbox: s1", "Reasons:"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
