// Package learning records per-tool execution experience and derives
// aggregate strategy statistics the planner can consult. Everything here is
// best-effort telemetry: failures are swallowed, never propagated to the
// orchestrator.
package learning

import (
	"sync"
	"time"

	"github.com/karimjebali/forager/internal/resources"
)

// MaxExperiences caps the retained raw experience log. Oldest entries are
// dropped first during Update.
const MaxExperiences = 10000

// Experience is one recorded observation of a tool invocation's outcome.
type Experience struct {
	GoalDescription string          `json:"goal_description"`
	ToolID          string          `json:"tool_id"`
	Success         bool            `json:"success"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	ResourcesUsed   resources.Usage `json:"resources_used"`
	Timestamp       int64           `json:"timestamp"`
}

// Strategy is the per-tool aggregate derived from the experience history.
type Strategy struct {
	ToolID             string  `json:"tool_id"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMS int64   `json:"avg_execution_time_ms"`
	// AvgResources is the most recent observation's usage, not a true
	// average. The planner only needs a current ballpark, and the original
	// behavior is kept deliberately.
	AvgResources resources.Usage `json:"avg_resources"`
	UsageCount   uint64          `json:"usage_count"`
}

// toolStats holds the running counters that let a Strategy be maintained in
// O(1) per experience instead of rescanning the full history.
type toolStats struct {
	count        uint64
	successCount uint64
	timeSumMS    int64
	lastUsage    resources.Usage
}

// Optimizer is the self-improvement extension point invoked during Update.
// It is a seam for future pattern mining, resource-usage optimization and
// tool-selection adaptation; no concrete algorithm ships today.
type Optimizer interface {
	Optimize(experiences []Experience, strategies map[string]Strategy)
}

// System accumulates experiences and maintains per-tool strategies.
type System struct {
	enabled         bool
	selfImprovement bool
	optimizer       Optimizer

	mu          sync.Mutex
	experiences []Experience
	stats       map[string]*toolStats
}

// NewSystem creates a learning system. When enabled is false every
// operation is a no-op.
func NewSystem(enabled, selfImprovement bool) *System {
	return &System{
		enabled:         enabled,
		selfImprovement: selfImprovement,
		stats:           make(map[string]*toolStats),
	}
}

// SetOptimizer installs the self-improvement hook invoked by Update.
func (s *System) SetOptimizer(opt Optimizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimizer = opt
}

// RecordExperience appends an experience and updates the tool's running
// counters. No-op when learning is disabled.
func (s *System) RecordExperience(goalDescription, toolID string, success bool, executionTimeMS int64, used resources.Usage) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiences = append(s.experiences, Experience{
		GoalDescription: goalDescription,
		ToolID:          toolID,
		Success:         success,
		ExecutionTimeMS: executionTimeMS,
		ResourcesUsed:   used,
		Timestamp:       time.Now().Unix(),
	})

	st := s.stats[toolID]
	if st == nil {
		st = &toolStats{}
		s.stats[toolID] = st
	}
	st.count++
	if success {
		st.successCount++
	}
	st.timeSumMS += executionTimeMS
	st.lastUsage = used
}

// GetBestStrategy returns the current strategy for a tool, or false if no
// experience has been recorded for it.
func (s *System) GetBestStrategy(toolID string) (Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[toolID]
	if !ok || st.count == 0 {
		return Strategy{}, false
	}
	return Strategy{
		ToolID:             toolID,
		SuccessRate:        float64(st.successCount) / float64(st.count),
		AvgExecutionTimeMS: st.timeSumMS / int64(st.count),
		AvgResources:       st.lastUsage,
		UsageCount:         st.count,
	}, true
}

// Strategies returns a snapshot of all per-tool strategies.
func (s *System) Strategies() map[string]Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Strategy, len(s.stats))
	for toolID, st := range s.stats {
		out[toolID] = Strategy{
			ToolID:             toolID,
			SuccessRate:        float64(st.successCount) / float64(st.count),
			AvgExecutionTimeMS: st.timeSumMS / int64(st.count),
			AvgResources:       st.lastUsage,
			UsageCount:         st.count,
		}
	}
	return out
}

// ExperienceCount returns the size of the retained raw log.
func (s *System) ExperienceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.experiences)
}

// Update runs periodic maintenance: the raw log is truncated to the most
// recent MaxExperiences entries, and the self-improvement hook is invoked
// if enabled. The running counters intentionally keep counting experiences
// that age out of the raw log.
func (s *System) Update() {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	if over := len(s.experiences) - MaxExperiences; over > 0 {
		s.experiences = append(s.experiences[:0:0], s.experiences[over:]...)
	}
	runOptimizer := s.selfImprovement && s.optimizer != nil
	var expSnapshot []Experience
	if runOptimizer {
		expSnapshot = append([]Experience(nil), s.experiences...)
	}
	s.mu.Unlock()

	if runOptimizer {
		s.optimizer.Optimize(expSnapshot, s.Strategies())
	}
}
