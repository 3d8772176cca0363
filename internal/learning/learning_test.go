package learning

import (
	"fmt"
	"testing"

	"github.com/karimjebali/forager/internal/resources"
)

func TestSuccessRate(t *testing.T) {
	s := NewSystem(true, false)

	for i := 0; i < 10; i++ {
		s.RecordExperience("organize downloads", "file_move", i < 8, 100, resources.Usage{})
	}

	strategy, ok := s.GetBestStrategy("file_move")
	if !ok {
		t.Fatal("expected a strategy for file_move")
	}
	if strategy.SuccessRate != 0.8 {
		t.Errorf("success rate = %v, want 0.8", strategy.SuccessRate)
	}
	if strategy.UsageCount != 10 {
		t.Errorf("usage count = %d, want 10", strategy.UsageCount)
	}
}

func TestAvgExecutionTime(t *testing.T) {
	s := NewSystem(true, false)
	s.RecordExperience("g", "t", true, 100, resources.Usage{})
	s.RecordExperience("g", "t", true, 300, resources.Usage{})

	strategy, _ := s.GetBestStrategy("t")
	if strategy.AvgExecutionTimeMS != 200 {
		t.Errorf("avg time = %d, want 200", strategy.AvgExecutionTimeMS)
	}
}

func TestAvgResourcesIsMostRecentObservation(t *testing.T) {
	s := NewSystem(true, false)
	s.RecordExperience("g", "t", true, 10, resources.Usage{CPUPercent: 50, MemoryMB: 500})
	s.RecordExperience("g", "t", true, 10, resources.Usage{CPUPercent: 10, MemoryMB: 100})

	strategy, _ := s.GetBestStrategy("t")
	if strategy.AvgResources.CPUPercent != 10 || strategy.AvgResources.MemoryMB != 100 {
		t.Errorf("AvgResources = %+v, want the most recent observation", strategy.AvgResources)
	}
}

func TestDisabledSystemIsNoop(t *testing.T) {
	s := NewSystem(false, false)
	s.RecordExperience("g", "t", true, 10, resources.Usage{})

	if _, ok := s.GetBestStrategy("t"); ok {
		t.Error("disabled system must not record strategies")
	}
	if s.ExperienceCount() != 0 {
		t.Errorf("experience count = %d, want 0", s.ExperienceCount())
	}
	s.Update() // must not panic
}

func TestUnknownToolHasNoStrategy(t *testing.T) {
	s := NewSystem(true, false)
	if _, ok := s.GetBestStrategy("never_used"); ok {
		t.Error("expected no strategy for an unknown tool")
	}
}

func TestUpdateTruncatesLogButKeepsCounters(t *testing.T) {
	s := NewSystem(true, false)
	total := MaxExperiences + 50
	for i := 0; i < total; i++ {
		s.RecordExperience("g", "t", true, 1, resources.Usage{})
	}

	s.Update()

	if got := s.ExperienceCount(); got != MaxExperiences {
		t.Errorf("experience count after update = %d, want %d", got, MaxExperiences)
	}
	strategy, _ := s.GetBestStrategy("t")
	if strategy.UsageCount != uint64(total) {
		t.Errorf("usage count = %d, want %d (counters survive truncation)", strategy.UsageCount, total)
	}
}

type recordingOptimizer struct {
	calls      int
	strategies int
}

func (r *recordingOptimizer) Optimize(exps []Experience, strategies map[string]Strategy) {
	r.calls++
	r.strategies = len(strategies)
}

func TestOptimizerHook(t *testing.T) {
	s := NewSystem(true, true)
	opt := &recordingOptimizer{}
	s.SetOptimizer(opt)

	for i := 0; i < 3; i++ {
		s.RecordExperience("g", fmt.Sprintf("tool_%d", i), true, 1, resources.Usage{})
	}
	s.Update()

	if opt.calls != 1 {
		t.Errorf("optimizer called %d times, want 1", opt.calls)
	}
	if opt.strategies != 3 {
		t.Errorf("optimizer saw %d strategies, want 3", opt.strategies)
	}

	// Without self-improvement the hook must not fire.
	s2 := NewSystem(true, false)
	opt2 := &recordingOptimizer{}
	s2.SetOptimizer(opt2)
	s2.RecordExperience("g", "t", true, 1, resources.Usage{})
	s2.Update()
	if opt2.calls != 0 {
		t.Errorf("optimizer fired %d times with self-improvement disabled", opt2.calls)
	}
}
