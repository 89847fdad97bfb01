package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageExtract, 500)
	w.Observe(StageExtract, 700)
	w.Observe(StageExtract, 900)
	w.ObserveIndicator("champion_cache_hit")
	w.ObserveIndicator("champion_cache_hit")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageExtract {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageExtract)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1500 {
		t.Fatalf("TargetP95MS = %.2f, want 1500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want champion_cache_hit x2", snap.Indicators)
	}
}

func TestStageWindowWrapsAndResets(t *testing.T) {
	w := newStageWindow(2)
	for _, v := range []float64{10, 20, 30} {
		w.Observe(StageGenerate, v)
	}
	w.Observe("", 5)
	w.Observe(StagePersist, -1)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if got := snap.Stages[0]; got.Samples != 2 || got.AvgMS != 25 {
		t.Fatalf("stage = %+v, want 2 samples averaging 25", got)
	}

	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", len(snap.Stages))
	}
}

func TestMetricsStages(t *testing.T) {
	m := NewMetrics("pitwall_test_stages")
	m.ObserveStage(StageClassify, 1500*time.Microsecond)
	m.ObserveChat("http", "scraped")

	snap := m.SnapshotStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 1.5 {
		t.Fatalf("SnapshotStages() = %+v, want classify at 1.5ms", snap.Stages)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveStage(StageClassify, time.Millisecond)
	nilMetrics.ObserveChat("http", "generated")
	if snap := nilMetrics.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil SnapshotStages() = %+v, want empty", snap)
	}
}
