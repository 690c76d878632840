package registry

import (
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New([]string{"http://worker-a:8100", "http://worker-b:8100"}, ModeManual)
}

func TestNewDerivesIDFromHost(t *testing.T) {
	reg := newTestRegistry(t)
	if len(reg.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(reg.Workers))
	}
	if reg.Workers[0].ID != "worker-a" {
		t.Errorf("expected id %q, got %q", "worker-a", reg.Workers[0].ID)
	}
	if reg.Workers[1].ID != "worker-b" {
		t.Errorf("expected id %q, got %q", "worker-b", reg.Workers[1].ID)
	}
}

func TestFindByIDOrAltID(t *testing.T) {
	reg := newTestRegistry(t)
	w := reg.Workers[0]
	w.ID = "renamed-worker"

	if got := reg.Find("renamed-worker"); got != w {
		t.Errorf("expected to find worker by current id")
	}
	if got := reg.Find("worker-a"); got != w {
		t.Errorf("expected to find worker by original host-derived altID after rename")
	}
	if got := reg.Find("does-not-exist"); got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestEligibleRequiresOnlinePositiveWeightAndNotDisabled(t *testing.T) {
	now := time.Now()
	w := &Worker{Online: true, EffectiveWeight: 1}
	if !w.Eligible(now) {
		t.Errorf("expected eligible worker to be eligible")
	}

	w.Online = false
	if w.Eligible(now) {
		t.Errorf("offline worker must not be eligible")
	}
	w.Online = true

	w.EffectiveWeight = 0
	if w.Eligible(now) {
		t.Errorf("zero-weight worker must not be eligible")
	}
	w.EffectiveWeight = 1

	w.DisabledUntil = now.Add(time.Minute)
	if w.Eligible(now) {
		t.Errorf("worker inside its disable window must not be eligible")
	}
}

func TestRecomputeEffectiveManualVsAuto(t *testing.T) {
	w := &Worker{ReportedWeight: 3}
	w.RecomputeEffective(ModeManual)
	if w.EffectiveWeight != 3 {
		t.Errorf("expected effective weight 3 from reported weight, got %d", w.EffectiveWeight)
	}

	manual := 7
	w.ManualWeight = &manual
	w.RecomputeEffective(ModeManual)
	if w.EffectiveWeight != 7 {
		t.Errorf("expected manual override to win in manual mode, got %d", w.EffectiveWeight)
	}

	auto := 9
	w.AutoWeight = &auto
	w.RecomputeEffective(ModeAuto)
	if w.EffectiveWeight != 9 {
		t.Errorf("expected auto weight to win in auto mode, got %d", w.EffectiveWeight)
	}
}

func TestRecomputeEffectiveFloorsAtOne(t *testing.T) {
	zero := 0
	w := &Worker{ManualWeight: &zero}
	w.RecomputeEffective(ModeManual)
	if w.EffectiveWeight != 1 {
		t.Errorf("expected effective weight to floor at 1, got %d", w.EffectiveWeight)
	}
}

func TestRecordHistoryWrapsAtCapacity(t *testing.T) {
	reg := newTestRegistry(t)
	for i := 0; i < historyCapacity+10; i++ {
		reg.RecordHistory(HistoryEntry{WorkerID: "worker-a", Attempt: 1})
	}
	if len(reg.history) != historyCapacity {
		t.Fatalf("expected history to cap at %d entries, got %d", historyCapacity, len(reg.history))
	}
}

func TestResetExperimentZeroesCountersAndHistory(t *testing.T) {
	reg := newTestRegistry(t)
	w := reg.Workers[0]
	w.Assigned, w.OK, w.Fail = 5, 3, 2
	w.AvgLatencyMs = 42
	w.CurrentWeight = 10
	w.DisabledUntil = time.Now().Add(time.Minute)
	reg.RecordHistory(HistoryEntry{WorkerID: w.ID})

	reg.ResetExperiment()

	if w.Assigned != 0 || w.OK != 0 || w.Fail != 0 {
		t.Errorf("expected counters to be zeroed, got assigned=%d ok=%d fail=%d", w.Assigned, w.OK, w.Fail)
	}
	if w.AvgLatencyMs != 0 || w.CurrentWeight != 0 {
		t.Errorf("expected latency and current weight to be zeroed")
	}
	if !w.DisabledUntil.IsZero() {
		t.Errorf("expected disable window to be cleared")
	}
	if len(reg.history) != 0 {
		t.Errorf("expected history to be cleared, got %d entries", len(reg.history))
	}
}
