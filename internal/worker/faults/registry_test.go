package faults

import (
	"testing"
	"time"
)

func TestValidateRejectsOutOfRangeProbability(t *testing.T) {
	s := Spec{Kind: KindDelay, Probability: 1.5}
	if err := Validate(s); err == nil {
		t.Errorf("expected an error for probability > 1")
	}
}

func TestValidateDelayBounds(t *testing.T) {
	if err := Validate(Spec{Kind: KindDelay, DelayMs: 60001, Probability: 1}); err == nil {
		t.Errorf("expected an error for delay_ms above 60000")
	}
	if err := Validate(Spec{Kind: KindDelay, DelayMs: 100, Probability: 1}); err != nil {
		t.Errorf("unexpected error for a valid delay spec: %v", err)
	}
}

func TestValidateDropRequiresKnownModeAndBounds(t *testing.T) {
	bad := Spec{Kind: KindDrop, Mode: "reset", StatusCode: 503, SleepMs: 100, Probability: 1}
	if err := Validate(bad); err == nil {
		t.Errorf("expected an error for an unknown drop mode")
	}
	badStatus := Spec{Kind: KindDrop, Mode: "503", StatusCode: 200, SleepMs: 100, Probability: 1}
	if err := Validate(badStatus); err == nil {
		t.Errorf("expected an error for a drop status_code outside [400, 599]")
	}
	badSleep := Spec{Kind: KindDrop, Mode: "timeout", StatusCode: 504, SleepMs: 0, Probability: 1}
	if err := Validate(badSleep); err == nil {
		t.Errorf("expected an error for sleep_ms below 1")
	}
}

func TestValidateCorruptRequiresKnownMode(t *testing.T) {
	if err := Validate(Spec{Kind: KindCorrupt, Mode: "garbled", Probability: 1}); err == nil {
		t.Errorf("expected an error for an unknown corrupt mode")
	}
	if err := Validate(Spec{Kind: KindCorrupt, Mode: "bad_fields", Probability: 1}); err != nil {
		t.Errorf("unexpected error for a valid corrupt spec: %v", err)
	}
}

func TestValidateUnknownKindRejected(t *testing.T) {
	if err := Validate(Spec{Kind: "bogus", Probability: 1}); err == nil {
		t.Errorf("expected an error for an unknown fault kind")
	}
}

func TestAddDefaultsDropFields(t *testing.T) {
	r := New()
	f, err := r.Add(Spec{Kind: KindDrop})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Spec.Mode != "503" {
		t.Errorf("expected default drop mode %q, got %q", "503", f.Spec.Mode)
	}
	if f.Spec.StatusCode != 503 {
		t.Errorf("expected default status_code 503, got %d", f.Spec.StatusCode)
	}
	if f.Spec.SleepMs != 5000 {
		t.Errorf("expected default sleep_ms 5000, got %d", f.Spec.SleepMs)
	}
	if f.Spec.Probability != 1.0 {
		t.Errorf("expected default probability 1.0, got %v", f.Spec.Probability)
	}
	if len(f.ID) != 12 {
		t.Errorf("expected a 12-char fault id, got %q", f.ID)
	}
}

func TestAddDefaultsCorruptAndErrorFields(t *testing.T) {
	r := New()
	corrupt, err := r.Add(Spec{Kind: KindCorrupt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corrupt.Spec.Mode != "invalid_json" {
		t.Errorf("expected default corrupt mode %q, got %q", "invalid_json", corrupt.Spec.Mode)
	}

	errFault, err := r.Add(Spec{Kind: KindError})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errFault.Spec.StatusCode != 500 {
		t.Errorf("expected default error status_code 500, got %d", errFault.Spec.StatusCode)
	}
}

func TestAddRejectsInvalidSpec(t *testing.T) {
	r := New()
	_, err := r.Add(Spec{Kind: KindDelay, DelayMs: -1})
	if err == nil {
		t.Errorf("expected Add to reject an invalid spec")
	}
}

func TestListDeleteClear(t *testing.T) {
	r := New()
	f1, _ := r.Add(Spec{Kind: KindDelay, DelayMs: 10, Probability: 1})
	f2, _ := r.Add(Spec{Kind: KindCPUBurn, BurnMs: 10, Probability: 1})

	faults := r.List()
	if len(faults) != 2 {
		t.Fatalf("expected 2 faults, got %d", len(faults))
	}

	if !r.Delete(f1.ID) {
		t.Errorf("expected Delete to report true for an existing fault")
	}
	if r.Delete(f1.ID) {
		t.Errorf("expected Delete to report false for an already-removed fault")
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 fault remaining after delete")
	}

	n := r.Clear()
	if n != 1 {
		t.Errorf("expected Clear to report 1 removed, got %d", n)
	}
	if len(r.List()) != 0 {
		t.Errorf("expected an empty registry after Clear")
	}
	_ = f2
}

func TestSnapshotActivePurgesExpiredAndIsolatesLaterAdds(t *testing.T) {
	r := New()
	past := -1.0
	expired := 0.1
	_ = past

	dur := expired
	_, err := r.Add(Spec{Kind: KindDelay, DelayMs: 10, Probability: 1, DurationSec: &dur})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	snap := r.SnapshotActive()
	if len(snap) != 0 {
		t.Errorf("expected the expired fault to be purged from the snapshot, got %d entries", len(snap))
	}

	snap2 := r.SnapshotActive()
	r.Add(Spec{Kind: KindCPUBurn, BurnMs: 10, Probability: 1})
	if len(snap2) != 0 {
		t.Errorf("a snapshot taken before an Add must not observe it")
	}
}

func TestShouldTriggerBoundaries(t *testing.T) {
	if !ShouldTrigger(1.0) {
		t.Errorf("expected probability 1.0 to always trigger")
	}
	if !ShouldTrigger(1.5) {
		t.Errorf("expected probability above 1.0 to always trigger")
	}
	if ShouldTrigger(0.0) {
		t.Errorf("expected probability 0.0 to never trigger")
	}
	if ShouldTrigger(-1.0) {
		t.Errorf("expected negative probability to never trigger")
	}
}
