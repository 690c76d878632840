package selector

import (
	"testing"
	"time"

	"trafficshape/internal/lb/registry"
)

func TestChooseInterleavesByWeight(t *testing.T) {
	reg := registry.New([]string{"http://a:8100", "http://b:8100", "http://c:8100"}, registry.ModeManual)
	reg.Workers[0].EffectiveWeight, reg.Workers[0].Online = 5, true
	reg.Workers[1].EffectiveWeight, reg.Workers[1].Online = 1, true
	reg.Workers[2].EffectiveWeight, reg.Workers[2].Online = 1, true

	sel := New(reg)

	var sequence []string
	for i := 0; i < 7; i++ {
		w := sel.Choose()
		if w == nil {
			t.Fatalf("expected a worker on iteration %d", i)
		}
		sequence = append(sequence, w.ID)
	}

	want := []string{"a", "a", "b", "a", "c", "a", "a"}
	for i, id := range want {
		if sequence[i] != id {
			t.Errorf("iteration %d: expected %q, got %q (full sequence %v)", i, id, sequence[i], sequence)
			break
		}
	}
}

func TestChooseReturnsNilWhenNoneEligible(t *testing.T) {
	reg := registry.New([]string{"http://a:8100"}, registry.ModeManual)
	reg.Workers[0].Online = false

	sel := New(reg)
	if w := sel.Choose(); w != nil {
		t.Errorf("expected nil when no worker is eligible, got %+v", w)
	}
}

func TestChooseSkipsDisabledWorkers(t *testing.T) {
	reg := registry.New([]string{"http://a:8100", "http://b:8100"}, registry.ModeManual)
	reg.Workers[0].Online, reg.Workers[0].EffectiveWeight = true, 1
	reg.Workers[1].Online, reg.Workers[1].EffectiveWeight = true, 1
	reg.Workers[0].DisabledUntil = time.Now().Add(time.Minute)

	sel := New(reg)
	for i := 0; i < 5; i++ {
		w := sel.Choose()
		if w == nil {
			t.Fatalf("expected a worker on iteration %d", i)
		}
		if w.ID != "b" {
			t.Errorf("expected only worker b to be chosen while a is disabled, got %q", w.ID)
		}
	}
}

func TestChooseIncrementsAssigned(t *testing.T) {
	reg := registry.New([]string{"http://a:8100"}, registry.ModeManual)
	reg.Workers[0].Online, reg.Workers[0].EffectiveWeight = true, 1

	sel := New(reg)
	for i := 0; i < 3; i++ {
		sel.Choose()
	}
	if reg.Workers[0].Assigned != 3 {
		t.Errorf("expected assigned count 3, got %d", reg.Workers[0].Assigned)
	}
}
