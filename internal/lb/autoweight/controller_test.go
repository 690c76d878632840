package autoweight

import (
	"testing"

	"trafficshape/internal/lb/registry"
)

func TestTickOnlyRunsInAutoMode(t *testing.T) {
	reg := registry.New([]string{"http://a:8100"}, registry.ModeManual)
	reg.Workers[0].Online = true
	reg.Workers[0].AvgLatencyMs = 10

	c := New(reg, 0, 10, nil)
	c.tick()

	if reg.Workers[0].AutoWeight != nil {
		t.Errorf("expected tick to no-op outside auto mode")
	}
}

func TestTickFavorsLowerLatencyAndHigherSuccessRate(t *testing.T) {
	reg := registry.New([]string{"http://fast:8100", "http://slow:8100"}, registry.ModeAuto)
	fast, slow := reg.Workers[0], reg.Workers[1]

	fast.Online, slow.Online = true, true
	fast.AvgLatencyMs, slow.AvgLatencyMs = 5, 100
	fast.OK, slow.OK = 100, 100

	c := New(reg, 0, 10, nil)
	c.tick()

	if fast.AutoWeight == nil || slow.AutoWeight == nil {
		t.Fatalf("expected both workers to receive an auto weight")
	}
	if *fast.AutoWeight <= *slow.AutoWeight {
		t.Errorf("expected lower-latency worker to get a higher weight: fast=%d slow=%d", *fast.AutoWeight, *slow.AutoWeight)
	}
	if *fast.AutoWeight != 10 {
		t.Errorf("expected the best-scoring worker to receive max weight 10, got %d", *fast.AutoWeight)
	}
}

func TestTickPenalizesFailRate(t *testing.T) {
	reg := registry.New([]string{"http://reliable:8100", "http://flaky:8100"}, registry.ModeAuto)
	reliable, flaky := reg.Workers[0], reg.Workers[1]

	reliable.Online, flaky.Online = true, true
	reliable.AvgLatencyMs, flaky.AvgLatencyMs = 10, 10
	reliable.OK = 100
	flaky.OK, flaky.Fail = 50, 50

	c := New(reg, 0, 10, nil)
	c.tick()

	if *reliable.AutoWeight <= *flaky.AutoWeight {
		t.Errorf("expected the more reliable worker to get a higher weight: reliable=%d flaky=%d", *reliable.AutoWeight, *flaky.AutoWeight)
	}
}

func TestTickSkipsOfflineWorkers(t *testing.T) {
	reg := registry.New([]string{"http://a:8100"}, registry.ModeAuto)
	reg.Workers[0].Online = false

	c := New(reg, 0, 10, nil)
	c.tick()

	if reg.Workers[0].AutoWeight != nil {
		t.Errorf("expected offline worker to be skipped")
	}
}

func TestTickFloorsWeightAtOneWhenAllScoresZero(t *testing.T) {
	reg := registry.New([]string{"http://a:8100", "http://b:8100"}, registry.ModeAuto)
	reg.Workers[0].Online, reg.Workers[1].Online = true, true
	reg.Workers[0].OK, reg.Workers[0].Fail = 0, 1
	reg.Workers[1].OK, reg.Workers[1].Fail = 0, 1

	c := New(reg, 0, 10, nil)
	c.tick()

	for _, w := range reg.Workers {
		if w.AutoWeight == nil || *w.AutoWeight != 1 {
			t.Errorf("expected worker %s to floor at weight 1 when every score is zero", w.ID)
		}
	}
}
