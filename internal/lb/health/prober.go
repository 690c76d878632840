// Package health runs the LB's periodic worker health probe (spec.md
// §4.4): independent, bounded fan-out per tick, one worker's failure
// never aborting another's check.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/wclient"
	"trafficshape/internal/metrics"
)

type Prober struct {
	reg      *registry.Registry
	client   *wclient.Client
	interval time.Duration
	logger   *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(reg *registry.Registry, client *wclient.Client, interval time.Duration, logger *log.Logger) *Prober {
	return &Prober{
		reg:      reg,
		client:   client,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Run ticks every interval until ctx is cancelled, probing all workers in
// parallel on each tick.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	p.reg.Mu.Lock()
	workers := make([]*registry.Worker, len(p.reg.Workers))
	copy(workers, p.reg.Workers)
	p.reg.Mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *registry.Worker) {
			defer wg.Done()
			p.probeOne(ctx, w)
		}(w)
	}
	wg.Wait()
}

func (p *Prober) probeOne(ctx context.Context, w *registry.Worker) {
	resp, err := p.client.FetchHealth(ctx, w.URL)

	p.reg.Mu.Lock()

	if err != nil {
		w.Online = false
		w.LastError = "health: " + err.Error()
		if p.logger != nil {
			p.logger.Printf("probe %s failed: %v", w.ID, err)
		}
		p.updateGaugesLocked(w)
		p.reg.Mu.Unlock()
		return
	}

	w.Online = true
	w.LastSeen = time.Now()
	w.LastError = ""

	if resp.WorkerID != "" {
		w.ID = resp.WorkerID
	}
	if resp.Weight != nil {
		w.ReportedWeight = max(1, *resp.Weight)
	}
	if resp.BaseLatMs != nil {
		w.ReportedBaseLatMs = *resp.BaseLatMs
	}

	w.RecomputeEffective(p.reg.Mode)
	p.updateGaugesLocked(w)
	p.reg.Mu.Unlock()
}

// updateGaugesLocked reflects w's current selector-facing state into the
// ambient Prometheus gauges. Callers must hold reg.Mu.
func (p *Prober) updateGaugesLocked(w *registry.Worker) {
	if metrics.AppMetrics == nil {
		return
	}
	disabled := time.Now().Before(w.DisabledUntil)
	metrics.AppMetrics.UpdateWorkerGauges(w.ID, w.EffectiveWeight, w.Online, disabled)
}
