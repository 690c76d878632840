// Package autoweight implements the LB's feedback-driven weight
// controller (spec.md §4.5): a periodic loop that turns each online
// worker's latency and fail rate into a weight, active only while the
// registry's mode is auto.
package autoweight

import (
	"context"
	"log"
	"math"
	"time"

	"trafficshape/internal/lb/registry"
)

const defaultBaseLatencyMs = 50.0

type Controller struct {
	reg      *registry.Registry
	interval time.Duration
	max      int
	logger   *log.Logger
}

func New(reg *registry.Registry, interval time.Duration, maxWeight int, logger *log.Logger) *Controller {
	return &Controller{reg: reg, interval: interval, max: maxWeight, logger: logger}
}

// Start ticks every interval until ctx is cancelled, recomputing weights
// on each tick while the registry is in auto mode.
func (c *Controller) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.reg.Mu.Lock()
	defer c.reg.Mu.Unlock()

	if c.reg.Mode != registry.ModeAuto {
		return
	}

	type scored struct {
		w     *registry.Worker
		score float64
	}

	var online []scored
	maxScore := 0.0
	for _, w := range c.reg.Workers {
		if !w.Online {
			continue
		}
		latency := w.AvgLatencyMs
		if latency <= 0 {
			latency = float64(w.ReportedBaseLatMs)
		}
		if latency <= 0 {
			latency = defaultBaseLatencyMs
		}

		total := w.OK + w.Fail
		var failRate float64
		if total > 0 {
			failRate = float64(w.Fail) / float64(total)
		}

		score := (1.0 / (latency + 1.0)) * (1.0 - failRate)
		online = append(online, scored{w: w, score: score})
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore <= 0 {
		for _, s := range online {
			weight := 1
			s.w.AutoWeight = &weight
			s.w.RecomputeEffective(c.reg.Mode)
		}
		return
	}

	for _, s := range online {
		weight := int(math.Round(float64(c.max) * s.score / maxScore))
		if weight < 1 {
			weight = 1
		}
		s.w.AutoWeight = &weight
		s.w.RecomputeEffective(c.reg.Mode)
	}

	if c.logger != nil {
		c.logger.Printf("auto-weight tick: %d online workers rescored", len(online))
	}
}
