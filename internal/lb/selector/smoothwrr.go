// Package selector implements the smooth weighted round-robin algorithm
// used by the dispatch engine to pick a worker for each attempt.
package selector

import (
	"time"

	"trafficshape/internal/lb/registry"
)

// Selector wraps the registry to provide deterministic, low-variance
// weighted selection (nginx-style smooth WRR; see spec.md §4.2).
type Selector struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Selector {
	return &Selector{reg: reg}
}

// Choose returns an eligible worker, or nil if none is eligible. It is
// linearisable under the registry's selector mutex: the eligible set and
// total weight are computed, every eligible worker's CurrentWeight is
// bumped, the maximum is picked (registry order breaks ties), and the
// winner's CurrentWeight is reduced by the total — leaving ineligible
// workers' CurrentWeight untouched so they re-enter smoothly later.
func (s *Selector) Choose() *registry.Worker {
	s.reg.Mu.Lock()
	defer s.reg.Mu.Unlock()

	now := time.Now()
	var eligible []*registry.Worker
	total := 0
	for _, w := range s.reg.Workers {
		if w.Eligible(now) {
			eligible = append(eligible, w)
			total += w.EffectiveWeight
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	var best *registry.Worker
	for _, w := range eligible {
		w.CurrentWeight += w.EffectiveWeight
		if best == nil || w.CurrentWeight > best.CurrentWeight {
			best = w
		}
	}

	best.CurrentWeight -= total
	best.Assigned++
	return best
}
