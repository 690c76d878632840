// Package registry holds the load balancer's per-worker state: weights,
// counters, and the availability window used by the dispatch engine and
// the smooth WRR selector.
package registry

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// WeightMode selects which weight field feeds EffectiveWeight.
type WeightMode string

const (
	ModeManual WeightMode = "manual"
	ModeAuto   WeightMode = "auto"
)

// Worker is one backend's state for the lifetime of the LB process.
type Worker struct {
	ID  string
	URL string

	// altID is the host parsed from URL at construction time. It never
	// changes, even if a /health response overwrites ID, so lookups by
	// the originally-derived key keep working (spec.md §9 open question).
	altID string

	ReportedWeight     int
	ManualWeight       *int
	AutoWeight         *int
	EffectiveWeight    int
	CurrentWeight      int
	Online             bool
	DisabledUntil      time.Time
	Assigned           int64
	OK                 int64
	Fail               int64
	AvgLatencyMs       float64
	LastError          string
	LastSeen           time.Time
	ReportedBaseLatMs  int
}

// HistoryEntry is one bounded record of a dispatch outcome, kept for
// operator inspection. It has no reader endpoint; see spec.md §9.
type HistoryEntry struct {
	WorkerID string
	Attempt  int
	Status   int
	LatencyMs float64
	Err      string
	At       time.Time
}

const historyCapacity = 256

// Registry owns the ordered worker list and the selector mutex that
// guards every weight field, CurrentWeight, and the bounded history ring.
type Registry struct {
	Mu      sync.Mutex
	Workers []*Worker
	Mode    WeightMode

	history    []HistoryEntry
	historyPos int
}

// New builds a registry from an ordered list of backend URLs, deriving
// each worker's initial id from the URL host.
func New(urls []string, mode WeightMode) *Registry {
	workers := make([]*Worker, 0, len(urls))
	for _, u := range urls {
		host := hostOf(u)
		workers = append(workers, &Worker{
			ID:                host,
			URL:               u,
			altID:             host,
			ReportedWeight:    1,
			EffectiveWeight:   1,
			Online:            false,
			ReportedBaseLatMs: 0,
		})
	}
	return &Registry{
		Workers: workers,
		Mode:    mode,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(rawURL, "http://"), "https://"), "/")
	}
	return u.Hostname()
}

// Find locates a worker by its current id or its original host-derived
// alternate id. Callers must hold Mu if they intend to mutate the result.
func (r *Registry) Find(workerID string) *Worker {
	for _, w := range r.Workers {
		if w.ID == workerID || w.altID == workerID {
			return w
		}
	}
	return nil
}

// Eligible reports whether w may currently be chosen by the selector.
func (w *Worker) Eligible(now time.Time) bool {
	return w.Online && w.EffectiveWeight > 0 && !now.Before(w.DisabledUntil)
}

// RecomputeEffective derives EffectiveWeight from the registry's current
// mode and the worker's override fields. Callers must hold Registry.Mu.
func (w *Worker) RecomputeEffective(mode WeightMode) {
	var weight int
	switch mode {
	case ModeManual:
		if w.ManualWeight != nil {
			weight = *w.ManualWeight
		} else {
			weight = w.ReportedWeight
		}
	case ModeAuto:
		if w.AutoWeight != nil {
			weight = *w.AutoWeight
		} else {
			weight = w.ReportedWeight
		}
	default:
		weight = w.ReportedWeight
	}
	if weight < 1 {
		weight = 1
	}
	w.EffectiveWeight = weight
}

// RecomputeAll recomputes EffectiveWeight for every worker under Mu.
func (r *Registry) RecomputeAll() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	for _, w := range r.Workers {
		w.RecomputeEffective(r.Mode)
	}
}

// RecordHistory appends a bounded dispatch outcome entry, overwriting the
// oldest entry once the ring is full. Callers must hold Mu.
func (r *Registry) RecordHistory(e HistoryEntry) {
	if len(r.history) < historyCapacity {
		r.history = append(r.history, e)
		return
	}
	r.history[r.historyPos] = e
	r.historyPos = (r.historyPos + 1) % historyCapacity
}

// ResetExperiment zeroes per-worker counters, selector scratch state, and
// the disable window, and clears the history ring — spec.md §6.1
// /experiment/reset.
func (r *Registry) ResetExperiment() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	for _, w := range r.Workers {
		w.Assigned = 0
		w.OK = 0
		w.Fail = 0
		w.AvgLatencyMs = 0
		w.CurrentWeight = 0
		w.DisabledUntil = time.Time{}
		if w.Online {
			w.LastError = ""
		}
	}
	r.history = nil
	r.historyPos = 0
}
