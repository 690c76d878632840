// Package handler implements the worker's request-handling engine
// (spec.md §4.7): capacity admission, fault composition, and the
// simulated-latency response.
package handler

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"trafficshape/internal/metrics"
	"trafficshape/internal/worker/faults"
)

// Config is the worker's live-patchable tunables (spec.md §4.7).
type Config struct {
	WorkerID  string `json:"worker_id"`
	BaseLatMs int    `json:"base_lat_ms"`
	JitterMs  int    `json:"jitter_ms"`
	Capacity  int    `json:"capacity"`
	Weight    int    `json:"weight"`
}

// Response is POST /handle's success body.
type Response struct {
	WorkerID    string `json:"worker_id"`
	Message     string `json:"message"`
	SimulatedMs int    `json:"simulated_ms"`
}

// Outcome is what Handle returns to its HTTP caller: a status code and
// a JSON-encodable (or, for invalid_json corruption, raw string) body.
type Outcome struct {
	StatusCode int
	Body       any
}

// Engine owns the worker's counters and config under a single mutex,
// held only for state transitions, never across sleeps (spec.md §5).
type Engine struct {
	mu  sync.Mutex
	cfg Config

	total, ok, fail int64
	inflight        int
	lastError       string
	lastSimulatedMs int
	lastCompletedAt time.Time

	faults *faults.Registry
	logger *log.Logger
}

func New(cfg Config, faultReg *faults.Registry, logger *log.Logger) *Engine {
	return &Engine{cfg: cfg, faults: faultReg, logger: logger}
}

// GetConfig returns a copy of the current config.
func (e *Engine) GetConfig() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// PatchConfig applies a partial update, validating each field's bounds
// from spec.md §4.7 before committing any of them.
func (e *Engine) PatchConfig(patch map[string]any) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg
	if v, ok := patch["base_lat_ms"]; ok {
		n, err := asInt(v)
		if err != nil || n < 0 || n > 60000 {
			return Config{}, fmt.Errorf("base_lat_ms must be in [0, 60000]")
		}
		next.BaseLatMs = n
	}
	if v, ok := patch["jitter_ms"]; ok {
		n, err := asInt(v)
		if err != nil || n < 0 || n > 60000 {
			return Config{}, fmt.Errorf("jitter_ms must be in [0, 60000]")
		}
		next.JitterMs = n
	}
	if v, ok := patch["capacity"]; ok {
		n, err := asInt(v)
		if err != nil || n < 1 || n > 100000 {
			return Config{}, fmt.Errorf("capacity must be in [1, 100000]")
		}
		next.Capacity = n
	}
	if v, ok := patch["weight"]; ok {
		n, err := asInt(v)
		if err != nil || n < 1 || n > 1000 {
			return Config{}, fmt.Errorf("weight must be in [1, 1000]")
		}
		next.Weight = n
	}

	e.cfg = next
	return e.cfg, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("not a number")
	}
}

// MetricsSnapshot is GET /metrics' body.
type MetricsSnapshot struct {
	WorkerID          string  `json:"worker_id"`
	Inflight          int     `json:"inflight"`
	Total             int64   `json:"total"`
	OK                int64   `json:"ok"`
	Fail              int64   `json:"fail"`
	LastError         *string `json:"last_error"`
	LastSimulatedMs   *int    `json:"last_simulated_ms"`
	LastCompletedAtMs *int64  `json:"last_completed_at"`
}

func (e *Engine) Metrics() MetricsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() MetricsSnapshot {
	snap := MetricsSnapshot{
		WorkerID: e.cfg.WorkerID,
		Inflight: e.inflight,
		Total:    e.total,
		OK:       e.ok,
		Fail:     e.fail,
	}
	if e.lastError != "" {
		s := e.lastError
		snap.LastError = &s
	}
	if e.lastSimulatedMs != 0 {
		n := e.lastSimulatedMs
		snap.LastSimulatedMs = &n
	}
	if !e.lastCompletedAt.IsZero() {
		ms := e.lastCompletedAt.UnixMilli()
		snap.LastCompletedAtMs = &ms
	}
	return snap
}

// ResetMetrics zeroes every counter and returns the before/after pair
// for the /metrics/reset round-trip contract.
func (e *Engine) ResetMetrics() (before, after MetricsSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	before = e.snapshotLocked()
	e.total, e.ok, e.fail = 0, 0, 0
	e.lastError = ""
	e.lastSimulatedMs = 0
	e.lastCompletedAt = time.Time{}
	after = e.snapshotLocked()
	return before, after
}

// Handle runs the twelve-step flow of spec.md §4.7 against a snapshot
// of currently active faults.
func (e *Engine) Handle(ctx context.Context) Outcome {
	start := time.Now()

	e.mu.Lock()
	e.total++
	cfg := e.cfg
	e.mu.Unlock()

	active := e.faults.SnapshotActive()

	// Determined once: step 2 and step 7 both check this same winning
	// drop fault by mode, rather than re-rolling probability twice.
	drop := firstFiring(active, faults.KindDrop)

	if drop != nil && drop.Spec.Mode == "503" {
		e.recordFail("fault_drop_503", start)
		recordFaultFiring(faults.KindDrop)
		return Outcome{StatusCode: drop.Spec.StatusCode, Body: map[string]any{"error": "fault_drop_503"}}
	}

	if errFault := firstFiring(active, faults.KindError); errFault != nil {
		e.recordFail("fault_error", start)
		recordFaultFiring(faults.KindError)
		return Outcome{
			StatusCode: errFault.Spec.StatusCode,
			Body: map[string]any{
				"error":     errFault.Spec.Message,
				"worker_id": cfg.WorkerID,
				"kind":      "error",
			},
		}
	}

	e.mu.Lock()
	if e.inflight >= cfg.Capacity {
		e.mu.Unlock()
		e.recordFail("over_capacity", start)
		return Outcome{StatusCode: 503, Body: map[string]any{"error": "over capacity"}}
	}
	e.inflight++
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.InflightRequests.Set(float64(e.inflight))
	}
	e.mu.Unlock()
	defer e.decrementInflight()

	delayMs := sumFiring(active, faults.KindDelay, func(s faults.Spec) int { return s.DelayMs })
	if delayMs > 0 {
		sleep(ctx, time.Duration(delayMs)*time.Millisecond)
		recordFaultFiring(faults.KindDelay)
	}

	burnMs := sumFiring(active, faults.KindCPUBurn, func(s faults.Spec) int { return s.BurnMs })
	if burnMs > 0 {
		busySpin(time.Duration(burnMs) * time.Millisecond)
		recordFaultFiring(faults.KindCPUBurn)
	}

	if drop != nil && drop.Spec.Mode == "timeout" {
		sleep(ctx, time.Duration(drop.Spec.SleepMs)*time.Millisecond)
		e.recordFail("fault_drop_timeout", start)
		recordFaultFiring(faults.KindDrop)
		return Outcome{StatusCode: 504, Body: map[string]any{"error": "fault_drop_timeout"}}
	}

	jitter := 0
	if cfg.JitterMs > 0 {
		jitter = rand.Intn(cfg.JitterMs + 1)
	}
	simulated := cfg.BaseLatMs + jitter
	sleep(ctx, time.Duration(simulated)*time.Millisecond)

	if corrupt := firstFiring(active, faults.KindCorrupt); corrupt != nil {
		e.recordFail("fault_corrupt", start)
		recordFaultFiring(faults.KindCorrupt)
		if corrupt.Spec.Mode == "invalid_json" {
			return Outcome{StatusCode: 500, Body: RawBody("CORRUPTED")}
		}
		return Outcome{StatusCode: 500, Body: map[string]any{
			"worker":       cfg.WorkerID,
			"msg":          "CORRUPTED",
			"simulated_ms": "NaN",
		}}
	}

	e.mu.Lock()
	e.ok++
	e.lastSimulatedMs = simulated
	e.lastCompletedAt = time.Now()
	e.lastError = ""
	e.mu.Unlock()

	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordHandle("ok", time.Since(start))
	}

	return Outcome{
		StatusCode: 200,
		Body: Response{
			WorkerID:    cfg.WorkerID,
			Message:     "Handled request (simulated).",
			SimulatedMs: simulated,
		},
	}
}

func recordFaultFiring(kind faults.Kind) {
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordFaultFiring(string(kind))
	}
}

// RawBody marks a string that the worker server must write as-is
// instead of JSON-encoding (the invalid_json corruption mode's whole
// point is a body that isn't valid JSON).
type RawBody string

func (b RawBody) String() string { return string(b) }

func (e *Engine) recordFail(reason string, start time.Time) {
	e.mu.Lock()
	e.fail++
	e.lastError = reason
	e.mu.Unlock()
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordHandle(reason, time.Since(start))
	}
}

func (e *Engine) decrementInflight() {
	e.mu.Lock()
	if e.inflight > 0 {
		e.inflight--
	}
	inflight := e.inflight
	e.mu.Unlock()
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.InflightRequests.Set(float64(inflight))
	}
}

func firstFiring(active []faults.Fault, kind faults.Kind) *faults.Fault {
	for i := range active {
		f := active[i]
		if f.Kind != kind {
			continue
		}
		if faults.ShouldTrigger(f.Spec.Probability) {
			return &active[i]
		}
	}
	return nil
}

func sumFiring(active []faults.Fault, kind faults.Kind, field func(faults.Spec) int) int {
	total := 0
	for _, f := range active {
		if f.Kind != kind {
			continue
		}
		if faults.ShouldTrigger(f.Spec.Probability) {
			total += field(f.Spec)
		}
	}
	return total
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// busySpin holds the calling goroutine on monotonic time for d. Go's
// preemptive scheduler keeps other goroutines runnable on the
// remaining OS threads, so this burns one core without starving the
// rest of the process.
func busySpin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
