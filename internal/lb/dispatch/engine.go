// Package dispatch implements the LB's request-dispatch engine: bounded
// retry over the smooth WRR selector, latency EWMA, and temporary
// disabling of workers that fail a forward (spec.md §4.3).
package dispatch

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/selector"
	"trafficshape/internal/lb/wclient"
	"trafficshape/internal/metrics"
)

// ErrNoEligibleWorker is returned when the selector has nothing to offer.
var ErrNoEligibleWorker = errors.New("no eligible worker")

// ErrAllAttemptsFailed is returned after RetryAttempts consecutive
// transport/5xx failures.
type ErrAllAttemptsFailed struct {
	LastErr string
}

func (e *ErrAllAttemptsFailed) Error() string {
	return "all attempts failed: " + e.LastErr
}

// Result is what a successful or client-fault dispatch returns to the
// caller of Request.
type Result struct {
	ChosenWorker string
	Attempt      int
	WorkerStatus int
	ForwardMs    float64
	WorkerBody   any
}

// Config bundles the tunables from spec.md §6.3 that the engine needs.
type Config struct {
	RetryAttempts     int
	RequestTimeout    time.Duration
	DisableOnFail     time.Duration
	LatencyEWMAAlpha  float64
}

// Engine ties a registry, a selector, and a worker HTTP client together.
type Engine struct {
	reg    *registry.Registry
	sel    *selector.Selector
	client *wclient.Client
	cfg    Config
	logger *log.Logger
}

func New(reg *registry.Registry, sel *selector.Selector, client *wclient.Client, cfg Config, logger *log.Logger) *Engine {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Engine{reg: reg, sel: sel, client: client, cfg: cfg, logger: logger}
}

// Request runs the retry loop described in spec.md §4.3: up to
// RetryAttempts attempts, each against a freshly chosen worker. Transport
// failures and 5xx are retried against another worker after disabling the
// offending one; 4xx is surfaced directly without retry; 2xx returns
// immediately.
func (e *Engine) Request(ctx context.Context, payload any) (*Result, error) {
	var lastErr string

	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		w := e.sel.Choose()
		if w == nil {
			return nil, ErrNoEligibleWorker
		}

		res, err := e.client.Forward(ctx, w.URL, payload, e.cfg.RequestTimeout)
		if err != nil {
			lastErr = err.Error()
			e.recordFailure(w, lastErr, attempt, 0, 0)
			continue
		}

		if res.StatusCode >= 500 {
			lastErr = "upstream status " + strconv.Itoa(res.StatusCode)
			e.recordFailure(w, lastErr, attempt, res.StatusCode, res.LatencyMs)
			continue
		}

		if res.StatusCode >= 400 {
			e.recordClientFault(w, attempt, res.StatusCode, res.LatencyMs)
			return &Result{
				ChosenWorker: w.ID,
				Attempt:      attempt,
				WorkerStatus: res.StatusCode,
				ForwardMs:    res.LatencyMs,
				WorkerBody:   res.Body,
			}, nil
		}

		e.recordSuccess(w, attempt, res.StatusCode, res.LatencyMs)
		return &Result{
			ChosenWorker: w.ID,
			Attempt:      attempt,
			WorkerStatus: res.StatusCode,
			ForwardMs:    res.LatencyMs,
			WorkerBody:   res.Body,
		}, nil
	}

	return nil, &ErrAllAttemptsFailed{LastErr: lastErr}
}

func (e *Engine) recordSuccess(w *registry.Worker, attempt, status int, latencyMs float64) {
	e.reg.Mu.Lock()
	defer e.reg.Mu.Unlock()
	if w.AvgLatencyMs <= 0 {
		w.AvgLatencyMs = latencyMs
	} else {
		w.AvgLatencyMs = e.cfg.LatencyEWMAAlpha*latencyMs + (1-e.cfg.LatencyEWMAAlpha)*w.AvgLatencyMs
	}
	w.OK++
	w.LastError = ""
	e.reg.RecordHistory(registry.HistoryEntry{
		WorkerID: w.ID, Attempt: attempt, Status: status, LatencyMs: latencyMs, At: time.Now(),
	})
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordDispatch(w.ID, "ok", time.Duration(latencyMs*float64(time.Millisecond)))
	}
}

func (e *Engine) recordClientFault(w *registry.Worker, attempt, status int, latencyMs float64) {
	e.reg.Mu.Lock()
	defer e.reg.Mu.Unlock()
	w.Fail++
	e.reg.RecordHistory(registry.HistoryEntry{
		WorkerID: w.ID, Attempt: attempt, Status: status, LatencyMs: latencyMs, At: time.Now(),
	})
	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordDispatch(w.ID, "client_fault", time.Duration(latencyMs*float64(time.Millisecond)))
	}
}

func (e *Engine) recordFailure(w *registry.Worker, errStr string, attempt, status int, latencyMs float64) {
	e.reg.Mu.Lock()
	w.Fail++
	w.LastError = errStr
	w.DisabledUntil = time.Now().Add(e.cfg.DisableOnFail)
	e.reg.RecordHistory(registry.HistoryEntry{
		WorkerID: w.ID, Attempt: attempt, Status: status, LatencyMs: latencyMs, Err: errStr, At: time.Now(),
	})
	e.reg.Mu.Unlock()

	if metrics.AppMetrics != nil {
		metrics.AppMetrics.RecordDispatch(w.ID, "fail", time.Duration(latencyMs*float64(time.Millisecond)))
	}

	if e.logger != nil {
		e.logger.Printf("worker %s disabled until %s: %s", w.ID, w.DisabledUntil.Format(time.RFC3339), errStr)
	}
}
