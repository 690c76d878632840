// Package control implements the LB's HTTP control surface (spec.md
// §6.1): health, worker views, state, request dispatch, weight-mode,
// per-worker proxying, experiment reset, and CG traffic proxying.
package control

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"trafficshape/internal/lb/cgclient"
	"trafficshape/internal/lb/dispatch"
	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/streaming"
	"trafficshape/internal/lb/wclient"
)

// Handlers bundles every dependency the control surface dispatches into.
type Handlers struct {
	Reg      *registry.Registry
	Engine   *dispatch.Engine
	WClient  *wclient.Client
	CGClient *cgclient.Client
	Logger   *log.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeUpstreamError(w http.ResponseWriter, workerID, op string, err error) {
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"code":      "upstream_error",
		"worker_id": workerID,
		"op":        op,
		"message":   err.Error(),
	})
}

// Health answers GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "lb"})
}

// Workers answers GET /workers with the same per-worker views the state
// snapshot carries.
func (h *Handlers) Workers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, streaming.Snapshot(h.Reg).Workers)
}

// State answers GET /state.
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, streaming.Snapshot(h.Reg))
}

// requestBody is POST /request's envelope: an opaque payload forwarded
// verbatim to whichever worker the selector chooses.
type requestBody struct {
	Payload any `json:"payload"`
}

// Request answers POST /request, running the dispatch engine's retry
// loop and translating its terminal errors to the status codes spec.md
// §7 names.
func (h *Handlers) Request(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Engine.Request(r.Context(), body.Payload)
	if err != nil {
		switch err {
		case dispatch.ErrNoEligibleWorker:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chosen_worker": res.ChosenWorker,
		"attempt":       res.Attempt,
		"worker_status": res.WorkerStatus,
		"lb_forward_ms": res.ForwardMs,
		"worker_body":   res.WorkerBody,
	})
}

// findWorker accepts either the registry id or the URL-derived host,
// per spec.md §6.1's worker-id lookup rule (already implemented once in
// registry.Find so every handler shares the same resolution order).
func (h *Handlers) findWorker(id string) *registry.Worker {
	h.Reg.Mu.Lock()
	defer h.Reg.Mu.Unlock()
	return h.Reg.Find(id)
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
