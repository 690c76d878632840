package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const proxyTimeout = 5 * time.Second

// GetWorkerConfig proxies GET /workers/{id}/config.
func (h *Handlers) GetWorkerConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}

	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	cfg, err := h.WClient.GetConfig(ctx, worker.URL)
	if err != nil {
		writeUpstreamError(w, id, "get_config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PatchWorkerConfig proxies PATCH /workers/{id}/config. On success the
// LB refreshes reported_weight and reported_base_lat_ms from the
// worker's echoed config, under the selector mutex (spec.md §6.1).
func (h *Handlers) PatchWorkerConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	cfg, err := h.WClient.PatchConfig(ctx, worker.URL, patch)
	if err != nil {
		writeUpstreamError(w, id, "patch_config", err)
		return
	}

	h.Reg.Mu.Lock()
	if weight, ok := cfg["weight"].(float64); ok {
		worker.ReportedWeight = max(1, int(weight))
		worker.RecomputeEffective(h.Reg.Mode)
	}
	if baseLat, ok := cfg["base_lat_ms"].(float64); ok {
		worker.ReportedBaseLatMs = int(baseLat)
	}
	h.Reg.Mu.Unlock()

	writeJSON(w, http.StatusOK, cfg)
}

// GetWorkerMetrics proxies GET /workers/{id}/metrics.
func (h *Handlers) GetWorkerMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}
	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	metrics, err := h.WClient.FetchMetrics(ctx, worker.URL)
	if err != nil {
		writeUpstreamError(w, id, "get_metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// ResetWorkerMetrics proxies POST /workers/{id}/metrics/reset.
func (h *Handlers) ResetWorkerMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}
	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	result, err := h.WClient.ResetMetrics(ctx, worker.URL)
	if err != nil {
		writeUpstreamError(w, id, "reset_metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListWorkerFaults proxies GET /workers/{id}/faults.
func (h *Handlers) ListWorkerFaults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}
	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	faults, err := h.WClient.ListFaults(ctx, worker.URL)
	if err != nil {
		writeUpstreamError(w, id, "list_faults", err)
		return
	}
	writeJSON(w, http.StatusOK, faults)
}

// AddWorkerFault proxies POST /workers/{id}/faults.
func (h *Handlers) AddWorkerFault(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}
	var spec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()
	result, err := h.WClient.AddFault(ctx, worker.URL, spec)
	if err != nil {
		writeUpstreamError(w, id, "add_fault", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// DeleteWorkerFault proxies DELETE /workers/{id}/faults/{fid}, or clears
// every fault when fid is absent.
func (h *Handlers) DeleteWorkerFault(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	worker := h.findWorker(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}

	ctx, cancel := withTimeout(r, proxyTimeout)
	defer cancel()

	fid, hasFid := vars["fid"]
	var result map[string]any
	var err error
	if hasFid {
		result, err = h.WClient.DeleteFault(ctx, worker.URL, fid)
	} else {
		result, err = h.WClient.ClearFaults(ctx, worker.URL)
	}
	if err != nil {
		writeUpstreamError(w, id, "delete_fault", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
