package control

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"trafficshape/internal/lb/registry"
)

type weightModeBody struct {
	Mode string `json:"mode"`
}

// GetWeightMode answers GET /lb/weight-mode.
func (h *Handlers) GetWeightMode(w http.ResponseWriter, r *http.Request) {
	h.Reg.Mu.Lock()
	mode := h.Reg.Mode
	h.Reg.Mu.Unlock()
	writeJSON(w, http.StatusOK, weightModeBody{Mode: string(mode)})
}

// SetWeightMode answers POST /lb/weight-mode, switching the registry
// between manual and auto and recomputing every worker's effective
// weight under the same lock.
func (h *Handlers) SetWeightMode(w http.ResponseWriter, r *http.Request) {
	var body weightModeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	mode := registry.WeightMode(body.Mode)
	if mode != registry.ModeManual && mode != registry.ModeAuto {
		writeError(w, http.StatusBadRequest, "mode must be \"manual\" or \"auto\"")
		return
	}

	h.Reg.Mu.Lock()
	h.Reg.Mode = mode
	for _, worker := range h.Reg.Workers {
		worker.RecomputeEffective(mode)
	}
	h.Reg.Mu.Unlock()

	writeJSON(w, http.StatusOK, weightModeBody{Mode: string(mode)})
}

type manualWeightBody struct {
	Weight int `json:"weight"`
}

// PatchManualWeight answers PATCH /workers/{id}/manual-weight.
func (h *Handlers) PatchManualWeight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body manualWeightBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Weight < 1 || body.Weight > 1000 {
		writeError(w, http.StatusBadRequest, "weight must be between 1 and 1000")
		return
	}

	h.Reg.Mu.Lock()
	defer h.Reg.Mu.Unlock()

	if h.Reg.Mode != registry.ModeManual {
		writeError(w, http.StatusConflict, "weight mode is not manual")
		return
	}
	worker := h.Reg.Find(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}

	weight := body.Weight
	worker.ManualWeight = &weight
	worker.RecomputeEffective(h.Reg.Mode)
	writeJSON(w, http.StatusOK, map[string]any{"id": worker.ID, "manual_weight": weight})
}

// DeleteManualWeight answers DELETE /workers/{id}/manual-weight.
func (h *Handlers) DeleteManualWeight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.Reg.Mu.Lock()
	defer h.Reg.Mu.Unlock()

	worker := h.Reg.Find(id)
	if worker == nil {
		writeError(w, http.StatusNotFound, "unknown worker: "+id)
		return
	}
	worker.ManualWeight = nil
	worker.RecomputeEffective(h.Reg.Mode)
	writeJSON(w, http.StatusOK, map[string]any{"id": worker.ID, "manual_weight": nil})
}
