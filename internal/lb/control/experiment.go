package control

import (
	"context"
	"net/http"
)

// ExperimentReset answers POST /experiment/reset, following the
// original's independent-failure-tolerant ordering: stop the client
// generator, reset its counters, reset every worker's metrics, then
// zero the LB's own per-worker counters and history. One target's
// failure never skips the rest (spec.md §12).
func (h *Handlers) ExperimentReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
	defer cancel()

	results := map[string]any{}

	if h.CGClient != nil {
		results["clientgen_stop"] = attempt(func() (any, error) {
			return h.CGClient.Post(ctx, "/stop", nil)
		})
		results["clientgen_reset"] = attempt(func() (any, error) {
			return h.CGClient.Post(ctx, "/reset", nil)
		})
	}

	h.Reg.Mu.Lock()
	workers := make([]struct{ id, url string }, 0, len(h.Reg.Workers))
	for _, worker := range h.Reg.Workers {
		workers = append(workers, struct{ id, url string }{worker.ID, worker.URL})
	}
	h.Reg.Mu.Unlock()

	workerResults := map[string]any{}
	for _, worker := range workers {
		workerResults[worker.id] = attempt(func() (any, error) {
			return h.WClient.ResetMetrics(ctx, worker.url)
		})
	}
	results["workers"] = workerResults

	h.Reg.ResetExperiment()
	results["lb"] = map[string]any{"ok": true}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func attempt(fn func() (any, error)) map[string]any {
	v, err := fn()
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}
	}
	return map[string]any{"ok": true, "result": v}
}
