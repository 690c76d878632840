package control

import (
	"encoding/json"
	"net/http"

	"trafficshape/internal/lb/cgclient"
)

// StartTraffic proxies POST /traffic/start to the client generator's
// own POST /start.
func (h *Handlers) StartTraffic(w http.ResponseWriter, r *http.Request) {
	h.proxyCG(w, r, http.MethodPost, "/start", true)
}

// StopTraffic proxies POST /traffic/stop to the client generator's own
// POST /stop.
func (h *Handlers) StopTraffic(w http.ResponseWriter, r *http.Request) {
	h.proxyCG(w, r, http.MethodPost, "/stop", false)
}

// TrafficStatus proxies GET /traffic/status to the client generator's
// own GET /status.
func (h *Handlers) TrafficStatus(w http.ResponseWriter, r *http.Request) {
	h.proxyCG(w, r, http.MethodGet, "/status", false)
}

func (h *Handlers) proxyCG(w http.ResponseWriter, r *http.Request, method, path string, decodeBody bool) {
	if h.CGClient == nil {
		writeError(w, http.StatusServiceUnavailable, "client generator not configured")
		return
	}

	var payload any
	if decodeBody && r.ContentLength != 0 {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		payload = body
	}

	var result map[string]any
	var err error
	if method == http.MethodGet {
		result, err = h.CGClient.Get(r.Context(), path)
	} else {
		result, err = h.CGClient.Post(r.Context(), path, payload)
	}
	if err != nil {
		if statusErr, ok := err.(*cgclient.StatusError); ok {
			body := statusErr.Body
			if body == nil {
				body = map[string]any{}
			}
			if _, hasDetail := body["detail"]; !hasDetail && statusErr.StatusCode == http.StatusConflict {
				body["detail"] = "Clientgen already running"
			}
			writeJSON(w, statusErr.StatusCode, body)
			return
		}
		writeUpstreamError(w, "clientgen", path, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
