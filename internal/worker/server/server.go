// Package server implements the worker's HTTP surface (spec.md §6.2):
// health, config, metrics, handle, and faults.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficshape/internal/metrics"
	"trafficshape/internal/worker/faults"
	"trafficshape/internal/worker/handler"
)

// Server owns the worker's router, its handling engine, and its fault
// registry.
type Server struct {
	router *mux.Router
	engine *handler.Engine
	faults *faults.Registry
	logger *log.Logger
}

func New(engine *handler.Engine, faultReg *faults.Registry, logger *log.Logger) *Server {
	metrics.InitMetrics()
	s := &Server{
		router: mux.NewRouter(),
		engine: engine,
		faults: faultReg,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(metrics.HTTPMetricsMiddleware)

	s.router.Handle("/metrics/prometheus", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/config", s.getConfig).Methods("GET")
	s.router.HandleFunc("/config", s.patchConfig).Methods("PATCH")
	s.router.HandleFunc("/metrics", s.getMetrics).Methods("GET")
	s.router.HandleFunc("/metrics/reset", s.resetMetrics).Methods("POST")
	s.router.HandleFunc("/handle", s.handle).Methods("POST")

	s.router.HandleFunc("/faults", s.listFaults).Methods("GET")
	s.router.HandleFunc("/faults", s.addFault).Methods("POST")
	s.router.HandleFunc("/faults", s.clearFaults).Methods("DELETE")
	s.router.HandleFunc("/faults/{id}", s.deleteFault).Methods("DELETE")
}

func (s *Server) Router() http.Handler { return s.router }

// Start serves the worker's router on port.
func (s *Server) Start(port int) error {
	s.logger.Printf("Starting worker server on port %d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.GetConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"worker_id":   cfg.WorkerID,
		"base_lat_ms": cfg.BaseLatMs,
		"jitter_ms":   cfg.JitterMs,
		"capacity":    cfg.Capacity,
		"weight":      cfg.Weight,
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetConfig())
}

func (s *Server) patchConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	cfg, err := s.engine.PatchConfig(patch)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics())
}

func (s *Server) resetMetrics(w http.ResponseWriter, r *http.Request) {
	before, after := s.engine.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{"before": before, "after": after})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	outcome := s.engine.Handle(r.Context())

	if raw, ok := outcome.Body.(handler.RawBody); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(outcome.StatusCode)
		fmt.Fprint(w, raw.String())
		return
	}
	writeJSON(w, outcome.StatusCode, outcome.Body)
}

func (s *Server) listFaults(w http.ResponseWriter, r *http.Request) {
	faultList := s.faults.List()
	views := make([]map[string]any, 0, len(faultList))
	for _, f := range faultList {
		views = append(views, map[string]any{
			"id":         f.ID,
			"kind":       f.Kind,
			"created_at": f.CreatedAt.Unix(),
			"expires_at": expiresAtUnix(f),
			"spec":       f.Spec,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func expiresAtUnix(f *faults.Fault) any {
	if f.ExpiresAt == nil {
		return nil
	}
	return f.ExpiresAt.Unix()
}

func (s *Server) addFault(w http.ResponseWriter, r *http.Request) {
	var spec faults.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	f, err := s.faults.Add(spec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         f.ID,
		"kind":       f.Kind,
		"created_at": f.CreatedAt.Unix(),
		"expires_at": expiresAtUnix(f),
		"spec":       f.Spec,
	})
}

func (s *Server) deleteFault(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existed := s.faults.Delete(id)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": existed})
}

func (s *Server) clearFaults(w http.ResponseWriter, r *http.Request) {
	n := s.faults.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}
