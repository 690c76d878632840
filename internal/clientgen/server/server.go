// Package server implements the client generator's control surface:
// health, start/stop/status/reset over the run pacer owns.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficshape/internal/clientgen/pacer"
	"trafficshape/internal/metrics"
)

// Server owns the generator's router and its pacer.
type Server struct {
	router *mux.Router
	pacer  *pacer.Pacer
	logger *log.Logger
}

func New(p *pacer.Pacer, logger *log.Logger) *Server {
	metrics.InitMetrics()
	s := &Server{
		router: mux.NewRouter(),
		pacer:  p,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(metrics.HTTPMetricsMiddleware)

	s.router.Handle("/metrics/prometheus", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/start", s.start).Methods("POST")
	s.router.HandleFunc("/stop", s.stop).Methods("POST")
	s.router.HandleFunc("/status", s.status).Methods("GET")
	s.router.HandleFunc("/reset", s.reset).Methods("POST")
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start(port int) error {
	s.logger.Printf("Starting clientgen server on port %d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "clientgen"})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req pacer.StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
			return
		}
	}
	if req.RPS < 0.1 || req.RPS > 5000 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "rps must be in [0.1, 5000]"})
		return
	}
	if req.DurationSec != nil && *req.DurationSec < 0.1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "duration_sec must be >= 0.1"})
		return
	}

	status, err := s.pacer.Start(req)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "Clientgen already running"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	status, message := s.pacer.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "status": status})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pacer.Status())
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pacer.Reset())
}
