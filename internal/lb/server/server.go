// Package server assembles the load balancer's HTTP surface: routing,
// CORS, metrics middleware, and the WebSocket state stream.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"trafficshape/internal/lb/cgclient"
	"trafficshape/internal/lb/control"
	"trafficshape/internal/lb/dispatch"
	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/streaming"
	"trafficshape/internal/lb/wclient"
	"trafficshape/internal/metrics"
)

// Server owns the LB's mux router and the dependencies its handlers
// need.
type Server struct {
	router *mux.Router
	logger *log.Logger
	hub    *streaming.Hub
}

// New wires the registry, dispatch engine, worker/CG clients, and
// streaming hub into a routed, CORS-wrapped, metrics-instrumented
// router, following the teacher's setupRoutes/NewServer split.
func New(reg *registry.Registry, engine *dispatch.Engine, wc *wclient.Client, cgc *cgclient.Client, hub *streaming.Hub, logger *log.Logger) *Server {
	metrics.InitMetrics()

	h := &control.Handlers{
		Reg:      reg,
		Engine:   engine,
		WClient:  wc,
		CGClient: cgc,
		Logger:   logger,
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		hub:    hub,
	}
	s.setupRoutes(h)
	return s
}

func (s *Server) setupRoutes(h *control.Handlers) {
	s.router.Use(metrics.HTTPMetricsMiddleware)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/metrics/dashboard", metrics.DashboardHandler).Methods("GET")

	s.router.HandleFunc("/health", h.Health).Methods("GET")
	s.router.HandleFunc("/workers", h.Workers).Methods("GET")
	s.router.HandleFunc("/state", h.State).Methods("GET")
	s.router.HandleFunc("/request", h.Request).Methods("POST")

	s.router.HandleFunc("/lb/weight-mode", h.GetWeightMode).Methods("GET")
	s.router.HandleFunc("/lb/weight-mode", h.SetWeightMode).Methods("POST")

	s.router.HandleFunc("/workers/{id}/manual-weight", h.PatchManualWeight).Methods("PATCH")
	s.router.HandleFunc("/workers/{id}/manual-weight", h.DeleteManualWeight).Methods("DELETE")

	s.router.HandleFunc("/workers/{id}/config", h.GetWorkerConfig).Methods("GET")
	s.router.HandleFunc("/workers/{id}/config", h.PatchWorkerConfig).Methods("PATCH")
	s.router.HandleFunc("/workers/{id}/metrics", h.GetWorkerMetrics).Methods("GET")
	s.router.HandleFunc("/workers/{id}/metrics/reset", h.ResetWorkerMetrics).Methods("POST")

	s.router.HandleFunc("/workers/{id}/faults", h.ListWorkerFaults).Methods("GET")
	s.router.HandleFunc("/workers/{id}/faults", h.AddWorkerFault).Methods("POST")
	s.router.HandleFunc("/workers/{id}/faults", h.DeleteWorkerFault).Methods("DELETE")
	s.router.HandleFunc("/workers/{id}/faults/{fid}", h.DeleteWorkerFault).Methods("DELETE")

	s.router.HandleFunc("/experiment/reset", h.ExperimentReset).Methods("POST")

	s.router.HandleFunc("/traffic/start", h.StartTraffic).Methods("POST")
	s.router.HandleFunc("/traffic/stop", h.StopTraffic).Methods("POST")
	s.router.HandleFunc("/traffic/status", h.TrafficStatus).Methods("GET")

	s.router.HandleFunc("/stream", s.hub.ServeHTTP)
}

// Start wraps the router in a permissive CORS handler and serves it on
// port, matching the teacher's Server.Start.
func (s *Server) Start(port int) error {
	s.logger.Printf("Starting LB server on port %d", port)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})

	handler := c.Handler(s.router)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), handler)
}
