package main

import (
	"log"
	"os"

	"trafficshape/internal/worker/faults"
	"trafficshape/internal/worker/handler"
	"trafficshape/internal/worker/server"
	"trafficshape/pkg/config"
)

func main() {
	logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)

	logger.Println("Loading configuration...")
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	logger.Printf("Worker %q listening on port %d (base_lat_ms=%d jitter_ms=%d capacity=%d weight=%d)",
		cfg.WorkerID, cfg.Port, cfg.BaseLatMs, cfg.JitterMs, cfg.Capacity, cfg.Weight)

	faultReg := faults.New()
	engine := handler.New(handler.Config{
		WorkerID:  cfg.WorkerID,
		BaseLatMs: cfg.BaseLatMs,
		JitterMs:  cfg.JitterMs,
		Capacity:  cfg.Capacity,
		Weight:    cfg.Weight,
	}, faultReg, logger)

	srv := server.New(engine, faultReg, logger)
	if err := srv.Start(cfg.Port); err != nil {
		logger.Fatalf("Worker server failed: %v", err)
	}
}
