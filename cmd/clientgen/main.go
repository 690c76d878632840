package main

import (
	"log"
	"os"

	"trafficshape/internal/clientgen/pacer"
	"trafficshape/internal/clientgen/server"
	"trafficshape/pkg/config"
)

func main() {
	logger := log.New(os.Stdout, "[CLIENTGEN] ", log.LstdFlags)

	logger.Println("Loading configuration...")
	cfg, err := config.LoadClientGenConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	logger.Printf("Clientgen targeting %s, listening on port %d", cfg.LBURL, cfg.Port)

	p := pacer.New(cfg.LBURL, logger)
	srv := server.New(p, logger)
	if err := srv.Start(cfg.Port); err != nil {
		logger.Fatalf("Clientgen server failed: %v", err)
	}
}
