package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trafficshape/internal/lb/autoweight"
	"trafficshape/internal/lb/cgclient"
	"trafficshape/internal/lb/dispatch"
	"trafficshape/internal/lb/health"
	"trafficshape/internal/lb/registry"
	"trafficshape/internal/lb/selector"
	"trafficshape/internal/lb/server"
	"trafficshape/internal/lb/streaming"
	"trafficshape/internal/lb/wclient"
	"trafficshape/pkg/config"
)

func main() {
	logger := log.New(os.Stdout, "[LB] ", log.LstdFlags)

	logger.Println("Loading configuration...")
	cfg, err := config.LoadLBConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	logger.Printf("Configuration loaded: %d worker(s), weight mode %q", len(cfg.WorkerURLs), cfg.WeightMode)

	reg := registry.New(cfg.WorkerURLs, registry.WeightMode(cfg.WeightMode))
	reg.RecomputeAll()

	sel := selector.New(reg)
	wc := wclient.New(cfg.RequestTimeout)

	var cgc *cgclient.Client
	if cfg.ClientGenURL != "" {
		cgc = cgclient.New(cfg.ClientGenURL)
	}

	engine := dispatch.New(reg, sel, wc, dispatch.Config{
		RetryAttempts:    cfg.RetryAttempts,
		RequestTimeout:   cfg.RequestTimeout,
		DisableOnFail:    cfg.DisableOnFail,
		LatencyEWMAAlpha: cfg.LatencyEWMAAlpha,
	}, logger)

	prober := health.New(reg, wc, cfg.HealthInterval, logger)
	autoWeight := autoweight.New(reg, cfg.AutoWeightInterval, cfg.AutoWeightMax, logger)
	hub := streaming.NewHub(reg, cfg.StreamInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go prober.Run(ctx)
	go autoWeight.Start(ctx)
	go hub.Run(ctx.Done())

	srv := server.New(reg, engine, wc, cgc, hub, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Port); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Fatalf("LB server failed: %v", err)
	case sig := <-sigChan:
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}
}
